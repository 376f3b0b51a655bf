package webui

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joeycumines/loopviz/internal/drain"
	"github.com/labstack/echo/v4"
)

// handleWebSocket streams every snapshot, starting with the current one, as
// a JSON text message. Messages from the client are discarded.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the response
		s.logger.Debug().Err(err).Log(`webui: websocket upgrade failed`)
		return nil
	}

	cl := s.hub.register(s.viz.Snapshot())
	if cl == nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, `server shutting down`),
			time.Now().Add(s.cfg.writeTimeout),
		)
		return conn.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		s.readPump(conn, cl)
	}()
	go s.writePump(ctx, conn, cl)

	return nil
}

func (s *Server) readDeadline() time.Time {
	return time.Now().Add(2 * s.cfg.pingInterval)
}

func (s *Server) readPump(conn *websocket.Conn, cl *client) {
	defer func() {
		s.hub.unregister(cl)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(s.readDeadline())
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(s.readDeadline())
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warning().Err(err).Log(`webui: websocket read failed`)
			}
			return
		}
	}
}

// writePump writes the latest snapshot of each burst, and pings the client
// whenever it has been idle for the ping interval.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, cl *client) {
	defer conn.Close()

	cfg := drain.Config{
		// wait for a second snapshot, up to the window, to coalesce bursts
		MinSize: 2,
		Window:  s.cfg.coalesceWindow,
	}
	if cfg.Window == 0 {
		cfg.MinSize = 1
	}

	for {
		idleCtx, cancel := context.WithTimeout(ctx, s.cfg.pingInterval)
		snapshot, n, err := drain.Latest(idleCtx, &cfg, cl.send)
		cancel()

		if n > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.writeTimeout))
			if err := conn.WriteJSON(snapshot); err != nil {
				s.logger.Debug().Err(err).Log(`webui: websocket write failed`)
				return
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			// unregistered, or the hub closed
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ``),
				time.Now().Add(s.cfg.writeTimeout),
			)
			return
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.writeTimeout)); err != nil {
				return
			}
		default:
			return
		}
	}
}
