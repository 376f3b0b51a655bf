// Package webui serves a browser view of a visualizer: a JSON API for every
// list and run operation, and a websocket stream of snapshots.
package webui

import (
	"context"
	"embed"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/loopviz"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Defaults for the websocket connections.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultCoalesceWindow = 25 * time.Millisecond
	maxMessageSize        = 4096
)

//go:embed static
var staticFS embed.FS

type (
	// Server is the web view of a single Visualizer.
	Server struct {
		echo        *echo.Echo
		viz         *loopviz.Visualizer
		hub         *hub
		logger      *logiface.Logger[logiface.Event]
		upgrader    websocket.Upgrader
		unsubscribe func()
		cfg         serverConfig
	}

	serverConfig struct {
		pingInterval   time.Duration
		writeTimeout   time.Duration
		coalesceWindow time.Duration
	}

	// Option configures a Server.
	Option interface {
		applyServer(*Server) error
	}

	optionImpl struct {
		applyServerFunc func(*Server) error
	}
)

func (o *optionImpl) applyServer(s *Server) error { return o.applyServerFunc(s) }

// WithLogger configures request and connection logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(s *Server) error {
		s.logger = logger
		return nil
	}}
}

// WithPingInterval sets how often websocket clients are pinged. Clients that
// miss two pings are dropped.
func WithPingInterval(d time.Duration) Option {
	return &optionImpl{func(s *Server) error {
		if d <= 0 {
			return errors.New(`webui: ping interval must be positive`)
		}
		s.cfg.pingInterval = d
		return nil
	}}
}

// WithCoalesceWindow sets how long a websocket writer waits, after a
// snapshot, for newer snapshots that supersede it.
func WithCoalesceWindow(d time.Duration) Option {
	return &optionImpl{func(s *Server) error {
		if d < 0 {
			return errors.New(`webui: coalesce window must not be negative`)
		}
		s.cfg.coalesceWindow = d
		return nil
	}}
}

// New returns a Server for viz, subscribed to its snapshots until Shutdown.
func New(viz *loopviz.Visualizer, opts ...Option) (*Server, error) {
	if viz == nil {
		panic(`webui: nil visualizer`)
	}

	s := &Server{
		viz: viz,
		cfg: serverConfig{
			pingInterval:   DefaultPingInterval,
			writeTimeout:   DefaultWriteTimeout,
			coalesceWindow: DefaultCoalesceWindow,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyServer(s); err != nil {
			return nil, err
		}
	}

	s.hub = newHub(s.logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:     true,
		LogURI:        true,
		LogStatus:     true,
		LogLatency:    true,
		LogError:      true,
		HandleError:   true,
		LogValuesFunc: s.logRequest,
	}))
	s.echo = e
	s.routes()

	s.unsubscribe = viz.Subscribe(s.hub)

	return s, nil
}

func (s *Server) routes() {
	s.echo.GET(`/`, s.handleIndex)
	api := s.echo.Group(`/api`)
	api.GET(`/catalog`, s.handleCatalog)
	api.GET(`/state`, s.handleState)
	api.POST(`/events`, s.handleAdd)
	api.DELETE(`/events/:id`, s.handleRemove)
	api.POST(`/events/reorder`, s.handleReorder)
	api.POST(`/events/clear`, s.handleClear)
	api.POST(`/run`, s.handleRun)
	api.GET(`/ws`, s.handleWebSocket)
}

// Handler returns the http.Handler serving the view.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully, waiting up to shutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	s.echo.Listener = ln

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(``)
	}()

	s.logger.Info().
		Str(`addr`, ln.Addr().String()).
		Log(`webui: listening`)

	select {
	case err := <-errCh:
		s.closeHub()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.Shutdown(shutdownCtx)
	if startErr := <-errCh; startErr != nil && !errors.Is(startErr, http.ErrServerClosed) && err == nil {
		err = startErr
	}
	return err
}

// Shutdown stops accepting requests, disconnects every websocket client, and
// unsubscribes from the visualizer.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeHub()
	return s.echo.Shutdown(ctx)
}

func (s *Server) closeHub() {
	s.unsubscribe()
	s.hub.close()
}

func (s *Server) logRequest(c echo.Context, v middleware.RequestLoggerValues) error {
	event := s.logger.Debug()
	if v.Error != nil {
		event = s.logger.Warning().Err(v.Error)
	}
	event.
		Str(`method`, v.Method).
		Str(`uri`, v.URI).
		Int(`status`, v.Status).
		Dur(`latency`, v.Latency).
		Log(`webui: request`)
	return nil
}
