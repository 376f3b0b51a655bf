package webui

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/joeycumines/loopviz"
	"github.com/labstack/echo/v4"
)

type (
	// CatalogResponse is the body of GET /api/catalog.
	CatalogResponse struct {
		Templates []loopviz.Template `json:"templates"`
		Initial   []string           `json:"initial"`
	}

	// AddRequest is the body of POST /api/events.
	AddRequest struct {
		TemplateID string `json:"templateId"`
	}

	// ReorderRequest is the body of POST /api/events/reorder.
	ReorderRequest struct {
		FromID string `json:"fromId"`
		ToID   string `json:"toId"`
	}

	// RunResponse is the body of POST /api/run. Snapshot is only set if the
	// request waited for the run to settle.
	RunResponse struct {
		Snapshot *loopviz.Snapshot `json:"snapshot,omitempty"`
		RunID    string            `json:"runId"`
		Number   int               `json:"number"`
	}

	// ErrorResponse is the body of every failed request.
	ErrorResponse struct {
		Error string `json:"error"`
	}
)

func (s *Server) handleIndex(c echo.Context) error {
	b, err := fs.ReadFile(staticFS, `static/index.html`)
	if err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, b)
}

func (s *Server) handleCatalog(c echo.Context) error {
	catalog := s.viz.Catalog()
	return c.JSON(http.StatusOK, CatalogResponse{
		Templates: catalog.Templates(),
		Initial:   catalog.Initial(),
	})
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.viz.Snapshot())
}

func (s *Server) handleAdd(c echo.Context) error {
	var req AddRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, `invalid request body`)
	}
	if req.TemplateID == `` {
		return echo.NewHTTPError(http.StatusBadRequest, `templateId is required`)
	}
	v, err := s.viz.Add(c.Request().Context(), req.TemplateID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (s *Server) handleRemove(c echo.Context) error {
	id := c.Param(`id`)
	removed, err := s.viz.Remove(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !removed {
		return echo.NewHTTPError(http.StatusNotFound, `no event with id `+strconv.Quote(id))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReorder(c echo.Context) error {
	var req ReorderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, `invalid request body`)
	}
	if err := s.viz.Reorder(c.Request().Context(), req.FromID, req.ToID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.viz.Snapshot())
}

func (s *Server) handleClear(c echo.Context) error {
	if err := s.viz.Clear(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.viz.Snapshot())
}

// handleRun starts a run, responding immediately with 202, or with 200 and
// the settled snapshot if the wait query parameter is true.
func (s *Server) handleRun(c echo.Context) error {
	var wait bool
	if v := c.QueryParam(`wait`); v != `` {
		var err error
		if wait, err = strconv.ParseBool(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, `invalid wait parameter`)
		}
	}

	ctx := c.Request().Context()
	h, err := s.viz.Run(ctx)
	if err != nil {
		return err
	}

	res := RunResponse{RunID: h.ID(), Number: h.Number()}
	if !wait {
		return c.JSON(http.StatusAccepted, res)
	}
	if res.Snapshot, err = h.Wait(ctx); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// handleError writes every error as an ErrorResponse, with the status
// implied by the visualizer's sentinel errors.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := errorStatus(err), err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(he.Code)
		}
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, ErrorResponse{Error: msg})
	}
	if writeErr != nil {
		s.logger.Warning().Err(writeErr).Log(`webui: failed to write error response`)
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, loopviz.ErrCapacityExceeded), errors.Is(err, loopviz.ErrEmptyExecutionList):
		return http.StatusUnprocessableEntity
	case errors.Is(err, loopviz.ErrBusyWhileRunning):
		return http.StatusConflict
	case errors.Is(err, loopviz.ErrUnknownTemplate):
		return http.StatusNotFound
	case errors.Is(err, loopviz.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
