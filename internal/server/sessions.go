package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/session"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/upload"
)

// SessionsHandler exposes coordinator sessions for clients that keep their
// state on the server.
type SessionsHandler struct {
	Sessions  *session.Manager
	ShowDebug bool
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.remove)
	g.POST("/:id/file", h.selectFile)
	g.POST("/:id/analyze", h.analyze)
	g.POST("/:id/retry", h.retry)
	g.POST("/:id/reset", h.reset)
	g.DELETE("/:id/error", h.dismissError)
}

type sessionResponse struct {
	ID       string               `json:"id"`
	Snapshot coordinator.Snapshot `json:"snapshot"`
	Actions  actions              `json:"actions"`
}

type actions struct {
	Analyze bool `json:"analyze"`
	Retry   bool `json:"retry"`
}

func (h *SessionsHandler) respond(c echo.Context, code int, id string, s coordinator.Snapshot) error {
	if !h.ShowDebug {
		s.Debug = nil
		if s.Error != nil {
			ev := *s.Error
			ev.Detail = ""
			s.Error = &ev
		}
	}
	return c.JSON(code, sessionResponse{
		ID:       id,
		Snapshot: s,
		Actions:  actions{Analyze: s.CanAnalyze(), Retry: s.CanRetry()},
	})
}

func (h *SessionsHandler) load(c echo.Context) (*coordinator.Coordinator, error) {
	co, err := h.Sessions.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return co, nil
}

func (h *SessionsHandler) create(c echo.Context) error {
	id, co, err := h.Sessions.Create(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.respond(c, http.StatusCreated, id, co.Snapshot())
}

func (h *SessionsHandler) get(c echo.Context) error {
	co, err := h.load(c)
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, c.Param("id"), co.Snapshot())
}

func (h *SessionsHandler) remove(c echo.Context) error {
	if err := h.Sessions.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionsHandler) selectFile(c echo.Context) error {
	co, err := h.load(c)
	if err != nil {
		return err
	}
	files, err := formFiles(c, upload.FieldNames...)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form: "+err.Error())
	}
	var f upload.File
	if len(files) > 0 {
		f = files[0]
	}
	return h.transition(c, co, co.SelectFile(c.Request().Context(), f))
}

func (h *SessionsHandler) analyze(c echo.Context) error {
	return h.run(c, (*coordinator.Coordinator).Analyze)
}

func (h *SessionsHandler) retry(c echo.Context) error {
	return h.run(c, (*coordinator.Coordinator).Retry)
}

func (h *SessionsHandler) run(c echo.Context, op func(*coordinator.Coordinator, context.Context) error) error {
	co, err := h.load(c)
	if err != nil {
		return err
	}
	return h.transition(c, co, op(co, c.Request().Context()))
}

func (h *SessionsHandler) reset(c echo.Context) error {
	co, err := h.load(c)
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, c.Param("id"), co.Reset())
}

func (h *SessionsHandler) dismissError(c echo.Context) error {
	co, err := h.load(c)
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, c.Param("id"), co.DismissError())
}

// transition maps an operation's error onto the response. Failures the
// coordinator recorded in the snapshot are answered with the snapshot.
func (h *SessionsHandler) transition(c echo.Context, co *coordinator.Coordinator, opErr error) error {
	switch {
	case opErr == nil:
		return h.respond(c, http.StatusOK, c.Param("id"), co.Snapshot())
	case errors.Is(opErr, coordinator.ErrUploadInFlight),
		errors.Is(opErr, coordinator.ErrAnalysisInFlight),
		errors.Is(opErr, coordinator.ErrNotReady),
		errors.Is(opErr, coordinator.ErrNothingToRetry),
		errors.Is(opErr, coordinator.ErrSuperseded):
		return echo.NewHTTPError(http.StatusConflict, opErr.Error())
	}
	code := http.StatusOK
	switch apperror.KindOf(opErr) {
	case apperror.ValidationError:
		code = http.StatusBadRequest
	case apperror.ConfigurationError:
		code = http.StatusInternalServerError
	}
	return h.respond(c, code, c.Param("id"), co.Snapshot())
}
