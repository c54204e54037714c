// Package server exposes the upload, analysis and session endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/app"
)

// New builds the echo instance with every route registered.
func New(a *app.App) *echo.Echo {
	cfg := a.Config
	logger := a.Logger.With(slog.String("component", "http"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		level := slog.LevelWarn
		if code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(req.Context(), level, "request failed",
			slog.Int("status", code),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("remote", c.RealIP()),
			slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			slog.String("error", err.Error()),
		)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"success": false, "error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(middleware.BodyLimit(bodyLimit(cfg.Server.MaxUploadBytes)))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if a.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))
	}

	api := e.Group("/api")
	uh := &UploadHandler{
		Uploads:        a.Uploads,
		HasAPIKey:      cfg.HasAPIKey,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		ShowDebug:      cfg.General.Debug,
	}
	uh.Register(api.Group("/upload"))

	ah := &AnalyzeHandler{Analyzer: a.Analyzer}
	ah.Register(api.Group("/analyze"))

	if a.Sessions != nil {
		sh := &SessionsHandler{Sessions: a.Sessions, ShowDebug: cfg.General.Debug}
		sh.Register(api.Group("/sessions"))
	}
	return e
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, a *app.App) error {
	cfg := a.Config.Server
	e := New(a)
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	errc := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", slog.String("addr", cfg.Address))
		if err := e.Start(cfg.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.Logger.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

// bodyLimit renders n bytes in the notation echo's BodyLimit expects.
func bodyLimit(n int64) string {
	switch {
	case n <= 0:
		return "25M"
	case n%(1<<20) == 0:
		return fmt.Sprintf("%dM", n>>20)
	case n%(1<<10) == 0:
		return fmt.Sprintf("%dK", n>>10)
	}
	return fmt.Sprintf("%dB", n)
}
