package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/insights"
)

// AnalyzeHandler runs one stateless analysis over asset ids the client holds.
type AnalyzeHandler struct {
	Analyzer coordinator.Analyzer
}

func (h *AnalyzeHandler) Register(g *echo.Group) {
	g.POST("", h.analyze)
}

type analyzeRequest struct {
	AssetIDs  []string `json:"asset_ids"`
	Message   string   `json:"message"`
	SessionID string   `json:"session_id"`
}

type analyzeResponse struct {
	Success   bool             `json:"success"`
	Insights  *insights.Result `json:"insights,omitempty"`
	ReportURL string           `json:"report_url,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Degraded  bool             `json:"degraded,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
	Error     string           `json:"error,omitempty"`
	Kind      apperror.Kind    `json:"kind,omitempty"`
	Retryable bool             `json:"retryable,omitempty"`
}

func (h *AnalyzeHandler) analyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if h.Analyzer == nil {
		return errorResponse(c, apperror.Configuration("Server configuration error: analysis service is not available."))
	}
	out, err := h.Analyzer.Analyze(c.Request().Context(), req.SessionID, req.AssetIDs, req.Message)
	if err != nil {
		return errorResponse(c, err)
	}
	res := out.Insights
	return c.JSON(http.StatusOK, analyzeResponse{
		Success:   true,
		Insights:  &res,
		ReportURL: out.ReportURL,
		SessionID: out.SessionID,
		Degraded:  out.Degraded,
		Warnings:  out.Warnings,
	})
}

// errorResponse answers with the error's own status. Agent-reported failures
// are 200 with success false, like the upload endpoint's recoverable ones.
func errorResponse(c echo.Context, err error) error {
	e, ok := apperror.As(err)
	if !ok {
		e = apperror.Network("Network error: could not reach the analysis service. Please try again.", err)
	}
	return c.JSON(e.HTTPStatus(), analyzeResponse{
		Error:     e.Message,
		Kind:      e.Kind,
		Retryable: e.Retryable(),
	})
}
