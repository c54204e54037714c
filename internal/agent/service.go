package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/insights"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/telemetry"
)

// DefaultInstruction is sent when no message is configured.
const DefaultInstruction = "Analyze the uploaded data file. Identify key findings, data patterns, anomalies " +
	"and recommendations, and summarise row and column statistics. Answer with a JSON object containing " +
	"executive_summary, key_findings, data_patterns, anomalies, recommendations and statistics."

// Service runs one analysis: invoke, then normalize.
type Service struct {
	Invoker     Invoker
	Normalizer  *insights.Normalizer
	AgentID     string
	UserID      string
	Instruction string
	Logger      *slog.Logger
	Metrics     *telemetry.Metrics
}

// Analyze asks the agent to analyze assetIDs under sessionID. An empty
// sessionID gets a fresh one. message overrides the configured instruction
// when non-empty. Every failure is an *apperror.Error.
func (s *Service) Analyze(ctx context.Context, sessionID string, assetIDs []string, message string) (insights.Outcome, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(assetIDs) == 0 {
		return insights.Outcome{}, apperror.Validation("No asset IDs to analyze. Upload a file first.")
	}
	if s.Invoker == nil {
		return insights.Outcome{}, apperror.Configuration("Server configuration error: analysis service is not available.")
	}
	if sessionID == "" {
		sessionID = NewSessionID(s.AgentID)
	}
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = s.Instruction
	}
	if msg == "" {
		msg = DefaultInstruction
	}

	raw, err := s.Invoker.Invoke(ctx, Request{
		UserID:    s.UserID,
		AgentID:   s.AgentID,
		SessionID: sessionID,
		Message:   msg,
		Assets:    assetIDs,
	})
	if err != nil {
		err = classify(err)
		s.Metrics.AnalysisOutcome(string(apperror.KindOf(err)))
		return insights.Outcome{}, err
	}

	norm := s.Normalizer
	if norm == nil {
		norm = insights.NewNormalizer(logger, s.Metrics)
	}
	out, err := norm.Normalize(raw)
	if err != nil {
		s.Metrics.AnalysisOutcome(string(apperror.KindOf(err)))
		return insights.Outcome{}, err
	}
	if out.SessionID == "" {
		out.SessionID = sessionID
	}
	s.Metrics.AnalysisOutcome("success")
	logger.Info("analysis complete",
		slog.String("session_id", out.SessionID),
		slog.Int("findings", len(out.Insights.KeyFindings)),
		slog.Bool("degraded", out.Degraded),
		slog.Bool("report", out.ReportURL != ""),
	)
	return out, nil
}

// classify converts anything that is not already an *apperror.Error into a
// NetworkError.
func classify(err error) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Network("The analysis timed out. Please try again.", err)
	}
	return apperror.Network("Network error: could not reach the analysis service. Please try again.", err)
}
