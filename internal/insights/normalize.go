// Package insights turns raw agent responses into a typed Result.
//
// A result that is not structured degrades to a summary-only Result, and
// malformed fields fall back to empty defaults. Only an explicit agent failure, or a response
// with no result at all, produces an error.
package insights

import (
	"log/slog"
	"strings"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/jsonvalue"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/telemetry"
)

// DefaultFailureMessage is used when a failed response carries no message.
const DefaultFailureMessage = "Analysis failed. Please try again."

// maxUnwrap bounds how many times a JSON-encoded string is decoded again.
const maxUnwrap = 2

const (
	modeStructured = "structured"
	modeParsedText = "parsed_text"
	modeDegraded   = "degraded"
	modeFailed     = "failed"
)

// Normalizer converts AgentInvokeResponse documents.
type Normalizer struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// NewNormalizer wires a normalizer. Both arguments may be nil.
func NewNormalizer(logger *slog.Logger, metrics *telemetry.Metrics) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{Logger: logger, Metrics: metrics}
}

// Normalize reads raw, shaped like
//
//	{success, session_id?, response?: {result, message?}, module_outputs?: {artifact_files?}, error?}
//
// and returns the normalized outcome, or an *apperror.Error of kind
// AnalysisFailed.
func (n *Normalizer) Normalize(raw jsonvalue.Value) (Outcome, error) {
	logger := n.logger()
	if ok, _ := raw.Path("success").AsBool(); !ok {
		n.Metrics.NormalizeMode(modeFailed)
		msg := failureMessage(raw)
		logger.Warn("agent reported failure", slog.String("message", msg))
		return Outcome{}, apperror.Analysis(msg)
	}

	out := Outcome{
		ReportURL: ReportURL(raw),
		SessionID: textOf(raw.Path("session_id")),
	}

	result := raw.Path("response", "result")
	if result.IsNull() {
		// Some agents answer with the text directly under response.
		if r := raw.Path("response"); r.Kind() == jsonvalue.KindText {
			result = r
		}
	}
	switch result.Kind() {
	case jsonvalue.KindNull:
		n.Metrics.NormalizeMode(modeFailed)
		return Outcome{}, apperror.Analysis("The agent returned no result.")
	case jsonvalue.KindMapping:
		out.Insights, out.Warnings = n.structured(result)
		n.Metrics.NormalizeMode(modeStructured)
	case jsonvalue.KindText:
		text, _ := result.AsText()
		if doc, ok := parseDocument(text); ok {
			out.Insights, out.Warnings = n.structured(doc)
			n.Metrics.NormalizeMode(modeParsedText)
		} else {
			out.Insights = SummaryOnly(text)
			out.Degraded = true
			n.Metrics.NormalizeMode(modeDegraded)
			logger.Info("agent result is not structured, using it as summary", slog.Int("length", len(text)))
		}
	default:
		// Numbers, booleans and sequences carry no usable structure; keep
		// their JSON text so the user still sees what came back.
		out.Insights = SummaryOnly(scalarOrJSON(result))
		out.Degraded = true
		n.Metrics.NormalizeMode(modeDegraded)
	}
	return out, nil
}

func (n *Normalizer) structured(doc jsonvalue.Value) (Result, []string) {
	warnings := conformance(doc)
	if len(warnings) > 0 {
		n.Metrics.SchemaWarnings(len(warnings))
		n.logger().Debug("agent result departs from schema", slog.Int("violations", len(warnings)))
	}
	return decodeResult(doc), warnings
}

func (n *Normalizer) logger() *slog.Logger {
	if n == nil || n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

// ReportURL returns the first artifact's file_url, or "" when there is none.
func ReportURL(raw jsonvalue.Value) string {
	files := raw.Path("module_outputs", "artifact_files").Items()
	if len(files) == 0 {
		return ""
	}
	return strings.TrimSpace(textOf(files[0].Path("file_url")))
}

func failureMessage(raw jsonvalue.Value) string {
	if msg := strings.TrimSpace(textOf(raw.Path("error"))); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(textOf(raw.Path("response", "message"))); msg != "" {
		return msg
	}
	return DefaultFailureMessage
}

func textOf(v jsonvalue.Value) string {
	s, _ := v.AsText()
	return s
}

func scalarOrJSON(v jsonvalue.Value) string {
	if s := scalarText(v); s != "" {
		return s
	}
	return v.String()
}

// resultFields are the members that mark an object as an insights payload.
var resultFields = []string{
	"executive_summary", "key_findings", "data_patterns",
	"anomalies", "recommendations", "statistics",
}

// parseDocument tries to read text as a JSON object. It accepts a Markdown
// code fence around the document, objects that were JSON-encoded into a
// string more than once, and an insights object embedded in surrounding
// prose. Any other object inside prose leaves the text unparsed.
func parseDocument(text string) (jsonvalue.Value, bool) {
	candidate := stripFence(strings.TrimSpace(text))
	for i := 0; i <= maxUnwrap; i++ {
		v, err := jsonvalue.Parse([]byte(candidate))
		if err != nil {
			if i == 0 {
				if inner, ok := embeddedObject(candidate); ok {
					if v, err := jsonvalue.Parse([]byte(inner)); err == nil && hasResultField(v) {
						return v, true
					}
				}
			}
			return jsonvalue.Value{}, false
		}
		switch v.Kind() {
		case jsonvalue.KindMapping:
			return v, true
		case jsonvalue.KindText:
			s, _ := v.AsText()
			candidate = stripFence(strings.TrimSpace(s))
			continue
		}
		return jsonvalue.Value{}, false
	}
	return jsonvalue.Value{}, false
}

// stripFence removes a surrounding ``` or ```json fence.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func hasResultField(v jsonvalue.Value) bool {
	if v.Kind() != jsonvalue.KindMapping {
		return false
	}
	for _, key := range resultFields {
		if _, ok := v.Get(key); ok {
			return true
		}
	}
	return false
}

func embeddedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	if start == 0 && end == len(s)-1 {
		return "", false
	}
	return s[start : end+1], true
}
