package present

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/events"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/insights"
)

func TestRenderResults(t *testing.T) {
	r := insights.Empty()
	r.ExecutiveSummary = "Sales grew steadily."
	r.KeyFindings = []insights.Finding{{Finding: "Q4 peak", Importance: insights.LevelHigh}}
	r.Anomalies = []insights.Anomaly{{Anomaly: "Missing March", Severity: insights.LevelMedium}}
	r.Statistics = insights.Statistics{TotalRows: 120, TotalColumns: 8, KeyMetrics: []string{"avg 42"}}
	snap := coordinator.Snapshot{
		State:     coordinator.Results,
		FileName:  "sales.csv",
		AssetIDs:  []string{"abc1234567"},
		Insights:  &r,
		ReportURL: "https://example.test/r.pdf",
		Events:    []events.Event{{Type: "done", Message: "finished"}},
	}

	var buf bytes.Buffer
	if err := Render(&buf, snap, Options{ShowEvents: true}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"State: results", "sales.csv", "abc1234567", "Sales grew steadily.",
		"Key findings", "Q4 peak", "high", "Anomalies", "Missing March",
		"Total rows", "120", "avg 42", "Report: https://example.test/r.pdf", "finished",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Recommendations") || strings.Contains(out, "Data patterns") {
		t.Fatalf("empty sections should be omitted:\n%s", out)
	}
}

func TestRenderError(t *testing.T) {
	snap := coordinator.Snapshot{
		State: coordinator.Failed,
		Error: &coordinator.ErrorView{Kind: apperror.NetworkError, Message: "try later", Retryable: true, Detail: "dial tcp"},
	}
	var buf bytes.Buffer
	if err := Render(&buf, snap, Options{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "try later") || !strings.Contains(out, "retried") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "dial tcp") {
		t.Fatalf("detail shown without ShowDebug:\n%s", out)
	}
}

func TestInsightsEmptySummary(t *testing.T) {
	var buf bytes.Buffer
	if err := Insights(&buf, insights.Empty()); err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if !strings.Contains(buf.String(), "(none)") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestRenderReportsWriteError(t *testing.T) {
	if err := Render(failingWriter{}, coordinator.Snapshot{State: coordinator.Idle}, Options{}); err == nil {
		t.Fatalf("expected write error")
	}
}
