package insights

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/jsonvalue"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/telemetry"
	"github.com/google/go-cmp/cmp"
)

func normalize(t *testing.T, doc string) (Outcome, error) {
	t.Helper()
	return NewNormalizer(nil, telemetry.NewMetrics()).Normalize(jsonvalue.MustParse(doc))
}

func TestNormalizeFailure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "error field", in: `{"success":false,"error":"X"}`, want: "X"},
		{name: "response message", in: `{"success":false,"response":{"message":"quota exceeded"}}`, want: "quota exceeded"},
		{name: "error wins over message", in: `{"success":false,"error":"E","response":{"message":"M"}}`, want: "E"},
		{name: "generic", in: `{"success":false}`, want: DefaultFailureMessage},
		{name: "success missing", in: `{"response":{"result":"text"}}`, want: DefaultFailureMessage},
		{name: "not a mapping", in: `["unexpected"]`, want: DefaultFailureMessage},
		{name: "result missing", in: `{"success":true,"response":{}}`, want: "The agent returned no result."},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := normalize(t, tt.in)
			if err == nil {
				t.Fatalf("expected error, got outcome %+v", out)
			}
			if apperror.KindOf(err) != apperror.AnalysisFailed {
				t.Fatalf("expected AnalysisFailed, got %v", err)
			}
			if apperror.Message(err) != tt.want {
				t.Fatalf("message = %q, want %q", apperror.Message(err), tt.want)
			}
			if !out.Insights.IsZero() {
				t.Fatalf("failure must not carry a partial result: %+v", out.Insights)
			}
		})
	}
}

func TestNormalizeTextFallback(t *testing.T) {
	t.Parallel()
	out, err := normalize(t, `{"success":true,"response":{"result":"not json"}}`)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if diff := cmp.Diff(SummaryOnly("not json"), out.Insights); diff != "" {
		t.Fatalf("insights mismatch (-want +got):\n%s", diff)
	}
	if !out.Degraded {
		t.Fatalf("expected degraded outcome")
	}
	b, err := json.Marshal(out.Insights)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "null") {
		t.Fatalf("lists must encode as [], got %s", b)
	}
}

func TestNormalizeStructuredObject(t *testing.T) {
	t.Parallel()
	out, err := normalize(t, `{"success":true,"response":{"result":{"key_findings":[{"finding":"F","importance":"high"}]}}}`)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := Empty()
	want.KeyFindings = []Finding{{Finding: "F", Importance: LevelHigh}}
	if diff := cmp.Diff(want, out.Insights); diff != "" {
		t.Fatalf("insights mismatch (-want +got):\n%s", diff)
	}
	if out.Degraded {
		t.Fatalf("structured result should not be degraded")
	}
}

func TestNormalizeEncodedString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		result string
	}{
		{name: "plain", result: `{"executive_summary":"ok"}`},
		{name: "fenced", result: "```json\n{\"executive_summary\":\"ok\"}\n```"},
		{name: "bare fence", result: "```\n{\"executive_summary\":\"ok\"}\n```"},
		{name: "prose around object", result: `Here is the analysis: {"executive_summary":"ok"} Thanks.`},
		{name: "double encoded", result: `"{\"executive_summary\":\"ok\"}"`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := jsonvalue.Map(
				jsonvalue.M("success", jsonvalue.Bool(true)),
				jsonvalue.M("response", jsonvalue.Map(jsonvalue.M("result", jsonvalue.Text(tt.result)))),
			)
			out, err := NewNormalizer(nil, nil).Normalize(raw)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if out.Insights.ExecutiveSummary != "ok" {
				t.Fatalf("executive_summary = %q, want ok", out.Insights.ExecutiveSummary)
			}
			if out.Degraded {
				t.Fatalf("parsed text should not be degraded")
			}
		})
	}
}

func TestNormalizeProseKeepsText(t *testing.T) {
	t.Parallel()
	tests := []string{
		`Revenue grew 12% in Q3, driven by the north region. Config used: {"region":"north"}`,
		`Totals by region: {"north": 10, "south": 4} and the rest is flat.`,
		`See {"executive_summary" is missing here}`,
	}
	for _, text := range tests {
		raw := jsonvalue.Map(
			jsonvalue.M("success", jsonvalue.Bool(true)),
			jsonvalue.M("response", jsonvalue.Map(jsonvalue.M("result", jsonvalue.Text(text)))),
		)
		out, err := NewNormalizer(nil, nil).Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", text, err)
		}
		if out.Insights.ExecutiveSummary != text || !out.Degraded {
			t.Fatalf("Normalize(%q) should keep the text as summary, got %+v", text, out)
		}
		if len(out.Insights.KeyFindings) != 0 || out.Insights.KeyFindings == nil {
			t.Fatalf("lists should be empty, got %+v", out.Insights)
		}
	}
}

func TestNormalizeNonObjectText(t *testing.T) {
	t.Parallel()
	for _, text := range []string{`[1,2,3]`, `42`, `{broken`} {
		raw := jsonvalue.Map(
			jsonvalue.M("success", jsonvalue.Bool(true)),
			jsonvalue.M("response", jsonvalue.Map(jsonvalue.M("result", jsonvalue.Text(text)))),
		)
		out, err := NewNormalizer(nil, nil).Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", text, err)
		}
		if out.Insights.ExecutiveSummary != text || !out.Degraded {
			t.Fatalf("Normalize(%q) should degrade verbatim, got %+v", text, out)
		}
	}
}

func TestNormalizeMalformedFields(t *testing.T) {
	t.Parallel()
	doc := `{"success":true,"response":{"result":{
		"executive_summary": 17,
		"key_findings": "not a list",
		"data_patterns": [{"pattern":"Seasonality","details":"Q4 peak"}, 7, "Weekly cycle", null],
		"anomalies": [{"anomaly":"Spike","severity":" HIGH ","details":{"x":1}}],
		"recommendations": [{"recommendation":"Restock","priority":"Medium","rationale":"demand"}, {"priority":"low"}],
		"statistics": {"total_rows":"1,204","total_columns":8.0,"key_metrics":["Revenue: 1M", 3, {"x":1}, ""]}
	}}}`
	out, err := normalize(t, doc)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := Result{
		ExecutiveSummary: "17",
		KeyFindings:      []Finding{},
		DataPatterns: []Pattern{
			{Pattern: "Seasonality", Details: "Q4 peak"},
			{Pattern: "Weekly cycle"},
		},
		Anomalies: []Anomaly{{Anomaly: "Spike", Severity: LevelHigh}},
		Recommendations: []Recommendation{
			{Recommendation: "Restock", Priority: LevelMedium, Rationale: "demand"},
			{Priority: LevelLow},
		},
		Statistics: Statistics{TotalRows: 1204, TotalColumns: 8, KeyMetrics: []string{"Revenue: 1M", "3"}},
	}
	if diff := cmp.Diff(want, out.Insights); diff != "" {
		t.Fatalf("insights mismatch (-want +got):\n%s", diff)
	}
	if len(out.Warnings) == 0 {
		t.Fatalf("expected schema warnings for malformed fields")
	}
}

func TestNormalizeWellFormedHasNoWarnings(t *testing.T) {
	t.Parallel()
	doc := `{"success":true,"response":{"result":{
		"executive_summary":"Sales grew",
		"key_findings":[{"finding":"Growth","importance":"high"}],
		"data_patterns":[],
		"anomalies":[],
		"recommendations":[{"recommendation":"Hire","priority":"low","rationale":"load"}],
		"statistics":{"total_rows":10,"total_columns":3,"key_metrics":["m"]}
	}}}`
	out, err := normalize(t, doc)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(out.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", out.Warnings)
	}
	if out.Insights.Statistics.TotalRows != 10 {
		t.Fatalf("total_rows = %d", out.Insights.Statistics.TotalRows)
	}
}

func TestNormalizeScalarResultDegrades(t *testing.T) {
	t.Parallel()
	out, err := normalize(t, `{"success":true,"response":{"result":[{"a":1}]}}`)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.Insights.ExecutiveSummary != `[{"a":1}]` || !out.Degraded {
		t.Fatalf("unexpected outcome %+v", out)
	}
	out, err = normalize(t, `{"success":true,"response":"plain answer"}`)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.Insights.ExecutiveSummary != "plain answer" {
		t.Fatalf("text response should be used as result, got %+v", out.Insights)
	}
}

func TestReportURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "first of two", in: `{"module_outputs":{"artifact_files":[{"file_url":"U1"},{"file_url":"U2"}]}}`, want: "U1"},
		{name: "empty list", in: `{"module_outputs":{"artifact_files":[]}}`, want: ""},
		{name: "absent", in: `{"module_outputs":{}}`, want: ""},
		{name: "no module outputs", in: `{}`, want: ""},
		{name: "first lacks url", in: `{"module_outputs":{"artifact_files":[{"name":"r.pdf"},{"file_url":"U2"}]}}`, want: ""},
	}
	for _, tt := range tests {
		if got := ReportURL(jsonvalue.MustParse(tt.in)); got != tt.want {
			t.Fatalf("%s: ReportURL = %q, want %q", tt.name, got, tt.want)
		}
	}

	out, err := normalize(t, `{"success":true,"session_id":"s-1","response":{"result":"text"},"module_outputs":{"artifact_files":[{"file_url":"U1","name":"report","format_type":"pdf"}]}}`)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.ReportURL != "U1" || out.SessionID != "s-1" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestStripFence(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"```json\n{}\n```": "{}",
		"```\n{}```":        "{}",
		"{}":                "{}",
		"```{}```":          "{}",
	}
	for in, want := range tests {
		if got := stripFence(in); got != want {
			t.Fatalf("stripFence(%q) = %q, want %q", in, got, want)
		}
	}
}
