package insights

// Level grades importance, severity and priority. Agents mostly answer with
// high, medium or low but other values are kept as given (lowercased).
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

type Finding struct {
	Finding    string `json:"finding"`
	Importance Level  `json:"importance"`
}

type Pattern struct {
	Pattern string `json:"pattern"`
	Details string `json:"details"`
}

type Anomaly struct {
	Anomaly  string `json:"anomaly"`
	Severity Level  `json:"severity"`
	Details  string `json:"details"`
}

type Recommendation struct {
	Recommendation string `json:"recommendation"`
	Priority       Level  `json:"priority"`
	Rationale      string `json:"rationale"`
}

type Statistics struct {
	TotalRows    int      `json:"total_rows"`
	TotalColumns int      `json:"total_columns"`
	KeyMetrics   []string `json:"key_metrics"`
}

// Result is the normalized analysis. Every list is non-nil so it encodes as
// [] rather than null.
type Result struct {
	ExecutiveSummary string           `json:"executive_summary"`
	KeyFindings      []Finding        `json:"key_findings"`
	DataPatterns     []Pattern        `json:"data_patterns"`
	Anomalies        []Anomaly        `json:"anomalies"`
	Recommendations  []Recommendation `json:"recommendations"`
	Statistics       Statistics       `json:"statistics"`
}

// Empty returns a Result with every list initialised and nothing in it.
func Empty() Result {
	return Result{
		KeyFindings:     []Finding{},
		DataPatterns:    []Pattern{},
		Anomalies:       []Anomaly{},
		Recommendations: []Recommendation{},
		Statistics:      Statistics{KeyMetrics: []string{}},
	}
}

// SummaryOnly is the degraded form used when the agent answered with text
// that is not a structured document.
func SummaryOnly(text string) Result {
	r := Empty()
	r.ExecutiveSummary = text
	return r
}

// IsZero reports whether r carries no content at all.
func (r Result) IsZero() bool {
	return r.ExecutiveSummary == "" &&
		len(r.KeyFindings) == 0 &&
		len(r.DataPatterns) == 0 &&
		len(r.Anomalies) == 0 &&
		len(r.Recommendations) == 0 &&
		r.Statistics.TotalRows == 0 &&
		r.Statistics.TotalColumns == 0 &&
		len(r.Statistics.KeyMetrics) == 0
}

// Outcome is what Normalize hands to callers.
type Outcome struct {
	Insights  Result `json:"insights"`
	ReportURL string `json:"report_url,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	// Degraded is set when the result text could not be parsed and was kept
	// verbatim as the executive summary.
	Degraded bool     `json:"degraded"`
	Warnings []string `json:"warnings,omitempty"`
}
