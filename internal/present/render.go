// Package present renders a session snapshot as plain text for the CLI.
package present

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/insights"
)

// Options controls optional sections.
type Options struct {
	// ShowDebug includes the error detail and upload diagnostics.
	ShowDebug bool
	// ShowEvents includes the agent event log.
	ShowEvents bool
}

// Render writes snap to w.
func Render(w io.Writer, snap coordinator.Snapshot, opts Options) error {
	p := &printer{w: w}
	p.line("State: %s", snap.State)
	if snap.FileName != "" {
		p.line("File: %s", snap.FileName)
	}
	if len(snap.AssetIDs) > 0 {
		p.line("Asset IDs: %s", strings.Join(snap.AssetIDs, ", "))
	}
	if snap.SessionID != "" {
		p.line("Session: %s", snap.SessionID)
	}
	if e := snap.Error; e != nil {
		p.blank()
		p.line("Error (%s): %s", e.Kind, e.Message)
		if e.Retryable {
			p.line("This analysis can be retried.")
		}
		if opts.ShowDebug && e.Detail != "" {
			p.line("Detail: %s", e.Detail)
		}
	}
	if opts.ShowDebug && snap.Debug != nil {
		d := snap.Debug.Diagnostics
		p.line("Upload response: kind=%s keys=%v items=%d", d.Kind, d.TopLevelKeys, d.SequenceItems)
	}
	if snap.Insights != nil {
		p.blank()
		p.insights(*snap.Insights)
	}
	if snap.ReportURL != "" {
		p.blank()
		p.line("Report: %s", snap.ReportURL)
	}
	if len(snap.Warnings) > 0 {
		p.blank()
		p.line("The agent's answer departed from the expected shape:")
		for _, warn := range snap.Warnings {
			p.line("  - %s", warn)
		}
	}
	if opts.ShowEvents && len(snap.Events) > 0 {
		t := newTable("Agent events")
		t.AppendHeader(table.Row{"Time", "Type", "Message"})
		for _, ev := range snap.Events {
			t.AppendRow(table.Row{ev.ReceivedAt.Format("15:04:05"), ev.Type, ev.Message})
		}
		p.table(t)
	}
	return p.err
}

// Insights writes r alone.
func Insights(w io.Writer, r insights.Result) error {
	p := &printer{w: w}
	p.insights(r)
	return p.err
}

func (p *printer) insights(r insights.Result) {
	p.line("Executive summary")
	summary := strings.TrimSpace(r.ExecutiveSummary)
	if summary == "" {
		summary = "(none)"
	}
	p.line("%s", text.WrapSoft(summary, 100))

	if len(r.KeyFindings) > 0 {
		t := newTable("Key findings")
		t.AppendHeader(table.Row{"#", "Finding", "Importance"})
		for i, f := range r.KeyFindings {
			t.AppendRow(table.Row{i + 1, f.Finding, f.Importance})
		}
		p.table(t)
	}
	if len(r.DataPatterns) > 0 {
		t := newTable("Data patterns")
		t.AppendHeader(table.Row{"#", "Pattern", "Details"})
		for i, dp := range r.DataPatterns {
			t.AppendRow(table.Row{i + 1, dp.Pattern, dp.Details})
		}
		p.table(t)
	}
	if len(r.Anomalies) > 0 {
		t := newTable("Anomalies")
		t.AppendHeader(table.Row{"#", "Anomaly", "Severity", "Details"})
		for i, a := range r.Anomalies {
			t.AppendRow(table.Row{i + 1, a.Anomaly, a.Severity, a.Details})
		}
		p.table(t)
	}
	if len(r.Recommendations) > 0 {
		t := newTable("Recommendations")
		t.AppendHeader(table.Row{"#", "Recommendation", "Priority", "Rationale"})
		for i, rec := range r.Recommendations {
			t.AppendRow(table.Row{i + 1, rec.Recommendation, rec.Priority, rec.Rationale})
		}
		p.table(t)
	}
	st := r.Statistics
	if st.TotalRows > 0 || st.TotalColumns > 0 || len(st.KeyMetrics) > 0 {
		t := newTable("Statistics")
		t.AppendRow(table.Row{"Total rows", st.TotalRows})
		t.AppendRow(table.Row{"Total columns", st.TotalColumns})
		for _, m := range st.KeyMetrics {
			t.AppendRow(table.Row{"Metric", m})
		}
		p.table(t)
	}
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 60},
		{Number: 4, WidthMax: 60},
	})
	return t
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) blank() { p.line("") }

func (p *printer) table(t table.Writer) {
	p.blank()
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, t.Render()+"\n")
}
