package insights

import (
	"math"
	"strconv"
	"strings"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/jsonvalue"
)

// decodeResult maps a structured agent document onto Result. Each field is
// read on its own; a missing or wrong-typed field takes its zero value and
// never stops the others from being read.
func decodeResult(doc jsonvalue.Value) Result {
	r := Empty()
	r.ExecutiveSummary = textField(doc, "executive_summary")
	r.KeyFindings = listField(doc, "key_findings", func(v jsonvalue.Value) Finding {
		return Finding{Finding: textField(v, "finding"), Importance: levelField(v, "importance")}
	}, func(s string) Finding {
		return Finding{Finding: s}
	})
	r.DataPatterns = listField(doc, "data_patterns", func(v jsonvalue.Value) Pattern {
		return Pattern{Pattern: textField(v, "pattern"), Details: textField(v, "details")}
	}, func(s string) Pattern {
		return Pattern{Pattern: s}
	})
	r.Anomalies = listField(doc, "anomalies", func(v jsonvalue.Value) Anomaly {
		return Anomaly{
			Anomaly:  textField(v, "anomaly"),
			Severity: levelField(v, "severity"),
			Details:  textField(v, "details"),
		}
	}, func(s string) Anomaly {
		return Anomaly{Anomaly: s}
	})
	r.Recommendations = listField(doc, "recommendations", func(v jsonvalue.Value) Recommendation {
		return Recommendation{
			Recommendation: textField(v, "recommendation"),
			Priority:       levelField(v, "priority"),
			Rationale:      textField(v, "rationale"),
		}
	}, func(s string) Recommendation {
		return Recommendation{Recommendation: s}
	})

	stats, _ := doc.Get("statistics")
	r.Statistics = Statistics{
		TotalRows:    intField(stats, "total_rows"),
		TotalColumns: intField(stats, "total_columns"),
		KeyMetrics:   stringList(stats, "key_metrics"),
	}
	return r
}

// scalarText renders text, numbers and booleans; anything else is "".
func scalarText(v jsonvalue.Value) string {
	switch v.Kind() {
	case jsonvalue.KindText:
		s, _ := v.AsText()
		return s
	case jsonvalue.KindNumber:
		s, _ := v.NumberText()
		return s
	case jsonvalue.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	}
	return ""
}

func textField(v jsonvalue.Value, key string) string {
	f, ok := v.Get(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(scalarText(f))
}

func levelField(v jsonvalue.Value, key string) Level {
	f, ok := v.Get(key)
	if !ok {
		return ""
	}
	s, ok := f.AsText()
	if !ok {
		return ""
	}
	return Level(strings.ToLower(strings.TrimSpace(s)))
}

// intField accepts numbers and numeric text such as "1,204".
func intField(v jsonvalue.Value, key string) int {
	f, ok := v.Get(key)
	if !ok {
		return 0
	}
	switch f.Kind() {
	case jsonvalue.KindNumber:
		if n, ok := f.AsInt(); ok {
			return clampInt(float64(n))
		}
		if x, ok := f.AsFloat(); ok {
			return clampInt(math.Trunc(x))
		}
	case jsonvalue.KindText:
		s, _ := f.AsText()
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
			return clampInt(math.Trunc(n))
		}
	}
	return 0
}

func clampInt(x float64) int {
	if x < 0 {
		return 0
	}
	if x > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(x)
}

func stringList(v jsonvalue.Value, key string) []string {
	out := []string{}
	f, _ := v.Get(key)
	for _, item := range f.Items() {
		if s := strings.TrimSpace(scalarText(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// listField decodes a list of records. Mapping elements go through fromMap,
// bare text elements become the record's primary field via fromText, and
// anything else is dropped.
func listField[T any](v jsonvalue.Value, key string, fromMap func(jsonvalue.Value) T, fromText func(string) T) []T {
	out := []T{}
	f, _ := v.Get(key)
	for _, item := range f.Items() {
		switch item.Kind() {
		case jsonvalue.KindMapping:
			out = append(out, fromMap(item))
		case jsonvalue.KindText:
			if s, _ := item.AsText(); strings.TrimSpace(s) != "" {
				out = append(out, fromText(strings.TrimSpace(s)))
			}
		}
	}
	return out
}
