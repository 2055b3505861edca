package analysis

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Markdown renders a compact report suitable for prompts or standalone docs.
func (s *StatisticalSummary) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if s.Name != "" {
		printer.Fprintf(&b, "File: %s\n", s.Name)
	}
	printer.Fprintf(&b, "Rows: %d\n", s.Rows)
	printer.Fprintf(&b, "Columns: %d (numeric %d)\n", len(s.columnOrder()), len(s.NumericColumns))

	b.WriteString("\n[MISSING VALUES]\n")
	for _, name := range s.columnOrder() {
		printer.Fprintf(&b, "- %s: %.1f%%\n", safeName(name), s.MissingPercentage[name])
	}

	if len(s.NumericSummary) > 0 {
		b.WriteString("\n[NUMERIC SUMMARY]\n")
		for _, name := range s.numericOrder() {
			st := s.NumericSummary[name]
			printer.Fprintf(&b, "- %s: count %d, mean %s, std %s, min %s, 25%% %s, 50%% %s, 75%% %s, max %s",
				safeName(name), st.Count, num(st.Mean), num(st.Std), num(st.Min), num(st.P25), num(st.P50), num(st.P75), num(st.Max))
			if o, ok := s.Outliers[name]; ok && o.Count > 0 {
				printer.Fprintf(&b, "; outliers: %d above |z|>%.1f (max |z|≈%.2f)", o.Count, o.Threshold, o.MaxAbsZ)
			}
			b.WriteString("\n")
		}
	}

	if len(s.TopCorrelations) > 0 {
		b.WriteString("\n[TOP CORRELATIONS]\n")
		for _, p := range s.TopCorrelations {
			printer.Fprintf(&b, "- %s ~ %s: r=%.3f\n", safeName(p.A), safeName(p.B), p.R)
		}
	}

	if len(s.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range s.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// columnOrder falls back to sorted map keys for summaries built without metadata.
func (s *StatisticalSummary) columnOrder() []string {
	if len(s.Columns) > 0 {
		return s.Columns
	}
	return sortedKeys(s.MissingPercentage)
}

func (s *StatisticalSummary) numericOrder() []string {
	if len(s.NumericColumns) > 0 {
		return s.NumericColumns
	}
	return sortedKeys(s.NumericSummary)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return printer.Sprintf("%.4g", v)
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return strings.ReplaceAll(s, "\n", " ")
}
