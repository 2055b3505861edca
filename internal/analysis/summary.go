package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// DedupMode selects how correlation entries are deduplicated.
type DedupMode string

const (
	// DedupPair keeps one entry per unordered column pair.
	DedupPair DedupMode = "pair"
	// DedupValue drops any entry whose coefficient equals one already kept,
	// even when it belongs to a different pair.
	DedupValue DedupMode = "value"
)

// ParseDedupMode parses "pair" or "value" (case-insensitive).
func ParseDedupMode(s string) (DedupMode, error) {
	switch DedupMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DedupPair:
		return DedupPair, nil
	case DedupValue:
		return DedupValue, nil
	default:
		return "", fmt.Errorf("unknown correlation dedup mode %q (use pair|value)", s)
	}
}

// Options controls summary computation.
type Options struct {
	// MaxCorrelations caps top_correlations; <= 0 uses the default of 10.
	MaxCorrelations int
	Dedup           DedupMode
	// OutlierThreshold is the robust |z| above which a value counts as an
	// outlier; <= 0 disables outlier flags.
	OutlierThreshold float64
}

// DefaultOptions returns the summarizer defaults.
func DefaultOptions() Options {
	return Options{MaxCorrelations: 10, Dedup: DedupPair, OutlierThreshold: 3.5}
}

// ErrEmptyDataset is wrapped by SummarizationError when there is nothing to summarize.
var ErrEmptyDataset = errors.New("dataset has no rows or no columns")

// SummarizationError reports a dataset that could not be summarized.
type SummarizationError struct {
	Dataset string
	Err     error
}

func (e *SummarizationError) Error() string {
	if e.Dataset != "" {
		return fmt.Sprintf("summarize %s: %v", e.Dataset, e.Err)
	}
	return fmt.Sprintf("summarize: %v", e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// PairCorr is the Pearson coefficient of two columns. A precedes B in
// dataset column order.
type PairCorr struct {
	A, B string
	R    float64
}

// Key renders the pair as "A ~ B".
func (p PairCorr) Key() string { return p.A + " ~ " + p.B }

// Correlations is sorted by descending coefficient. It serializes as a JSON
// object whose keys keep that order.
type Correlations []PairCorr

// AsMap returns the entries keyed by PairCorr.Key.
func (c Correlations) AsMap() map[string]float64 {
	out := make(map[string]float64, len(c))
	for _, p := range c {
		out[p.Key()] = p.R
	}
	return out
}

// Lookup returns the coefficient for columns a and b in either order.
func (c Correlations) Lookup(a, b string) (float64, bool) {
	for _, p := range c {
		if (p.A == a && p.B == b) || (p.A == b && p.B == a) {
			return p.R, true
		}
	}
	return 0, false
}

func (c Correlations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeField(&buf, p.Key(), p.R); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ColumnStats are the descriptive statistics of one numeric column.
// Std is NaN below two observations; every field but Count is NaN when
// the column has no observations.
type ColumnStats struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	P25   float64
	P50   float64
	P75   float64
	Max   float64
}

var statNames = []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}

func (s ColumnStats) values() []float64 {
	return []float64{float64(s.Count), s.Mean, s.Std, s.Min, s.P25, s.P50, s.P75, s.Max}
}

// AsMap returns the statistics keyed by name ("count", "mean", "25%", ...).
func (s ColumnStats) AsMap() map[string]float64 {
	out := make(map[string]float64, len(statNames))
	for i, v := range s.values() {
		out[statNames[i]] = v
	}
	return out
}

func (s ColumnStats) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range s.values() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeField(&buf, statNames[i], v); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeField writes "key":value, encoding NaN and infinities as null.
func writeField(buf *bytes.Buffer, key string, v float64) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	if math.IsNaN(v) || math.IsInf(v, 0) {
		buf.WriteString("null")
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// StatisticalSummary is the compact fingerprint of a dataset.
type StatisticalSummary struct {
	TopCorrelations   Correlations           `json:"top_correlations"`
	MissingPercentage map[string]float64     `json:"missing_percentage"`
	NumericSummary    map[string]ColumnStats `json:"numeric_summary"`

	// Rendering metadata; not part of the serialized fingerprint.
	Name           string                  `json:"-"`
	Rows           int                     `json:"-"`
	Columns        []string                `json:"-"`
	NumericColumns []string                `json:"-"`
	Warnings       []string                `json:"-"`
	Outliers       map[string]OutlierStats `json:"-"`
}

// OutlierStats counts values whose robust z-score (0.6745·(x-median)/MAD)
// exceeds Threshold.
type OutlierStats struct {
	Count     int
	MaxAbsZ   float64
	Threshold float64
}

// JSON returns the indented serialized fingerprint.
func (s *StatisticalSummary) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return b, nil
}
