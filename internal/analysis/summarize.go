package analysis

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/insightloom/internal/dataset"
)

// ComputeStatisticalInsights derives the correlation, missingness and
// descriptive-statistics fingerprint of ds. The dataset is only read.
func ComputeStatisticalInsights(ds *dataset.Dataset, opt Options) (*StatisticalSummary, error) {
	if ds == nil {
		return nil, &SummarizationError{Err: errors.New("nil dataset")}
	}
	if ds.Ncol() == 0 || ds.Nrow() == 0 {
		return nil, &SummarizationError{Dataset: ds.Name(), Err: ErrEmptyDataset}
	}
	if opt.MaxCorrelations <= 0 {
		opt.MaxCorrelations = DefaultOptions().MaxCorrelations
	}

	cols := ds.Columns()
	numeric := ds.NumericColumns()
	sum := &StatisticalSummary{
		MissingPercentage: make(map[string]float64, len(cols)),
		NumericSummary:    make(map[string]ColumnStats, len(numeric)),
		Name:              ds.Name(),
		Rows:              ds.Nrow(),
		Columns:           cols,
		NumericColumns:    numeric,
		Warnings:          ds.Warnings(),
	}

	values := make([][]float64, len(numeric))
	for i, name := range numeric {
		v, err := ds.Floats(name)
		if err != nil {
			return nil, &SummarizationError{Dataset: ds.Name(), Err: err}
		}
		values[i] = v
	}
	sum.TopCorrelations = topCorrelations(numeric, values, opt)

	rows := float64(ds.Nrow())
	for _, name := range cols {
		missing, err := ds.Missing(name)
		if err != nil {
			return nil, &SummarizationError{Dataset: ds.Name(), Err: err}
		}
		n := 0
		for _, m := range missing {
			if m {
				n++
			}
		}
		sum.MissingPercentage[name] = float64(n) / rows * 100
	}

	for i, name := range numeric {
		sum.NumericSummary[name] = describe(values[i])
		if o, ok := outliers(values[i], opt.OutlierThreshold); ok {
			if sum.Outliers == nil {
				sum.Outliers = make(map[string]OutlierStats)
			}
			sum.Outliers[name] = o
		}
	}
	return sum, nil
}

// topCorrelations enumerates column pairs in matrix order (i<j), so self
// pairs and mirrored duplicates never appear. Pairs with fewer than two
// complete observations or an undefined coefficient are skipped.
func topCorrelations(names []string, values [][]float64, opt Options) Correlations {
	out := Correlations{}
	if len(names) < 2 {
		return out
	}
	var pairs []PairCorr
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			r, ok := pearson(values[i], values[j])
			if !ok {
				continue
			}
			pairs = append(pairs, PairCorr{A: names[i], B: names[j], R: r})
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].R > pairs[b].R })

	seen := make(map[float64]struct{})
	for _, p := range pairs {
		if len(out) >= opt.MaxCorrelations {
			break
		}
		if opt.Dedup == DedupValue {
			if _, dup := seen[p.R]; dup {
				continue
			}
			seen[p.R] = struct{}{}
		}
		out = append(out, p)
	}
	return out
}

// pearson computes r over the rows where both x and y are present.
func pearson(x, y []float64) (float64, bool) {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for k := range x {
		if math.IsNaN(x[k]) || math.IsNaN(y[k]) {
			continue
		}
		xs = append(xs, x[k])
		ys = append(ys, y[k])
	}
	if len(xs) < 2 {
		return 0, false
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r, true
}

func describe(vals []float64) ColumnStats {
	obs := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	nan := math.NaN()
	s := ColumnStats{Count: len(obs), Mean: nan, Std: nan, Min: nan, P25: nan, P50: nan, P75: nan, Max: nan}
	if len(obs) == 0 {
		return s
	}
	sort.Float64s(obs)
	s.Mean = stat.Mean(obs, nil)
	if len(obs) > 1 {
		s.Std = stat.StdDev(obs, nil)
	}
	s.Min = floats.Min(obs)
	s.Max = floats.Max(obs)
	s.P25 = quantile(obs, 0.25)
	s.P50 = quantile(obs, 0.5)
	s.P75 = quantile(obs, 0.75)
	return s
}

// quantile interpolates linearly between closest ranks at position q*(n-1).
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// minOutlierObs is the number of observations below which MAD is too noisy
// to flag anything.
const minOutlierObs = 8

// outliers flags values by robust z-score. It reports false when disabled,
// when there are too few observations, or when MAD is zero.
func outliers(vals []float64, threshold float64) (OutlierStats, bool) {
	if threshold <= 0 {
		return OutlierStats{}, false
	}
	obs := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	if len(obs) < minOutlierObs {
		return OutlierStats{}, false
	}
	median, mad := medianMAD(obs)
	if mad == 0 {
		return OutlierStats{}, false
	}
	o := OutlierStats{Threshold: threshold}
	for _, v := range obs {
		z := math.Abs(0.6745 * (v - median) / mad)
		if z > threshold {
			o.Count++
		}
		if z > o.MaxAbsZ {
			o.MaxAbsZ = z
		}
	}
	return o, true
}

// medianMAD returns the median and the median absolute deviation.
func medianMAD(obs []float64) (median, mad float64) {
	sorted := append([]float64(nil), obs...)
	sort.Float64s(sorted)
	median = quantile(sorted, 0.5)
	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	return median, quantile(dev, 0.5)
}
