// Package chart derives frequency histograms from a table snapshot.
package chart

import (
	"fmt"

	"tabledash/internal/domain"
	"tabledash/internal/tablesync"
)

// Spec picks the columns of one histogram. Color is optional and splits each bin.
type Spec struct {
	Title string `json:"title,omitempty" yaml:"title"`
	X     string `json:"x" yaml:"x"`
	Color string `json:"color,omitempty" yaml:"color"`
}

// DefaultSpecs are the two charts of the pet shelter dashboard.
var DefaultSpecs = []Spec{
	{Title: "Age by animal", X: "age", Color: "animal"},
	{Title: "Neutered", X: "neutered"},
}

// Bin counts the rows sharing one X value. ByColor lines up with Result.Series.
type Bin struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	ByColor []int  `json:"byColor,omitempty"`
}

// Result is a computed histogram.
type Result struct {
	Spec   Spec     `json:"spec"`
	Bins   []Bin    `json:"bins"`
	Series []string `json:"series,omitempty"`
	Total  int      `json:"total"`
}

// Histogram counts rows per distinct value of spec.X. Bins and series keep the order
// in which values first appear; blank cells count under "".
func Histogram(s *tablesync.Snapshot, spec Spec) (*Result, error) {
	if s.ColumnIndex(spec.X) < 0 {
		return nil, fmt.Errorf("x column %q: %w", spec.X, domain.ErrRange)
	}
	if spec.Color != "" && s.ColumnIndex(spec.Color) < 0 {
		return nil, fmt.Errorf("color column %q: %w", spec.Color, domain.ErrRange)
	}

	res := &Result{Spec: spec, Bins: []Bin{}}
	binIdx := make(map[string]int)
	seriesIdx := make(map[string]int)

	for i := range s.Len() {
		x, _ := s.Cell(i, spec.X)
		label := Label(x)
		b, ok := binIdx[label]
		if !ok {
			b = len(res.Bins)
			binIdx[label] = b
			res.Bins = append(res.Bins, Bin{Label: label})
		}
		res.Bins[b].Count++
		res.Total++

		if spec.Color == "" {
			continue
		}
		c, _ := s.Cell(i, spec.Color)
		series := Label(c)
		k, ok := seriesIdx[series]
		if !ok {
			k = len(res.Series)
			seriesIdx[series] = k
			res.Series = append(res.Series, series)
		}
		bin := &res.Bins[b]
		for len(bin.ByColor) <= k {
			bin.ByColor = append(bin.ByColor, 0)
		}
		bin.ByColor[k]++
	}

	// pad so every bin has one count per series
	for i := range res.Bins {
		for len(res.Bins[i].ByColor) < len(res.Series) {
			res.Bins[i].ByColor = append(res.Bins[i].ByColor, 0)
		}
	}
	return res, nil
}

// Label renders a cell value as a bin key, so 7 and "7" land in the same bin.
func Label(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
