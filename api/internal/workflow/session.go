package workflow

import (
	"fmt"
	"strings"

	"bodyscan-coach/api/internal/analysis"
)

// Session holds the metrics as the model first read them next to the
// user's working copy. EditedMetrics always has the length and name order of
// RawMetrics; only Value may differ.
type Session struct {
	RawMetrics      []analysis.Metric
	EditedMetrics   []analysis.Metric
	OriginalSummary string
}

func NewSession(r analysis.AnalysisResult) *Session {
	return &Session{
		RawMetrics:      analysis.CloneMetrics(r.Metrics),
		EditedMetrics:   analysis.CloneMetrics(r.Metrics),
		OriginalSummary: r.OneLineSummary,
	}
}

func (s *Session) check(i int) error {
	if i < 0 || i >= len(s.RawMetrics) {
		return fmt.Errorf("%w: %d (have %d metrics)", ErrIndex, i, len(s.RawMetrics))
	}
	return nil
}

// Edit overwrites the value of metric i. A blank value is kept as typed and
// resolved at Snapshot time.
func (s *Session) Edit(i int, value string) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.EditedMetrics[i].Value = value
	return nil
}

// Reset restores the value of metric i to what the model reported.
func (s *Session) Reset(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.EditedMetrics[i].Value = s.RawMetrics[i].Value
	return nil
}

// Edited reports whether metric i differs from the raw reading.
func (s *Session) Edited(i int) bool {
	if s.check(i) != nil {
		return false
	}
	return s.EditedMetrics[i].Value != s.RawMetrics[i].Value
}

// Snapshot is the metric list sent for re-analysis. Blank values fall back
// to the raw reading, never to "".
func (s *Session) Snapshot() []analysis.Metric {
	out := analysis.CloneMetrics(s.EditedMetrics)
	for i := range out {
		v := strings.TrimSpace(out[i].Value)
		if v == "" {
			v = s.RawMetrics[i].Value
		}
		out[i].Value = v
	}
	return out
}

func (s *Session) clone() *Session {
	return &Session{
		RawMetrics:      analysis.CloneMetrics(s.RawMetrics),
		EditedMetrics:   analysis.CloneMetrics(s.EditedMetrics),
		OriginalSummary: s.OriginalSummary,
	}
}
