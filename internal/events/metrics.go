package events

import (
	"context"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/obs"
)

// MetricsSink counts delivered events and refreshes the product gauges.
type MetricsSink struct {
	m     *obs.Metrics
	stats func() model.Stats
}

func NewMetricsSink(m *obs.Metrics, stats func() model.Stats) *MetricsSink {
	return &MetricsSink{m: m, stats: stats}
}

func (s *MetricsSink) Name() string { return "metrics" }

func (s *MetricsSink) Deliver(_ context.Context, ev model.Event) error {
	s.m.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Kind == model.EventProductChecked {
		s.m.Verifications.WithLabelValues(ev.Verdict).Inc()
		return nil
	}
	s.Refresh()
	return nil
}

// Refresh sets the product gauges from the current ledger contents.
func (s *MetricsSink) Refresh() {
	if s.stats == nil {
		return
	}
	st := s.stats()
	s.m.Products.WithLabelValues("genuine").Set(float64(st.Genuine))
	s.m.Products.WithLabelValues("fake").Set(float64(st.Fake))
}
