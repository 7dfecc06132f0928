package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/gowiki/internal/events"
)

// PrometheusSink counts events by kind and the Markdown bytes written.
type PrometheusSink struct {
	eventsTotal  *prometheus.CounterVec
	bytesWritten prometheus.Counter
	pagesLive    prometheus.Gauge
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiki_page_events_total",
			Help: "Wiki events partitioned by kind.",
		}, []string{"kind"}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wiki_markdown_bytes_written_total",
			Help: "Markdown bytes written by page creates and updates.",
		}),
		pagesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wiki_pages_delta",
			Help: "Pages created minus pages deleted since start.",
		}),
	}
	for _, collector := range []prometheus.Collector{s.eventsTotal, s.bytesWritten, s.pagesLive} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.eventsTotal.WithLabelValues(string(evt.Kind)).Inc()
		switch evt.Kind {
		case events.KindPageCreated:
			s.pagesLive.Inc()
			s.bytesWritten.Add(float64(evt.Bytes))
		case events.KindPageUpdated:
			s.bytesWritten.Add(float64(evt.Bytes))
		case events.KindPageDeleted:
			s.pagesLive.Dec()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
