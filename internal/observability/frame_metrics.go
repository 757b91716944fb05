package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FrameCollector exposes TDMA slot timer metrics.
type FrameCollector struct {
	gatherer prometheus.Gatherer

	FramesTotal       prometheus.Counter
	SlotsTotal        prometheus.Counter
	SlotDuration      prometheus.Histogram
	LiveContributions prometheus.Gauge
}

// NewFrameCollector registers frame metrics against the provided registerer.
func NewFrameCollector(reg prometheus.Registerer) (*FrameCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	frames, err := Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tdma_frames_total",
		Help: "Number of TDMA frames processed by the emulator.",
	}), "tdma_frames_total")
	if err != nil {
		return nil, err
	}

	slots, err := Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tdma_slots_total",
		Help: "Number of TDMA slots processed by the emulator.",
	}), "tdma_slots_total")
	if err != nil {
		return nil, err
	}

	slotDuration, err := Register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tdma_slot_processing_seconds",
		Help:    "Wall-clock time spent processing one TDMA slot.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
	}), "tdma_slot_processing_seconds")
	if err != nil {
		return nil, err
	}

	live, err := Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sinrtable_live_contributions",
		Help: "Live SINR contributions observed at the end of the last slot.",
	}), "sinrtable_live_contributions")
	if err != nil {
		return nil, err
	}

	return &FrameCollector{
		gatherer:          GathererFor(reg),
		FramesTotal:       frames,
		SlotsTotal:        slots,
		SlotDuration:      slotDuration,
		LiveContributions: live,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *FrameCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// IncFrames increments the frame counter.
func (c *FrameCollector) IncFrames() {
	if c == nil || c.FramesTotal == nil {
		return
	}
	c.FramesTotal.Inc()
}

// ObserveSlot records one processed slot and how long it took.
func (c *FrameCollector) ObserveSlot(d time.Duration) {
	if c == nil {
		return
	}
	if c.SlotsTotal != nil {
		c.SlotsTotal.Inc()
	}
	if c.SlotDuration != nil {
		c.SlotDuration.Observe(d.Seconds())
	}
}

// SetLiveContributions updates the live contribution gauge.
func (c *FrameCollector) SetLiveContributions(n int) {
	if c == nil || c.LiveContributions == nil {
		return
	}
	if n < 0 {
		n = 0
	}
	c.LiveContributions.Set(float64(n))
}
