package core

import (
	"context"
	"sort"
	"sync"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// MetricSample is one recorded counter increment or histogram observation.
type MetricSample struct {
	Name  string
	Value float64
	Tags  map[string]string
}

const defaultMetricSampleLimit = 1024

// MemoryMetricsRecorder keeps running counter totals plus the most recent
// samples. It backs tests and the operation summary logged by the server on
// shutdown.
type MemoryMetricsRecorder struct {
	mu          sync.Mutex
	sampleLimit int
	totals      map[string]int64
	counters    []MetricSample
	histograms  []MetricSample
}

func NewMemoryMetricsRecorder() *MemoryMetricsRecorder {
	return &MemoryMetricsRecorder{
		sampleLimit: defaultMetricSampleLimit,
		totals:      map[string]int64{},
	}
}

func (m *MemoryMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := name
	if status := tags["status"]; status != "" {
		key += "{" + status + "}"
	}
	m.totals[key] += value
	m.counters = appendBounded(m.counters, MetricSample{Name: name, Value: float64(value), Tags: cloneTags(tags)}, m.sampleLimit)
}

func (m *MemoryMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = appendBounded(m.histograms, MetricSample{Name: name, Value: value, Tags: cloneTags(tags)}, m.sampleLimit)
}

func appendBounded(samples []MetricSample, sample MetricSample, limit int) []MetricSample {
	samples = append(samples, sample)
	if limit > 0 && len(samples) > limit {
		samples = append(samples[:0], samples[len(samples)-limit:]...)
	}
	return samples
}

func (m *MemoryMetricsRecorder) Counters() []MetricSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MetricSample(nil), m.counters...)
}

func (m *MemoryMetricsRecorder) Histograms() []MetricSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MetricSample(nil), m.histograms...)
}

// CounterTotals sums counters by name and status tag, keyed "name{status}".
func (m *MemoryMetricsRecorder) CounterTotals() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := make(map[string]int64, len(m.totals))
	for key, value := range m.totals {
		totals[key] = value
	}
	return totals
}

// SortedCounterNames returns the CounterTotals keys in order.
func (m *MemoryMetricsRecorder) SortedCounterNames() []string {
	totals := m.CounterTotals()
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cloneTags(tags map[string]string) map[string]string {
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}
