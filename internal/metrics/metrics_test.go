package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter("requests_total", nil, "Total requests")
	registry.IncrementCounter("requests_total", nil, "Total requests")
	registry.AddToCounter("requests_total", 3, nil, "Total requests")

	all := registry.GetAllMetrics()
	counters := all["counters"].(map[string]*Metric)
	require.Contains(t, counters, "requests_total")
	assert.Equal(t, float64(5), counters["requests_total"].Value)
}

func TestCounter_LabelsMakeDistinctSeries(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter("requests_total", map[string]string{"method": "GET"}, "")
	registry.IncrementCounter("requests_total", map[string]string{"method": "POST"}, "")

	counters := registry.GetAllMetrics()["counters"].(map[string]*Metric)
	assert.Len(t, counters, 2)
}

func TestCounter_LabelKeyOrderStable(t *testing.T) {
	assert.Equal(t,
		metricKey("m", map[string]string{"a": "1", "b": "2"}),
		metricKey("m", map[string]string{"b": "2", "a": "1"}),
	)
}

func TestTimer(t *testing.T) {
	registry := NewRegistry()

	registry.RecordTimer("op_duration", 10*time.Millisecond, nil, "")
	registry.RecordTimer("op_duration", 30*time.Millisecond, nil, "")

	timers := registry.GetAllMetrics()["timers"].(map[string]*TimerMetric)
	require.Contains(t, timers, "op_duration")
	timer := timers["op_duration"]
	assert.Equal(t, int64(2), timer.Count)
	assert.InDelta(t, 10, timer.Min, 0.01)
	assert.InDelta(t, 30, timer.Max, 0.01)
	assert.InDelta(t, 20, timer.Average, 0.01)
}

func TestGauge_Overwrites(t *testing.T) {
	registry := NewRegistry()

	registry.SetGauge("connections", 3, nil, "")
	registry.SetGauge("connections", 1, nil, "")

	gauges := registry.GetAllMetrics()["gauges"].(map[string]*Metric)
	assert.Equal(t, float64(1), gauges["connections"].Value)
}

func TestPercentile(t *testing.T) {
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = float64(i + 1)
	}
	assert.InDelta(t, 96, percentile(samples, 0.95), 1)
	assert.InDelta(t, 100, percentile(samples, 0.99), 1)
	assert.Equal(t, float64(0), percentile(nil, 0.95))
}
