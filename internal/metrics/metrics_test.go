package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementDocument("stored", "darf")
	m.IncrementDocument("stored", "darf")
	m.IncrementDocument("conflict_duplicate", "esocial")
	m.ObserveStage("ocr", 20*time.Millisecond)
	m.ObserveProcess(time.Second)
	m.SetQueueDepth(3)
	m.IncInFlight()
	m.IncInFlight()
	m.DecInFlight()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Documents.WithLabelValues("stored", "darf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues("conflict_duplicate", "esocial")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageLatency))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementDocument("stored", "darf")
		m.ObserveStage("ocr", time.Millisecond)
		m.ObserveProcess(time.Millisecond)
		m.SetQueueDepth(1)
		m.IncInFlight()
		m.DecInFlight()
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
