package observability

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	m.RecordPath("gaussian", 2)
	m.RecordPath("gaussian", 0)
	m.RecordPath("clayton", 1)
	m.RecordExhausted()
	m.RecordContinuation()
	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerDone()
	m.ObserveRun(0.5, nil)
	m.ObserveRun(0.1, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PathsDrawn.WithLabelValues("gaussian")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DefaultsObserved.WithLabelValues("gaussian")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExhaustedDraws))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContinuationRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkersActive))

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	assert.Contains(t, buf.String(), "test_sampler_paths_drawn_total")
	assert.Contains(t, buf.String(), `status="error"`)
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPath("frank", 3)
		m.RecordExhausted()
		m.RecordContinuation()
		m.WorkerStarted()
		m.WorkerDone()
		m.ObserveRun(1, nil)
		require.NoError(t, m.WriteText(&bytes.Buffer{}))
	})
}

func TestSeparateRegistries(t *testing.T) {
	t.Parallel()

	// Fresh registries never collide on registration.
	a := NewMetrics("")
	b := NewMetrics("")
	a.RecordExhausted()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ExhaustedDraws))
}
