package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aperturerobotics/go-jsdos/internal/metrics"
	"github.com/aperturerobotics/go-jsdos/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := m.Hooks()
	ctx := context.Background()

	h.OnRunReady(ctx, &session.RunEvent{Root: "a", Duration: 200 * time.Millisecond})
	h.OnRunReady(ctx, &session.RunEvent{Root: "b", Duration: time.Second})
	h.OnRunFailed(ctx, &session.RunEvent{Root: "c", Err: errors.New("boom")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Runs.WithLabelValues(metrics.ResultReady)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues(metrics.ResultFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Running))

	h.OnStop(ctx, &session.StopEvent{Root: "a", Terminated: true})
	// A teardown after a failed run does not touch the gauge.
	h.OnStop(ctx, &session.StopEvent{Root: "c", Terminated: false})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Running))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Stops.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Stops.WithLabelValues("false")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StartTime))
}

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Runs.WithLabelValues(metrics.ResultReady).Inc()
	m.Stops.WithLabelValues("true").Inc()

	families, err := reg.Gather()
	assert.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "jsdos_session_runs_total")
	assert.Contains(t, names, "jsdos_session_stops_total")
	assert.Contains(t, names, "jsdos_session_start_seconds")
	assert.Contains(t, names, "jsdos_session_running")
}
