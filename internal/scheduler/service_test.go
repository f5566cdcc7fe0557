package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkbridge/internal/metrics"
	"zkbridge/internal/repository/postgres"
	"zkbridge/pkg/logger"
)

func TestScheduler_RunsDueJobsOnInterval(t *testing.T) {
	s := NewScheduler(logger.NewNop(), nil)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	var runs int32
	s.Schedule(&Job{Name: "count", Interval: time.Minute, Run: func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}})

	ctx := context.Background()
	s.processJobs(ctx)
	assert.Equal(t, int32(1), runs)

	clock = clock.Add(30 * time.Second)
	s.processJobs(ctx)
	assert.Equal(t, int32(1), runs)

	clock = clock.Add(30 * time.Second)
	s.processJobs(ctx)
	assert.Equal(t, int32(2), runs)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s := NewScheduler(logger.NewNop(), nil)
	s.tick = 5 * time.Millisecond

	ran := make(chan struct{}, 1)
	s.Schedule(&Job{Name: "once", Interval: time.Hour, Run: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	cancel()
	require.NoError(t, <-done)
}

type fakeChain struct {
	ok  bool
	err error
}

func (f fakeChain) VerifyChain(context.Context) (bool, error) { return f.ok, f.err }

type fakeCounter int

func (f fakeCounter) CountPending(context.Context) (int, error) {
	if f < 0 {
		return 0, errors.New("db down")
	}
	return int(f), nil
}

func TestChainCheck(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	reg := metricValue(t, m)

	require.NoError(t, ChainCheck(fakeChain{ok: true}, logger.NewNop(), m)(context.Background()))
	assert.Equal(t, 1.0, reg("zkbridge_audit_chain_valid"))

	broken := fmt.Errorf("%w: hash mismatch at index 3", postgres.ErrChainBroken)
	require.NoError(t, ChainCheck(fakeChain{err: broken}, logger.NewNop(), m)(context.Background()))
	assert.Equal(t, 0.0, reg("zkbridge_audit_chain_valid"))

	assert.Error(t, ChainCheck(fakeChain{err: errors.New("db down")}, logger.NewNop(), m)(context.Background()))
}

func TestPayoutBacklog(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	reg := metricValue(t, m)

	require.NoError(t, PayoutBacklog("ledger", fakeCounter(4), logger.NewNop(), m)(context.Background()))
	assert.Equal(t, 4.0, reg("zkbridge_payouts_pending"))

	assert.Error(t, PayoutBacklog("ledger", fakeCounter(-1), logger.NewNop(), m)(context.Background()))
}

func metricValue(t *testing.T, m *metrics.Metrics) func(name string) float64 {
	return func(name string) float64 {
		t.Helper()
		families, err := m.Registry().Gather()
		require.NoError(t, err)
		for _, f := range families {
			if f.GetName() == name {
				return f.GetMetric()[0].GetGauge().GetValue()
			}
		}
		t.Fatalf("metric %s not found", name)
		return 0
	}
}
