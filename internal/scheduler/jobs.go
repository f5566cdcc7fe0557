package scheduler

import (
	"context"
	"errors"

	"zkbridge/internal/metrics"
	"zkbridge/internal/repository/postgres"
	"zkbridge/pkg/logger"
)

// ChainVerifier recomputes the audit hash chain.
type ChainVerifier interface {
	VerifyChain(ctx context.Context) (bool, error)
}

// PayoutCounter reports the payout outbox backlog.
type PayoutCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// ChainCheck returns a job body that verifies the audit chain and publishes
// the result. A broken chain is logged, not returned, so the job itself
// counts as having run.
func ChainCheck(v ChainVerifier, log logger.Logger, m *metrics.Metrics) func(context.Context) error {
	return func(ctx context.Context) error {
		ok, err := v.VerifyChain(ctx)
		if err != nil && !errors.Is(err, postgres.ErrChainBroken) {
			return err
		}
		m.SetChainValid(ok)
		if !ok {
			fields := map[string]interface{}{}
			if err != nil {
				fields["error"] = err.Error()
			}
			log.Error("Ledger audit chain does not verify", fields)
		}
		return nil
	}
}

// PayoutBacklog returns a job body that publishes the pending payout count of
// the named outbox.
func PayoutBacklog(outbox string, c PayoutCounter, log logger.Logger, m *metrics.Metrics) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := c.CountPending(ctx)
		if err != nil {
			return err
		}
		m.SetPendingPayouts(outbox, n)
		if n > 0 {
			log.Info("Payouts awaiting execution", map[string]interface{}{"outbox": outbox, "pending": n})
		}
		return nil
	}
}
