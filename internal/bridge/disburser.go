package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"zkbridge/internal/domain"
	pkgerrors "zkbridge/pkg/errors"
)

// Disburser moves value out of custody to a local address.
type Disburser interface {
	Disburse(ctx context.Context, p domain.Payout) error
}

// Canceller is implemented by disbursers that can withdraw a queued payout
// before it is executed.
type Canceller interface {
	Cancel(ctx context.Context, id uuid.UUID) error
}

// MemoryDisburser records payouts in memory. Bridge-transfer payouts are
// unique per request ID, matching the relay outbox table.
type MemoryDisburser struct {
	mu      sync.Mutex
	payouts []domain.Payout
	bridged map[uint64]struct{}
	err     error
}

func NewMemoryDisburser() *MemoryDisburser {
	return &MemoryDisburser{bridged: make(map[uint64]struct{})}
}

func (d *MemoryDisburser) Disburse(ctx context.Context, p domain.Payout) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if p.Source == domain.PayoutBridgeTransfer {
		if _, seen := d.bridged[p.RequestID]; seen {
			return pkgerrors.ErrDuplicateRequest
		}
		d.bridged[p.RequestID] = struct{}{}
	}
	d.payouts = append(d.payouts, p)
	return nil
}

// Cancel removes a recorded payout.
func (d *MemoryDisburser) Cancel(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range d.payouts {
		if p.ID == id {
			if p.Source == domain.PayoutBridgeTransfer {
				delete(d.bridged, p.RequestID)
			}
			d.payouts = append(d.payouts[:i], d.payouts[i+1:]...)
			return nil
		}
	}
	return errors.New("payout not found")
}

// Fail makes subsequent payouts fail with err, or succeed again when nil.
func (d *MemoryDisburser) Fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Payouts returns the recorded payouts in order.
func (d *MemoryDisburser) Payouts() []domain.Payout {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Payout(nil), d.payouts...)
}
