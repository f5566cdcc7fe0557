// Package bridge implements the custodial ledger: value locked for the remote
// chain is held here until a proof authorizes its release.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"zkbridge/internal/domain"
	"zkbridge/internal/metrics"
	"zkbridge/internal/proof"
	pkgerrors "zkbridge/pkg/errors"
	"zkbridge/pkg/logger"
)

// ReplayOrder decides when a presented proof is recorded as consumed.
type ReplayOrder string

const (
	// MarkThenVerify consumes the proof before verification, so a proof that
	// fails verification can never be presented again.
	MarkThenVerify ReplayOrder = "mark-then-verify"
	// VerifyThenMark consumes the proof only once it has verified.
	VerifyThenMark ReplayOrder = "verify-then-mark"
)

// TransferPolicy decides what a failed disbursement does to a release or
// withdrawal.
type TransferPolicy string

const (
	// TransferSwallow commits the debit first and only logs a failed payout.
	TransferSwallow TransferPolicy = "swallow"
	// TransferFail pays out before committing and rejects on failure.
	TransferFail TransferPolicy = "fail"
)

// Config holds the ledger's owner, amount bounds and policies.
type Config struct {
	Owner          common.Address
	MinAmount      *uint256.Int
	MaxAmount      *uint256.Int
	ReplayOrder    ReplayOrder
	TransferPolicy TransferPolicy
}

// Deps are the collaborators of a Ledger. Verifier is required; the rest
// default to in-memory or no-op implementations.
type Deps struct {
	Verifier  proof.Verifier
	Store     Store
	Disburser Disburser
	Events    EventSink
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

// LockRequest deposits Value, which must equal Amount, for RemoteAddress.
type LockRequest struct {
	RequestID     uint64
	Amount        *uint256.Int
	Value         *uint256.Int
	RemoteAddress domain.RemoteAddress
}

// ReleaseRequest pays Amount to Recipient against a proof bundle.
type ReleaseRequest struct {
	RequestID    uint64
	Amount       *uint256.Int
	Recipient    common.Address
	Proof        []byte
	PublicInputs []byte
}

// Receipt describes a committed transition.
type Receipt struct {
	RequestID   uint64
	Amount      *uint256.Int
	TotalLocked *uint256.Int
	ProofHash   *common.Hash
	PayoutID    *uuid.UUID
}

// Ledger serializes every operation behind one mutex. State in memory changes
// only after the Store accepted the transition.
type Ledger struct {
	mu      sync.Mutex
	account *LedgerAccount
	replay  *ReplayGuard

	cfg       Config
	verifier  proof.Verifier
	store     Store
	disburser Disburser
	events    EventSink
	logger    logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewLedger validates cfg and restores state from the store.
func NewLedger(ctx context.Context, cfg Config, deps Deps) (*Ledger, error) {
	if cfg.MinAmount == nil || cfg.MaxAmount == nil {
		return nil, errors.New("bridge: amount bounds are required")
	}
	if cfg.MinAmount.Gt(cfg.MaxAmount) {
		return nil, errors.New("bridge: minimum amount exceeds maximum amount")
	}
	switch cfg.ReplayOrder {
	case "":
		cfg.ReplayOrder = MarkThenVerify
	case MarkThenVerify, VerifyThenMark:
	default:
		return nil, fmt.Errorf("bridge: unknown replay order %q", cfg.ReplayOrder)
	}
	switch cfg.TransferPolicy {
	case "":
		cfg.TransferPolicy = TransferSwallow
	case TransferSwallow, TransferFail:
	default:
		return nil, fmt.Errorf("bridge: unknown transfer policy %q", cfg.TransferPolicy)
	}
	if deps.Verifier == nil {
		return nil, errors.New("bridge: verifier is required")
	}
	if deps.Store == nil {
		deps.Store = NewMemoryStore()
	}
	if deps.Disburser == nil {
		deps.Disburser = NewMemoryDisburser()
	}
	if deps.Events == nil {
		deps.Events = NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	l := &Ledger{
		account:   NewLedgerAccount(),
		replay:    NewReplayGuard(),
		cfg:       cfg,
		verifier:  deps.Verifier,
		store:     deps.Store,
		disburser: deps.Disburser,
		events:    deps.Events,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       time.Now,
	}

	snap, err := deps.Store.Load(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load ledger state")
	}
	if snap.TotalLocked != nil {
		l.account.total = *snap.TotalLocked
	}
	for _, lock := range snap.Locks {
		l.account.RecordLock(lock.RemoteAddress, lock.Amount)
	}
	for _, h := range snap.ConsumedProofs {
		l.replay.TryConsume(h)
	}
	l.metrics.SetCustody(l.account.TotalLocked())

	l.logger.Info("Bridge ledger ready", map[string]interface{}{
		"owner":           cfg.Owner.Hex(),
		"total_locked":    l.account.total.Dec(),
		"locks":           len(snap.Locks),
		"consumed_proofs": l.replay.Len(),
		"replay_order":    string(cfg.ReplayOrder),
		"transfer_policy": string(cfg.TransferPolicy),
	})
	return l, nil
}

// Owner returns the address allowed to call EmergencyWithdraw.
func (l *Ledger) Owner() common.Address {
	return l.cfg.Owner
}

// Bounds returns copies of the inclusive lock bounds.
func (l *Ledger) Bounds() (min, max *uint256.Int) {
	return l.cfg.MinAmount.Clone(), l.cfg.MaxAmount.Clone()
}

// Lock takes custody of the attached value for the remote address.
func (l *Ledger) Lock(ctx context.Context, req LockRequest) (receipt *Receipt, err error) {
	defer func() { l.metrics.ObserveOperation(string(OpLock), err) }()

	if err := l.checkBounds(req.Amount); err != nil {
		return nil, err
	}
	if req.Value == nil || !req.Value.Eq(req.Amount) {
		return nil, pkgerrors.ErrValueMismatch
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := l.account.credited(req.Amount)
	if err != nil {
		return nil, err
	}
	m := &Mutation{
		Operation:     OpLock,
		RequestID:     req.RequestID,
		Amount:        req.Amount.Clone(),
		TotalLocked:   next,
		RemoteAddress: req.RemoteAddress,
	}
	if err := l.store.Commit(ctx, m); err != nil {
		return nil, pkgerrors.Wrap(err, "commit lock")
	}
	l.account.total = *next
	l.account.RecordLock(req.RemoteAddress, req.Amount)
	l.metrics.SetCustody(next)

	l.logger.Info("Value locked", map[string]interface{}{
		"request_id":     req.RequestID,
		"amount":         req.Amount.Dec(),
		"remote_address": req.RemoteAddress.String(),
		"total_locked":   next.Dec(),
	})
	l.emit(ctx, domain.Event{
		Type:          domain.EventLock,
		RequestID:     req.RequestID,
		Amount:        req.Amount.Clone(),
		RemoteAddress: req.RemoteAddress,
	})
	return &Receipt{RequestID: req.RequestID, Amount: req.Amount.Clone(), TotalLocked: next.Clone()}, nil
}

// Release pays amount to the recipient once the proof verifies. Each distinct
// proof blob authorizes at most one release.
func (l *Ledger) Release(ctx context.Context, req ReleaseRequest) (receipt *Receipt, err error) {
	defer func() { l.metrics.ObserveOperation(string(OpRelease), err) }()

	if req.Amount == nil {
		return nil, pkgerrors.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := l.account.debited(req.Amount)
	if err != nil {
		return nil, err
	}

	h := proof.Hash(req.Proof)
	if l.replay.Contains(h) {
		return nil, pkgerrors.ErrProofAlreadyUsed
	}

	if err := l.verifier.Verify(req.Proof, req.PublicInputs, req.Amount, req.Recipient); err != nil {
		l.logger.Warn("Proof rejected", map[string]interface{}{
			"request_id": req.RequestID,
			"proof_hash": h.Hex(),
			"error":      err.Error(),
		})
		if l.cfg.ReplayOrder == MarkThenVerify {
			l.burn(ctx, req.RequestID, h)
		}
		if !errors.Is(err, pkgerrors.ErrInvalidProof) {
			err = fmt.Errorf("%w: %v", pkgerrors.ErrInvalidProof, err)
		}
		return nil, err
	}

	recipient := req.Recipient
	m := &Mutation{
		Operation:   OpRelease,
		RequestID:   req.RequestID,
		Amount:      req.Amount.Clone(),
		TotalLocked: next,
		Recipient:   &recipient,
		ProofHash:   &h,
	}
	payout := l.newPayout(req.RequestID, req.Recipient, req.Amount, domain.PayoutRelease)

	if err := l.settle(ctx, m, payout, func() {
		if l.cfg.ReplayOrder == MarkThenVerify {
			l.burn(ctx, req.RequestID, h)
		}
	}); err != nil {
		return nil, err
	}

	l.logger.Info("Value released", map[string]interface{}{
		"request_id":   req.RequestID,
		"amount":       req.Amount.Dec(),
		"recipient":    req.Recipient.Hex(),
		"proof_hash":   h.Hex(),
		"total_locked": next.Dec(),
	})
	l.emit(ctx, domain.Event{
		Type:      domain.EventRelease,
		RequestID: req.RequestID,
		Amount:    req.Amount.Clone(),
		Recipient: &recipient,
	})
	return &Receipt{
		RequestID:   req.RequestID,
		Amount:      req.Amount.Clone(),
		TotalLocked: next.Clone(),
		ProofHash:   &h,
		PayoutID:    &payout.ID,
	}, nil
}

// EmergencyWithdraw pays amount out of custody to the owner. It emits no
// event.
func (l *Ledger) EmergencyWithdraw(ctx context.Context, caller common.Address, requestID uint64, amount *uint256.Int) (receipt *Receipt, err error) {
	defer func() { l.metrics.ObserveOperation(string(OpWithdraw), err) }()

	if caller != l.cfg.Owner {
		l.logger.Warn("Withdraw attempted by non-owner", map[string]interface{}{
			"request_id": requestID,
			"caller":     caller.Hex(),
		})
		return nil, pkgerrors.ErrNotOwner
	}
	if amount == nil {
		return nil, pkgerrors.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := l.account.debited(amount)
	if err != nil {
		return nil, err
	}
	m := &Mutation{
		Operation:   OpWithdraw,
		RequestID:   requestID,
		Amount:      amount.Clone(),
		TotalLocked: next,
		Recipient:   &caller,
	}
	payout := l.newPayout(requestID, caller, amount, domain.PayoutWithdraw)
	if err := l.settle(ctx, m, payout, nil); err != nil {
		return nil, err
	}

	l.logger.Warn("Emergency withdraw executed", map[string]interface{}{
		"request_id":   requestID,
		"amount":       amount.Dec(),
		"owner":        caller.Hex(),
		"total_locked": next.Dec(),
	})
	return &Receipt{RequestID: requestID, Amount: amount.Clone(), TotalLocked: next.Clone(), PayoutID: &payout.ID}, nil
}

// TotalLocked returns the custodied total.
func (l *Ledger) TotalLocked() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account.TotalLocked()
}

// LockedFor returns the last lock amount recorded for remote.
func (l *Ledger) LockedFor(remote domain.RemoteAddress) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account.LockedFor(remote)
}

// IsProofConsumed reports whether h has been used or burned.
func (l *Ledger) IsProofConsumed(h common.Hash) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replay.Contains(h)
}

func (l *Ledger) checkBounds(amount *uint256.Int) error {
	if amount == nil || amount.Lt(l.cfg.MinAmount) || amount.Gt(l.cfg.MaxAmount) {
		return pkgerrors.ErrAmountOutOfRange
	}
	return nil
}

// settle commits a debit and pays it out in the order the transfer policy
// requires. onPayoutFailure runs when a payout fails before anything was
// committed. Under TransferFail a payout whose commit fails is cancelled; if
// it cannot be, the transition is still applied in memory. Must be called
// with l.mu held.
func (l *Ledger) settle(ctx context.Context, m *Mutation, payout domain.Payout, onPayoutFailure func()) error {
	if l.cfg.TransferPolicy == TransferFail {
		if err := l.disburser.Disburse(ctx, payout); err != nil {
			l.logger.Error("Payout failed, operation rejected", map[string]interface{}{
				"operation":  string(m.Operation),
				"request_id": m.RequestID,
				"payout_id":  payout.ID.String(),
				"error":      err.Error(),
			})
			if onPayoutFailure != nil {
				onPayoutFailure()
			}
			return fmt.Errorf("%w: %v", pkgerrors.ErrTransferFailed, err)
		}
		if err := l.store.Commit(ctx, m); err != nil {
			fields := map[string]interface{}{
				"operation":  string(m.Operation),
				"request_id": m.RequestID,
				"payout_id":  payout.ID.String(),
				"amount":     m.Amount.Dec(),
				"error":      err.Error(),
			}
			if cerr := l.cancelPayout(ctx, payout); cerr != nil {
				// The payout stands. Hold the debit and the proof in memory so
				// a retry cannot pay it a second time.
				l.apply(m)
				fields["cancel_error"] = cerr.Error()
				l.logger.Error("Payout issued but ledger commit failed, state held in memory only", fields)
			} else {
				l.logger.Error("Ledger commit failed, payout cancelled", fields)
			}
			return pkgerrors.Wrap(err, "commit "+string(m.Operation))
		}
		l.apply(m)
		return nil
	}

	if err := l.store.Commit(ctx, m); err != nil {
		return pkgerrors.Wrap(err, "commit "+string(m.Operation))
	}
	l.apply(m)
	if err := l.disburser.Disburse(ctx, payout); err != nil {
		l.metrics.TransferFailed(string(m.Operation))
		l.logger.Error("Payout failed after debit was committed", map[string]interface{}{
			"operation":  string(m.Operation),
			"request_id": m.RequestID,
			"payout_id":  payout.ID.String(),
			"recipient":  payout.Recipient.Hex(),
			"amount":     payout.Amount.Dec(),
			"error":      err.Error(),
		})
	}
	return nil
}

func (l *Ledger) cancelPayout(ctx context.Context, p domain.Payout) error {
	c, ok := l.disburser.(Canceller)
	if !ok {
		return errors.New("disburser cannot cancel payouts")
	}
	return c.Cancel(ctx, p.ID)
}

func (l *Ledger) apply(m *Mutation) {
	l.account.total = *m.TotalLocked
	if m.ProofHash != nil {
		l.replay.TryConsume(*m.ProofHash)
	}
	l.metrics.SetCustody(m.TotalLocked)
}

// burn records h as consumed without moving value. Must be called with l.mu
// held.
func (l *Ledger) burn(ctx context.Context, requestID uint64, h common.Hash) {
	m := &Mutation{
		Operation:   OpBurn,
		RequestID:   requestID,
		Amount:      new(uint256.Int),
		TotalLocked: l.account.TotalLocked(),
		ProofHash:   &h,
	}
	if err := l.store.Commit(ctx, m); err != nil {
		l.logger.Error("Failed to record burned proof", map[string]interface{}{
			"request_id": requestID,
			"proof_hash": h.Hex(),
			"error":      err.Error(),
		})
		return
	}
	l.replay.TryConsume(h)
}

func (l *Ledger) newPayout(requestID uint64, to common.Address, amount *uint256.Int, source domain.PayoutSource) domain.Payout {
	return domain.Payout{
		ID:        uuid.New(),
		RequestID: requestID,
		Recipient: to,
		Amount:    amount.Clone(),
		Source:    source,
		CreatedAt: l.now().UTC(),
	}
}

func (l *Ledger) emit(ctx context.Context, e domain.Event) {
	e.ID = uuid.New()
	e.EmittedAt = l.now().UTC()
	l.events.Publish(ctx, e)
}
