// Package relay is the intake side of the bridge. It forwards deposits to the
// ledger, passes privileged release bundles through, and serves the
// trusted-sender bypass that pays out without touching ledger state.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"zkbridge/internal/bridge"
	"zkbridge/internal/domain"
	"zkbridge/internal/metrics"
	pkgerrors "zkbridge/pkg/errors"
	"zkbridge/pkg/logger"
)

// Locker accepts deposits forwarded by the relay.
type Locker interface {
	Lock(ctx context.Context, req bridge.LockRequest) (*bridge.Receipt, error)
}

// Releaser consumes release bundles passed through by the relay owner.
type Releaser interface {
	Release(ctx context.Context, req bridge.ReleaseRequest) (*bridge.Receipt, error)
}

type Config struct {
	Owner         common.Address
	TrustedSender common.Address
	TrustedSigner common.Address
	MinAmount     *uint256.Int
	MaxAmount     *uint256.Int
}

type Deps struct {
	Locker   Locker
	Releaser Releaser
	// Disburser pays bridge transfers. It must not be the ledger's
	// disburser: bypass payouts are queued apart from releases. It should
	// reject a repeated request ID with ErrDuplicateRequest so the paid set
	// survives restarts.
	Disburser bridge.Disburser
	Events    bridge.EventSink
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

type TokenTransferRequest struct {
	RequestID     uint64
	Amount        *uint256.Int
	Value         *uint256.Int
	Receiver      common.Address
	RemoteAddress domain.RemoteAddress
}

type CrossChainTransferRequest struct {
	RequestID     uint64
	Amount        *uint256.Int
	Receiver      common.Address
	RemoteAddress domain.RemoteAddress
	Proof         []byte
	PublicInputs  []byte
}

type BridgeTransferRequest struct {
	RequestID     uint64
	Amount        *uint256.Int
	Receiver      common.Address
	RemoteAddress domain.RemoteAddress
	Signature     []byte
}

type Forwarder struct {
	cfg       Config
	locker    Locker
	releaser  Releaser
	disburser bridge.Disburser
	events    bridge.EventSink
	logger    logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu   sync.Mutex
	paid map[uint64]struct{}
}

func NewForwarder(cfg Config, deps Deps) (*Forwarder, error) {
	if cfg.MinAmount == nil || cfg.MaxAmount == nil {
		return nil, errors.New("relay: amount bounds are required")
	}
	if cfg.MinAmount.Gt(cfg.MaxAmount) {
		return nil, errors.New("relay: minimum amount exceeds maximum amount")
	}
	if deps.Locker == nil || deps.Releaser == nil {
		return nil, errors.New("relay: locker and releaser are required")
	}
	if deps.Disburser == nil {
		deps.Disburser = bridge.NewMemoryDisburser()
	}
	if deps.Events == nil {
		deps.Events = bridge.NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	return &Forwarder{
		cfg:       cfg,
		locker:    deps.Locker,
		releaser:  deps.Releaser,
		disburser: deps.Disburser,
		events:    deps.Events,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       time.Now,
		paid:      make(map[uint64]struct{}),
	}, nil
}

// TokenTransfer forwards a deposit to the ledger with the exact value
// attached.
func (f *Forwarder) TokenTransfer(ctx context.Context, req TokenTransferRequest) (receipt *bridge.Receipt, err error) {
	defer func() { f.metrics.ObserveOperation("relay_transfer", err) }()

	if err := f.checkBounds(req.Amount); err != nil {
		return nil, err
	}
	if req.Value == nil || !req.Value.Eq(req.Amount) {
		return nil, pkgerrors.ErrValueMismatch
	}

	receipt, err = f.locker.Lock(ctx, bridge.LockRequest{
		RequestID:     req.RequestID,
		Amount:        req.Amount,
		Value:         req.Amount,
		RemoteAddress: req.RemoteAddress,
	})
	if err != nil {
		return nil, err
	}
	f.emit(ctx, req.RequestID, req.Amount, req.Receiver, req.RemoteAddress)
	return receipt, nil
}

// CrossChainTransfer passes a release bundle from the relay owner to the
// ledger.
func (f *Forwarder) CrossChainTransfer(ctx context.Context, caller common.Address, req CrossChainTransferRequest) (receipt *bridge.Receipt, err error) {
	defer func() { f.metrics.ObserveOperation("relay_cross_chain", err) }()

	if caller != f.cfg.Owner {
		return nil, pkgerrors.ErrNotOwner
	}
	if err := f.checkBounds(req.Amount); err != nil {
		return nil, err
	}

	receipt, err = f.releaser.Release(ctx, bridge.ReleaseRequest{
		RequestID:    req.RequestID,
		Amount:       req.Amount,
		Recipient:    req.Receiver,
		Proof:        req.Proof,
		PublicInputs: req.PublicInputs,
	})
	if err != nil {
		return nil, err
	}
	f.emit(ctx, req.RequestID, req.Amount, req.Receiver, req.RemoteAddress)
	return receipt, nil
}

// BridgeTransfer pays the receiver directly on a message from the trusted
// sender, signed by the trusted signer. Ledger custody is neither read nor
// written. Each request ID is paid at most once; the disburser enforces it
// across restarts.
func (f *Forwarder) BridgeTransfer(ctx context.Context, caller common.Address, req BridgeTransferRequest) (payout *domain.Payout, err error) {
	defer func() { f.metrics.ObserveOperation("relay_bridge_transfer", err) }()

	if f.cfg.TrustedSender == (common.Address{}) || caller != f.cfg.TrustedSender {
		f.logger.Warn("Bridge transfer from untrusted sender", map[string]interface{}{
			"request_id": req.RequestID,
			"caller":     caller.Hex(),
		})
		return nil, pkgerrors.ErrInvalidSender
	}
	if err := f.checkBounds(req.Amount); err != nil {
		return nil, err
	}

	digest, err := TransferDigest(req.RequestID, req.Amount, req.Receiver, req.RemoteAddress)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode transfer message")
	}
	signer, ok := RecoverSigner(digest, req.Signature)
	if !ok || f.cfg.TrustedSigner == (common.Address{}) || signer != f.cfg.TrustedSigner {
		return nil, pkgerrors.ErrInvalidSignature
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.paid[req.RequestID]; seen {
		return nil, pkgerrors.ErrDuplicateRequest
	}
	p := domain.Payout{
		ID:        uuid.New(),
		RequestID: req.RequestID,
		Recipient: req.Receiver,
		Amount:    req.Amount.Clone(),
		Source:    domain.PayoutBridgeTransfer,
		CreatedAt: f.now().UTC(),
	}
	if err := f.disburser.Disburse(ctx, p); err != nil {
		if errors.Is(err, pkgerrors.ErrDuplicateRequest) {
			f.paid[req.RequestID] = struct{}{}
			f.logger.Warn("Bridge transfer already paid", map[string]interface{}{
				"request_id": req.RequestID,
			})
			return nil, pkgerrors.ErrDuplicateRequest
		}
		f.metrics.TransferFailed("bridge_transfer")
		f.logger.Error("Bridge transfer payout failed", map[string]interface{}{
			"request_id": req.RequestID,
			"receiver":   req.Receiver.Hex(),
			"error":      err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrTransferFailed, err)
	}
	f.paid[req.RequestID] = struct{}{}

	f.logger.Info("Bridge transfer paid", map[string]interface{}{
		"request_id":     req.RequestID,
		"amount":         req.Amount.Dec(),
		"receiver":       req.Receiver.Hex(),
		"remote_address": req.RemoteAddress.String(),
		"payout_id":      p.ID.String(),
	})
	f.emit(ctx, req.RequestID, req.Amount, req.Receiver, req.RemoteAddress)
	return &p, nil
}

func (f *Forwarder) checkBounds(amount *uint256.Int) error {
	if amount == nil || amount.Lt(f.cfg.MinAmount) || amount.Gt(f.cfg.MaxAmount) {
		return pkgerrors.ErrAmountOutOfRange
	}
	return nil
}

func (f *Forwarder) emit(ctx context.Context, requestID uint64, amount *uint256.Int, receiver common.Address, remote domain.RemoteAddress) {
	f.events.Publish(ctx, domain.Event{
		ID:            uuid.New(),
		Type:          domain.EventTransfer,
		RequestID:     requestID,
		Amount:        amount.Clone(),
		RemoteAddress: remote,
		Receiver:      &receiver,
		EmittedAt:     f.now().UTC(),
	})
}
