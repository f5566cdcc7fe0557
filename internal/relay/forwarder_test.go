package relay

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"zkbridge/internal/bridge"
	"zkbridge/internal/domain"
	pkgerrors "zkbridge/pkg/errors"
)

type MockLocker struct{ mock.Mock }

func (m *MockLocker) Lock(ctx context.Context, req bridge.LockRequest) (*bridge.Receipt, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*bridge.Receipt), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockReleaser struct{ mock.Mock }

func (m *MockReleaser) Release(ctx context.Context, req bridge.ReleaseRequest) (*bridge.Receipt, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*bridge.Receipt), args.Error(1)
	}
	return nil, args.Error(1)
}

var (
	relayOwner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	trustedSender = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	receiver      = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	remote        = domain.RemoteAddress{0x52, 0x45}
)

type relayFixture struct {
	fwd       *Forwarder
	locker    *MockLocker
	releaser  *MockReleaser
	disburser *bridge.MemoryDisburser
	events    *bridge.RecordingSink
	signerKey *ecdsa.PrivateKey
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := &relayFixture{
		locker:    new(MockLocker),
		releaser:  new(MockReleaser),
		disburser: bridge.NewMemoryDisburser(),
		events:    bridge.NewRecordingSink(),
		signerKey: key,
	}
	f.fwd, err = NewForwarder(Config{
		Owner:         relayOwner,
		TrustedSender: trustedSender,
		TrustedSigner: crypto.PubkeyToAddress(key.PublicKey),
		MinAmount:     uint256.NewInt(1),
		MaxAmount:     uint256.NewInt(1000),
	}, Deps{
		Locker:    f.locker,
		Releaser:  f.releaser,
		Disburser: f.disburser,
		Events:    f.events,
	})
	require.NoError(t, err)
	return f
}

func (f *relayFixture) sign(t *testing.T, requestID, amount uint64) []byte {
	t.Helper()
	digest, err := TransferDigest(requestID, uint256.NewInt(amount), receiver, remote)
	require.NoError(t, err)
	sig, err := crypto.Sign(digest[:], f.signerKey)
	require.NoError(t, err)
	return sig
}

func TestForwarder_TokenTransfer(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	want := bridge.LockRequest{
		RequestID:     7,
		Amount:        uint256.NewInt(5),
		Value:         uint256.NewInt(5),
		RemoteAddress: remote,
	}
	f.locker.On("Lock", ctx, want).Return(&bridge.Receipt{RequestID: 7, TotalLocked: uint256.NewInt(5)}, nil)

	receipt, err := f.fwd.TokenTransfer(ctx, TokenTransferRequest{
		RequestID:     7,
		Amount:        uint256.NewInt(5),
		Value:         uint256.NewInt(5),
		Receiver:      receiver,
		RemoteAddress: remote,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), receipt.TotalLocked.Uint64())
	f.locker.AssertExpectations(t)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTransfer, events[0].Type)
	assert.Equal(t, receiver, *events[0].Receiver)
	assert.Equal(t, remote, events[0].RemoteAddress)
}

func TestForwarder_TokenTransferRejections(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	_, err := f.fwd.TokenTransfer(ctx, TokenTransferRequest{Amount: uint256.NewInt(1001), Value: uint256.NewInt(1001)})
	assert.ErrorIs(t, err, pkgerrors.ErrAmountOutOfRange)

	_, err = f.fwd.TokenTransfer(ctx, TokenTransferRequest{Amount: uint256.NewInt(5), Value: uint256.NewInt(6)})
	assert.ErrorIs(t, err, pkgerrors.ErrValueMismatch)

	f.locker.On("Lock", ctx, mock.Anything).Return(nil, pkgerrors.ErrCustodyOverflow)
	_, err = f.fwd.TokenTransfer(ctx, TokenTransferRequest{Amount: uint256.NewInt(5), Value: uint256.NewInt(5)})
	assert.ErrorIs(t, err, pkgerrors.ErrCustodyOverflow)

	assert.Empty(t, f.events.Events())
}

func TestForwarder_CrossChainTransfer(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	req := CrossChainTransferRequest{
		RequestID:     9,
		Amount:        uint256.NewInt(5),
		Receiver:      receiver,
		RemoteAddress: remote,
		Proof:         []byte{0x01},
		PublicInputs:  []byte{0x02},
	}

	_, err := f.fwd.CrossChainTransfer(ctx, trustedSender, req)
	assert.ErrorIs(t, err, pkgerrors.ErrNotOwner)
	f.releaser.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)

	f.releaser.On("Release", ctx, bridge.ReleaseRequest{
		RequestID:    9,
		Amount:       uint256.NewInt(5),
		Recipient:    receiver,
		Proof:        []byte{0x01},
		PublicInputs: []byte{0x02},
	}).Return(&bridge.Receipt{RequestID: 9}, nil).Once()

	_, err = f.fwd.CrossChainTransfer(ctx, relayOwner, req)
	require.NoError(t, err)
	f.releaser.AssertExpectations(t)
	assert.Len(t, f.events.Events(), 1)
}

func TestForwarder_CrossChainTransferPropagatesLedgerErrors(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	f.releaser.On("Release", ctx, mock.Anything).Return(nil, pkgerrors.ErrProofAlreadyUsed)

	_, err := f.fwd.CrossChainTransfer(ctx, relayOwner, CrossChainTransferRequest{RequestID: 1, Amount: uint256.NewInt(5)})
	assert.ErrorIs(t, err, pkgerrors.ErrProofAlreadyUsed)
	assert.Empty(t, f.events.Events())
}

func TestForwarder_BridgeTransfer(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	req := BridgeTransferRequest{
		RequestID:     11,
		Amount:        uint256.NewInt(5),
		Receiver:      receiver,
		RemoteAddress: remote,
		Signature:     f.sign(t, 11, 5),
	}
	payout, err := f.fwd.BridgeTransfer(ctx, trustedSender, req)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutBridgeTransfer, payout.Source)
	assert.Equal(t, receiver, payout.Recipient)

	payouts := f.disburser.Payouts()
	require.Len(t, payouts, 1)
	assert.Equal(t, uint64(5), payouts[0].Amount.Uint64())
	assert.Len(t, f.events.Events(), 1)

	_, err = f.fwd.BridgeTransfer(ctx, trustedSender, req)
	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateRequest)
	assert.Len(t, f.disburser.Payouts(), 1)

	f.locker.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything)
	f.releaser.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestForwarder_BridgeTransferPaidOnceAcrossRestart(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	req := BridgeTransferRequest{
		RequestID:     21,
		Amount:        uint256.NewInt(5),
		Receiver:      receiver,
		RemoteAddress: remote,
		Signature:     f.sign(t, 21, 5),
	}
	_, err := f.fwd.BridgeTransfer(ctx, trustedSender, req)
	require.NoError(t, err)

	// A fresh forwarder has an empty paid set but shares the payout record.
	restarted, err := NewForwarder(f.fwd.cfg, Deps{
		Locker:    f.locker,
		Releaser:  f.releaser,
		Disburser: f.disburser,
	})
	require.NoError(t, err)

	_, err = restarted.BridgeTransfer(ctx, trustedSender, req)
	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateRequest)
	assert.Len(t, f.disburser.Payouts(), 1)

	_, err = restarted.BridgeTransfer(ctx, trustedSender, req)
	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateRequest)
}

func TestForwarder_BridgeTransferRejections(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	valid := f.sign(t, 1, 5)
	tampered := append([]byte(nil), valid...)
	tampered[10] ^= 0xff

	digest, err := TransferDigest(1, uint256.NewInt(5), receiver, remote)
	require.NoError(t, err)
	foreign, err := crypto.Sign(digest[:], other)
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  common.Address
		amount  uint64
		sig     []byte
		wantErr error
	}{
		{"untrusted sender", relayOwner, 5, valid, pkgerrors.ErrInvalidSender},
		{"out of range", trustedSender, 5000, valid, pkgerrors.ErrAmountOutOfRange},
		{"short signature", trustedSender, 5, valid[:64], pkgerrors.ErrInvalidSignature},
		{"tampered signature", trustedSender, 5, tampered, pkgerrors.ErrInvalidSignature},
		{"foreign signer", trustedSender, 5, foreign, pkgerrors.ErrInvalidSignature},
		{"signed different amount", trustedSender, 6, valid, pkgerrors.ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.fwd.BridgeTransfer(ctx, tt.caller, BridgeTransferRequest{
				RequestID:     1,
				Amount:        uint256.NewInt(tt.amount),
				Receiver:      receiver,
				RemoteAddress: remote,
				Signature:     tt.sig,
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, f.disburser.Payouts())
}

func TestForwarder_BridgeTransferPayoutFailure(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	f.disburser.Fail(errors.New("hot wallet empty"))

	req := BridgeTransferRequest{
		RequestID: 3, Amount: uint256.NewInt(5), Receiver: receiver, RemoteAddress: remote,
		Signature: f.sign(t, 3, 5),
	}
	_, err := f.fwd.BridgeTransfer(ctx, trustedSender, req)
	assert.ErrorIs(t, err, pkgerrors.ErrTransferFailed)

	// A failed payout does not consume the request ID.
	f.disburser.Fail(nil)
	_, err = f.fwd.BridgeTransfer(ctx, trustedSender, req)
	assert.NoError(t, err)
}

func TestRecoverSigner_AcceptsLegacyV(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := crypto.Keccak256Hash([]byte("transfer"))
	sig, err := crypto.Sign(digest[:], key)
	require.NoError(t, err)

	sig[64] += 27
	addr, ok := RecoverSigner(digest, sig)
	require.True(t, ok)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), addr)

	sig[64] = 5
	_, ok = RecoverSigner(digest, sig)
	assert.False(t, ok)
}
