package bridge

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkbridge/internal/domain"
	pkgerrors "zkbridge/pkg/errors"
)

func payout(requestID uint64, source domain.PayoutSource) domain.Payout {
	return domain.Payout{ID: uuid.New(), RequestID: requestID, Amount: uint256.NewInt(1), Source: source}
}

func TestMemoryDisburser_BridgeTransfersUniquePerRequest(t *testing.T) {
	d := NewMemoryDisburser()
	ctx := context.Background()

	require.NoError(t, d.Disburse(ctx, payout(1, domain.PayoutRelease)))
	require.NoError(t, d.Disburse(ctx, payout(1, domain.PayoutRelease)))

	first := payout(1, domain.PayoutBridgeTransfer)
	require.NoError(t, d.Disburse(ctx, first))
	assert.ErrorIs(t, d.Disburse(ctx, payout(1, domain.PayoutBridgeTransfer)), pkgerrors.ErrDuplicateRequest)
	assert.Len(t, d.Payouts(), 3)

	require.NoError(t, d.Cancel(ctx, first.ID))
	assert.Len(t, d.Payouts(), 2)
	require.NoError(t, d.Disburse(ctx, payout(1, domain.PayoutBridgeTransfer)))

	assert.Error(t, d.Cancel(ctx, uuid.New()))
}
