package bridge

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkbridge/internal/domain"
	pkgerrors "zkbridge/pkg/errors"
)

func TestLedgerAccount_CreditDebit(t *testing.T) {
	a := NewLedgerAccount()
	require.NoError(t, a.Credit(uint256.NewInt(7)))
	require.NoError(t, a.Credit(uint256.NewInt(3)))
	assert.Equal(t, uint64(10), a.TotalLocked().Uint64())

	assert.ErrorIs(t, a.Debit(uint256.NewInt(11)), pkgerrors.ErrInsufficientCustody)
	assert.Equal(t, uint64(10), a.TotalLocked().Uint64())

	require.NoError(t, a.Debit(uint256.NewInt(10)))
	assert.True(t, a.TotalLocked().IsZero())
}

func TestLedgerAccount_CreditOverflow(t *testing.T) {
	a := NewLedgerAccount()
	max := new(uint256.Int).SetAllOne()
	require.NoError(t, a.Credit(max))
	assert.ErrorIs(t, a.Credit(uint256.NewInt(1)), pkgerrors.ErrCustodyOverflow)
	assert.True(t, a.TotalLocked().Eq(max))
}

func TestLedgerAccount_RecordLockOverwrites(t *testing.T) {
	a := NewLedgerAccount()
	remote := domain.RemoteAddress{0x01, 0x02}

	assert.True(t, a.LockedFor(remote).IsZero())
	a.RecordLock(remote, uint256.NewInt(5))
	a.RecordLock(remote, uint256.NewInt(2))
	assert.Equal(t, uint64(2), a.LockedFor(remote).Uint64())
}

func TestLedgerAccount_QueriesReturnCopies(t *testing.T) {
	a := NewLedgerAccount()
	require.NoError(t, a.Credit(uint256.NewInt(5)))
	a.TotalLocked().SetUint64(99)
	assert.Equal(t, uint64(5), a.TotalLocked().Uint64())
}

func TestReplayGuard(t *testing.T) {
	g := NewReplayGuard()
	h := common.HexToHash("0x01")

	assert.False(t, g.Contains(h))
	assert.True(t, g.TryConsume(h))
	assert.False(t, g.TryConsume(h))
	assert.True(t, g.Contains(h))
	assert.Equal(t, 1, g.Len())
}
