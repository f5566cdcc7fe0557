package bridge

import (
	"github.com/holiman/uint256"

	"zkbridge/internal/domain"
	pkgerrors "zkbridge/pkg/errors"
)

// LedgerAccount tracks the custodied total and the last lock recorded per
// remote address. It is not safe for concurrent use; Ledger serializes access.
type LedgerAccount struct {
	total uint256.Int
	locks map[string]uint256.Int
}

func NewLedgerAccount() *LedgerAccount {
	return &LedgerAccount{locks: make(map[string]uint256.Int)}
}

// TotalLocked returns a copy of the custodied total.
func (a *LedgerAccount) TotalLocked() *uint256.Int {
	return a.total.Clone()
}

// LockedFor returns the last amount recorded for remote, or zero.
func (a *LedgerAccount) LockedFor(remote domain.RemoteAddress) *uint256.Int {
	v, ok := a.locks[remote.String()]
	if !ok {
		return new(uint256.Int)
	}
	return v.Clone()
}

// credited returns the total after crediting amount without applying it.
func (a *LedgerAccount) credited(amount *uint256.Int) (*uint256.Int, error) {
	next, overflow := new(uint256.Int).AddOverflow(&a.total, amount)
	if overflow {
		return nil, pkgerrors.ErrCustodyOverflow
	}
	return next, nil
}

// debited returns the total after debiting amount without applying it.
func (a *LedgerAccount) debited(amount *uint256.Int) (*uint256.Int, error) {
	if amount.Gt(&a.total) {
		return nil, pkgerrors.ErrInsufficientCustody
	}
	return new(uint256.Int).Sub(&a.total, amount), nil
}

// Credit adds amount to custody, failing with ErrCustodyOverflow past 2^256-1.
func (a *LedgerAccount) Credit(amount *uint256.Int) error {
	next, err := a.credited(amount)
	if err != nil {
		return err
	}
	a.total = *next
	return nil
}

// Debit removes amount from custody, failing with ErrInsufficientCustody.
func (a *LedgerAccount) Debit(amount *uint256.Int) error {
	next, err := a.debited(amount)
	if err != nil {
		return err
	}
	a.total = *next
	return nil
}

// RecordLock overwrites the entry for remote. Earlier locks from the same
// address are not accumulated.
func (a *LedgerAccount) RecordLock(remote domain.RemoteAddress, amount *uint256.Int) {
	a.locks[remote.String()] = *amount
}
