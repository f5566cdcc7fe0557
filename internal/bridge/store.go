package bridge

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"zkbridge/internal/domain"
)

// Operation names a committed ledger transition.
type Operation string

const (
	OpLock     Operation = "lock"
	OpRelease  Operation = "release"
	OpWithdraw Operation = "withdraw"
	// OpBurn consumes a proof that failed verification without moving value.
	OpBurn Operation = "burn"
)

// Mutation is one ledger transition as it will be persisted. TotalLocked is
// the total after the transition.
type Mutation struct {
	Operation     Operation
	RequestID     uint64
	Amount        *uint256.Int
	TotalLocked   *uint256.Int
	RemoteAddress domain.RemoteAddress
	Recipient     *common.Address
	ProofHash     *common.Hash
}

// LockRecord is a persisted counterparty lock.
type LockRecord struct {
	RemoteAddress domain.RemoteAddress
	Amount        *uint256.Int
}

// Snapshot is the durable ledger state restored at construction.
type Snapshot struct {
	TotalLocked    *uint256.Int
	Locks          []LockRecord
	ConsumedProofs []common.Hash
}

// Store persists ledger transitions. Commit is called with the ledger mutex
// held, so commits arrive in processing order. A failed Commit must leave the
// stored state unchanged.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Commit(ctx context.Context, m *Mutation) error
}

// MemoryStore keeps the committed state in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	snapshot  Snapshot
	mutations []Mutation
	// Err, when set, is returned by Commit instead of applying the mutation.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshot: Snapshot{TotalLocked: new(uint256.Int)}}
}

func (s *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &Snapshot{
		TotalLocked:    s.snapshot.TotalLocked.Clone(),
		Locks:          append([]LockRecord(nil), s.snapshot.Locks...),
		ConsumedProofs: append([]common.Hash(nil), s.snapshot.ConsumedProofs...),
	}
	return out, nil
}

func (s *MemoryStore) Commit(ctx context.Context, m *Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	s.snapshot.TotalLocked = m.TotalLocked.Clone()
	if m.Operation == OpLock {
		s.upsertLock(m.RemoteAddress, m.Amount)
	}
	if m.ProofHash != nil {
		s.snapshot.ConsumedProofs = append(s.snapshot.ConsumedProofs, *m.ProofHash)
	}
	s.mutations = append(s.mutations, *m)
	return nil
}

func (s *MemoryStore) upsertLock(remote domain.RemoteAddress, amount *uint256.Int) {
	for i := range s.snapshot.Locks {
		if s.snapshot.Locks[i].RemoteAddress.String() == remote.String() {
			s.snapshot.Locks[i].Amount = amount.Clone()
			return
		}
	}
	s.snapshot.Locks = append(s.snapshot.Locks, LockRecord{RemoteAddress: remote, Amount: amount.Clone()})
}

// Mutations returns every committed mutation in commit order.
func (s *MemoryStore) Mutations() []Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Mutation(nil), s.mutations...)
}

// SetErr makes subsequent commits fail with err, or succeed again when nil.
func (s *MemoryStore) SetErr(err error) {
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}
