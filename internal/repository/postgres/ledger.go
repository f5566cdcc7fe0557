package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"zkbridge/internal/bridge"
	"zkbridge/internal/domain"
	pkgerrors "zkbridge/pkg/errors"
)

const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ErrChainBroken reports an audit entry whose hash or link does not verify.
var ErrChainBroken = errors.New("ledger chain broken")

// pq error code for unique_violation.
const uniqueViolation = "23505"

// LedgerEntry is one row of the hash-chained audit log.
type LedgerEntry struct {
	Seq           int64           `db:"seq" json:"seq"`
	ID            uuid.UUID       `db:"id" json:"id"`
	Operation     string          `db:"operation" json:"operation"`
	RequestID     string          `db:"request_id" json:"request_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	TotalLocked   decimal.Decimal `db:"total_locked" json:"total_locked"`
	RemoteAddress []byte          `db:"remote_address" json:"-"`
	Recipient     string          `db:"recipient" json:"recipient,omitempty"`
	ProofHash     string          `db:"proof_hash" json:"proof_hash,omitempty"`
	PreviousHash  string          `db:"previous_hash" json:"previous_hash"`
	Hash          string          `db:"hash" json:"hash"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// EntryHash chains e to its predecessor through e.PreviousHash.
func EntryHash(e *LedgerEntry) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%x:%s:%s:%s:%d",
		e.ID.String(), e.Operation, e.RequestID, e.Amount.String(), e.TotalLocked.String(),
		e.RemoteAddress, e.Recipient, e.ProofHash, e.PreviousHash, e.CreatedAt.UnixNano())
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// LedgerStore persists bridge ledger transitions. Each Commit runs in one
// serializable transaction together with its audit entry.
type LedgerStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewLedgerStore(db *sqlx.DB) *LedgerStore {
	return &LedgerStore{db: db, now: time.Now}
}

func (s *LedgerStore) Load(ctx context.Context) (*bridge.Snapshot, error) {
	snap := &bridge.Snapshot{}

	var total decimal.Decimal
	err := s.db.GetContext(ctx, &total, `SELECT total_locked FROM ledger_state WHERE id = 1`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		total = decimal.Zero
	case err != nil:
		return nil, pkgerrors.Wrap(err, "failed to read ledger state")
	}
	if snap.TotalLocked, err = fromNumeric(total); err != nil {
		return nil, err
	}

	var locks []struct {
		RemoteAddress []byte          `db:"remote_address"`
		Amount        decimal.Decimal `db:"amount"`
	}
	if err := s.db.SelectContext(ctx, &locks, `SELECT remote_address, amount FROM counterparty_locks`); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read counterparty locks")
	}
	for _, l := range locks {
		amount, err := fromNumeric(l.Amount)
		if err != nil {
			return nil, err
		}
		snap.Locks = append(snap.Locks, bridge.LockRecord{RemoteAddress: domain.RemoteAddress(l.RemoteAddress), Amount: amount})
	}

	var hashes []string
	if err := s.db.SelectContext(ctx, &hashes, `SELECT proof_hash FROM consumed_proofs`); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read consumed proofs")
	}
	for _, h := range hashes {
		snap.ConsumedProofs = append(snap.ConsumedProofs, common.HexToHash(h))
	}
	return snap, nil
}

func (s *LedgerStore) Commit(ctx context.Context, m *bridge.Mutation) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	requestID := strconv.FormatUint(m.RequestID, 10)
	total := toNumeric(m.TotalLocked)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_state (id, total_locked, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET total_locked = EXCLUDED.total_locked, updated_at = NOW()
	`, total); err != nil {
		return pkgerrors.Wrap(err, "failed to update ledger state")
	}

	if m.Operation == bridge.OpLock {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO counterparty_locks (remote_address, amount, request_id, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (remote_address) DO UPDATE
			SET amount = EXCLUDED.amount, request_id = EXCLUDED.request_id, updated_at = NOW()
		`, []byte(m.RemoteAddress), toNumeric(m.Amount), requestID); err != nil {
			return pkgerrors.Wrap(err, "failed to record counterparty lock")
		}
	}

	if m.ProofHash != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO consumed_proofs (proof_hash, request_id, burned, consumed_at)
			VALUES ($1, $2, $3, NOW())
		`, m.ProofHash.Hex(), requestID, m.Operation == bridge.OpBurn)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return pkgerrors.ErrProofAlreadyUsed
		}
		if err != nil {
			return pkgerrors.Wrap(err, "failed to record consumed proof")
		}
	}

	if err := s.appendEntry(ctx, tx, m); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *LedgerStore) appendEntry(ctx context.Context, tx *sqlx.Tx, m *bridge.Mutation) error {
	// Lock the chain head so entries are appended strictly in order.
	var previousHash string
	err := tx.GetContext(ctx, &previousHash, `SELECT hash FROM ledger_entries ORDER BY seq DESC LIMIT 1 FOR UPDATE`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		previousHash = genesisHash
	case err != nil:
		return pkgerrors.Wrap(err, "failed to read chain head")
	}

	entry := &LedgerEntry{
		ID:            uuid.New(),
		Operation:     string(m.Operation),
		RequestID:     strconv.FormatUint(m.RequestID, 10),
		Amount:        toNumeric(m.Amount),
		TotalLocked:   toNumeric(m.TotalLocked),
		RemoteAddress: []byte(m.RemoteAddress),
		PreviousHash:  previousHash,
		CreatedAt:     s.now().UTC().Truncate(time.Microsecond),
	}
	if entry.RemoteAddress == nil {
		entry.RemoteAddress = []byte{}
	}
	if m.Recipient != nil {
		entry.Recipient = m.Recipient.Hex()
	}
	if m.ProofHash != nil {
		entry.ProofHash = m.ProofHash.Hex()
	}
	entry.Hash = EntryHash(entry)

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO ledger_entries (
			id, operation, request_id, amount, total_locked, remote_address,
			recipient, proof_hash, previous_hash, hash, created_at
		) VALUES (
			:id, :operation, :request_id, :amount, :total_locked, :remote_address,
			:recipient, :proof_hash, :previous_hash, :hash, :created_at
		)
	`, entry)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to insert ledger entry")
	}
	return nil
}

// Entries returns up to limit audit entries, newest first.
func (s *LedgerStore) Entries(ctx context.Context, limit int) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := s.db.SelectContext(ctx, &entries, `SELECT * FROM ledger_entries ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read ledger")
	}
	return entries, nil
}

// VerifyChain recomputes every entry hash in order.
// Returns true if valid, false and the first break if invalid.
func (s *LedgerStore) VerifyChain(ctx context.Context) (bool, error) {
	var entries []LedgerEntry
	if err := s.db.SelectContext(ctx, &entries, `SELECT * FROM ledger_entries ORDER BY seq ASC`); err != nil {
		return false, pkgerrors.Wrap(err, "failed to read ledger")
	}
	return verifyEntries(entries)
}

func verifyEntries(entries []LedgerEntry) (bool, error) {
	prevHash := genesisHash
	for i := range entries {
		entry := &entries[i]
		if entry.PreviousHash != prevHash {
			return false, fmt.Errorf("%w: link at index %d: expected prev_hash %s, got %s", ErrChainBroken, i, prevHash, entry.PreviousHash)
		}
		if calc := EntryHash(entry); entry.Hash != calc {
			return false, fmt.Errorf("%w: hash mismatch at index %d: expected %s, got %s", ErrChainBroken, i, calc, entry.Hash)
		}
		prevHash = entry.Hash
	}
	return true, nil
}
