package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"zkbridge/internal/domain"
	pkgerrors "zkbridge/pkg/errors"
)

// Payout statuses.
const (
	PayoutPending   = "pending"
	PayoutExecuted  = "executed"
	PayoutCancelled = "cancelled"
)

// Outbox tables.
const (
	payoutsTable      = "payouts"
	relayPayoutsTable = "relay_payouts"
)

// PayoutOutbox records outbound transfers for an external signer to execute.
type PayoutOutbox struct {
	db    *sqlx.DB
	table string
}

// NewPayoutOutbox returns the outbox for ledger releases and withdrawals.
func NewPayoutOutbox(db *sqlx.DB) *PayoutOutbox {
	return &PayoutOutbox{db: db, table: payoutsTable}
}

// NewRelayPayoutOutbox returns the outbox for trusted-sender bridge
// transfers. A request ID can be queued there once; a second attempt fails
// with ErrDuplicateRequest, across restarts.
func NewRelayPayoutOutbox(db *sqlx.DB) *PayoutOutbox {
	return &PayoutOutbox{db: db, table: relayPayoutsTable}
}

type payoutRow struct {
	ID         uuid.UUID       `db:"id"`
	RequestID  string          `db:"request_id"`
	Recipient  string          `db:"recipient"`
	Amount     decimal.Decimal `db:"amount"`
	Source     string          `db:"source"`
	Status     string          `db:"status"`
	CreatedAt  time.Time       `db:"created_at"`
	ExecutedAt *time.Time      `db:"executed_at"`
}

func (o *PayoutOutbox) Disburse(ctx context.Context, p domain.Payout) error {
	_, err := o.db.NamedExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, request_id, recipient, amount, source, status, created_at)
		VALUES (:id, :request_id, :recipient, :amount, :source, :status, :created_at)
	`, o.table), &payoutRow{
		ID:        p.ID,
		RequestID: strconv.FormatUint(p.RequestID, 10),
		Recipient: p.Recipient.Hex(),
		Amount:    toNumeric(p.Amount),
		Source:    string(p.Source),
		Status:    PayoutPending,
		CreatedAt: p.CreatedAt.UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && o.table == relayPayoutsTable {
			return pkgerrors.ErrDuplicateRequest
		}
		return pkgerrors.Wrap(err, "failed to queue payout")
	}
	return nil
}

// Cancel withdraws a payout that has not been executed yet.
func (o *PayoutOutbox) Cancel(ctx context.Context, id uuid.UUID) error {
	return o.transition(ctx, id, fmt.Sprintf(`
		UPDATE %s SET status = $1 WHERE id = $2 AND status = $3
	`, o.table), PayoutCancelled)
}

// Pending returns up to limit queued payouts, oldest first.
func (o *PayoutOutbox) Pending(ctx context.Context, limit int) ([]domain.Payout, error) {
	var rows []payoutRow
	err := o.db.SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT * FROM %s WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`, o.table), PayoutPending, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read payouts")
	}

	out := make([]domain.Payout, 0, len(rows))
	for _, r := range rows {
		requestID, err := strconv.ParseUint(r.RequestID, 10, 64)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "invalid payout request id")
		}
		amount, err := fromNumeric(r.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Payout{
			ID:        r.ID,
			RequestID: requestID,
			Recipient: common.HexToAddress(r.Recipient),
			Amount:    amount,
			Source:    domain.PayoutSource(r.Source),
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// CountPending returns the number of payouts awaiting execution.
func (o *PayoutOutbox) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := o.db.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status = $1`, o.table), PayoutPending); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to count payouts")
	}
	return n, nil
}

// MarkExecuted records that the signer broadcast the payout.
func (o *PayoutOutbox) MarkExecuted(ctx context.Context, id uuid.UUID) error {
	return o.transition(ctx, id, fmt.Sprintf(`
		UPDATE %s SET status = $1, executed_at = NOW() WHERE id = $2 AND status = $3
	`, o.table), PayoutExecuted)
}

// transition moves a pending payout to status.
func (o *PayoutOutbox) transition(ctx context.Context, id uuid.UUID, query, status string) error {
	res, err := o.db.ExecContext(ctx, query, status, id, PayoutPending)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to update payout")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.ErrPayoutNotPending
	}
	return nil
}
