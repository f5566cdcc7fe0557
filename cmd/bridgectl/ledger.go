package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"zkbridge/internal/repository/postgres"
)

var (
	payoutsLimit int
	payoutsRelay bool
)

// outbox selects the ledger outbox, or the relay outbox with --relay.
func outbox(db *sqlx.DB) *postgres.PayoutOutbox {
	if payoutsRelay {
		return postgres.NewRelayPayoutOutbox(db)
	}
	return postgres.NewPayoutOutbox(db)
}

var verifyChainCmd = &cobra.Command{
	Use:   "verify-chain",
	Short: "Recompute the ledger audit hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ok, err := postgres.NewLedgerStore(db).VerifyChain(cmd.Context())
		if err != nil && !errors.Is(err, postgres.ErrChainBroken) {
			return err
		}
		out := map[string]interface{}{"chain_valid": ok}
		if err != nil {
			out["error"] = err.Error()
		}
		if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
			return perr
		}
		if !ok {
			return errors.New("ledger chain does not verify")
		}
		return nil
	},
}

var payoutsCmd = &cobra.Command{
	Use:   "payouts",
	Short: "Inspect the payout outbox",
}

var payoutsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List payouts awaiting execution",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		payouts, err := outbox(db).Pending(cmd.Context(), payoutsLimit)
		if err != nil {
			return err
		}
		rows := make([]map[string]interface{}, 0, len(payouts))
		for _, p := range payouts {
			rows = append(rows, map[string]interface{}{
				"id":         p.ID,
				"request_id": p.RequestID,
				"recipient":  p.Recipient.Hex(),
				"amount":     p.Amount.Dec(),
				"source":     p.Source,
				"created_at": p.CreatedAt,
			})
		}
		return printJSON(cmd.OutOrStdout(), rows)
	},
}

var payoutsExecutedCmd = &cobra.Command{
	Use:   "mark-executed <payout-id>",
	Short: "Mark a pending payout as executed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid payout ID: %w", err)
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := outbox(db).MarkExecuted(cmd.Context(), id); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"executed": id})
	},
}

func init() {
	payoutsPendingCmd.Flags().IntVar(&payoutsLimit, "limit", 100, "maximum rows")
	payoutsCmd.PersistentFlags().BoolVar(&payoutsRelay, "relay", false, "use the bridge-transfer outbox")
	payoutsCmd.AddCommand(payoutsPendingCmd, payoutsExecutedCmd)
}
