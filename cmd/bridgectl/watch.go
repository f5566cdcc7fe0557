package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"zkbridge/internal/domain"
	"zkbridge/internal/events"
)

var watchChannel string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream bridge events from Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := openRedis(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		out := cmd.OutOrStdout()
		return events.Subscribe(ctx, client, watchChannel, func(e domain.Event) {
			_ = printJSON(out, e)
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchChannel, "channel", events.DefaultChannel, "Redis channel")
}
