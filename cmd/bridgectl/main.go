// Command bridgectl is the operator tool for the bridge service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"zkbridge/pkg/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "bridgectl",
	Short:         "Operate the custodial bridge",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(otpSecretCmd)
	rootCmd.AddCommand(proofCmd)
	rootCmd.AddCommand(signTransferCmd)
	rootCmd.AddCommand(verifyChainCmd)
	rootCmd.AddCommand(payoutsCmd)
	rootCmd.AddCommand(watchCmd)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openDB() (*sqlx.DB, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return sqlx.Connect("postgres", cfg.Database.URL)
}

func openRedis(ctx context.Context) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}
