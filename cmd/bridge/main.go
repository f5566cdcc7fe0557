// Command bridge runs the custodial bridge HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"zkbridge/internal/bridge"
	"zkbridge/internal/events"
	"zkbridge/internal/handler"
	"zkbridge/internal/metrics"
	"zkbridge/internal/middleware"
	"zkbridge/internal/proof"
	"zkbridge/internal/relay"
	"zkbridge/internal/repository/postgres"
	"zkbridge/internal/scheduler"
	"zkbridge/pkg/config"
	"zkbridge/pkg/logger"
	"zkbridge/pkg/validator"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithOptions("bridge-service", logger.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("Bridge service stopped with error", map[string]interface{}{"error": err.Error()})
	}
	log.Info("Bridge service stopped gracefully", nil)
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	verifier, err := newVerifier(cfg.Bridge)
	if err != nil {
		return err
	}

	// Database is optional; without it the ledger lives in memory.
	var (
		db           *sqlx.DB
		store        bridge.Store
		disburser    bridge.Disburser
		relayPayouts bridge.Disburser
		audit        handler.AuditTrail
		jobs      = scheduler.NewScheduler(log, m)
	)
	if cfg.Database.URL != "" {
		db, err = sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

		ls := postgres.NewLedgerStore(db)
		outbox := postgres.NewPayoutOutbox(db)
		relayOutbox := postgres.NewRelayPayoutOutbox(db)
		store, audit, disburser, relayPayouts = ls, ls, outbox, relayOutbox
		log.Info("Database connected", nil)

		if iv := cfg.Jobs.ChainCheckInterval; iv > 0 {
			jobs.Schedule(&scheduler.Job{Name: "audit-chain", Interval: iv, Run: scheduler.ChainCheck(ls, log, m)})
		}
		if iv := cfg.Jobs.PayoutBacklogInterval; iv > 0 {
			jobs.Schedule(&scheduler.Job{Name: "payout-backlog", Interval: iv, Run: scheduler.PayoutBacklog("ledger", outbox, log, m)})
			jobs.Schedule(&scheduler.Job{Name: "relay-payout-backlog", Interval: iv, Run: scheduler.PayoutBacklog("relay", relayOutbox, log, m)})
		}
	} else {
		log.Warn("DATABASE_URL not set; ledger state will not survive restarts", nil)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		log.Info("Redis connected", nil)
	}

	hub := events.NewHub(log, m)
	defer hub.Close()
	sinks := events.Multi{hub}
	var publisher *events.RedisPublisher
	if redisClient != nil {
		publisher = events.NewRedisPublisher(redisClient, events.DefaultChannel, 1024, log, m)
		sinks = append(sinks, publisher)
	}

	min, max, err := cfg.Bridge.Bounds()
	if err != nil {
		return err
	}
	ledger, err := bridge.NewLedger(ctx, bridge.Config{
		Owner:          cfg.Bridge.OwnerAddress(),
		MinAmount:      min,
		MaxAmount:      max,
		ReplayOrder:    bridge.ReplayOrder(cfg.Bridge.ReplayOrder),
		TransferPolicy: bridge.TransferPolicy(cfg.Bridge.TransferFailurePolicy),
	}, bridge.Deps{
		Verifier:  verifier,
		Store:     store,
		Disburser: disburser,
		Events:    sinks,
		Logger:    log,
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	log.Info("Ledger loaded", map[string]interface{}{
		"total_locked": ledger.TotalLocked().Dec(),
		"verifier":     cfg.Bridge.Verifier,
		"replay_order": cfg.Bridge.ReplayOrder,
	})

	rmin, rmax, err := cfg.RelayBounds()
	if err != nil {
		return err
	}
	relayOwner := cfg.Bridge.OwnerAddress()
	if cfg.Relay.Owner != "" {
		relayOwner = common.HexToAddress(cfg.Relay.Owner)
	}
	fwd, err := relay.NewForwarder(relay.Config{
		Owner:         relayOwner,
		TrustedSender: common.HexToAddress(cfg.Relay.TrustedSender),
		TrustedSigner: common.HexToAddress(cfg.Relay.TrustedSigner),
		MinAmount:     rmin,
		MaxAmount:     rmax,
	}, relay.Deps{
		Locker:    ledger,
		Releaser:  ledger,
		Disburser: relayPayouts,
		Events:    sinks,
		Logger:    log,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	// Redis-backed middleware
	var (
		idem      *middleware.IdempotencyMiddleware
		limiter   *middleware.RateLimiter
		blacklist middleware.TokenBlacklist
	)
	if redisClient != nil {
		idem = middleware.NewIdempotencyMiddleware(redisClient, cfg.Security.IdempotencyTTL, log)
		limiter = middleware.NewRateLimiter(redisClient, cfg.Security.RateLimit, cfg.Security.RateWindow)
		blacklist = middleware.NewRedisTokenBlacklist(redisClient)
	}

	val := validator.New()
	router := handler.NewRouter(handler.Routes{
		Bridge:      handler.NewBridgeHandler(ledger, audit, val, log),
		Relay:       handler.NewRelayHandler(fwd, val, log),
		System:      handler.NewSystemHandler(db, redisClient, log),
		Events:      hub,
		Metrics:     m,
		Auth:        middleware.NewAuthMiddleware(cfg.JWT.Secret, blacklist),
		OTP:         middleware.RequireOTP(cfg.Security.OwnerTOTPSecret),
		Idempotency: idem,
		RateLimiter: limiter,
		Logger:      log,
		BodyLimit:   cfg.Security.BodyLimit,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Bridge service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}
	g.Go(func() error { return jobs.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down bridge service...", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newVerifier(cfg config.BridgeConfig) (proof.Verifier, error) {
	switch cfg.Verifier {
	case config.VerifierGroth16:
		vk, err := proof.LoadVerifyingKey(cfg.VerifyingKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load verifying key: %w", err)
		}
		return proof.NewGroth16Verifier(vk, cfg.BindRecipient)
	default:
		return proof.BindingVerifier{BindRecipient: cfg.BindRecipient}, nil
	}
}
