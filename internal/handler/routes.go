package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"zkbridge/internal/metrics"
	"zkbridge/internal/middleware"
	"zkbridge/pkg/logger"
)

// Routes collects everything the HTTP surface is built from. Idempotency,
// RateLimiter, Events and Metrics are optional.
type Routes struct {
	Bridge      *BridgeHandler
	Relay       *RelayHandler
	System      *SystemHandler
	Events      http.Handler
	Metrics     *metrics.Metrics
	Auth        *middleware.AuthMiddleware
	OTP         func(http.Handler) http.Handler
	Idempotency *middleware.IdempotencyMiddleware
	RateLimiter *middleware.RateLimiter
	Logger      logger.Logger
	BodyLimit   int64
}

// NewRouter builds the service router.
func NewRouter(rt Routes) *mux.Router {
	r := mux.NewRouter()

	// Global middleware
	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(rt.Logger))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(rt.Logger).Log)
	r.Use(rt.Metrics.Middleware)
	if rt.BodyLimit > 0 {
		r.Use(middleware.BodyLimit(rt.BodyLimit))
	}

	r.HandleFunc("/health", rt.System.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", rt.System.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", rt.Metrics.Handler()).Methods(http.MethodGet)
	if rt.Events != nil {
		r.Handle("/ws/events", rt.Events).Methods(http.MethodGet)
	}

	var limit, idem, otp func(http.Handler) http.Handler
	limit, idem, otp = passthrough, passthrough, passthrough
	if rt.RateLimiter != nil {
		limit = rt.RateLimiter.Limit
	}
	if rt.Idempotency != nil {
		idem = rt.Idempotency.Require
	}
	if rt.OTP != nil {
		otp = rt.OTP
	}
	auth := rt.Auth.Authenticate

	api := r.PathPrefix("/api/v1").Subrouter()

	b := api.PathPrefix("/bridge").Subrouter()
	b.Handle("/lock", chain(rt.Bridge.Lock, limit, idem)).Methods(http.MethodPost)
	b.Handle("/release", chain(rt.Bridge.Release, limit, idem)).Methods(http.MethodPost)
	b.Handle("/withdraw", chain(rt.Bridge.EmergencyWithdraw, auth, otp, limit, idem)).Methods(http.MethodPost)
	b.HandleFunc("/custody", rt.Bridge.Custody).Methods(http.MethodGet)
	b.HandleFunc("/locks/{remote}", rt.Bridge.LockedFor).Methods(http.MethodGet)
	b.HandleFunc("/proofs/{hash}", rt.Bridge.ProofStatus).Methods(http.MethodGet)
	b.Handle("/audit", chain(rt.Bridge.Audit, auth)).Methods(http.MethodGet)

	rl := api.PathPrefix("/relay").Subrouter()
	rl.Handle("/transfer", chain(rt.Relay.Transfer, limit, idem)).Methods(http.MethodPost)
	rl.Handle("/cross-chain", chain(rt.Relay.CrossChainTransfer, auth, limit, idem)).Methods(http.MethodPost)
	rl.Handle("/bridge-transfer", chain(rt.Relay.BridgeTransfer, auth, limit, idem)).Methods(http.MethodPost)

	return r
}

func passthrough(next http.Handler) http.Handler { return next }

// chain applies mws outermost first.
func chain(h http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
	var out http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}
