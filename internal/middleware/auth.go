// Package middleware hosts authentication, logging, and rate limiting middleware.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey avoids collisions when storing values in request contexts.
type contextKey string

const (
	ctxAddressKey contextKey = "address"
	ctxTokenIDKey contextKey = "token_id"
)

// TokenBlacklist reports revoked token IDs.
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
}

// AuthMiddleware validates bearer JWTs and injects the caller address into the context.
type AuthMiddleware struct {
	jwtSecret string
	blacklist TokenBlacklist
}

// NewAuthMiddleware constructs an AuthMiddleware with the given secret. The
// blacklist may be nil.
func NewAuthMiddleware(secret string, blacklist TokenBlacklist) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: secret, blacklist: blacklist}
}

// Authenticate enforces bearer auth and populates the caller on the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if strings.TrimSpace(authHeader) == "" {
			jsonError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			jsonError(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(m.jwtSecret), nil
		}, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			if errors.Is(err, jwt.ErrTokenExpired) {
				jsonError(w, http.StatusUnauthorized, "Token expired")
				return
			}
			jsonError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		addrStr, ok := claims["address"].(string)
		if !ok || !common.IsHexAddress(addrStr) {
			jsonError(w, http.StatusUnauthorized, "Invalid address in token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxAddressKey, common.HexToAddress(addrStr))
		if jti, ok := claims["jti"].(string); ok && jti != "" {
			if m.blacklist != nil {
				revoked, err := m.blacklist.IsBlacklisted(r.Context(), jti)
				if err != nil {
					jsonError(w, http.StatusServiceUnavailable, "Unable to verify token")
					return
				}
				if revoked {
					jsonError(w, http.StatusUnauthorized, "Token revoked")
					return
				}
			}
			ctx = context.WithValue(ctx, ctxTokenIDKey, jti)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken signs an HS256 token naming address as the caller.
func IssueToken(secret string, address common.Address, ttl time.Duration) (string, string, error) {
	jti := uuid.NewString()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"address": address.Hex(),
		"jti":     jti,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// AddressFromContext returns the authenticated caller address from context.
func AddressFromContext(ctx context.Context) (common.Address, bool) {
	v := ctx.Value(ctxAddressKey)
	addr, ok := v.(common.Address)
	return addr, ok
}

// TokenIDFromContext returns the jti of the authenticating token.
func TokenIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxTokenIDKey)
	s, ok := v.(string)
	return s, ok
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := os.Getenv("CORS_ALLOWED_ORIGINS")
		origin := r.Header.Get("Origin")
		if strings.TrimSpace(allowed) != "" {
			// Restrict to configured origins
			origins := strings.Split(allowed, ",")
			ok := false
			for _, o := range origins {
				if strings.EqualFold(strings.TrimSpace(o), origin) {
					ok = true
					break
				}
			}
			if ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		} else {
			// Development default: reflect origin if present, fallback to *
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, Idempotency-Key, X-OTP-Code")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
