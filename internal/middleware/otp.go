package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// OTPHeader carries the current TOTP code for privileged requests.
const OTPHeader = "X-OTP-Code"

// RequireOTP rejects requests whose X-OTP-Code does not validate against
// secret. An empty secret disables the check.
func RequireOTP(secret string) func(http.Handler) http.Handler {
	return requireOTPAt(secret, time.Now)
}

func requireOTPAt(secret string, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if strings.TrimSpace(secret) == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := strings.TrimSpace(r.Header.Get(OTPHeader))
			if code == "" {
				jsonError(w, http.StatusUnauthorized, "One-time code required")
				return
			}
			valid, err := totp.ValidateCustom(code, secret, now().UTC(), totp.ValidateOpts{
				Period: 30,
				Skew:   1,
				Digits: 6,
			})
			if err != nil || !valid {
				jsonError(w, http.StatusUnauthorized, "Invalid one-time code")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
