// Package handler provides HTTP handlers for the bridge service.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	pkgerrors "zkbridge/pkg/errors"
	"zkbridge/pkg/logger"
	"zkbridge/pkg/validator"
)

// maxBodyBytes caps JSON request bodies; proof bundles are well below it.
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps a domain error onto its HTTP status. Server-side failures
// are logged and answered with a generic message.
func respondErr(w http.ResponseWriter, log logger.Logger, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		log.Error("Request failed", map[string]interface{}{"error": err.Error()})
		respondError(w, status, "Internal server error")
	case http.StatusBadGateway:
		log.Error("Value transfer failed", map[string]interface{}{"error": err.Error()})
		respondError(w, status, "Value transfer failed")
	default:
		respondError(w, status, err.Error())
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrAmountOutOfRange),
		errors.Is(err, pkgerrors.ErrValueMismatch),
		errors.Is(err, pkgerrors.ErrInvalidProof),
		errors.Is(err, pkgerrors.ErrInsufficientCustody),
		errors.Is(err, pkgerrors.ErrCustodyOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pkgerrors.ErrProofAlreadyUsed),
		errors.Is(err, pkgerrors.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrNotOwner),
		errors.Is(err, pkgerrors.ErrInvalidSender),
		errors.Is(err, pkgerrors.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrInvalidAmount),
		errors.Is(err, pkgerrors.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON body strictly and runs struct validation. It
// writes the 400 response itself and reports whether the caller may proceed.
func decodeBody(w http.ResponseWriter, r *http.Request, val *validator.Validator, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			respondError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if errs := val.ValidateStructured(dst); errs != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "validation failed",
			"fields": errs,
		})
		return false
	}
	return true
}

func amounts(w http.ResponseWriter, ds ...decimal.Decimal) ([]*uint256.Int, bool) {
	out := make([]*uint256.Int, len(ds))
	for i, d := range ds {
		z, err := validator.AmountFromDecimal(d)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		out[i] = z
	}
	return out, true
}
