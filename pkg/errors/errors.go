// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Ledger errors
var (
	ErrAmountOutOfRange    = errors.New("amount out of range")
	ErrInsufficientCustody = errors.New("insufficient custody")
	ErrProofAlreadyUsed    = errors.New("proof already used")
	ErrInvalidProof        = errors.New("invalid proof")
	ErrNotOwner            = errors.New("caller is not the owner")
	ErrValueMismatch       = errors.New("attached value does not match amount")
	ErrCustodyOverflow     = errors.New("custody balance overflow")
	ErrTransferFailed      = errors.New("value transfer failed")
	ErrPayoutNotPending    = errors.New("payout not found or already executed")

	// ErrMalformedProof is reported as an invalid proof.
	ErrMalformedProof = fmt.Errorf("%w: malformed proof structure", ErrInvalidProof)
)

// Relay errors
var (
	ErrInvalidSender    = errors.New("invalid sender")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Request errors
var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrInvalidAmount    = errors.New("amount must be a non-negative integer")
	ErrInvalidAddress   = errors.New("invalid address")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
