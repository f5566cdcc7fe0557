package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"zkbridge/internal/bridge"
	"zkbridge/internal/domain"
	"zkbridge/internal/middleware"
	"zkbridge/internal/repository/postgres"
	"zkbridge/pkg/logger"
	"zkbridge/pkg/validator"
)

// AuditTrail exposes the persisted hash-chained ledger entries.
type AuditTrail interface {
	Entries(ctx context.Context, limit int) ([]postgres.LedgerEntry, error)
	VerifyChain(ctx context.Context) (bool, error)
}

// BridgeHandler serves the custodial ledger endpoints.
type BridgeHandler struct {
	ledger    *bridge.Ledger
	audit     AuditTrail
	validator *validator.Validator
	logger    logger.Logger
}

// NewBridgeHandler creates a BridgeHandler. audit may be nil when the ledger
// is not backed by Postgres.
func NewBridgeHandler(ledger *bridge.Ledger, audit AuditTrail, val *validator.Validator, log logger.Logger) *BridgeHandler {
	return &BridgeHandler{
		ledger:    ledger,
		audit:     audit,
		validator: val,
		logger:    log,
	}
}

type lockRequest struct {
	RequestID     uint64          `json:"request_id"`
	Amount        decimal.Decimal `json:"amount" validate:"gte=0"`
	Value         decimal.Decimal `json:"value" validate:"gte=0"`
	RemoteAddress string          `json:"remote_address" validate:"required,hexbytes"`
}

type releaseRequest struct {
	RequestID    uint64          `json:"request_id"`
	Amount       decimal.Decimal `json:"amount" validate:"gte=0"`
	Recipient    string          `json:"recipient" validate:"required,eth_addr"`
	Proof        string          `json:"proof" validate:"required,hexbytes"`
	PublicInputs string          `json:"public_inputs" validate:"required,hexbytes"`
}

type withdrawRequest struct {
	RequestID uint64          `json:"request_id"`
	Amount    decimal.Decimal `json:"amount" validate:"gte=0"`
}

type receiptResponse struct {
	RequestID   uint64       `json:"request_id"`
	Amount      string       `json:"amount"`
	TotalLocked string       `json:"total_locked,omitempty"`
	ProofHash   *common.Hash `json:"proof_hash,omitempty"`
	PayoutID    string       `json:"payout_id,omitempty"`
}

func toReceiptResponse(r *bridge.Receipt) receiptResponse {
	resp := receiptResponse{
		RequestID: r.RequestID,
		Amount:    r.Amount.Dec(),
		ProofHash: r.ProofHash,
	}
	if r.TotalLocked != nil {
		resp.TotalLocked = r.TotalLocked.Dec()
	}
	if r.PayoutID != nil {
		resp.PayoutID = r.PayoutID.String()
	}
	return resp
}

// Lock takes custody of value for a remote address.
func (h *BridgeHandler) Lock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	vals, ok := amounts(w, req.Amount, req.Value)
	if !ok {
		return
	}
	remote, err := domain.ParseRemoteAddress(req.RemoteAddress)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid remote address")
		return
	}

	receipt, err := h.ledger.Lock(r.Context(), bridge.LockRequest{
		RequestID:     req.RequestID,
		Amount:        vals[0],
		Value:         vals[1],
		RemoteAddress: remote,
	})
	if err != nil {
		h.logger.Warn("Lock rejected", map[string]interface{}{
			"request_id": req.RequestID,
			"error":      err.Error(),
		})
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, toReceiptResponse(receipt))
}

// Release pays out against a zero-knowledge proof bundle.
func (h *BridgeHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	vals, ok := amounts(w, req.Amount)
	if !ok {
		return
	}
	proofBlob, err := hexutil.Decode(req.Proof)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid proof encoding")
		return
	}
	inputs, err := hexutil.Decode(req.PublicInputs)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid public inputs encoding")
		return
	}

	receipt, err := h.ledger.Release(r.Context(), bridge.ReleaseRequest{
		RequestID:    req.RequestID,
		Amount:       vals[0],
		Recipient:    common.HexToAddress(req.Recipient),
		Proof:        proofBlob,
		PublicInputs: inputs,
	})
	if err != nil {
		h.logger.Warn("Release rejected", map[string]interface{}{
			"request_id": req.RequestID,
			"error":      err.Error(),
		})
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

// EmergencyWithdraw lets the authenticated owner drain custody.
func (h *BridgeHandler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AddressFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req withdrawRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	vals, ok := amounts(w, req.Amount)
	if !ok {
		return
	}

	receipt, err := h.ledger.EmergencyWithdraw(r.Context(), caller, req.RequestID, vals[0])
	if err != nil {
		h.logger.Warn("Emergency withdraw rejected", map[string]interface{}{
			"request_id": req.RequestID,
			"caller":     caller.Hex(),
			"error":      err.Error(),
		})
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

// Custody reports the total value held.
func (h *BridgeHandler) Custody(w http.ResponseWriter, r *http.Request) {
	min, max := h.ledger.Bounds()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total_locked": h.ledger.TotalLocked().Dec(),
		"min_amount":   min.Dec(),
		"max_amount":   max.Dec(),
		"owner":        h.ledger.Owner().Hex(),
	})
}

// LockedFor reports the most recent lock recorded for a remote address.
func (h *BridgeHandler) LockedFor(w http.ResponseWriter, r *http.Request) {
	remote, err := domain.ParseRemoteAddress(mux.Vars(r)["remote"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid remote address")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"remote_address": remote,
		"locked":         h.ledger.LockedFor(remote).Dec(),
	})
}

// ProofStatus reports whether a proof hash has been consumed.
func (h *BridgeHandler) ProofStatus(w http.ResponseWriter, r *http.Request) {
	raw, err := hexutil.Decode(mux.Vars(r)["hash"])
	if err != nil || len(raw) != common.HashLength {
		respondError(w, http.StatusBadRequest, "Invalid proof hash")
		return
	}
	hash := common.BytesToHash(raw)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"proof_hash": hash,
		"consumed":   h.ledger.IsProofConsumed(hash),
	})
}

// Audit returns the latest ledger entries and whether the hash chain holds.
func (h *BridgeHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		respondError(w, http.StatusNotFound, "Audit trail not available")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	entries, err := h.audit.Entries(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to fetch ledger entries", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to fetch ledger entries")
		return
	}
	resp := map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	}
	valid, err := h.audit.VerifyChain(r.Context())
	switch {
	case errors.Is(err, postgres.ErrChainBroken):
		h.logger.Error("Ledger chain broken", map[string]interface{}{"error": err.Error()})
		resp["chain_error"] = err.Error()
	case err != nil:
		h.logger.Error("Ledger chain verification failed", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to verify ledger chain")
		return
	}
	resp["chain_valid"] = valid

	respondJSON(w, http.StatusOK, resp)
}
