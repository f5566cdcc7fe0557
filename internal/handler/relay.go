package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"zkbridge/internal/domain"
	"zkbridge/internal/middleware"
	"zkbridge/internal/relay"
	"zkbridge/pkg/logger"
	"zkbridge/pkg/validator"
)

// RelayHandler serves the intake relay endpoints.
type RelayHandler struct {
	forwarder *relay.Forwarder
	validator *validator.Validator
	logger    logger.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(forwarder *relay.Forwarder, val *validator.Validator, log logger.Logger) *RelayHandler {
	return &RelayHandler{forwarder: forwarder, validator: val, logger: log}
}

type transferRequest struct {
	RequestID     uint64          `json:"request_id"`
	Amount        decimal.Decimal `json:"amount" validate:"gte=0"`
	Value         decimal.Decimal `json:"value" validate:"gte=0"`
	Receiver      string          `json:"receiver" validate:"required,eth_addr"`
	RemoteAddress string          `json:"remote_address" validate:"required,hexbytes"`
}

type crossChainRequest struct {
	RequestID     uint64          `json:"request_id"`
	Amount        decimal.Decimal `json:"amount" validate:"gte=0"`
	Receiver      string          `json:"receiver" validate:"required,eth_addr"`
	RemoteAddress string          `json:"remote_address" validate:"required,hexbytes"`
	Proof         string          `json:"proof" validate:"required,hexbytes"`
	PublicInputs  string          `json:"public_inputs" validate:"required,hexbytes"`
}

type bridgeTransferRequest struct {
	RequestID     uint64          `json:"request_id"`
	Amount        decimal.Decimal `json:"amount" validate:"gte=0"`
	Receiver      string          `json:"receiver" validate:"required,eth_addr"`
	RemoteAddress string          `json:"remote_address" validate:"required,hexbytes"`
	Signature     string          `json:"signature" validate:"required,hexbytes"`
}

type payoutResponse struct {
	ID        string `json:"id"`
	RequestID uint64 `json:"request_id"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Source    string `json:"source"`
}

// Transfer forwards a deposit to the ledger.
func (h *RelayHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
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

	receipt, err := h.forwarder.TokenTransfer(r.Context(), relay.TokenTransferRequest{
		RequestID:     req.RequestID,
		Amount:        vals[0],
		Value:         vals[1],
		Receiver:      common.HexToAddress(req.Receiver),
		RemoteAddress: remote,
	})
	if err != nil {
		h.logger.Warn("Relay transfer rejected", map[string]interface{}{
			"request_id": req.RequestID,
			"error":      err.Error(),
		})
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, toReceiptResponse(receipt))
}

// CrossChainTransfer passes a release bundle through on behalf of the relay owner.
func (h *RelayHandler) CrossChainTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AddressFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req crossChainRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	vals, ok := amounts(w, req.Amount)
	if !ok {
		return
	}
	remote, err := domain.ParseRemoteAddress(req.RemoteAddress)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid remote address")
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

	receipt, err := h.forwarder.CrossChainTransfer(r.Context(), caller, relay.CrossChainTransferRequest{
		RequestID:     req.RequestID,
		Amount:        vals[0],
		Receiver:      common.HexToAddress(req.Receiver),
		RemoteAddress: remote,
		Proof:         proofBlob,
		PublicInputs:  inputs,
	})
	if err != nil {
		h.logger.Warn("Cross-chain transfer rejected", map[string]interface{}{
			"request_id": req.RequestID,
			"caller":     caller.Hex(),
			"error":      err.Error(),
		})
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

// BridgeTransfer pays a signed transfer from the trusted sender.
func (h *RelayHandler) BridgeTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AddressFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req bridgeTransferRequest
	if !decodeBody(w, r, h.validator, &req) {
		return
	}
	vals, ok := amounts(w, req.Amount)
	if !ok {
		return
	}
	remote, err := domain.ParseRemoteAddress(req.RemoteAddress)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid remote address")
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid signature encoding")
		return
	}

	payout, err := h.forwarder.BridgeTransfer(r.Context(), caller, relay.BridgeTransferRequest{
		RequestID:     req.RequestID,
		Amount:        vals[0],
		Receiver:      common.HexToAddress(req.Receiver),
		RemoteAddress: remote,
		Signature:     sig,
	})
	if err != nil {
		h.logger.Warn("Bridge transfer rejected", map[string]interface{}{
			"request_id": req.RequestID,
			"caller":     caller.Hex(),
			"error":      err.Error(),
		})
		respondErr(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, payoutResponse{
		ID:        payout.ID.String(),
		RequestID: payout.RequestID,
		Recipient: payout.Recipient.Hex(),
		Amount:    payout.Amount.Dec(),
		Source:    string(payout.Source),
	})
}
