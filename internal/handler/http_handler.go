// Package handler exposes the approval engine over a thin JSON HTTP surface.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
	"github.com/campuskit/be-fin-approvals/internal/engine"
)

// HTTPHandler handles HTTP requests against the approval engine.
type HTTPHandler struct {
	engine   *engine.Processor
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(eng *engine.Processor, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		engine:   eng,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// Routes registers the API routes on a chi router.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Post("/api/v1/transactions", h.SubmitTransaction)
	r.Post("/api/v1/transactions/decide", h.DecideTransaction)
	r.Post("/api/v1/transactions/recall", h.RecallTransaction)
	r.Get("/api/v1/transactions/history", h.TransactionHistory)
	r.Get("/api/v1/approvals/pending", h.PendingApprovals)
	r.Get("/api/v1/queue/stats", h.QueueStats)
}

type submitTransactionRequest struct {
	Domain           string `json:"domain" validate:"required,oneof=expense revenue budget fund_transfer request"`
	Amount           string `json:"amount" validate:"required"`
	Category         string `json:"category" validate:"required"`
	Submitter        string `json:"submitter" validate:"required"`
	SubmitterRole    string `json:"submitter_role" validate:"required"`
	DocumentationRef string `json:"documentation_ref"`
}

type decideTransactionRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	Action        string `json:"action" validate:"required,oneof=approve reject"`
	Approver      string `json:"approver" validate:"required"`
	Comments      string `json:"comments"`
}

type recallTransactionRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	Submitter     string `json:"submitter" validate:"required"`
	Comments      string `json:"comments"`
}

// SubmitTransaction runs a submitted transaction through the approval engine.
func (h *HTTPHandler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req submitTransactionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, apperr.InvalidInput("amount", "not a valid decimal"))
		return
	}

	tx := &engine.Transaction{
		ID:               uuid.New().String(),
		Domain:           engine.Domain(req.Domain),
		Amount:           amount,
		Category:         req.Category,
		Submitter:        req.Submitter,
		SubmitterRole:    req.SubmitterRole,
		DocumentationRef: req.DocumentationRef,
		CreatedAt:        time.Now(),
	}

	outcome, err := h.engine.ProcessTransaction(r.Context(), tx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Status == engine.StatusValidationFailed {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, outcome)
}

// DecideTransaction applies an approve/reject decision to a pending
// transaction.
func (h *HTTPHandler) DecideTransaction(w http.ResponseWriter, r *http.Request) {
	var req decideTransactionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := h.engine.ProcessApproval(r.Context(), req.TransactionID,
		engine.Decision(req.Action), req.Approver, req.Comments)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// RecallTransaction withdraws a pending transaction at the submitter's
// request.
func (h *HTTPHandler) RecallTransaction(w http.ResponseWriter, r *http.Request) {
	var req recallTransactionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := h.engine.ProcessRecall(r.Context(), req.TransactionID, req.Submitter, req.Comments)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// TransactionHistory returns the audit trail for a transaction.
func (h *HTTPHandler) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	transactionID := r.URL.Query().Get("transaction_id")
	if transactionID == "" {
		h.writeError(w, apperr.InvalidInput("transaction_id", "query parameter is required"))
		return
	}

	entries, err := h.engine.ApprovalHistory(r.Context(), transactionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": len(entries)})
}

// PendingApprovals returns the workflow items awaiting a user's decision.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		h.writeError(w, apperr.InvalidInput("user", "query parameter is required"))
		return
	}

	items := h.engine.PendingApprovalsFor(user)
	h.writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// QueueStats returns queue statistics.
func (h *HTTPHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.QueueStatistics())
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, apperr.New(apperr.ErrCodeInvalidInput, "invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			h.writeError(w, apperr.InvalidInput(verrs[0].Field(), "failed on "+verrs[0].Tag()))
			return false
		}
		h.writeError(w, apperr.New(apperr.ErrCodeInvalidInput, "invalid request"))
		return false
	}
	return true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	h.writeJSON(w, httpStatus(code), map[string]string{
		"error": err.Error(),
		"code":  string(code),
	})
}

// httpStatus maps error codes to HTTP status codes.
func httpStatus(code apperr.Code) int {
	switch code {
	case apperr.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperr.ErrCodeNotFound:
		return http.StatusNotFound
	case apperr.ErrCodeUnauthorized:
		return http.StatusForbidden
	case apperr.ErrCodeConflict:
		return http.StatusConflict
	case apperr.ErrCodeValidationFailed, apperr.ErrCodeNoEligibleApprovers:
		return http.StatusUnprocessableEntity
	case apperr.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
