package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"unitledger/internal/core"
	"unitledger/pkg/domain"
)

// Error codes returned in the JSON error envelope.
const (
	codeInvalidRequest   = "invalid_request"
	codeInvalidUnit      = "invalid_unit_id"
	codeNotOwner         = "not_owner"
	codeSameParents      = "require_different_parents"
	codeInvalidAccount   = "invalid_account"
	codeCounterOverflow  = "counter_overflow"
	codeInsufficientFund = "insufficient_balance"
	codeTransferFailure  = "transfer_failure"
	codeRuleViolation    = "rule_violation"
	codeInternal         = "internal"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrInvalidUnitID, http.StatusNotFound, codeInvalidUnit},
	{domain.ErrNotOwner, http.StatusForbidden, codeNotOwner},
	{domain.ErrRequireDifferentParents, http.StatusBadRequest, codeSameParents},
	{domain.ErrInvalidAccount, http.StatusBadRequest, codeInvalidAccount},
	{domain.ErrCounterOverflow, http.StatusInsufficientStorage, codeCounterOverflow},
	{domain.ErrInsufficientBalance, http.StatusPaymentRequired, codeInsufficientFund},
	{domain.ErrTransferFailure, http.StatusPaymentRequired, codeTransferFailure},
}

// statusFor translates a registry error into a status code and error code.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	var violation core.RuleViolationError
	if errors.As(err, &violation) {
		return http.StatusConflict, codeRuleViolation
	}
	return http.StatusInternalServerError, codeInternal
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorBody{Error: code, Message: err.Error()}
	attrs := []any{"request_id", middleware.GetReqID(r.Context()), "status", status, "error", err.Error()}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "registry request failed", attrs...)
		body.Message = ""
	} else {
		h.logger.WarnContext(r.Context(), "registry request rejected", attrs...)
	}
	writeJSON(w, status, body)
}
