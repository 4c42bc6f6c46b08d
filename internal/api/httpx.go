package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"StreakStake/internal/model"
)

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return "req_" + uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, model.ErrValidation)
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"request_id": requestID(r),
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrValidation, http.StatusBadRequest, "validation_error"},
	{model.ErrTierLocked, http.StatusConflict, "tier_locked"},
	{model.ErrStateConflict, http.StatusConflict, "state_conflict"},
	{model.ErrStakeTooHigh, http.StatusUnprocessableEntity, "stake_too_high"},
	{model.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
	{model.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrExpired, http.StatusGone, "expired"},
	{model.ErrLedgerImbalance, http.StatusInternalServerError, "ledger_imbalance"},
}

// writeEngineError maps an engine error onto its HTTP status and code.
func writeEngineError(w http.ResponseWriter, r *http.Request, log *logrus.Entry, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			if e.status >= http.StatusInternalServerError {
				log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
			}
			writeError(w, r, e.status, e.code, err.Error())
			return
		}
	}
	log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
}
