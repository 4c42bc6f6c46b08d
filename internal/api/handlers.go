package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"StreakStake/internal/commitment"
	"StreakStake/internal/model"
	"StreakStake/internal/recovery"
)

func (s *Server) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req commitment.CreateRequest
	if err := readJSON(w, r, &req); err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	switch req.OwnerID {
	case "":
		req.OwnerID = caller(r)
	case caller(r):
	default:
		writeEngineError(w, r, s.Log, fmt.Errorf("cannot create contracts for %s: %w", req.OwnerID, model.ErrUnauthorized))
		return
	}
	c, err := s.Contracts.Create(r.Context(), req)
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleCancelCommitment(w http.ResponseWriter, r *http.Request) {
	if err := s.Contracts.Cancel(r.Context(), chi.URLParam(r, "id"), caller(r)); err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := s.Contracts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListCommitments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		list []model.Contract
		err  error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "":
		list, err = s.Contracts.History(r.Context(), id)
	case string(model.StatusActive):
		list, err = s.Contracts.Active(r.Context(), id)
	default:
		err = fmt.Errorf("status filter %q: %w", status, model.ErrValidation)
	}
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	if list == nil {
		list = []model.Contract{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleTierUnlocked(w http.ResponseWriter, r *http.Request) {
	tier, err := strconv.Atoi(chi.URLParam(r, "tier"))
	if err != nil {
		writeEngineError(w, r, s.Log, fmt.Errorf("tier %q: %w", chi.URLParam(r, "tier"), model.ErrValidation))
		return
	}
	ok, err := s.Contracts.IsTierUnlocked(r.Context(), chi.URLParam(r, "id"), tier)
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tier": tier, "unlocked": ok})
}

type completeMissionRequest struct {
	ReflectionText string `json:"reflection_text"`
	Mood           string `json:"mood"`
	Energy         int    `json:"energy"`
}

func (s *Server) handleCompleteMission(w http.ResponseWriter, r *http.Request) {
	var body completeMissionRequest
	if err := readJSON(w, r, &body); err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	credited, err := s.Missions.Complete(r.Context(), recovery.CompleteRequest{
		MissionID:      chi.URLParam(r, "id"),
		CallerID:       caller(r),
		ReflectionText: body.ReflectionText,
		Mood:           body.Mood,
		Energy:         body.Energy,
	})
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"credited_tokens": credited})
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	m, err := s.Missions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Ledger.Account(r.Context(), id); err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	list, err := s.Missions.ListByOwner(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	if list == nil {
		list = []model.RecoveryMission{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	view, err := s.Contracts.AccountView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type openAccountRequest struct {
	ID             string `json:"id"`
	InitialBalance int64  `json:"initial_balance"`
	Timezone       string `json:"timezone"`
}

func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var body openAccountRequest
	if err := readJSON(w, r, &body); err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	acct, err := s.Ledger.OpenAccount(r.Context(), body.ID, body.InitialBalance, body.Timezone)
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

type grantRequest struct {
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var body grantRequest
	if err := readJSON(w, r, &body); err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	txn, err := s.Ledger.Grant(r.Context(), chi.URLParam(r, "id"), body.Amount, body.Note)
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := s.Ledger.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	if list == nil {
		list = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleAudit reports an imbalance in the body instead of failing the request.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.Ledger.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil && report.AccountID == "" {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRecordCheckIn(w http.ResponseWriter, r *http.Request) {
	var body model.CheckIn
	if err := readJSON(w, r, &body); err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	ci, err := s.CheckIns.Record(r.Context(), body)
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, ci)
}

func (s *Server) handleRunResolution(w http.ResponseWriter, r *http.Request) {
	report, err := s.Sweeper.RunOnce(r.Context())
	if err != nil {
		writeEngineError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
