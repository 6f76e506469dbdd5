package http

import (
	"net/http"
	"strings"

	"truckpay/internal/auth"
	"truckpay/internal/core"
)

type deductionRequest struct {
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	IsFixed      bool   `json:"is_fixed"`
	IsCustomType bool   `json:"is_custom_type"`
	DateAdded    string `json:"date_added"`
}

type deductionResponse struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	AmountCents  int64  `json:"amount_cents"`
	IsFixed      bool   `json:"is_fixed"`
	IsCustomType bool   `json:"is_custom_type"`
	DateAdded    string `json:"date_added"`
}

func deductionView(d core.Deduction) deductionResponse {
	return deductionResponse{
		ID:           d.ID,
		Type:         d.Type,
		AmountCents:  d.Amount.Cents,
		IsFixed:      d.IsFixed,
		IsCustomType: d.IsCustomType,
		DateAdded:    d.DateAdded.ISO(),
	}
}

func (s *Server) handleListDeductions(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var (
		rows []core.Deduction
		err  error
	)
	if r.URL.Query().Get("fixed") == "true" {
		rows, err = s.store.ListFixedDeductions(r.Context(), userID)
	} else {
		rows, err = s.store.ListDeductions(r.Context(), userID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]deductionResponse, 0, len(rows))
	for _, d := range rows {
		out = append(out, deductionView(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDeduction(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req deductionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := core.ParsePositiveCents(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d := core.Deduction{
		Type:         strings.TrimSpace(req.Type),
		Amount:       core.Money{Cents: cents},
		IsFixed:      req.IsFixed,
		IsCustomType: req.IsCustomType,
		DateAdded:    core.DateOf(nowFunc()),
	}
	if req.DateAdded != "" {
		if d.DateAdded, err = core.ParseDate(req.DateAdded); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if err := d.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	id, err := s.store.CreateDeduction(r.Context(), userID, d)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d.ID = id

	s.invalidateSummaries(userID)
	writeJSON(w, http.StatusCreated, deductionView(d))
}

func (s *Server) handleDeleteDeduction(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deduction id")
		return
	}

	if err := s.store.DeleteDeduction(r.Context(), userID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidateSummaries(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetDeductionFixed(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deduction id")
		return
	}

	var req struct {
		Fixed bool `json:"fixed"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.SetDeductionFixed(r.Context(), userID, id, req.Fixed); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidateSummaries(userID)
	w.WriteHeader(http.StatusNoContent)
}

// handleChangeFixedAmount versions a fixed deduction's amount: the new value
// is appended effective from the given date, leaving past weeks resolving
// the amount that applied then.
func (s *Server) handleChangeFixedAmount(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	dedType := strings.TrimSpace(r.PathValue("type"))
	if dedType == "" {
		writeError(w, http.StatusBadRequest, "missing deduction type")
		return
	}

	var req struct {
		Amount        string `json:"amount"`
		EffectiveFrom string `json:"effective_from"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := core.ParsePositiveCents(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	effective := core.DateOf(nowFunc())
	if req.EffectiveFrom != "" {
		if effective, err = core.ParseDate(req.EffectiveFrom); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	id, err := s.store.ChangeFixedAmount(r.Context(), userID, dedType, core.Money{Cents: cents}, effective)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.invalidateSummaries(userID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":             id,
		"type":           dedType,
		"amount_cents":   cents,
		"effective_from": effective.ISO(),
	})
}

func (s *Server) handleDeductionTypes(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	types, err := s.store.DeductionTypes(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if types == nil {
		types = []string{}
	}
	writeJSON(w, http.StatusOK, types)
}
