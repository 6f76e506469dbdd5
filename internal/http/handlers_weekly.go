package http

import (
	"net/http"
	"strings"

	"truckpay/internal/auth"
	"truckpay/internal/core"
)

// weekParam parses the week_start query parameter, defaulting to the start
// of the current week under the user's period settings.
func (s *Server) weekParam(r *http.Request, userID string) (core.Date, error) {
	if v := strings.TrimSpace(r.URL.Query().Get("week_start")); v != "" {
		return core.ParseDate(v)
	}
	profile, history, err := s.userWeekSettings(r.Context(), userID)
	if err != nil {
		return core.Date{}, err
	}
	return core.UserWeekStart(nowFunc(), profile, history), nil
}

type weeklyDeductionResponse struct {
	WeekStart   string `json:"week_start"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
}

func (s *Server) handleListWeeklyDeductions(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	week, err := s.weekParam(r, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rows, err := s.store.ListWeeklyDeductions(r.Context(), userID, week)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]weeklyDeductionResponse, 0, len(rows))
	for _, d := range rows {
		out = append(out, weeklyDeductionResponse{
			WeekStart:   d.WeekStart.ISO(),
			Type:        d.Type,
			AmountCents: d.Amount.Cents,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSaveWeeklyDeduction upserts the per-week variable amount for one
// deduction type. An empty or zero amount deletes the row.
func (s *Server) handleSaveWeeklyDeduction(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req struct {
		WeekStart string `json:"week_start"`
		Type      string `json:"type"`
		Amount    string `json:"amount"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	week, err := core.ParseDate(req.WeekStart)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dedType := strings.TrimSpace(req.Type)
	if dedType == "" {
		s.fail(w, r, core.ErrEmptyType)
		return
	}

	cents := int64(0)
	if strings.TrimSpace(req.Amount) != "" {
		if cents, err = core.ParseCents(req.Amount); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	if cents == 0 {
		err = s.store.DeleteWeeklyDeduction(r.Context(), userID, week, dedType)
	} else {
		err = s.store.UpsertWeeklyDeduction(r.Context(), userID, core.WeeklyDeduction{
			WeekStart: week,
			Type:      dedType,
			Amount:    core.Money{Cents: cents},
		})
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.invalidateSummaries(userID)
	writeJSON(w, http.StatusOK, weeklyDeductionResponse{
		WeekStart:   week.ISO(),
		Type:        dedType,
		AmountCents: cents,
	})
}

type extraDeductionResponse struct {
	ID          int64  `json:"id"`
	WeekStart   string `json:"week_start"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
}

func extraView(e core.ExtraDeduction) extraDeductionResponse {
	return extraDeductionResponse{
		ID:          e.ID,
		WeekStart:   e.WeekStart.ISO(),
		Name:        e.Name,
		AmountCents: e.Amount.Cents,
	}
}

func (s *Server) handleListExtraDeductions(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	week, err := s.weekParam(r, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rows, err := s.store.ListExtraDeductions(r.Context(), userID, week)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]extraDeductionResponse, 0, len(rows))
	for _, e := range rows {
		out = append(out, extraView(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type extraDeductionRequest struct {
	WeekStart string `json:"week_start"`
	Name      string `json:"name"`
	Amount    string `json:"amount"`
}

func (s *Server) parseExtra(req extraDeductionRequest) (core.ExtraDeduction, error) {
	week, err := core.ParseDate(req.WeekStart)
	if err != nil {
		return core.ExtraDeduction{}, err
	}
	cents, err := core.ParsePositiveCents(req.Amount)
	if err != nil {
		return core.ExtraDeduction{}, err
	}
	e := core.ExtraDeduction{
		WeekStart: week,
		Name:      strings.TrimSpace(req.Name),
		Amount:    core.Money{Cents: cents},
	}
	return e, e.Validate()
}

func (s *Server) handleAddExtraDeduction(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req extraDeductionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := s.parseExtra(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	id, err := s.store.InsertExtraDeduction(r.Context(), userID, e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	e.ID = id

	s.invalidateSummaries(userID)
	writeJSON(w, http.StatusCreated, extraView(e))
}

func (s *Server) handleUpdateExtraDeduction(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid extra deduction id")
		return
	}

	var req extraDeductionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := s.parseExtra(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	e.ID = id

	if err := s.store.UpdateExtraDeduction(r.Context(), userID, e); err != nil {
		s.fail(w, r, err)
		return
	}

	s.invalidateSummaries(userID)
	writeJSON(w, http.StatusOK, extraView(e))
}

func (s *Server) handleDeleteExtraDeduction(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid extra deduction id")
		return
	}

	if err := s.store.DeleteExtraDeduction(r.Context(), userID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidateSummaries(userID)
	w.WriteHeader(http.StatusNoContent)
}
