package http

import (
	"net/http"

	"truckpay/internal/auth"
	"truckpay/internal/core"
)

type mileageResponse struct {
	WeekStart    string `json:"week_start"`
	StartMileage *int64 `json:"start_mileage"`
	EndMileage   *int64 `json:"end_mileage"`
	TotalMiles   int64  `json:"total_miles"`
}

func mileageView(m core.WeeklyMileage) mileageResponse {
	return mileageResponse{
		WeekStart:    m.WeekStart.ISO(),
		StartMileage: m.StartMileage,
		EndMileage:   m.EndMileage,
		TotalMiles:   m.TotalMiles(),
	}
}

func (s *Server) handleGetMileage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	week, err := s.weekParam(r, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	m, _, err := s.store.GetWeeklyMileage(r.Context(), userID, week)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mileageView(m))
}

// handleSaveMileage upserts the week's odometer readings. Null readings are
// allowed: "not entered yet" is a valid state distinct from zero.
func (s *Server) handleSaveMileage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req struct {
		WeekStart    string `json:"week_start"`
		StartMileage *int64 `json:"start_mileage"`
		EndMileage   *int64 `json:"end_mileage"`
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
	m := core.WeeklyMileage{
		WeekStart:    week,
		StartMileage: req.StartMileage,
		EndMileage:   req.EndMileage,
	}
	if err := m.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.store.UpsertWeeklyMileage(r.Context(), userID, m); err != nil {
		s.fail(w, r, err)
		return
	}

	s.invalidateSummaries(userID)
	writeJSON(w, http.StatusOK, mileageView(m))
}
