package http

import (
	"errors"
	"net/http"
	"strings"

	"truckpay/internal/auth"
	"truckpay/internal/core"
	"truckpay/internal/log"
	"truckpay/internal/storage"
)

type profileResponse struct {
	FullName            string  `json:"full_name"`
	Phone               string  `json:"phone,omitempty"`
	Email               string  `json:"email"`
	DriverType          string  `json:"driver_type"`
	CompanyDeductionPct float64 `json:"company_deduction_pct"`
	WeeklyPeriod        string  `json:"weekly_period"`
	WeeklyPeriodDisplay string  `json:"weekly_period_display"`
}

func profileView(p core.Profile) profileResponse {
	period := p.WeeklyPeriod
	if period == "" {
		period = "sunday"
	}
	return profileResponse{
		FullName:            p.FullName,
		Phone:               p.Phone,
		Email:               p.Email,
		DriverType:          string(p.DriverType),
		CompanyDeductionPct: p.CompanyDeductionPct,
		WeeklyPeriod:        period,
		WeeklyPeriodDisplay: core.PeriodDisplayName(period),
	}
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	p, err := s.store.GetProfile(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileView(p))
}

// handleUpdateProfile rewrites the profile. A weekly period change goes
// through ChangeWeeklyPeriod so it also stamps the change time and appends
// the history row that keeps past-week resolution exact.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req struct {
		FullName            string `json:"full_name"`
		Phone               string `json:"phone"`
		Email               string `json:"email"`
		DriverType          string `json:"driver_type"`
		CompanyDeductionPct string `json:"company_deduction_pct"`
		WeeklyPeriod        string `json:"weekly_period"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	current, err := s.store.GetProfile(r.Context(), userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.fail(w, r, err)
		return
	}

	pct, err := core.ParsePercent(req.CompanyDeductionPct)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	updated := core.Profile{
		UserID:                userID,
		FullName:              strings.TrimSpace(req.FullName),
		Phone:                 strings.TrimSpace(req.Phone),
		Email:                 strings.TrimSpace(req.Email),
		DriverType:            core.DriverType(req.DriverType),
		CompanyDeductionPct:   pct,
		WeeklyPeriod:          req.WeeklyPeriod,
		WeeklyPeriodUpdatedAt: current.WeeklyPeriodUpdatedAt,
	}
	if updated.Email == "" {
		updated.Email = current.Email
	}
	if err := updated.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}

	periodChanged := updated.WeeklyPeriod != "" && updated.WeeklyPeriod != current.WeeklyPeriod

	if periodChanged {
		// Upsert everything but the period under the old value, then let
		// ChangeWeeklyPeriod move the period transactionally.
		newPeriod := updated.WeeklyPeriod
		updated.WeeklyPeriod = current.WeeklyPeriod
		if err := s.store.UpsertProfile(r.Context(), updated); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.store.ChangeWeeklyPeriod(r.Context(), userID, newPeriod, core.DateOf(nowFunc())); err != nil {
			s.fail(w, r, err)
			return
		}
		updated.WeeklyPeriod = newPeriod
		log.FromContext(r.Context()).InfoContext(r.Context(), "weekly period changed",
			log.FieldUserID, userID, "period", newPeriod)
	} else {
		if err := s.store.UpsertProfile(r.Context(), updated); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	s.invalidateSummaries(userID)
	writeJSON(w, http.StatusOK, profileView(updated))
}
