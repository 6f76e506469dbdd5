package http

import (
	"net/http"
	"strings"

	"truckpay/internal/auth"
	"truckpay/internal/core"
	"truckpay/internal/log"
)

// SummaryResponse is the aggregated earnings view for a week or a
// multi-week range. Cached per user with writes invalidating.
type SummaryResponse struct {
	WeekStart string `json:"week_start"`
	WeekEnd   string `json:"week_end"`
	Label     string `json:"label"`
	Weeks     int    `json:"weeks"`

	GrossPayCents        int64   `json:"gross_pay_cents"`
	DriverPayCents       int64   `json:"driver_pay_cents"`
	WeeklyDeductionCents int64   `json:"weekly_deduction_cents"`
	ExtraDeductionCents  int64   `json:"extra_deduction_cents"`
	FixedDeductionCents  int64   `json:"fixed_deduction_cents"`
	TotalDeductionCents  int64   `json:"total_deduction_cents"`
	NetPayCents          int64   `json:"net_pay_cents"`
	RetentionPct         float64 `json:"retention_pct"`
	Insight              string  `json:"insight"`

	TotalMiles int64   `json:"total_miles"`
	RPM        float64 `json:"rpm"`
}

func summaryKey(userID, kind string, start, end core.Date) string {
	return "summary:" + userID + ":" + kind + ":" + start.ISO() + ":" + end.ISO()
}

func (s *Server) handleWeekSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	day := core.DateOf(nowFunc())
	if v := strings.TrimSpace(r.URL.Query().Get("date")); v != "" {
		parsed, err := core.ParseDate(v)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		day = parsed
	}

	profile, history, err := s.userWeekSettings(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	start := core.UserWeekStart(day.Time, profile, history)
	end := start.AddDays(6)

	key := summaryKey(userID, "week", start, end)
	if cached, ok := s.summaryCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	resp, err := s.buildSummary(r, userID, start, end, 1, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.summaryCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRangeSummary(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	start, err := core.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid range")
		return
	}
	end, err := core.ParseDate(r.URL.Query().Get("end"))
	if err != nil || end.Before(start.Time) {
		writeError(w, http.StatusUnprocessableEntity, "invalid range")
		return
	}

	key := summaryKey(userID, "range", start, end)
	if cached, ok := s.summaryCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	weeks := core.WeeksInRange(start, end)
	resp, err := s.buildSummary(r, userID, start, end, weeks, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.summaryCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

// buildSummary gathers the week's (or range's) rows and folds them through
// the pay math. For a single week the mileage row is included so the
// response can carry RPM.
func (s *Server) buildSummary(r *http.Request, userID string, start, end core.Date, weeks int, withMileage bool) (SummaryResponse, error) {
	ctx := r.Context()

	loads, err := s.store.ListLoadsInRange(ctx, userID, start, end)
	if err != nil {
		return SummaryResponse{}, err
	}
	var weekly []core.WeeklyDeduction
	var extra []core.ExtraDeduction
	if weeks == 1 {
		if weekly, err = s.store.ListWeeklyDeductions(ctx, userID, start); err != nil {
			return SummaryResponse{}, err
		}
		if extra, err = s.store.ListExtraDeductions(ctx, userID, start); err != nil {
			return SummaryResponse{}, err
		}
	} else {
		if weekly, err = s.store.ListWeeklyDeductionsInRange(ctx, userID, start, end); err != nil {
			return SummaryResponse{}, err
		}
		if extra, err = s.store.ListExtraDeductionsInRange(ctx, userID, start, end); err != nil {
			return SummaryResponse{}, err
		}
	}
	all, err := s.store.ListDeductions(ctx, userID)
	if err != nil {
		return SummaryResponse{}, err
	}
	fixedPerWeek := core.FixedDeductionsForWeek(all, start)

	var summary core.WeekSummary
	if weeks == 1 {
		summary = core.SummarizeWeek(loads, weekly, extra, fixedPerWeek)
	} else {
		summary = core.SummarizeRange(loads, weekly, extra, fixedPerWeek, weeks)
	}

	resp := SummaryResponse{
		WeekStart:            start.ISO(),
		WeekEnd:              end.ISO(),
		Label:                core.WeekLabel(start, end),
		Weeks:                summary.Weeks,
		GrossPayCents:        summary.GrossPay.Cents,
		DriverPayCents:       summary.DriverPay.Cents,
		WeeklyDeductionCents: summary.WeeklyDeductions.Cents,
		ExtraDeductionCents:  summary.ExtraDeductions.Cents,
		FixedDeductionCents:  summary.FixedDeductions.Cents,
		TotalDeductionCents:  summary.TotalDeductions.Cents,
		NetPayCents:          summary.NetPay.Cents,
		RetentionPct:         summary.RetentionPct,
		Insight:              core.Tier(summary.RetentionPct).Insight(),
	}

	if withMileage {
		m, _, err := s.store.GetWeeklyMileage(ctx, userID, start)
		if err != nil {
			return SummaryResponse{}, err
		}
		resp.TotalMiles = m.TotalMiles()
		resp.RPM = core.RPM(summary.GrossPay, resp.TotalMiles)
	}

	log.FromContext(ctx).DebugContext(ctx, "summary computed",
		log.FieldUserID, userID,
		log.FieldWeekStart, start.ISO(),
		"weeks", resp.Weeks,
		"net_pay_cents", resp.NetPayCents)
	return resp, nil
}
