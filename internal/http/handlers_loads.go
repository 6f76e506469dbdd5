package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"truckpay/internal/auth"
	"truckpay/internal/core"
	"truckpay/internal/log"
	"truckpay/internal/storage"
)

type loadRequest struct {
	Rate                string `json:"rate"`
	CompanyDeductionPct string `json:"company_deduction_pct"`
	LocationFrom        string `json:"location_from"`
	LocationTo          string `json:"location_to"`
	PickupDate          string `json:"pickup_date"`
	DeliveryDate        string `json:"delivery_date"`
	DateAdded           string `json:"date_added"`
}

type loadResponse struct {
	ID                  int64   `json:"id"`
	RateCents           int64   `json:"rate_cents"`
	CompanyDeductionPct float64 `json:"company_deduction_pct"`
	DriverPayCents      int64   `json:"driver_pay_cents"`
	LocationFrom        string  `json:"location_from"`
	LocationTo          string  `json:"location_to"`
	PickupDate          string  `json:"pickup_date,omitempty"`
	DeliveryDate        string  `json:"delivery_date,omitempty"`
	DateAdded           string  `json:"date_added"`
	WeekPeriod          string  `json:"week_period"`
}

func loadView(l core.Load) loadResponse {
	return loadResponse{
		ID:                  l.ID,
		RateCents:           l.Rate.Cents,
		CompanyDeductionPct: l.CompanyDeductionPct,
		DriverPayCents:      l.DriverPay.Cents,
		LocationFrom:        l.LocationFrom,
		LocationTo:          l.LocationTo,
		PickupDate:          l.PickupDate.ISO(),
		DeliveryDate:        l.DeliveryDate.ISO(),
		DateAdded:           l.DateAdded.ISO(),
		WeekPeriod:          l.WeekPeriod,
	}
}

// buildLoad validates the submitted fields into a domain load. DateAdded
// defaults to today; the week label is resolved from the user's period
// settings for that day.
func (s *Server) buildLoad(ctx context.Context, userID string, req loadRequest) (core.Load, error) {
	rateCents, err := core.ParsePositiveCents(req.Rate)
	if err != nil {
		return core.Load{}, err
	}
	pct, err := core.ParsePercent(req.CompanyDeductionPct)
	if err != nil {
		return core.Load{}, err
	}

	l := core.Load{
		Rate:                core.Money{Cents: rateCents},
		CompanyDeductionPct: pct,
		LocationFrom:        strings.TrimSpace(req.LocationFrom),
		LocationTo:          strings.TrimSpace(req.LocationTo),
		DateAdded:           core.DateOf(nowFunc()),
	}
	if req.DateAdded != "" {
		if l.DateAdded, err = core.ParseDate(req.DateAdded); err != nil {
			return core.Load{}, err
		}
	}
	if req.PickupDate != "" {
		if l.PickupDate, err = core.ParseDate(req.PickupDate); err != nil {
			return core.Load{}, err
		}
	}
	if req.DeliveryDate != "" {
		if l.DeliveryDate, err = core.ParseDate(req.DeliveryDate); err != nil {
			return core.Load{}, err
		}
	}
	if err := l.Validate(); err != nil {
		return core.Load{}, err
	}

	profile, history, err := s.userWeekSettings(ctx, userID)
	if err != nil {
		return core.Load{}, err
	}
	start := core.UserWeekStart(l.DateAdded.Time, profile, history)
	l.WeekPeriod = core.WeekLabel(start, start.AddDays(6))
	l.DriverPay = core.DriverPay(l.Rate, l.CompanyDeductionPct)
	return l, nil
}

func (s *Server) handleListLoads(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var (
		loads []core.Load
		err   error
	)
	if from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to"); from != "" || to != "" {
		start, perr := core.ParseDate(from)
		if perr != nil {
			s.fail(w, r, perr)
			return
		}
		end, perr := core.ParseDate(to)
		if perr != nil {
			s.fail(w, r, perr)
			return
		}
		loads, err = s.store.ListLoadsInRange(r.Context(), userID, start, end)
	} else {
		loads, err = s.store.ListLoads(r.Context(), userID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]loadResponse, 0, len(loads))
	for _, l := range loads {
		out = append(out, loadView(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateLoad(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req loadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l, err := s.buildLoad(r.Context(), userID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	id, err := s.store.CreateLoad(r.Context(), userID, l)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	l.ID = id
	l.DriverPay = core.DriverPay(l.Rate, l.CompanyDeductionPct)

	s.invalidateSummaries(userID)
	s.notifyLoadChange(r.Context(), userID, id, "sync")
	writeJSON(w, http.StatusCreated, loadView(l))
}

func (s *Server) handleUpdateLoad(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid load id")
		return
	}

	var req loadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prev, err := s.store.GetLoad(r.Context(), userID, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	// Edits keep the load's original week attribution.
	if req.DateAdded == "" {
		req.DateAdded = prev.DateAdded.ISO()
	}
	l, err := s.buildLoad(r.Context(), userID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	l.ID = id
	l.DateAdded = prev.DateAdded
	l.WeekPeriod = prev.WeekPeriod

	if err := s.store.UpdateLoad(r.Context(), userID, l); err != nil {
		s.fail(w, r, err)
		return
	}
	l.DriverPay = core.DriverPay(l.Rate, l.CompanyDeductionPct)

	s.invalidateSummaries(userID)
	s.notifyLoadChange(r.Context(), userID, id, "sync")
	writeJSON(w, http.StatusOK, loadView(l))
}

func (s *Server) handleDeleteLoad(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid load id")
		return
	}

	if err := s.store.DeleteLoad(r.Context(), userID, id); err != nil {
		s.fail(w, r, err)
		return
	}

	s.invalidateSummaries(userID)
	s.notifyLoadChange(r.Context(), userID, id, "delete")
	w.WriteHeader(http.StatusNoContent)
}

// notifyLoadChange records the change in the sync queue (the durable retry
// path) and publishes the AMQP event (the fast path). A publish failure is
// logged and absorbed: the queue scan will mirror the row anyway.
func (s *Server) notifyLoadChange(ctx context.Context, userID string, loadID int64, operation string) {
	if err := s.store.EnqueueLoadSync(ctx, userID, loadID, operation); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "enqueue load sync failed",
			log.FieldError, err.Error(),
			log.FieldUserID, userID,
			log.FieldLoadID, loadID)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLoadSync(ctx, userID, loadID, operation); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "publish load sync failed",
			log.FieldError, err.Error(),
			log.FieldUserID, userID,
			log.FieldLoadID, loadID,
			log.FieldOperation, operation)
	}
}

// userWeekSettings loads the pieces week resolution needs. A missing profile
// falls back to defaults rather than failing the request.
func (s *Server) userWeekSettings(ctx context.Context, userID string) (core.Profile, []core.PeriodChange, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		profile = core.Profile{UserID: userID}
	} else if err != nil {
		return core.Profile{}, nil, err
	}
	history, err := s.store.ListPeriodChanges(ctx, userID)
	if err != nil {
		return core.Profile{}, nil, err
	}
	return profile, history, nil
}
