package mirror

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"truckpay/internal/core"
)

// LoadStore is the slice of the repository the loads mirror works
// against.
type LoadStore interface {
	ListLoads(ctx context.Context, userID string) ([]core.Load, error)
	CreateLoad(ctx context.Context, userID string, l core.Load) (int64, error)
	UpdateLoad(ctx context.Context, userID string, l core.Load) error
	DeleteLoad(ctx context.Context, userID string, id int64) error
}

// LoadInput carries the user-entered fields for a new or edited load.
// Rate and percent arrive as text exactly as typed.
type LoadInput struct {
	Rate                string
	CompanyDeductionPct string
	LocationFrom        string
	LocationTo          string
	PickupDate          string // ISO date, optional
	DeliveryDate        string // ISO date, optional
}

// LoadsManager mirrors a user's loads and tracks which week is on
// screen. Unlike amounts typed into a grid, load mutations are explicit
// actions, so they persist synchronously and report failure directly.
type LoadsManager struct {
	store  LoadStore
	userID string
	logger *slog.Logger
	fetch  fetchGuard

	mu        sync.Mutex
	profile   core.Profile
	history   []core.PeriodChange
	weekStart core.Date
	loads     []core.Load
}

// NewLoadsManager creates a mirror positioned on the week containing
// now, resolved against the user's weekly period.
func NewLoadsManager(store LoadStore, logger *slog.Logger, userID string, profile core.Profile, history []core.PeriodChange, now time.Time) *LoadsManager {
	return &LoadsManager{
		store:     store,
		userID:    userID,
		logger:    logger.With("component", "mirror.loads"),
		profile:   profile,
		history:   history,
		weekStart: core.UserWeekStart(now, profile, history),
	}
}

// WeekStart returns the start of the week on screen.
func (m *LoadsManager) WeekStart() core.Date {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.weekStart
}

// WeekEnd returns the end of the week on screen.
func (m *LoadsManager) WeekEnd() core.Date {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.weekStart.AddDays(6)
}

// WeekLabel returns the display label for the week on screen.
func (m *LoadsManager) WeekLabel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return core.WeekLabel(m.weekStart, m.weekStart.AddDays(6))
}

// SetProfile updates the period settings the mirror resolves weeks
// with, re-snapping the week on screen to the new period's boundary.
func (m *LoadsManager) SetProfile(profile core.Profile, history []core.PeriodChange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = profile
	m.history = history
	m.weekStart = core.UserWeekStart(m.weekStart.Time, profile, history)
}

// Navigate moves the week on screen by delta weeks and refetches. Any
// fetch still in flight for the old week is superseded.
func (m *LoadsManager) Navigate(ctx context.Context, delta int) error {
	m.mu.Lock()
	target := m.weekStart.AddDays(delta * 7)
	m.weekStart = core.UserWeekStart(target.Time, m.profile, m.history)
	m.mu.Unlock()
	return m.Refresh(ctx)
}

// GoToWeek positions the mirror on the week containing day and
// refetches.
func (m *LoadsManager) GoToWeek(ctx context.Context, day core.Date) error {
	m.mu.Lock()
	m.weekStart = core.UserWeekStart(day.Time, m.profile, m.history)
	m.mu.Unlock()
	return m.Refresh(ctx)
}

// Refresh reloads all loads. Stale results are discarded.
func (m *LoadsManager) Refresh(ctx context.Context) error {
	fctx, gen := m.fetch.begin(ctx)
	loads, err := m.store.ListLoads(fctx, m.userID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.fetch.current(gen) {
		return nil
	}
	m.loads = loads
	return nil
}

// Add validates the input, attributes the load to the week on screen,
// and persists it. The stored row, with its derived driver pay and
// assigned identifier, is returned.
func (m *LoadsManager) Add(ctx context.Context, in LoadInput) (core.Load, error) {
	m.mu.Lock()
	week := m.weekStart
	m.mu.Unlock()

	l, err := m.buildLoad(in, week)
	if err != nil {
		return core.Load{}, err
	}

	id, err := m.store.CreateLoad(ctx, m.userID, l)
	if err != nil {
		m.logger.Error("Failed to add load", "error", err)
		return core.Load{}, err
	}
	l.ID = id
	l.DriverPay = core.DriverPay(l.Rate, l.CompanyDeductionPct)

	m.mu.Lock()
	m.loads = append(m.loads, l)
	m.mu.Unlock()
	return l, nil
}

// Edit replaces the user-entered fields of an existing load. The week
// the load belongs to does not change.
func (m *LoadsManager) Edit(ctx context.Context, id int64, in LoadInput) (core.Load, error) {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return core.Load{}, ErrUnknownRow
	}
	prev := m.loads[i]
	m.mu.Unlock()

	l, err := m.buildLoad(in, prev.DateAdded)
	if err != nil {
		return core.Load{}, err
	}
	l.ID = id

	if err := m.store.UpdateLoad(ctx, m.userID, l); err != nil {
		m.logger.Error("Failed to update load", "id", id, "error", err)
		return core.Load{}, err
	}
	l.DriverPay = core.DriverPay(l.Rate, l.CompanyDeductionPct)

	m.mu.Lock()
	if j := m.indexOf(id); j >= 0 {
		m.loads[j] = l
	}
	m.mu.Unlock()
	return l, nil
}

// Remove deletes a load. The row disappears locally only after the
// backend confirms.
func (m *LoadsManager) Remove(ctx context.Context, id int64) error {
	if err := m.store.DeleteLoad(ctx, m.userID, id); err != nil {
		m.logger.Error("Failed to delete load", "id", id, "error", err)
		return err
	}
	m.mu.Lock()
	if i := m.indexOf(id); i >= 0 {
		m.loads = append(m.loads[:i], m.loads[i+1:]...)
	}
	m.mu.Unlock()
	return nil
}

// WeekLoads returns the loads attributed to the week on screen.
func (m *LoadsManager) WeekLoads() []core.Load {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := m.weekStart.AddDays(6)
	var out []core.Load
	for _, l := range m.loads {
		if !l.DateAdded.Before(m.weekStart.Time) && !l.DateAdded.After(end.Time) {
			out = append(out, l)
		}
	}
	return out
}

// Loads returns a copy of all mirrored loads.
func (m *LoadsManager) Loads() []core.Load {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Load, len(m.loads))
	copy(out, m.loads)
	return out
}

// buildLoad turns raw input into a validated load attributed to week.
func (m *LoadsManager) buildLoad(in LoadInput, week core.Date) (core.Load, error) {
	cents, err := core.ParsePositiveCents(in.Rate)
	if err != nil {
		return core.Load{}, err
	}
	pct, err := core.ParsePercent(in.CompanyDeductionPct)
	if err != nil {
		return core.Load{}, err
	}

	l := core.Load{
		Rate:                core.Money{Cents: cents},
		CompanyDeductionPct: pct,
		LocationFrom:        strings.TrimSpace(in.LocationFrom),
		LocationTo:          strings.TrimSpace(in.LocationTo),
		DateAdded:           week,
		WeekPeriod:          core.WeekLabel(week, week.AddDays(6)),
	}
	if in.PickupDate != "" {
		if l.PickupDate, err = core.ParseDate(in.PickupDate); err != nil {
			return core.Load{}, err
		}
	}
	if in.DeliveryDate != "" {
		if l.DeliveryDate, err = core.ParseDate(in.DeliveryDate); err != nil {
			return core.Load{}, err
		}
	}
	if err := l.Validate(); err != nil {
		return core.Load{}, err
	}
	return l, nil
}

// indexOf must be called with m.mu held.
func (m *LoadsManager) indexOf(id int64) int {
	for i, l := range m.loads {
		if l.ID == id {
			return i
		}
	}
	return -1
}
