package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"truckpay/internal/core"
)

// ErrUnknownRow is returned when an edit or delete targets a row the
// mirror does not hold, for example after a refresh replaced it.
var ErrUnknownRow = errors.New("unknown row")

// centsText renders an amount as plain editable text, without the
// thousands separators Money.String adds for display.
func centsText(m core.Money) string {
	c := m.Cents
	neg := ""
	if c < 0 {
		neg = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", neg, c/100, c%100)
}

// DeductionStore is the slice of the repository the deductions mirror
// persists through.
type DeductionStore interface {
	ListWeeklyDeductions(ctx context.Context, userID string, weekStart core.Date) ([]core.WeeklyDeduction, error)
	UpsertWeeklyDeduction(ctx context.Context, userID string, d core.WeeklyDeduction) error
	DeleteWeeklyDeduction(ctx context.Context, userID string, weekStart core.Date, dedType string) error
	ListExtraDeductions(ctx context.Context, userID string, weekStart core.Date) ([]core.ExtraDeduction, error)
	InsertExtraDeduction(ctx context.Context, userID string, e core.ExtraDeduction) (int64, error)
	UpdateExtraDeduction(ctx context.Context, userID string, e core.ExtraDeduction) error
	DeleteExtraDeduction(ctx context.Context, userID string, id int64) error
}

// ExtraRow is an ad-hoc deduction as held by the mirror. Until its first
// insert completes the row is Pending and exists only in memory.
type ExtraRow struct {
	ID        RowID
	Name      string
	Amount    core.Money
	DateAdded time.Time
}

// DeductionsManager mirrors one week of weekly and extra deductions.
// Weekly amounts are applied to memory immediately and written through
// after a quiet period; extra deductions persist synchronously with
// rollback on failure.
type DeductionsManager struct {
	store  DeductionStore
	userID string
	logger *slog.Logger
	deb    *Debouncer
	fetch  fetchGuard
	base   context.Context

	mu        sync.Mutex
	weekStart core.Date
	weekly    map[string]string // deduction type -> amount as typed
	saved     map[string]string // deduction type -> last persisted value
	extras    []ExtraRow
}

// NewDeductionsManager creates a mirror for the given user and week.
// base bounds the lifetime of persists that fire after the originating
// request has finished.
func NewDeductionsManager(base context.Context, store DeductionStore, logger *slog.Logger, userID string, weekStart core.Date, window time.Duration) *DeductionsManager {
	return &DeductionsManager{
		store:     store,
		userID:    userID,
		logger:    logger.With("component", "mirror.deductions"),
		deb:       NewDebouncer(window),
		base:      base,
		weekStart: weekStart,
		weekly:    make(map[string]string),
		saved:     make(map[string]string),
	}
}

// WeekStart returns the week the mirror is scoped to.
func (m *DeductionsManager) WeekStart() core.Date {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.weekStart
}

// SetWeek moves the mirror to a different week. Pending saves belong to
// the old week and are dropped, as is any fetch still in flight.
func (m *DeductionsManager) SetWeek(ctx context.Context, weekStart core.Date) error {
	m.mu.Lock()
	if m.weekStart.Equal(weekStart.Time) {
		m.mu.Unlock()
		return nil
	}
	m.deb.CancelAll()
	m.weekStart = weekStart
	m.weekly = make(map[string]string)
	m.saved = make(map[string]string)
	m.extras = nil
	m.mu.Unlock()
	return m.Refresh(ctx)
}

// Refresh reloads the week from the store. A refresh started later
// supersedes this one; superseded results are discarded.
func (m *DeductionsManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	week := m.weekStart
	m.mu.Unlock()

	fctx, gen := m.fetch.begin(ctx)
	weekly, err := m.store.ListWeeklyDeductions(fctx, m.userID, week)
	if err != nil {
		return err
	}
	extras, err := m.store.ListExtraDeductions(fctx, m.userID, week)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.fetch.current(gen) || !m.weekStart.Equal(week.Time) {
		return nil
	}
	m.weekly = make(map[string]string, len(weekly))
	m.saved = make(map[string]string, len(weekly))
	for _, d := range weekly {
		s := centsText(d.Amount)
		m.weekly[d.Type] = s
		m.saved[d.Type] = s
	}
	m.extras = make([]ExtraRow, 0, len(extras))
	for _, e := range extras {
		m.extras = append(m.extras, ExtraRow{
			ID:        PersistedID(e.ID),
			Name:      e.Name,
			Amount:    e.Amount,
			DateAdded: e.DateAdded,
		})
	}
	return nil
}

// SetWeeklyAmount records an edit to one weekly deduction and schedules
// its persist. A zero or empty amount means the row is to be deleted.
func (m *DeductionsManager) SetWeeklyAmount(dedType, amount string) {
	dedType = strings.TrimSpace(dedType)
	if dedType == "" {
		return
	}
	m.mu.Lock()
	m.weekly[dedType] = amount
	week := m.weekStart
	m.mu.Unlock()
	m.deb.Trigger("weekly/"+dedType, func() {
		m.persistWeekly(week, dedType)
	})
}

// Flush persists every scheduled weekly edit immediately. Called before
// a summary is computed so totals reflect what the user sees.
func (m *DeductionsManager) Flush() {
	m.deb.FlushAll()
}

func (m *DeductionsManager) persistWeekly(week core.Date, dedType string) {
	m.mu.Lock()
	if !m.weekStart.Equal(week.Time) {
		m.mu.Unlock()
		return
	}
	value := m.weekly[dedType]
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.base, 10*time.Second)
	defer cancel()

	trimmed := strings.TrimSpace(value)
	var cents int64
	if trimmed != "" {
		var err error
		cents, err = core.ParseCents(trimmed)
		if err != nil {
			m.logger.Warn("Weekly deduction amount invalid, reverting", "type", dedType, "value", value)
			m.rollbackWeekly(week, dedType)
			return
		}
	}

	if cents == 0 {
		if err := m.store.DeleteWeeklyDeduction(ctx, m.userID, week, dedType); err != nil {
			m.logger.Error("Failed to delete weekly deduction", "type", dedType, "error", err)
			m.rollbackWeekly(week, dedType)
			return
		}
		m.mu.Lock()
		if m.weekStart.Equal(week.Time) {
			delete(m.saved, dedType)
			if cur, ok := m.weekly[dedType]; ok && cur == value {
				delete(m.weekly, dedType)
			}
		}
		m.mu.Unlock()
		return
	}

	d := core.WeeklyDeduction{
		WeekStart: week,
		Type:      dedType,
		Amount:    core.Money{Cents: cents},
	}
	if err := m.store.UpsertWeeklyDeduction(ctx, m.userID, d); err != nil {
		m.logger.Error("Failed to save weekly deduction", "type", dedType, "error", err)
		m.rollbackWeekly(week, dedType)
		return
	}
	m.mu.Lock()
	if m.weekStart.Equal(week.Time) {
		m.saved[dedType] = value
	}
	m.mu.Unlock()
}

// rollbackWeekly restores the last value known to be persisted, so the
// mirror never keeps showing an amount the backend rejected.
func (m *DeductionsManager) rollbackWeekly(week core.Date, dedType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.weekStart.Equal(week.Time) {
		return
	}
	if prev, ok := m.saved[dedType]; ok {
		m.weekly[dedType] = prev
	} else {
		delete(m.weekly, dedType)
	}
}

// WeeklyAmounts returns a copy of the weekly amounts as currently shown.
func (m *DeductionsManager) WeeklyAmounts() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.weekly))
	for k, v := range m.weekly {
		out[k] = v
	}
	return out
}

// TotalWeekly sums the weekly amounts as shown. Amounts that do not
// parse count as zero.
func (m *DeductionsManager) TotalWeekly() core.Money {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, v := range m.weekly {
		if cents, err := core.ParseCents(strings.TrimSpace(v)); err == nil {
			total += cents
		}
	}
	return core.Money{Cents: total}
}

// AddExtra creates an ad-hoc deduction. The row appears immediately
// under a pending identifier and is promoted once the insert lands; if
// the insert fails the row is removed again.
func (m *DeductionsManager) AddExtra(ctx context.Context, name string, amount core.Money) (ExtraRow, error) {
	m.mu.Lock()
	week := m.weekStart
	m.mu.Unlock()

	row := ExtraRow{
		ID:        PendingID(),
		Name:      strings.TrimSpace(name),
		Amount:    amount,
		DateAdded: time.Now().UTC(),
	}
	e := core.ExtraDeduction{
		WeekStart: week,
		Name:      row.Name,
		Amount:    row.Amount,
		DateAdded: row.DateAdded,
	}
	if err := e.Validate(); err != nil {
		return ExtraRow{}, err
	}

	m.mu.Lock()
	m.extras = append(m.extras, row)
	m.mu.Unlock()

	id, err := m.store.InsertExtraDeduction(ctx, m.userID, e)
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOfExtra(row.ID)
	if err != nil {
		m.logger.Error("Failed to add extra deduction", "name", row.Name, "error", err)
		if i >= 0 {
			m.extras = append(m.extras[:i], m.extras[i+1:]...)
		}
		return ExtraRow{}, err
	}
	if i >= 0 {
		m.extras[i].ID = PersistedID(id)
		row = m.extras[i]
	} else {
		row.ID = PersistedID(id)
	}
	return row, nil
}

// EditExtra changes an ad-hoc deduction. Pending rows are edited in
// memory only; persisted rows are updated optimistically and reverted
// if the backend refuses.
func (m *DeductionsManager) EditExtra(ctx context.Context, id RowID, name string, amount core.Money) error {
	name = strings.TrimSpace(name)

	m.mu.Lock()
	i := m.indexOfExtra(id)
	if i < 0 {
		m.mu.Unlock()
		return ErrUnknownRow
	}
	prev := m.extras[i]
	week := m.weekStart

	e := core.ExtraDeduction{
		ID:        id.Remote(),
		WeekStart: week,
		Name:      name,
		Amount:    amount,
		DateAdded: prev.DateAdded,
	}
	if err := e.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.extras[i].Name = name
	m.extras[i].Amount = amount
	m.mu.Unlock()

	if !id.Persisted() {
		return nil
	}
	if err := m.store.UpdateExtraDeduction(ctx, m.userID, e); err != nil {
		m.logger.Error("Failed to update extra deduction", "id", id.String(), "error", err)
		m.mu.Lock()
		if j := m.indexOfExtra(id); j >= 0 {
			m.extras[j] = prev
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// RemoveExtra deletes an ad-hoc deduction. A pending row is dropped
// locally; a persisted row is removed optimistically and restored if
// the delete fails.
func (m *DeductionsManager) RemoveExtra(ctx context.Context, id RowID) error {
	m.mu.Lock()
	i := m.indexOfExtra(id)
	if i < 0 {
		m.mu.Unlock()
		return ErrUnknownRow
	}
	removed := m.extras[i]
	m.extras = append(m.extras[:i], m.extras[i+1:]...)
	m.mu.Unlock()

	if !id.Persisted() {
		return nil
	}
	if err := m.store.DeleteExtraDeduction(ctx, m.userID, id.Remote()); err != nil {
		m.logger.Error("Failed to delete extra deduction", "id", id.String(), "error", err)
		m.mu.Lock()
		m.extras = append(m.extras, removed)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Extras returns a copy of the ad-hoc deductions as currently shown.
func (m *DeductionsManager) Extras() []ExtraRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExtraRow, len(m.extras))
	copy(out, m.extras)
	return out
}

// TotalExtras sums the ad-hoc deductions as shown.
func (m *DeductionsManager) TotalExtras() core.Money {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, e := range m.extras {
		total += e.Amount.Cents
	}
	return core.Money{Cents: total}
}

// indexOfExtra must be called with m.mu held.
func (m *DeductionsManager) indexOfExtra(id RowID) int {
	for i, e := range m.extras {
		if e.ID == id {
			return i
		}
	}
	return -1
}
