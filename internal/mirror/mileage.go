package mirror

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"truckpay/internal/core"
)

// MileageStore is the slice of the repository the mileage mirror
// persists through.
type MileageStore interface {
	GetWeeklyMileage(ctx context.Context, userID string, weekStart core.Date) (core.WeeklyMileage, bool, error)
	UpsertWeeklyMileage(ctx context.Context, userID string, m core.WeeklyMileage) error
}

const mileageKey = "mileage"

// MileageManager mirrors one week of odometer readings. Edits are
// applied to memory immediately and written through after a quiet
// period. While the user has unsaved edits a refresh leaves the shown
// values alone, so a slow fetch cannot wipe what is being typed.
type MileageManager struct {
	store  MileageStore
	userID string
	logger *slog.Logger
	deb    *Debouncer
	fetch  fetchGuard
	base   context.Context

	mu         sync.Mutex
	weekStart  core.Date
	start, end string // readings as typed
	savedStart string
	savedEnd   string
	dirty      bool
}

// NewMileageManager creates a mirror for the given user and week.
func NewMileageManager(base context.Context, store MileageStore, logger *slog.Logger, userID string, weekStart core.Date, window time.Duration) *MileageManager {
	return &MileageManager{
		store:     store,
		userID:    userID,
		logger:    logger.With("component", "mirror.mileage"),
		deb:       NewDebouncer(window),
		base:      base,
		weekStart: weekStart,
	}
}

// WeekStart returns the week the mirror is scoped to.
func (m *MileageManager) WeekStart() core.Date {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.weekStart
}

// SetWeek moves the mirror to a different week, dropping pending saves
// and any fetch still in flight.
func (m *MileageManager) SetWeek(ctx context.Context, weekStart core.Date) error {
	m.mu.Lock()
	if m.weekStart.Equal(weekStart.Time) {
		m.mu.Unlock()
		return nil
	}
	m.deb.CancelAll()
	m.weekStart = weekStart
	m.start, m.end = "", ""
	m.savedStart, m.savedEnd = "", ""
	m.dirty = false
	m.mu.Unlock()
	return m.Refresh(ctx)
}

// Refresh reloads the week's readings. Results are discarded when a
// newer fetch has started or when the user edited in the meantime.
func (m *MileageManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	week := m.weekStart
	m.mu.Unlock()

	fctx, gen := m.fetch.begin(ctx)
	wm, found, err := m.store.GetWeeklyMileage(fctx, m.userID, week)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.fetch.current(gen) || !m.weekStart.Equal(week.Time) || m.dirty {
		return nil
	}
	m.start, m.end = "", ""
	if found {
		m.start = readingText(wm.StartMileage)
		m.end = readingText(wm.EndMileage)
	}
	m.savedStart, m.savedEnd = m.start, m.end
	return nil
}

// SetReadings records an edit to the odometer readings and schedules
// the persist. Empty strings clear a reading.
func (m *MileageManager) SetReadings(start, end string) {
	m.mu.Lock()
	m.start = strings.TrimSpace(start)
	m.end = strings.TrimSpace(end)
	m.dirty = true
	week := m.weekStart
	m.mu.Unlock()
	m.deb.Trigger(mileageKey, func() {
		m.persist(week)
	})
}

// Flush persists a scheduled save immediately.
func (m *MileageManager) Flush() {
	m.deb.Flush(mileageKey)
}

func (m *MileageManager) persist(week core.Date) {
	m.mu.Lock()
	if !m.weekStart.Equal(week.Time) {
		m.mu.Unlock()
		return
	}
	start, end := m.start, m.end
	m.mu.Unlock()

	startVal, err := parseReading(start)
	if err == nil {
		var endVal *int64
		endVal, err = parseReading(end)
		if err == nil {
			wm := core.WeeklyMileage{
				WeekStart:    week,
				StartMileage: startVal,
				EndMileage:   endVal,
			}
			if err = wm.Validate(); err == nil {
				ctx, cancel := context.WithTimeout(m.base, 10*time.Second)
				defer cancel()
				err = m.store.UpsertWeeklyMileage(ctx, m.userID, wm)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.weekStart.Equal(week.Time) {
		return
	}
	if err != nil {
		m.logger.Error("Failed to save mileage, reverting", "week", week.ISO(), "error", err)
		m.start, m.end = m.savedStart, m.savedEnd
		m.dirty = false
		return
	}
	m.savedStart, m.savedEnd = start, end
	m.dirty = false
}

// Readings returns the readings as currently shown.
func (m *MileageManager) Readings() (start, end string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.start, m.end
}

// TotalMiles computes end minus start from the shown readings, floored
// at zero. Missing or unparsable readings yield zero.
func (m *MileageManager) TotalMiles() int64 {
	m.mu.Lock()
	start, end := m.start, m.end
	m.mu.Unlock()

	s, err1 := parseReading(start)
	e, err2 := parseReading(end)
	if err1 != nil || err2 != nil || s == nil || e == nil {
		return 0
	}
	wm := core.WeeklyMileage{StartMileage: s, EndMileage: e}
	return wm.TotalMiles()
}

func readingText(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func parseReading(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return nil, core.ErrInvalidMileage
	}
	return &v, nil
}
