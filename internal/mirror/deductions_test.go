package mirror

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"truckpay/internal/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDeductionStore struct {
	mu      sync.Mutex
	weekly  map[string]core.Money // deduction type -> amount
	extras  map[int64]core.ExtraDeduction
	nextID  int64
	upserts int

	failUpsert bool
	failInsert bool
	failUpdate bool
	failDelete bool

	// listWeekly, when set, replaces the default list behavior.
	listWeekly func(ctx context.Context) ([]core.WeeklyDeduction, error)
}

func newFakeDeductionStore() *fakeDeductionStore {
	return &fakeDeductionStore{
		weekly: make(map[string]core.Money),
		extras: make(map[int64]core.ExtraDeduction),
	}
}

func (f *fakeDeductionStore) ListWeeklyDeductions(ctx context.Context, userID string, weekStart core.Date) ([]core.WeeklyDeduction, error) {
	f.mu.Lock()
	if lw := f.listWeekly; lw != nil {
		f.mu.Unlock()
		return lw(ctx)
	}
	defer f.mu.Unlock()
	var out []core.WeeklyDeduction
	for typ, amt := range f.weekly {
		out = append(out, core.WeeklyDeduction{WeekStart: weekStart, Type: typ, Amount: amt})
	}
	return out, nil
}

func (f *fakeDeductionStore) UpsertWeeklyDeduction(ctx context.Context, userID string, d core.WeeklyDeduction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert {
		return errors.New("upsert refused")
	}
	f.weekly[d.Type] = d.Amount
	f.upserts++
	return nil
}

func (f *fakeDeductionStore) DeleteWeeklyDeduction(ctx context.Context, userID string, weekStart core.Date, dedType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("delete refused")
	}
	delete(f.weekly, dedType)
	return nil
}

func (f *fakeDeductionStore) ListExtraDeductions(ctx context.Context, userID string, weekStart core.Date) ([]core.ExtraDeduction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.ExtraDeduction
	for _, e := range f.extras {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeDeductionStore) InsertExtraDeduction(ctx context.Context, userID string, e core.ExtraDeduction) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return 0, errors.New("insert refused")
	}
	f.nextID++
	e.ID = f.nextID
	f.extras[e.ID] = e
	return e.ID, nil
}

func (f *fakeDeductionStore) UpdateExtraDeduction(ctx context.Context, userID string, e core.ExtraDeduction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return errors.New("update refused")
	}
	f.extras[e.ID] = e
	return nil
}

func (f *fakeDeductionStore) DeleteExtraDeduction(ctx context.Context, userID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("delete refused")
	}
	delete(f.extras, id)
	return nil
}

func (f *fakeDeductionStore) weeklyAmount(typ string) (core.Money, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.weekly[typ]
	return m, ok
}

func (f *fakeDeductionStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

var testWeek = core.NewDate(2026, 1, 4) // a Sunday

func newDeductionsManager(store *fakeDeductionStore, window time.Duration) *DeductionsManager {
	return NewDeductionsManager(context.Background(), store, discardLogger(), "u1", testWeek, window)
}

func TestWeeklyEditsCoalesceToLastValue(t *testing.T) {
	store := newFakeDeductionStore()
	m := newDeductionsManager(store, 20*time.Millisecond)

	m.SetWeeklyAmount("truck payment", "100")
	m.SetWeeklyAmount("truck payment", "250")

	time.Sleep(200 * time.Millisecond)

	got, ok := store.weeklyAmount("truck payment")
	if !ok {
		t.Fatal("expected a persisted weekly deduction")
	}
	if got.Cents != 25000 {
		t.Fatalf("expected 25000 cents persisted, got %d", got.Cents)
	}
	if n := store.upsertCount(); n != 1 {
		t.Fatalf("expected exactly one upsert, got %d", n)
	}
}

func TestWeeklyZeroDeletesRow(t *testing.T) {
	store := newFakeDeductionStore()
	store.weekly["insurance"] = core.Money{Cents: 5000}

	m := newDeductionsManager(store, time.Hour)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	for _, zero := range []string{"0", ""} {
		m.SetWeeklyAmount("insurance", zero)
		m.Flush()
		if _, ok := store.weeklyAmount("insurance"); ok {
			t.Fatalf("expected row deleted after saving %q", zero)
		}
	}
}

func TestWeeklyRevertsOnFailedSave(t *testing.T) {
	store := newFakeDeductionStore()
	store.weekly["fuel"] = core.Money{Cents: 30000}

	m := newDeductionsManager(store, time.Hour)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	store.failUpsert = true
	m.SetWeeklyAmount("fuel", "999")
	m.Flush()

	if got := m.WeeklyAmounts()["fuel"]; got != "300.00" {
		t.Fatalf("expected shown amount to revert to 300.00, got %q", got)
	}
	if amt, _ := store.weeklyAmount("fuel"); amt.Cents != 30000 {
		t.Fatalf("expected stored amount untouched, got %d", amt.Cents)
	}
}

func TestWeeklyInvalidAmountReverts(t *testing.T) {
	store := newFakeDeductionStore()
	m := newDeductionsManager(store, time.Hour)

	m.SetWeeklyAmount("parking", "not a number")
	m.Flush()

	if _, ok := m.WeeklyAmounts()["parking"]; ok {
		t.Fatal("expected the unparsable edit to be dropped")
	}
	if _, ok := store.weeklyAmount("parking"); ok {
		t.Fatal("expected nothing persisted")
	}
}

func TestAddExtraPromotesToPersisted(t *testing.T) {
	store := newFakeDeductionStore()
	m := newDeductionsManager(store, time.Hour)

	row, err := m.AddExtra(context.Background(), "scale ticket", core.Money{Cents: 1500})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !row.ID.Persisted() {
		t.Fatal("expected the returned row to carry a persisted id")
	}

	extras := m.Extras()
	if len(extras) != 1 || !extras[0].ID.Persisted() {
		t.Fatalf("expected one persisted extra in the mirror, got %+v", extras)
	}
	if m.TotalExtras().Cents != 1500 {
		t.Fatalf("expected total 1500, got %d", m.TotalExtras().Cents)
	}
}

func TestAddExtraFailureRemovesRow(t *testing.T) {
	store := newFakeDeductionStore()
	store.failInsert = true
	m := newDeductionsManager(store, time.Hour)

	if _, err := m.AddExtra(context.Background(), "tolls", core.Money{Cents: 800}); err == nil {
		t.Fatal("expected an error")
	}
	if len(m.Extras()) != 0 {
		t.Fatal("expected the optimistic row to be removed after a failed insert")
	}
}

func TestEditExtraRevertsOnFailure(t *testing.T) {
	store := newFakeDeductionStore()
	m := newDeductionsManager(store, time.Hour)

	row, err := m.AddExtra(context.Background(), "lumper", core.Money{Cents: 2000})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	store.failUpdate = true
	if err := m.EditExtra(context.Background(), row.ID, "lumper fee", core.Money{Cents: 2500}); err == nil {
		t.Fatal("expected an error")
	}
	got := m.Extras()[0]
	if got.Name != "lumper" || got.Amount.Cents != 2000 {
		t.Fatalf("expected the row to revert, got %+v", got)
	}
}

func TestRemoveExtraUnknownRow(t *testing.T) {
	store := newFakeDeductionStore()
	m := newDeductionsManager(store, time.Hour)

	if err := m.RemoveExtra(context.Background(), PersistedID(42)); !errors.Is(err, ErrUnknownRow) {
		t.Fatalf("expected ErrUnknownRow, got %v", err)
	}
}

func TestStaleFetchDoesNotOverwriteNewerState(t *testing.T) {
	release := make(chan struct{})
	store := newFakeDeductionStore()

	slow := func(ctx context.Context) ([]core.WeeklyDeduction, error) {
		<-release
		return []core.WeeklyDeduction{{WeekStart: testWeek, Type: "stale", Amount: core.Money{Cents: 1}}}, nil
	}
	fast := func(ctx context.Context) ([]core.WeeklyDeduction, error) {
		return []core.WeeklyDeduction{{WeekStart: testWeek, Type: "fresh", Amount: core.Money{Cents: 2}}}, nil
	}

	m := newDeductionsManager(store, time.Hour)

	store.mu.Lock()
	store.listWeekly = slow
	store.mu.Unlock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Refresh(context.Background()) // superseded below
	}()
	time.Sleep(20 * time.Millisecond)

	store.mu.Lock()
	store.listWeekly = fast
	store.mu.Unlock()
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	close(release)
	<-done

	amounts := m.WeeklyAmounts()
	if _, ok := amounts["stale"]; ok {
		t.Fatal("stale fetch result overwrote newer state")
	}
	if amounts["fresh"] != "0.02" {
		t.Fatalf("expected the newer fetch's state, got %v", amounts)
	}
}

func TestSetWeekDropsPendingSaves(t *testing.T) {
	store := newFakeDeductionStore()
	m := newDeductionsManager(store, time.Hour)

	m.SetWeeklyAmount("fuel", "100")
	if err := m.SetWeek(context.Background(), testWeek.AddDays(7)); err != nil {
		t.Fatalf("set week: %v", err)
	}
	m.Flush()

	if _, ok := store.weeklyAmount("fuel"); ok {
		t.Fatal("a save scoped to the old week ran after navigation")
	}
	if !m.WeekStart().Equal(testWeek.AddDays(7).Time) {
		t.Fatalf("expected week start to advance, got %s", m.WeekStart().ISO())
	}
}
