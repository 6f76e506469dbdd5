package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"truckpay/internal/core"
)

type fakeLoadStore struct {
	mu         sync.Mutex
	loads      map[int64]core.Load
	nextID     int64
	failCreate bool
	failDelete bool
}

func newFakeLoadStore() *fakeLoadStore {
	return &fakeLoadStore{loads: make(map[int64]core.Load)}
}

func (f *fakeLoadStore) ListLoads(ctx context.Context, userID string) ([]core.Load, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Load
	for _, l := range f.loads {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLoadStore) CreateLoad(ctx context.Context, userID string, l core.Load) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return 0, errors.New("create refused")
	}
	f.nextID++
	l.ID = f.nextID
	l.DriverPay = core.DriverPay(l.Rate, l.CompanyDeductionPct)
	f.loads[l.ID] = l
	return l.ID, nil
}

func (f *fakeLoadStore) UpdateLoad(ctx context.Context, userID string, l core.Load) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.loads[l.ID]; !ok {
		return errors.New("no such load")
	}
	l.DriverPay = core.DriverPay(l.Rate, l.CompanyDeductionPct)
	f.loads[l.ID] = l
	return nil
}

func (f *fakeLoadStore) DeleteLoad(ctx context.Context, userID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("delete refused")
	}
	delete(f.loads, id)
	return nil
}

var testProfile = core.Profile{
	UserID:              "u1",
	FullName:            "Test Driver",
	Email:               "driver@example.com",
	DriverType:          core.Solo,
	CompanyDeductionPct: 25,
	WeeklyPeriod:        "sunday",
}

func newLoadsManager(store *fakeLoadStore) *LoadsManager {
	// 2026-01-07 is a Wednesday; the sunday week containing it starts 2026-01-04.
	now := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	return NewLoadsManager(store, discardLogger(), "u1", testProfile, nil, now)
}

func TestLoadsManagerSnapsToWeekStart(t *testing.T) {
	m := newLoadsManager(newFakeLoadStore())
	if got := m.WeekStart().ISO(); got != "2026-01-04" {
		t.Fatalf("expected week start 2026-01-04, got %s", got)
	}
	if got := m.WeekEnd().ISO(); got != "2026-01-10" {
		t.Fatalf("expected week end 2026-01-10, got %s", got)
	}
}

func TestAddLoadDerivesDriverPay(t *testing.T) {
	store := newFakeLoadStore()
	m := newLoadsManager(store)

	l, err := m.Add(context.Background(), LoadInput{
		Rate:                "1200",
		CompanyDeductionPct: "25",
		LocationFrom:        "Chicago, IL",
		LocationTo:          "Dallas, TX",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if l.DriverPay.Cents != 90000 {
		t.Fatalf("expected driver pay 90000 cents, got %d", l.DriverPay.Cents)
	}
	if l.DateAdded.ISO() != "2026-01-04" {
		t.Fatalf("expected the load attributed to the week on screen, got %s", l.DateAdded.ISO())
	}
	if l.WeekPeriod != core.WeekLabel(m.WeekStart(), m.WeekEnd()) {
		t.Fatalf("unexpected week label %q", l.WeekPeriod)
	}
}

func TestAddLoadRejectsBadInput(t *testing.T) {
	m := newLoadsManager(newFakeLoadStore())

	cases := []struct {
		name string
		in   LoadInput
	}{
		{"zero rate", LoadInput{Rate: "0", CompanyDeductionPct: "25", LocationFrom: "A", LocationTo: "B"}},
		{"percent above 100", LoadInput{Rate: "1200", CompanyDeductionPct: "120", LocationFrom: "A", LocationTo: "B"}},
		{"missing origin", LoadInput{Rate: "1200", CompanyDeductionPct: "25", LocationTo: "B"}},
		{"bad pickup date", LoadInput{Rate: "1200", CompanyDeductionPct: "25", LocationFrom: "A", LocationTo: "B", PickupDate: "01/05/2026"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Add(context.Background(), tc.in); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestEditLoadKeepsWeekAttribution(t *testing.T) {
	store := newFakeLoadStore()
	m := newLoadsManager(store)

	l, err := m.Add(context.Background(), LoadInput{
		Rate: "1000", CompanyDeductionPct: "30", LocationFrom: "A", LocationTo: "B",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := m.Navigate(context.Background(), 1); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	got, err := m.Edit(context.Background(), l.ID, LoadInput{
		Rate: "1500", CompanyDeductionPct: "30", LocationFrom: "A", LocationTo: "C",
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got.DateAdded.ISO() != "2026-01-04" {
		t.Fatalf("editing must not move the load to another week, got %s", got.DateAdded.ISO())
	}
	if got.DriverPay.Cents != 105000 {
		t.Fatalf("expected recomputed driver pay 105000, got %d", got.DriverPay.Cents)
	}
}

func TestEditUnknownLoad(t *testing.T) {
	m := newLoadsManager(newFakeLoadStore())
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := m.Edit(context.Background(), 99, LoadInput{
		Rate: "1", CompanyDeductionPct: "0", LocationFrom: "A", LocationTo: "B",
	}); !errors.Is(err, ErrUnknownRow) {
		t.Fatalf("expected ErrUnknownRow, got %v", err)
	}
}

func TestRemoveLoadKeepsRowOnFailure(t *testing.T) {
	store := newFakeLoadStore()
	m := newLoadsManager(store)

	l, err := m.Add(context.Background(), LoadInput{
		Rate: "500", CompanyDeductionPct: "10", LocationFrom: "A", LocationTo: "B",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	store.mu.Lock()
	store.failDelete = true
	store.mu.Unlock()
	if err := m.Remove(context.Background(), l.ID); err == nil {
		t.Fatal("expected an error")
	}
	if len(m.Loads()) != 1 {
		t.Fatal("a failed delete must not remove the mirrored row")
	}
}

func TestNavigateFiltersWeekLoads(t *testing.T) {
	store := newFakeLoadStore()
	m := newLoadsManager(store)

	if _, err := m.Add(context.Background(), LoadInput{
		Rate: "700", CompanyDeductionPct: "20", LocationFrom: "A", LocationTo: "B",
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := m.Navigate(context.Background(), 1); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if got := m.WeekStart().ISO(); got != "2026-01-11" {
		t.Fatalf("expected week start 2026-01-11, got %s", got)
	}
	if len(m.WeekLoads()) != 0 {
		t.Fatal("loads from the previous week leaked into the new week")
	}

	if err := m.Navigate(context.Background(), -1); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if len(m.WeekLoads()) != 1 {
		t.Fatal("expected the original week's load back on screen")
	}
}
