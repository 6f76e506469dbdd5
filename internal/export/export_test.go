package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"truckpay/internal/core"
	"truckpay/internal/storage"
)

func newRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedAccount(t *testing.T, repo *storage.Repository, email string) string {
	t.Helper()
	ctx := context.Background()
	userID := "user-" + email
	err := repo.CreateUser(ctx, storage.User{ID: userID, Email: email, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	profile := core.Profile{
		UserID:              userID,
		FullName:            "Road Runner",
		Email:               email,
		DriverType:          core.Solo,
		CompanyDeductionPct: 25,
		WeeklyPeriod:        "sunday",
	}
	if err := repo.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	return userID
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	src := seedAccount(t, repo, "src@example.com")

	week := core.NewDate(2026, 1, 4)
	for i, rate := range []int64{120000, 45000} {
		l := core.Load{
			Rate:                core.Money{Cents: rate},
			CompanyDeductionPct: 25,
			LocationFrom:        "Chicago, IL",
			LocationTo:          "Dallas, TX",
			DateAdded:           week.AddDays(i),
		}
		if _, err := repo.CreateLoad(ctx, src, l); err != nil {
			t.Fatalf("create load: %v", err)
		}
	}
	d := core.Deduction{
		Type:      "truck payment",
		Amount:    core.Money{Cents: 20000},
		IsFixed:   true,
		DateAdded: week,
	}
	if _, err := repo.CreateDeduction(ctx, src, d); err != nil {
		t.Fatalf("create deduction: %v", err)
	}

	doc, err := Export(ctx, repo, src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := doc.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	dst := seedAccount(t, repo, "dst@example.com")
	if err := Import(ctx, repo, dst, parsed); err != nil {
		t.Fatalf("import: %v", err)
	}

	loads, err := repo.ListLoads(ctx, dst)
	if err != nil {
		t.Fatalf("list loads: %v", err)
	}
	if len(loads) != 2 {
		t.Fatalf("expected 2 imported loads, got %d", len(loads))
	}
	for _, l := range loads {
		if l.DriverPay.Cents != core.DriverPay(l.Rate, 25).Cents {
			t.Fatalf("imported load kept a stale driver pay: %+v", l)
		}
	}
	deductions, err := repo.ListDeductions(ctx, dst)
	if err != nil {
		t.Fatalf("list deductions: %v", err)
	}
	if len(deductions) != 1 || deductions[0].Type != "truck payment" {
		t.Fatalf("unexpected imported deductions: %+v", deductions)
	}
}

func TestParseRejectsForeignDocuments(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", "<html>"},
		{"wrong format", `{"format":"other","version":1,"profile":{},"loads":[],"deductions":[]}`},
		{"wrong version", `{"format":"truckpay-export","version":99,"profile":{},"loads":[],"deductions":[]}`},
		{"missing loads", `{"format":"truckpay-export","version":1,"profile":{},"deductions":[]}`},
		{"missing profile", `{"format":"truckpay-export","version":1,"loads":[],"deductions":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.data)); !errors.Is(err, core.ErrInvalidDocument) {
				t.Fatalf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestImportNamesFailingCollection(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	dst := seedAccount(t, repo, "dst@example.com")

	doc := &Document{
		Format:  Format,
		Version: Version,
		Profile: &ProfileRecord{
			FullName:     "Road Runner",
			Email:        "dst@example.com",
			DriverType:   "solo",
			WeeklyPeriod: "sunday",
		},
		Loads: []LoadRecord{{
			RateCents:           100000,
			CompanyDeductionPct: 25,
			LocationFrom:        "A",
			LocationTo:          "B",
			DateAdded:           "2026-01-04",
		}},
		Deductions: []DeductionRow{{
			Type:        "pvt insurance",
			AmountCents: 5000,
			DateAdded:   "not-a-date",
		}},
	}

	err := Import(ctx, repo, dst, doc)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "import deductions") {
		t.Fatalf("expected the failing collection in the error, got %v", err)
	}
	loads, err := repo.ListLoads(ctx, dst)
	if err != nil {
		t.Fatalf("list loads: %v", err)
	}
	if len(loads) != 0 {
		t.Fatalf("a failed import must not commit anything, found %d loads", len(loads))
	}
}
