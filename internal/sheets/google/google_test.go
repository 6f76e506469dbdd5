package google

import (
	"context"
	"testing"

	"truckpay/internal/core"
)

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base     string
		year     int
		expected string
	}{
		{"Loads", 2026, "2026 Loads"},
		{"  Loads  ", 2026, "2026 Loads"},
		{"2026 Loads", 2026, "2026 Loads"},
		{"2025 Loads", 2026, "2026 2025 Loads"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.expected)
		}
	}
}

func TestMatchRow(t *testing.T) {
	ids := [][]any{
		{"12"},
		{},
		{" 34 "},
		{34.0},
	}

	tests := []struct {
		id       int64
		expected int
	}{
		{12, 2},
		{34, 4}, // first match wins
		{99, 0},
	}
	for _, tt := range tests {
		if got := matchRow(ids, tt.id); got != tt.expected {
			t.Errorf("matchRow(%d) = %d, want %d", tt.id, got, tt.expected)
		}
	}
}

func TestLoadRow(t *testing.T) {
	l := core.Load{
		ID:                  7,
		Rate:                core.Money{Cents: 120000},
		CompanyDeductionPct: 25,
		DriverPay:           core.Money{Cents: 90000},
		LocationFrom:        "Chicago, IL",
		LocationTo:          "Dallas, TX",
		DateAdded:           core.NewDate(2026, 1, 4),
		WeekPeriod:          "Jan 04 - Jan 10, 2026",
	}

	row := loadRow(l)
	if len(row) != 8 {
		t.Fatalf("expected 8 columns, got %d", len(row))
	}
	if row[0] != "7" {
		t.Errorf("expected id column %q, got %v", "7", row[0])
	}
	if row[2] != "2026-01-04" {
		t.Errorf("expected date column 2026-01-04, got %v", row[2])
	}
	if row[5] != 1200.0 || row[7] != 900.0 {
		t.Errorf("expected dollar columns 1200/900, got %v/%v", row[5], row[7])
	}
}

func TestUpsertWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "sheet", loadsBase: "Loads"}
	l := core.Load{
		Rate:                core.Money{Cents: 100},
		CompanyDeductionPct: 0,
		LocationFrom:        "A",
		LocationTo:          "B",
		DateAdded:           core.NewDate(2026, 1, 4),
	}
	if _, err := c.Upsert(context.Background(), "u1", l); err == nil {
		t.Fatal("expected an error without an initialized service")
	}
	if err := c.Delete(context.Background(), "u1", 1); err == nil {
		t.Fatal("expected an error without an initialized service")
	}
}
