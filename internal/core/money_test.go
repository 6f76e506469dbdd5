package core

import "testing"

func TestParseCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1200", 120000, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"", 0, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParsePositiveCents(t *testing.T) {
	if _, err := ParsePositiveCents("0"); err == nil {
		t.Fatal("zero should be rejected")
	}
	if _, err := ParsePositiveCents(""); err == nil {
		t.Fatal("empty should be rejected")
	}
	got, err := ParsePositiveCents("450.00")
	if err != nil || got != 45000 {
		t.Fatalf("expected 45000, got %d (err=%v)", got, err)
	}
}

func TestParsePercent(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"25", 25, true},
		{"0", 0, true},
		{"100", 100, true},
		{"", 0, true},
		{"12.5", 12.5, true},
		{"101", 0, false},
		{"-1", 0, false},
		{"pct", 0, false},
	}
	for _, tc := range cases {
		got, err := ParsePercent(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{90000, "900.00"},
		{123456, "1,234.56"},
		{123456789, "1,234,567.89"},
		{-90050, "-900.50"},
	}
	for _, tc := range cases {
		if got := FormatUSD(tc.cents); got != tc.want {
			t.Fatalf("%d expected %q, got %q", tc.cents, tc.want, got)
		}
	}
}
