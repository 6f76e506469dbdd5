package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Solo DriverType = "solo"
	Team DriverType = "team"
)

type (
	DriverType string

	// Date is a date-only value. The time portion is always midnight UTC so
	// comparisons between dates behave like comparisons between calendar days.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Load is one freight load. DriverPay is always derived from Rate and
	// CompanyDeductionPct, never edited on its own.
	Load struct {
		ID                  int64
		Rate                Money
		CompanyDeductionPct float64
		DriverPay           Money
		LocationFrom        string
		LocationTo          string
		PickupDate          Date // optional, zero when unset
		DeliveryDate        Date // optional, zero when unset
		DateAdded           Date // attributes the load to a week
		WeekPeriod          string
	}

	// Deduction is a recurring (fixed) or predefined deduction type row.
	// Amount changes to a fixed deduction append new rows rather than
	// overwriting, so past weeks resolve the amount that was in effect then.
	Deduction struct {
		ID           int64
		Type         string
		Amount       Money
		IsFixed      bool
		IsCustomType bool
		DateAdded    Date
	}

	// WeeklyDeduction is a variable per-week amount keyed by
	// (user, week start, type). A zero amount means the row is absent.
	WeeklyDeduction struct {
		WeekStart Date
		Type      string
		Amount    Money
	}

	// ExtraDeduction is an ad hoc one-off deduction for a week.
	ExtraDeduction struct {
		ID        int64
		WeekStart Date
		Name      string
		Amount    Money
		DateAdded time.Time
	}

	// WeeklyMileage holds odometer readings for a week. Readings are
	// pointers because "not entered yet" is different from zero.
	WeeklyMileage struct {
		WeekStart    Date
		StartMileage *int64
		EndMileage   *int64
	}

	ExpenseType struct {
		ID   int64
		Name string
	}

	// Expense is a personal expense belonging to one ExpenseType.
	Expense struct {
		ID     int64
		TypeID int64
		Amount Money
		Date   Date
		Note   string
	}

	// Profile is the per-user settings record. WeeklyPeriodUpdatedAt is zero
	// when the weekly period has never been changed.
	Profile struct {
		UserID                string
		FullName              string
		Phone                 string
		Email                 string
		DriverType            DriverType
		CompanyDeductionPct   float64
		WeeklyPeriod          string
		WeeklyPeriodUpdatedAt time.Time
	}

	// PeriodChange records that a user's weekly period became Period on
	// EffectiveFrom. The history makes historical week resolution exact.
	PeriodChange struct {
		EffectiveFrom Date
		Period        string
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidPercent  = errors.New("invalid percent")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyLocation   = errors.New("empty location")
	ErrEmptyType       = errors.New("empty deduction type")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidDriver   = errors.New("invalid driver type")
	ErrInvalidPeriod   = errors.New("invalid weekly period")
	ErrInvalidMileage  = errors.New("invalid mileage")
	ErrUnknownExpense  = errors.New("unknown expense type")
	ErrInvalidDocument = errors.New("invalid export document")
)

// NewDate creates a date-only value.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO yyyy-MM-dd string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

// ISO renders the date as yyyy-MM-dd, or "" for the zero date.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// AddDays returns the date n calendar days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.AddDate(0, 0, n))
}

// IsEmpty reports whether the date is unset.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (l Load) Validate() error {
	if err := l.Rate.Validate(); err != nil {
		return err
	}
	if l.CompanyDeductionPct < 0 || l.CompanyDeductionPct > 100 {
		return ErrInvalidPercent
	}
	if strings.TrimSpace(l.LocationFrom) == "" || strings.TrimSpace(l.LocationTo) == "" {
		return ErrEmptyLocation
	}
	if l.DateAdded.IsZero() {
		return ErrInvalidDate
	}
	if !l.PickupDate.IsZero() && !l.DeliveryDate.IsZero() && l.DeliveryDate.Before(l.PickupDate.Time) {
		return errors.New("delivery date before pickup date")
	}
	return nil
}

func (d Deduction) Validate() error {
	if strings.TrimSpace(d.Type) == "" {
		return ErrEmptyType
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if d.DateAdded.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (e ExtraDeduction) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	return e.Amount.Validate()
}

// TotalMiles is end minus start, floored at zero. Missing readings count
// as zero driven miles.
func (w WeeklyMileage) TotalMiles() int64 {
	if w.StartMileage == nil || w.EndMileage == nil {
		return 0
	}
	miles := *w.EndMileage - *w.StartMileage
	if miles < 0 {
		return 0
	}
	return miles
}

func (w WeeklyMileage) Validate() error {
	if w.StartMileage != nil && *w.StartMileage < 0 {
		return ErrInvalidMileage
	}
	if w.EndMileage != nil && *w.EndMileage < 0 {
		return ErrInvalidMileage
	}
	return nil
}

func (e Expense) Validate() error {
	if e.TypeID <= 0 {
		return ErrUnknownExpense
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(e.Note) > 500 {
		return errors.New("note too long (max 500 characters)")
	}
	return nil
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.FullName) == "" {
		return ErrEmptyName
	}
	switch p.DriverType {
	case Solo, Team:
	default:
		return ErrInvalidDriver
	}
	if p.CompanyDeductionPct < 0 || p.CompanyDeductionPct > 100 {
		return ErrInvalidPercent
	}
	if _, ok := weekStartDays[p.WeeklyPeriod]; p.WeeklyPeriod != "" && !ok {
		return ErrInvalidPeriod
	}
	return nil
}
