package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// WeekSummary aggregates a week (or multi-week range) of loads and
// deductions into the numbers drivers actually look at.
type WeekSummary struct {
	GrossPay         Money
	DriverPay        Money
	WeeklyDeductions Money
	ExtraDeductions  Money
	FixedDeductions  Money
	TotalDeductions  Money
	NetPay           Money
	RetentionPct     float64
	Weeks            int
}

// RetentionTier buckets the retention percentage for the summary insight.
type RetentionTier int

const (
	RetentionLow  RetentionTier = iota // below 50%
	RetentionMid                       // 50% up to 70%
	RetentionHigh                      // 70% and above
)

var oneHundred = decimal.NewFromInt(100)

// DriverPay computes the driver's cut of a load: rate * (1 - pct/100),
// rounded half-up to cents. The percentage is clamped to [0, 100] here as
// well as at the input boundary, so a bad row can never produce pay above
// the rate or below zero.
func DriverPay(rate Money, companyDeductionPct float64) Money {
	if companyDeductionPct != companyDeductionPct || companyDeductionPct < 0 {
		companyDeductionPct = 0
	}
	if companyDeductionPct > 100 {
		companyDeductionPct = 100
	}
	pct := decimal.NewFromFloat(companyDeductionPct)
	keep := decimal.NewFromInt(1).Sub(pct.Div(oneHundred))
	pay := decimal.NewFromInt(rate.Cents).Mul(keep).Round(0)
	return Money{Cents: pay.IntPart()}
}

// FixedDeductionsForWeek resolves the recurring deduction total for the week
// starting at weekStart. Rows flagged fixed are grouped by type; within each
// type the amount whose effective date is most recent without passing the
// week start wins. Types whose every row postdates the week contribute
// nothing. Resolving the same inputs twice yields the same total.
func FixedDeductionsForWeek(deductions []Deduction, weekStart Date) Money {
	byType := make(map[string][]Deduction)
	for _, d := range deductions {
		if !d.IsFixed {
			continue
		}
		if d.DateAdded.IsZero() || d.DateAdded.After(weekStart.Time) {
			continue
		}
		byType[d.Type] = append(byType[d.Type], d)
	}

	var total int64
	for _, group := range byType {
		sort.Slice(group, func(i, j int) bool {
			return group[i].DateAdded.After(group[j].DateAdded.Time)
		})
		total += group[0].Amount.Cents
	}
	return Money{Cents: total}
}

// SummarizeWeek combines one week of loads and deductions. The fixed total
// must already be resolved for the week via FixedDeductionsForWeek.
func SummarizeWeek(loads []Load, weekly []WeeklyDeduction, extra []ExtraDeduction, fixed Money) WeekSummary {
	return summarize(loads, weekly, extra, fixed, 1)
}

// SummarizeRange aggregates a multi-week period. fixedPerWeek is the
// per-week resolved fixed-deduction sum; it is scaled by weeks, which
// callers compute with WeeksInRange.
func SummarizeRange(loads []Load, weekly []WeeklyDeduction, extra []ExtraDeduction, fixedPerWeek Money, weeks int) WeekSummary {
	if weeks < 1 {
		weeks = 1
	}
	return summarize(loads, weekly, extra, Money{Cents: fixedPerWeek.Cents * int64(weeks)}, weeks)
}

func summarize(loads []Load, weekly []WeeklyDeduction, extra []ExtraDeduction, fixed Money, weeks int) WeekSummary {
	var gross, driver int64
	for _, l := range loads {
		gross += l.Rate.Cents
		driver += l.DriverPay.Cents
	}
	var weeklyTotal int64
	for _, d := range weekly {
		weeklyTotal += d.Amount.Cents
	}
	var extraTotal int64
	for _, e := range extra {
		extraTotal += e.Amount.Cents
	}

	deductions := weeklyTotal + extraTotal + fixed.Cents
	net := driver - deductions

	return WeekSummary{
		GrossPay:         Money{Cents: gross},
		DriverPay:        Money{Cents: driver},
		WeeklyDeductions: Money{Cents: weeklyTotal},
		ExtraDeductions:  Money{Cents: extraTotal},
		FixedDeductions:  fixed,
		TotalDeductions:  Money{Cents: deductions},
		NetPay:           Money{Cents: net},
		RetentionPct:     RetentionPct(Money{Cents: net}, Money{Cents: driver}),
		Weeks:            weeks,
	}
}

// RetentionPct is net pay over driver pay as a percentage. Zero driver pay
// yields 0 rather than propagating Inf or NaN.
func RetentionPct(net, driverPay Money) float64 {
	if driverPay.Cents == 0 {
		return 0
	}
	return float64(net.Cents) / float64(driverPay.Cents) * 100
}

// RPM is gross revenue per mile in dollars. Zero miles yields 0.
func RPM(gross Money, totalMiles int64) float64 {
	if totalMiles <= 0 {
		return 0
	}
	return gross.Dollars() / float64(totalMiles)
}

// Tier buckets a retention percentage at the 50% and 70% boundaries.
func Tier(retentionPct float64) RetentionTier {
	switch {
	case retentionPct >= 70:
		return RetentionHigh
	case retentionPct >= 50:
		return RetentionMid
	default:
		return RetentionLow
	}
}

// Insight returns the summary message for a retention tier.
func (t RetentionTier) Insight() string {
	switch t {
	case RetentionHigh:
		return "Strong week: you kept most of what you earned."
	case RetentionMid:
		return "Decent week, but deductions took a real bite."
	default:
		return "Deductions ate more than half of your pay this week."
	}
}
