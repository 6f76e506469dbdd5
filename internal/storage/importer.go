package storage

import (
	"context"
	"fmt"

	"truckpay/internal/core"
)

// ImportAll re-inserts an exported document's rows for the current user in a
// single transaction. Original identifiers are discarded by insertion. On
// any failure nothing is committed and the error names the collection that
// failed, so a half-imported account can never exist.
func (r *Repository) ImportAll(ctx context.Context, userID string, profile core.Profile, loads []core.Load, deductions []core.Deduction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	profile.UserID = userID
	var changedAt any
	if !profile.WeeklyPeriodUpdatedAt.IsZero() {
		changedAt = profile.WeeklyPeriodUpdatedAt
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, full_name, phone, email, driver_type,
			company_deduction_pct, weekly_period, weekly_period_updated_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = excluded.full_name,
			phone = excluded.phone,
			email = excluded.email,
			driver_type = excluded.driver_type,
			company_deduction_pct = excluded.company_deduction_pct,
			weekly_period = excluded.weekly_period,
			weekly_period_updated_at = excluded.weekly_period_updated_at,
			updated_at = CURRENT_TIMESTAMP`,
		profile.UserID, profile.FullName, profile.Phone, profile.Email,
		string(profile.DriverType), profile.CompanyDeductionPct,
		profile.WeeklyPeriod, changedAt)
	if err != nil {
		return fmt.Errorf("import profile: %w", err)
	}

	for _, l := range loads {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("import loads: %w", err)
		}
		l.DriverPay = core.DriverPay(l.Rate, l.CompanyDeductionPct)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO loads (user_id, rate_cents, company_deduction_pct, driver_pay_cents,
				location_from, location_to, pickup_date, delivery_date, date_added, week_period)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, l.Rate.Cents, l.CompanyDeductionPct, l.DriverPay.Cents,
			l.LocationFrom, l.LocationTo, nullDate(l.PickupDate), nullDate(l.DeliveryDate),
			l.DateAdded.ISO(), l.WeekPeriod)
		if err != nil {
			return fmt.Errorf("import loads: %w", err)
		}
	}

	for _, d := range deductions {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("import deductions: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deductions (user_id, type, amount_cents, is_fixed, is_custom_type, date_added)
			VALUES (?, ?, ?, ?, ?, ?)`,
			userID, d.Type, d.Amount.Cents, d.IsFixed, d.IsCustomType, d.DateAdded.ISO())
		if err != nil {
			return fmt.Errorf("import deductions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}
