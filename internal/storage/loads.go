package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"truckpay/internal/core"
)

// scanLoad is the single conversion point between a loads row and the
// domain type.
func scanLoad(rows interface{ Scan(...any) error }) (core.Load, error) {
	var (
		l                core.Load
		pickup, delivery sql.NullString
		dateAdded        string
	)
	err := rows.Scan(&l.ID, &l.Rate.Cents, &l.CompanyDeductionPct, &l.DriverPay.Cents,
		&l.LocationFrom, &l.LocationTo, &pickup, &delivery, &dateAdded, &l.WeekPeriod)
	if err != nil {
		return core.Load{}, err
	}
	if l.DateAdded, err = core.ParseDate(dateAdded); err != nil {
		return core.Load{}, fmt.Errorf("load %d date_added %q: %w", l.ID, dateAdded, err)
	}
	if pickup.Valid && pickup.String != "" {
		if l.PickupDate, err = core.ParseDate(pickup.String); err != nil {
			return core.Load{}, fmt.Errorf("load %d pickup_date: %w", l.ID, err)
		}
	}
	if delivery.Valid && delivery.String != "" {
		if l.DeliveryDate, err = core.ParseDate(delivery.String); err != nil {
			return core.Load{}, fmt.Errorf("load %d delivery_date: %w", l.ID, err)
		}
	}
	return l, nil
}

func nullDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.ISO()
}

const loadColumns = `id, rate_cents, company_deduction_pct, driver_pay_cents,
	location_from, location_to, pickup_date, delivery_date, date_added, week_period`

// CreateLoad inserts a load for the user and returns the new identifier.
// DriverPay is recomputed here so a stale client value can never be stored.
func (r *Repository) CreateLoad(ctx context.Context, userID string, l core.Load) (int64, error) {
	l.DriverPay = core.DriverPay(l.Rate, l.CompanyDeductionPct)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO loads (user_id, rate_cents, company_deduction_pct, driver_pay_cents,
			location_from, location_to, pickup_date, delivery_date, date_added, week_period)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, l.Rate.Cents, l.CompanyDeductionPct, l.DriverPay.Cents,
		l.LocationFrom, l.LocationTo, nullDate(l.PickupDate), nullDate(l.DeliveryDate),
		l.DateAdded.ISO(), l.WeekPeriod)
	if err != nil {
		return 0, fmt.Errorf("create load: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create load id: %w", err)
	}

	slog.InfoContext(ctx, "Load saved",
		"id", id, "user_id", userID,
		"rate_cents", l.Rate.Cents, "driver_pay_cents", l.DriverPay.Cents)
	return id, nil
}

func (r *Repository) GetLoad(ctx context.Context, userID string, id int64) (core.Load, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+loadColumns+` FROM loads WHERE id = ? AND user_id = ?`, id, userID)
	l, err := scanLoad(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Load{}, ErrNotFound
	}
	if err != nil {
		return core.Load{}, fmt.Errorf("get load: %w", err)
	}
	return l, nil
}

// ListLoads returns all loads for the user, newest first.
func (r *Repository) ListLoads(ctx context.Context, userID string) ([]core.Load, error) {
	return r.listLoads(ctx,
		`SELECT `+loadColumns+` FROM loads WHERE user_id = ? ORDER BY date_added DESC, id DESC`,
		userID)
}

// ListLoadsInRange returns loads attributed to dates within [start, end].
func (r *Repository) ListLoadsInRange(ctx context.Context, userID string, start, end core.Date) ([]core.Load, error) {
	return r.listLoads(ctx,
		`SELECT `+loadColumns+` FROM loads
		 WHERE user_id = ? AND date_added >= ? AND date_added <= ?
		 ORDER BY date_added DESC, id DESC`,
		userID, start.ISO(), end.ISO())
}

func (r *Repository) listLoads(ctx context.Context, query string, args ...any) ([]core.Load, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list loads: %w", err)
	}
	defer rows.Close()

	var loads []core.Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, fmt.Errorf("scan load: %w", err)
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

// UpdateLoad rewrites an existing load in place. Driver pay is derived
// again from the submitted rate and percentage.
func (r *Repository) UpdateLoad(ctx context.Context, userID string, l core.Load) error {
	l.DriverPay = core.DriverPay(l.Rate, l.CompanyDeductionPct)

	res, err := r.db.ExecContext(ctx, `
		UPDATE loads SET rate_cents = ?, company_deduction_pct = ?, driver_pay_cents = ?,
			location_from = ?, location_to = ?, pickup_date = ?, delivery_date = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		l.Rate.Cents, l.CompanyDeductionPct, l.DriverPay.Cents,
		l.LocationFrom, l.LocationTo, nullDate(l.PickupDate), nullDate(l.DeliveryDate),
		l.ID, userID)
	if err != nil {
		return fmt.Errorf("update load: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteLoad(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM loads WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete load: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
