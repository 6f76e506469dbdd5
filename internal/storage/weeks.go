package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"truckpay/internal/core"
)

// UpsertWeeklyDeduction writes the variable per-week amount keyed by
// (user, week start, type). Callers must not pass zero amounts; a zero save
// is a delete (DeleteWeeklyDeduction).
func (r *Repository) UpsertWeeklyDeduction(ctx context.Context, userID string, d core.WeeklyDeduction) error {
	if d.Amount.Cents <= 0 {
		return core.ErrInvalidAmount
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO weekly_deductions (user_id, week_start, deduction_type, amount_cents, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, week_start, deduction_type) DO UPDATE SET
			amount_cents = excluded.amount_cents,
			updated_at = CURRENT_TIMESTAMP`,
		userID, d.WeekStart.ISO(), d.Type, d.Amount.Cents)
	if err != nil {
		return fmt.Errorf("upsert weekly deduction: %w", err)
	}
	return nil
}

// DeleteWeeklyDeduction removes the row for the (week start, type) pair.
// Deleting a row that does not exist is not an error: a cleared field saves
// as a delete regardless of whether anything was stored.
func (r *Repository) DeleteWeeklyDeduction(ctx context.Context, userID string, weekStart core.Date, dedType string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM weekly_deductions
		WHERE user_id = ? AND week_start = ? AND deduction_type = ?`,
		userID, weekStart.ISO(), dedType)
	if err != nil {
		return fmt.Errorf("delete weekly deduction: %w", err)
	}
	return nil
}

func (r *Repository) ListWeeklyDeductions(ctx context.Context, userID string, weekStart core.Date) ([]core.WeeklyDeduction, error) {
	return r.listWeeklyDeductions(ctx, `
		SELECT week_start, deduction_type, amount_cents FROM weekly_deductions
		WHERE user_id = ? AND week_start = ?`, userID, weekStart.ISO())
}

// ListWeeklyDeductionsInRange returns rows for every week start within
// [start, end].
func (r *Repository) ListWeeklyDeductionsInRange(ctx context.Context, userID string, start, end core.Date) ([]core.WeeklyDeduction, error) {
	return r.listWeeklyDeductions(ctx, `
		SELECT week_start, deduction_type, amount_cents FROM weekly_deductions
		WHERE user_id = ? AND week_start >= ? AND week_start <= ?`,
		userID, start.ISO(), end.ISO())
}

func (r *Repository) listWeeklyDeductions(ctx context.Context, query string, args ...any) ([]core.WeeklyDeduction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list weekly deductions: %w", err)
	}
	defer rows.Close()

	var out []core.WeeklyDeduction
	for rows.Next() {
		var (
			d   core.WeeklyDeduction
			iso string
		)
		if err := rows.Scan(&iso, &d.Type, &d.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan weekly deduction: %w", err)
		}
		if d.WeekStart, err = core.ParseDate(iso); err != nil {
			return nil, fmt.Errorf("weekly deduction week_start %q: %w", iso, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanExtraDeduction(rows interface{ Scan(...any) error }) (core.ExtraDeduction, error) {
	var (
		e   core.ExtraDeduction
		iso string
	)
	err := rows.Scan(&e.ID, &iso, &e.Name, &e.Amount.Cents, &e.DateAdded)
	if err != nil {
		return core.ExtraDeduction{}, err
	}
	if e.WeekStart, err = core.ParseDate(iso); err != nil {
		return core.ExtraDeduction{}, fmt.Errorf("extra deduction %d week_start: %w", e.ID, err)
	}
	return e, nil
}

func (r *Repository) InsertExtraDeduction(ctx context.Context, userID string, e core.ExtraDeduction) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO weekly_extra_deductions (user_id, week_start, name, amount_cents, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		userID, e.WeekStart.ISO(), e.Name, e.Amount.Cents, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert extra deduction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert extra deduction id: %w", err)
	}
	return id, nil
}

func (r *Repository) UpdateExtraDeduction(ctx context.Context, userID string, e core.ExtraDeduction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE weekly_extra_deductions SET name = ?, amount_cents = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		e.Name, e.Amount.Cents, e.ID, userID)
	if err != nil {
		return fmt.Errorf("update extra deduction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteExtraDeduction(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM weekly_extra_deductions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete extra deduction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListExtraDeductions(ctx context.Context, userID string, weekStart core.Date) ([]core.ExtraDeduction, error) {
	return r.listExtraDeductions(ctx, `
		SELECT id, week_start, name, amount_cents, updated_at FROM weekly_extra_deductions
		WHERE user_id = ? AND week_start = ? ORDER BY id`, userID, weekStart.ISO())
}

func (r *Repository) ListExtraDeductionsInRange(ctx context.Context, userID string, start, end core.Date) ([]core.ExtraDeduction, error) {
	return r.listExtraDeductions(ctx, `
		SELECT id, week_start, name, amount_cents, updated_at FROM weekly_extra_deductions
		WHERE user_id = ? AND week_start >= ? AND week_start <= ? ORDER BY id`,
		userID, start.ISO(), end.ISO())
}

func (r *Repository) listExtraDeductions(ctx context.Context, query string, args ...any) ([]core.ExtraDeduction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list extra deductions: %w", err)
	}
	defer rows.Close()

	var out []core.ExtraDeduction
	for rows.Next() {
		e, err := scanExtraDeduction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan extra deduction: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetWeeklyMileage returns the mileage row for a week. The boolean reports
// whether a row exists; a missing row is a normal state, not an error.
func (r *Repository) GetWeeklyMileage(ctx context.Context, userID string, weekStart core.Date) (core.WeeklyMileage, bool, error) {
	var (
		m          core.WeeklyMileage
		iso        string
		start, end sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT week_start, start_mileage, end_mileage FROM weekly_mileage
		WHERE user_id = ? AND week_start = ?`, userID, weekStart.ISO()).
		Scan(&iso, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return core.WeeklyMileage{WeekStart: weekStart}, false, nil
	}
	if err != nil {
		return core.WeeklyMileage{}, false, fmt.Errorf("get weekly mileage: %w", err)
	}
	if m.WeekStart, err = core.ParseDate(iso); err != nil {
		return core.WeeklyMileage{}, false, fmt.Errorf("weekly mileage week_start %q: %w", iso, err)
	}
	if start.Valid {
		m.StartMileage = &start.Int64
	}
	if end.Valid {
		m.EndMileage = &end.Int64
	}
	return m, true, nil
}

// UpsertWeeklyMileage writes odometer readings keyed by (user, week start).
// Total miles is derived, never stored.
func (r *Repository) UpsertWeeklyMileage(ctx context.Context, userID string, m core.WeeklyMileage) error {
	var start, end any
	if m.StartMileage != nil {
		start = *m.StartMileage
	}
	if m.EndMileage != nil {
		end = *m.EndMileage
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO weekly_mileage (user_id, week_start, start_mileage, end_mileage, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, week_start) DO UPDATE SET
			start_mileage = excluded.start_mileage,
			end_mileage = excluded.end_mileage,
			updated_at = CURRENT_TIMESTAMP`,
		userID, m.WeekStart.ISO(), start, end)
	if err != nil {
		return fmt.Errorf("upsert weekly mileage: %w", err)
	}
	return nil
}
