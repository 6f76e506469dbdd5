package storage

import (
	"context"
	"fmt"
	"log/slog"

	"truckpay/internal/core"
)

func scanDeduction(rows interface{ Scan(...any) error }) (core.Deduction, error) {
	var (
		d         core.Deduction
		dateAdded string
	)
	err := rows.Scan(&d.ID, &d.Type, &d.Amount.Cents, &d.IsFixed, &d.IsCustomType, &dateAdded)
	if err != nil {
		return core.Deduction{}, err
	}
	if d.DateAdded, err = core.ParseDate(dateAdded); err != nil {
		return core.Deduction{}, fmt.Errorf("deduction %d date_added %q: %w", d.ID, dateAdded, err)
	}
	return d, nil
}

func (r *Repository) CreateDeduction(ctx context.Context, userID string, d core.Deduction) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO deductions (user_id, type, amount_cents, is_fixed, is_custom_type, date_added)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, d.Type, d.Amount.Cents, d.IsFixed, d.IsCustomType, d.DateAdded.ISO())
	if err != nil {
		return 0, fmt.Errorf("create deduction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create deduction id: %w", err)
	}
	return id, nil
}

// ListDeductions returns every deduction row for the user, oldest first so
// append-only amount history reads in effective order.
func (r *Repository) ListDeductions(ctx context.Context, userID string) ([]core.Deduction, error) {
	return r.listDeductions(ctx, `
		SELECT id, type, amount_cents, is_fixed, is_custom_type, date_added
		FROM deductions WHERE user_id = ? ORDER BY date_added ASC, id ASC`, userID)
}

// ListFixedDeductions returns only rows flagged fixed.
func (r *Repository) ListFixedDeductions(ctx context.Context, userID string) ([]core.Deduction, error) {
	return r.listDeductions(ctx, `
		SELECT id, type, amount_cents, is_fixed, is_custom_type, date_added
		FROM deductions WHERE user_id = ? AND is_fixed = 1 ORDER BY date_added ASC, id ASC`, userID)
}

func (r *Repository) listDeductions(ctx context.Context, query string, args ...any) ([]core.Deduction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deductions: %w", err)
	}
	defer rows.Close()

	var out []core.Deduction
	for rows.Next() {
		d, err := scanDeduction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deduction: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeductionTypes returns the distinct type names the user has recorded.
func (r *Repository) DeductionTypes(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT type FROM deductions WHERE user_id = ? ORDER BY type`, userID)
	if err != nil {
		return nil, fmt.Errorf("deduction types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan deduction type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// ChangeFixedAmount records a new amount for a fixed deduction type by
// appending a row effective from the given date. The old rows stay so past
// weeks keep resolving the amount that applied then.
func (r *Repository) ChangeFixedAmount(ctx context.Context, userID, dedType string, amount core.Money, effective core.Date) (int64, error) {
	id, err := r.CreateDeduction(ctx, userID, core.Deduction{
		Type:      dedType,
		Amount:    amount,
		IsFixed:   true,
		DateAdded: effective,
	})
	if err != nil {
		return 0, fmt.Errorf("change fixed amount: %w", err)
	}
	slog.InfoContext(ctx, "Fixed deduction amount versioned",
		"user_id", userID, "type", dedType,
		"amount_cents", amount.Cents, "effective_from", effective.ISO())
	return id, nil
}

// SetDeductionFixed flips the fixed flag without deleting the row, which
// preserves amount history implicitly.
func (r *Repository) SetDeductionFixed(ctx context.Context, userID string, id int64, fixed bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE deductions SET is_fixed = ? WHERE id = ? AND user_id = ?`, fixed, id, userID)
	if err != nil {
		return fmt.Errorf("set deduction fixed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteDeduction(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM deductions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete deduction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
