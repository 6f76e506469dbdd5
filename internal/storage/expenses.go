package storage

import (
	"context"
	"database/sql"
	"fmt"

	"truckpay/internal/core"
)

func (r *Repository) CreateExpenseType(ctx context.Context, userID, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expense_types (user_id, name) VALUES (?, ?)`, userID, name)
	if err != nil {
		return 0, fmt.Errorf("create expense type: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create expense type id: %w", err)
	}
	return id, nil
}

func (r *Repository) ListExpenseTypes(ctx context.Context, userID string) ([]core.ExpenseType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM expense_types WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expense types: %w", err)
	}
	defer rows.Close()

	var types []core.ExpenseType
	for rows.Next() {
		var t core.ExpenseType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan expense type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// DeleteExpenseType removes the type only. Expenses that referenced it are
// left in place and read back with the "unknown" type name.
func (r *Repository) DeleteExpenseType(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expense_types WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense type: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CreateExpense(ctx context.Context, userID string, e core.Expense) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (user_id, type_id, amount_cents, date, note)
		VALUES (?, ?, ?, ?, ?)`,
		userID, e.TypeID, e.Amount.Cents, e.Date.ISO(), e.Note)
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create expense id: %w", err)
	}
	return id, nil
}

// ExpenseWithType pairs an expense with its resolved type name. Orphaned
// expenses (type deleted afterwards) carry TypeName "unknown".
type ExpenseWithType struct {
	Expense  core.Expense
	TypeName string
}

func (r *Repository) ListExpenses(ctx context.Context, userID string) ([]ExpenseWithType, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.type_id, e.amount_cents, e.date, e.note, t.name
		FROM expenses e
		LEFT JOIN expense_types t ON t.id = e.type_id AND t.user_id = e.user_id
		WHERE e.user_id = ?
		ORDER BY e.date DESC, e.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []ExpenseWithType
	for rows.Next() {
		var (
			e        core.Expense
			iso      string
			typeName sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TypeID, &e.Amount.Cents, &iso, &e.Note, &typeName); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Date, err = core.ParseDate(iso); err != nil {
			return nil, fmt.Errorf("expense %d date %q: %w", e.ID, iso, err)
		}
		name := "unknown"
		if typeName.Valid {
			name = typeName.String
		}
		out = append(out, ExpenseWithType{Expense: e, TypeName: name})
	}
	return out, rows.Err()
}

func (r *Repository) UpdateExpense(ctx context.Context, userID string, e core.Expense) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET type_id = ?, amount_cents = ?, date = ?, note = ?
		WHERE id = ? AND user_id = ?`,
		e.TypeID, e.Amount.Cents, e.Date.ISO(), e.Note, e.ID, userID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteExpense(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
