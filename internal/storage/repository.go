// Package storage is the persistence gateway: a SQLite-backed row store
// where every read and write is filtered by the owning user's identifier.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"truckpay/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist for the given user.
var ErrNotFound = errors.New("not found")

type Repository struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at dbPath and applies
// migrations. Use ":memory:" for tests.
func Open(dbPath string) (*Repository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes access through a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// User is an account row. The password hash is bcrypt.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

func (r *Repository) CreateUser(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// UpsertProfile writes the whole profile row for a user.
func (r *Repository) UpsertProfile(ctx context.Context, p core.Profile) error {
	var changedAt any
	if !p.WeeklyPeriodUpdatedAt.IsZero() {
		changedAt = p.WeeklyPeriodUpdatedAt
	}
	_, err := r.db.ExecContext(ctx, `
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
		p.UserID, p.FullName, p.Phone, p.Email, string(p.DriverType),
		p.CompanyDeductionPct, p.WeeklyPeriod, changedAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *Repository) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	var (
		p         core.Profile
		driver    string
		changedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, full_name, phone, email, driver_type,
			company_deduction_pct, weekly_period, weekly_period_updated_at
		FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.FullName, &p.Phone, &p.Email, &driver,
			&p.CompanyDeductionPct, &p.WeeklyPeriod, &changedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, ErrNotFound
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	p.DriverType = core.DriverType(driver)
	if changedAt.Valid {
		p.WeeklyPeriodUpdatedAt = changedAt.Time
	}
	return p, nil
}

// ChangeWeeklyPeriod updates the profile's period, stamps the change time,
// and appends the history row that makes historical week resolution exact.
// Both writes happen in one transaction.
func (r *Repository) ChangeWeeklyPeriod(ctx context.Context, userID, period string, effective core.Date) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin change weekly period: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE profiles SET weekly_period = ?, weekly_period_updated_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?`, period, effective.Time, userID)
	if err != nil {
		return fmt.Errorf("update weekly period: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO weekly_period_history (user_id, effective_from, period)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, effective_from) DO UPDATE SET period = excluded.period`,
		userID, effective.ISO(), period)
	if err != nil {
		return fmt.Errorf("append period history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit change weekly period: %w", err)
	}

	slog.InfoContext(ctx, "Weekly period changed",
		"user_id", userID, "period", period, "effective_from", effective.ISO())
	return nil
}

// ListPeriodChanges returns the user's period history sorted ascending by
// effective date, the order core.PeriodForDate expects.
func (r *Repository) ListPeriodChanges(ctx context.Context, userID string) ([]core.PeriodChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT effective_from, period FROM weekly_period_history
		WHERE user_id = ? ORDER BY effective_from ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list period changes: %w", err)
	}
	defer rows.Close()

	var changes []core.PeriodChange
	for rows.Next() {
		var iso, period string
		if err := rows.Scan(&iso, &period); err != nil {
			return nil, fmt.Errorf("scan period change: %w", err)
		}
		d, err := core.ParseDate(iso)
		if err != nil {
			return nil, fmt.Errorf("parse period change date %q: %w", iso, err)
		}
		changes = append(changes, core.PeriodChange{EffectiveFrom: d, Period: period})
	}
	return changes, rows.Err()
}
