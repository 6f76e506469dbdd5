package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SyncItem is one entry in the spreadsheet-mirror backup queue.
type SyncItem struct {
	ID        int64
	UserID    string
	LoadID    int64
	Operation string // sync | delete
	Attempts  int
	CreatedAt time.Time
}

// EnqueueLoadSync records that a load changed and still needs mirroring.
// The AMQP message is the fast path; this row is the retry path.
func (r *Repository) EnqueueLoadSync(ctx context.Context, userID string, loadID int64, operation string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO load_sync_queue (user_id, load_id, operation) VALUES (?, ?, ?)`,
		userID, loadID, operation)
	if err != nil {
		return fmt.Errorf("enqueue load sync: %w", err)
	}
	return nil
}

// DequeueSyncBatch returns up to limit pending items, oldest first.
func (r *Repository) DequeueSyncBatch(ctx context.Context, limit int) ([]SyncItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, load_id, operation, attempts, created_at
		FROM load_sync_queue WHERE status = 'pending'
		ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	defer rows.Close()

	var items []SyncItem
	for rows.Next() {
		var it SyncItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.LoadID, &it.Operation, &it.Attempts, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sync item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) MarkSyncProcessing(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, "processing", "")
}

func (r *Repository) MarkSyncDone(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, "done", "")
}

// MarkSyncError re-queues the item with the failure recorded; items are
// retried until the worker's attempt cap gives up on them.
func (r *Repository) MarkSyncError(ctx context.Context, id int64, cause string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE load_sync_queue
		SET status = 'pending', attempts = attempts + 1, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, cause, id)
	if err != nil {
		return fmt.Errorf("mark sync error: %w", err)
	}
	return nil
}

// MarkSyncFailed parks an item permanently after too many attempts.
func (r *Repository) MarkSyncFailed(ctx context.Context, id int64, cause string) error {
	return r.setSyncStatus(ctx, id, "error", cause)
}

func (r *Repository) setSyncStatus(ctx context.Context, id int64, status, cause string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE load_sync_queue SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, status, cause, id)
	if err != nil {
		return fmt.Errorf("set sync status %s: %w", status, err)
	}
	return nil
}

// ResetStaleProcessing returns items stuck in processing (a previous worker
// crash) to pending so the next scan picks them up.
func (r *Repository) ResetStaleProcessing(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE load_sync_queue SET status = 'pending', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'processing'`)
	if err != nil {
		return fmt.Errorf("reset stale processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Reset stale sync items", "count", n)
	}
	return nil
}

// CleanupCompletedSync deletes done items older than age.
func (r *Repository) CleanupCompletedSync(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).UTC()
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM load_sync_queue WHERE status = 'done' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup completed sync: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
