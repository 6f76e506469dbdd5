// Package worker mirrors load rows into the driver's spreadsheet. AMQP
// messages are the fast path; the database queue is scanned as backup
// for anything the broker dropped.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"truckpay/internal/amqp"
	"truckpay/internal/core"
	"truckpay/internal/sheets"
	"truckpay/internal/storage"
)

// Store is the repository slice the worker needs.
type Store interface {
	GetLoad(ctx context.Context, userID string, id int64) (core.Load, error)
	DequeueSyncBatch(ctx context.Context, limit int) ([]storage.SyncItem, error)
	MarkSyncProcessing(ctx context.Context, id int64) error
	MarkSyncDone(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64, cause string) error
	MarkSyncFailed(ctx context.Context, id int64, cause string) error
	ResetStaleProcessing(ctx context.Context) error
	CleanupCompletedSync(ctx context.Context, age time.Duration) (int64, error)
}

// SyncWorker applies one load change to the spreadsheet mirror.
type SyncWorker struct {
	store  Store
	mirror sheets.LoadMirror
}

func NewSyncWorker(store Store, mirror sheets.LoadMirror) *SyncWorker {
	return &SyncWorker{store: store, mirror: mirror}
}

// HandleMessage processes one AMQP load sync message. The current row
// is always re-read from the database, so stale or reordered messages
// converge on the latest state.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.LoadSyncMessage) error {
	slog.InfoContext(ctx, "Processing load sync message",
		"user_id", msg.UserID,
		"load_id", msg.LoadID,
		"operation", msg.Operation)

	switch msg.Operation {
	case amqp.OperationDelete:
		return w.deleteRow(ctx, msg.UserID, msg.LoadID)
	case amqp.OperationSync:
		return w.syncRow(ctx, msg.UserID, msg.LoadID)
	default:
		return fmt.Errorf("unknown operation %q", msg.Operation)
	}
}

func (w *SyncWorker) syncRow(ctx context.Context, userID string, loadID int64) error {
	load, err := w.store.GetLoad(ctx, userID, loadID)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted between message and fetch; remove the mirrored row.
		return w.deleteRow(ctx, userID, loadID)
	}
	if err != nil {
		return fmt.Errorf("get load %d: %w", loadID, err)
	}

	ref, err := w.mirror.Upsert(ctx, userID, load)
	if err != nil {
		return fmt.Errorf("upsert load %d: %w", loadID, err)
	}
	slog.InfoContext(ctx, "Mirrored load", "load_id", loadID, "row_ref", ref)
	return nil
}

func (w *SyncWorker) deleteRow(ctx context.Context, userID string, loadID int64) error {
	if err := w.mirror.Delete(ctx, userID, loadID); err != nil {
		return fmt.Errorf("delete load %d from mirror: %w", loadID, err)
	}
	return nil
}
