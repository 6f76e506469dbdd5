package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"truckpay/internal/amqp"
	"truckpay/internal/storage"
)

// ProcessorConfig tunes the backup queue scanner.
type ProcessorConfig struct {
	// PollInterval is how often to check for pending items.
	PollInterval time.Duration

	// BatchSize is the max number of items per poll cycle.
	BatchSize int

	// MaxRetries is the attempt cap before an item is parked.
	MaxRetries int

	// CleanupInterval is how often to purge completed items.
	CleanupInterval time.Duration

	// CleanupAge is how old completed items must be before purging.
	CleanupAge time.Duration
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// Processor drains the load_sync_queue table: the backup path that
// re-mirrors rows whose AMQP messages were lost.
type Processor struct {
	worker *SyncWorker
	store  Store
	config ProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewProcessor(worker *SyncWorker, store Store, config ProcessorConfig) *Processor {
	return &Processor{
		worker: worker,
		store:  store,
		config: config,
	}
}

// Start begins the scan loop. Returns an error if already running.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Items stuck in processing mean a previous worker crashed mid-batch.
	if err := p.store.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing items", "error", err)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for the loop to exit.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup.
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch handles one batch of pending queue items.
func (p *Processor) ProcessBatch(ctx context.Context) {
	items, err := p.store.DequeueSyncBatch(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue sync batch", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	slog.DebugContext(ctx, "Processing sync batch", "count", len(items))

	for _, item := range items {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.store.MarkSyncProcessing(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark item as processing",
				"id", item.ID, "error", err)
			continue
		}

		if err := p.processItem(ctx, item); err != nil {
			p.handleFailure(ctx, item, err)
		} else {
			p.handleSuccess(ctx, item)
		}
	}
}

func (p *Processor) processItem(ctx context.Context, item storage.SyncItem) error {
	msg := &amqp.LoadSyncMessage{
		UserID:    item.UserID,
		LoadID:    item.LoadID,
		Operation: item.Operation,
	}
	return p.worker.HandleMessage(ctx, msg)
}

func (p *Processor) handleSuccess(ctx context.Context, item storage.SyncItem) {
	if err := p.store.MarkSyncDone(ctx, item.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync done",
			"id", item.ID, "error", err)
	}
}

func (p *Processor) handleFailure(ctx context.Context, item storage.SyncItem, cause error) {
	// Attempts counts failures before this one.
	if item.Attempts+1 >= p.config.MaxRetries {
		slog.ErrorContext(ctx, "Giving up on sync item",
			"id", item.ID,
			"load_id", item.LoadID,
			"attempts", item.Attempts+1,
			"error", cause)
		if err := p.store.MarkSyncFailed(ctx, item.ID, cause.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to park sync item", "id", item.ID, "error", err)
		}
		return
	}

	slog.WarnContext(ctx, "Sync item failed, will retry",
		"id", item.ID,
		"load_id", item.LoadID,
		"attempts", item.Attempts+1,
		"error", cause)
	if err := p.store.MarkSyncError(ctx, item.ID, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to re-queue sync item", "id", item.ID, "error", err)
	}
}

func (p *Processor) cleanupCompleted(ctx context.Context) {
	n, err := p.store.CleanupCompletedSync(ctx, p.config.CleanupAge)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to clean up completed sync items", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed sync items", "count", n)
	}
}
