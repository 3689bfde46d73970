package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/audit"
)

// writeTimeout bounds each audit store write.
const writeTimeout = time.Second

// AuditWriter persists audit entries. Writes are best-effort
// synchronous: a failed or slow store write does not fail the request;
// the entry lands in a bounded retry buffer (drop-oldest on overflow)
// flushed by a background worker. Loss is observable through DropCount.
type AuditWriter struct {
	store         audit.Store
	logger        *slog.Logger
	buffer        chan audit.Entry
	flushInterval time.Duration
	dropCount     atomic.Int64
	degradedCount atomic.Int64

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// AuditOption configures an AuditWriter.
type AuditOption func(*AuditWriter)

// WithAuditBufferSize sets the retry buffer capacity.
func WithAuditBufferSize(n int) AuditOption {
	return func(w *AuditWriter) { w.buffer = make(chan audit.Entry, n) }
}

// WithAuditFlushInterval sets how often the worker retries buffered entries.
func WithAuditFlushInterval(d time.Duration) AuditOption {
	return func(w *AuditWriter) { w.flushInterval = d }
}

// NewAuditWriter creates an audit writer over the given store.
func NewAuditWriter(store audit.Store, logger *slog.Logger, opts ...AuditOption) *AuditWriter {
	w := &AuditWriter{
		store:         store,
		logger:        logger,
		buffer:        make(chan audit.Entry, 1000),
		flushInterval: 5 * time.Second,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the background flush worker.
func (w *AuditWriter) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.worker(ctx)
}

// Stop drains the buffer once and waits for the worker to exit.
func (w *AuditWriter) Stop() {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()
}

// Write persists the entry. It attempts a synchronous store write within
// writeTimeout; on failure the entry is buffered for later flush so the
// entry is durable-or-enqueued before the caller responds.
func (w *AuditWriter) Write(ctx context.Context, e audit.Entry) {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	err := w.store.Write(wctx, e)
	cancel()
	if err == nil {
		return
	}

	w.degradedCount.Add(1)
	w.logger.Warn("audit store write failed, buffering entry",
		"request_id", e.RequestID, "error", err)
	w.enqueue(e)
}

// enqueue adds the entry to the retry buffer, dropping the oldest
// buffered entry when full.
func (w *AuditWriter) enqueue(e audit.Entry) {
	for {
		select {
		case w.buffer <- e:
			return
		default:
		}
		// Buffer full: drop the oldest entry and retry.
		select {
		case <-w.buffer:
			w.dropCount.Add(1)
		default:
		}
	}
}

// DropCount returns the number of entries dropped on buffer overflow.
func (w *AuditWriter) DropCount() int64 { return w.dropCount.Load() }

// DegradedCount returns the number of failed synchronous writes.
func (w *AuditWriter) DegradedCount() int64 { return w.degradedCount.Load() }

// Buffered returns the current retry buffer depth (for health reporting).
func (w *AuditWriter) Buffered() int { return len(w.buffer) }

func (w *AuditWriter) worker(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			return
		case <-w.done:
			w.flush(context.Background())
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// flush retries buffered entries until the buffer is empty or a write
// fails (the store is presumably still down; the failed entry is
// re-buffered and the flush stops).
func (w *AuditWriter) flush(ctx context.Context) {
	for {
		select {
		case e := <-w.buffer:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := w.store.Write(wctx, e)
			cancel()
			if err != nil {
				w.enqueue(e)
				return
			}
		default:
			return
		}
	}
}
