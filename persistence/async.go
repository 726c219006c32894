// persistence/async.go
package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/storyserver/logger"
	"github.com/wfunc/storyserver/models"
)

const writeTimeout = 5 * time.Second

// AsyncWriter queues records for a single background writer so callers never
// block on IO. A full queue drops the record.
type AsyncWriter struct {
	journal Journal
	queue   chan func(ctx context.Context) error
	mutex   sync.RWMutex
	closed  bool
	done    chan struct{}
}

func NewAsyncWriter(journal Journal, buffer int) *AsyncWriter {
	if buffer <= 0 {
		buffer = 1
	}
	w := &AsyncWriter{
		journal: journal,
		queue:   make(chan func(ctx context.Context) error, buffer),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for write := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := write(ctx); err != nil {
			logger.Log.Warnf("journal write failed: %v", err)
		}
		cancel()
	}
}

func (w *AsyncWriter) enqueue(write func(ctx context.Context) error) error {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	if w.closed {
		return ErrJournalClosed
	}
	select {
	case w.queue <- write:
		return nil
	default:
		logger.Log.Warn("journal buffer full, dropping record")
		return ErrBufferFull
	}
}

// RecordAction queues the record; ctx is not used for the deferred write.
func (w *AsyncWriter) RecordAction(_ context.Context, record models.ActionRecord) error {
	return w.enqueue(func(ctx context.Context) error {
		return w.journal.RecordAction(ctx, record)
	})
}

func (w *AsyncWriter) RecordTrade(_ context.Context, record models.TradeRecord) error {
	return w.enqueue(func(ctx context.Context) error {
		return w.journal.RecordTrade(ctx, record)
	})
}

// Close drains queued records, then closes the underlying journal.
func (w *AsyncWriter) Close() error {
	w.mutex.Lock()
	if w.closed {
		w.mutex.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mutex.Unlock()

	<-w.done
	return w.journal.Close()
}
