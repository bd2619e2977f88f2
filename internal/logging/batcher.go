package logging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// BatchWriteFunc writes one batch of events.
type BatchWriteFunc func(ctx context.Context, entries []*Event) error

// Batcher buffers build events and writes them in batches, when a batch is
// full or the flush interval expires.
type Batcher struct {
	entries       chan *Event
	batchSize     int
	flushInterval time.Duration
	writeFunc     BatchWriteFunc
	wg            sync.WaitGroup
	done          chan struct{}
	flushReq      chan chan error
	mu            sync.Mutex
	closed        bool

	droppedCount    atomic.Int64
	lastDroppedWarn time.Time
	droppedWarnMu   sync.Mutex
}

// NewBatcher creates a new event batcher.
func NewBatcher(batchSize int, flushInterval time.Duration, bufferSize int, writeFunc BatchWriteFunc) *Batcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	b := &Batcher{
		entries:       make(chan *Event, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		writeFunc:     writeFunc,
		done:          make(chan struct{}),
		flushReq:      make(chan chan error),
	}

	b.wg.Add(1)
	go b.run()

	return b
}

// Add adds an event to the batch buffer. If the buffer is full the event is
// dropped and a warning is logged at most every ten seconds.
func (b *Batcher) Add(entry *Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	select {
	case b.entries <- entry:
	default:
		dropped := b.droppedCount.Add(1)

		b.droppedWarnMu.Lock()
		if time.Since(b.lastDroppedWarn) > 10*time.Second {
			log.Warn().
				Int64("dropped_count", dropped).
				Int("buffer_size", cap(b.entries)).
				Msg("Build log buffer full, events dropped")
			b.lastDroppedWarn = time.Now()
		}
		b.droppedWarnMu.Unlock()
	}
}

// Flush writes every buffered event.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	resultCh := make(chan error, 1)

	select {
	case b.flushReq <- resultCh:
		select {
		case err := <-resultCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes remaining events and stops the batcher.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()

	return nil
}

// run collects events and writes them on size, interval, flush request or close.
func (b *Batcher) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	var batch []*Event
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := b.writeFunc(ctx, batch)
		batch = nil
		return err
	}

	for {
		select {
		case <-b.done:
			batch = b.drain(batch)
			_ = flush()
			return

		case resultCh := <-b.flushReq:
			batch = b.drain(batch)
			resultCh <- flush()

		case event := <-b.entries:
			if event == nil {
				continue
			}
			batch = append(batch, event)
			if len(batch) >= b.batchSize {
				_ = flush()
			}

		case <-ticker.C:
			_ = flush()
		}
	}
}

// drain appends every buffered event to batch without blocking.
func (b *Batcher) drain(batch []*Event) []*Event {
	for {
		select {
		case event := <-b.entries:
			if event != nil {
				batch = append(batch, event)
			}
		default:
			return batch
		}
	}
}

// Dropped returns the number of events dropped because the buffer was full.
func (b *Batcher) Dropped() int64 {
	return b.droppedCount.Load()
}
