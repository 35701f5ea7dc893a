package viewer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

// Saver writes a document's full annotation or signature collection.
type Saver interface {
	SaveAnnotations(ctx context.Context, documentID string, anns []models.Annotation) error
	SaveSignatures(ctx context.Context, documentID string, sigs []models.Signature) error
}

type BridgeOptions struct {
	// Delay coalesces bursts of non-urgent saves. Zero writes right away.
	Delay time.Duration
	// WriteTimeout bounds each store write.
	WriteTimeout time.Duration
}

// Bridge pushes collection snapshots to a Saver from a single worker
// goroutine. Callers never block on the store; only the latest snapshot of
// each collection is written, and failures are logged, not returned.
type Bridge struct {
	documentID string
	saver      Saver
	logger     *zap.Logger
	metrics    *metrics.MetricsCollector
	opts       BridgeOptions

	mu        sync.Mutex
	anns      []models.Annotation
	annsDirty bool
	sigs      []models.Signature
	sigsDirty bool
	queued    uint64
	written   uint64
	progress  chan struct{}
	closed    bool

	kick    chan struct{}
	urgent  chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

var _ Sink = (*Bridge)(nil)

func NewBridge(documentID string, saver Saver, logger *zap.Logger, m *metrics.MetricsCollector, opts BridgeOptions) *Bridge {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		documentID: documentID,
		saver:      saver,
		logger:     logger.With(zap.String("document_id", documentID)),
		metrics:    m,
		opts:       opts,
		progress:   make(chan struct{}),
		kick:       make(chan struct{}, 1),
		urgent:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bridge) SaveAnnotations(anns []models.Annotation) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("Dropping annotation save on closed session", zap.Int("count", len(anns)))
		return
	}
	b.anns = append([]models.Annotation(nil), anns...)
	b.annsDirty = true
	b.queued++
	b.mu.Unlock()
	signal(b.kick)
}

// SaveSignatures queues the collection; immediate skips the coalescing delay.
func (b *Bridge) SaveSignatures(sigs []models.Signature, immediate bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("Dropping signature save on closed session", zap.Int("count", len(sigs)))
		return
	}
	b.sigs = append([]models.Signature(nil), sigs...)
	b.sigsDirty = true
	b.queued++
	b.mu.Unlock()
	if immediate {
		signal(b.urgent)
		return
	}
	signal(b.kick)
}

// Flush waits until everything queued before the call has been written.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	target := b.queued
	b.mu.Unlock()

	for {
		b.mu.Lock()
		if b.written >= target {
			b.mu.Unlock()
			return nil
		}
		ch := b.progress
		b.mu.Unlock()

		signal(b.urgent)
		select {
		case <-ch:
		case <-b.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close writes what is queued and stops the worker. Later saves are dropped.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stop)
	select {
	case <-b.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) run() {
	defer close(b.stopped)
	for {
		select {
		case <-b.stop:
			b.drain()
			return
		case <-b.urgent:
		case <-b.kick:
			if b.opts.Delay > 0 && !b.wait() {
				b.drain()
				return
			}
		}
		b.drain()
	}
}

// wait sleeps out the coalescing delay. It returns false if the bridge is
// stopping.
func (b *Bridge) wait() bool {
	timer := time.NewTimer(b.opts.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-b.urgent:
	case <-b.stop:
		return false
	}
	return true
}

func (b *Bridge) drain() {
	b.mu.Lock()
	target := b.queued
	anns, annsDirty := b.anns, b.annsDirty
	sigs, sigsDirty := b.sigs, b.sigsDirty
	b.annsDirty, b.sigsDirty = false, false
	b.mu.Unlock()

	if annsDirty {
		b.write("annotations", func(ctx context.Context) error {
			return b.saver.SaveAnnotations(ctx, b.documentID, anns)
		})
	}
	if sigsDirty {
		b.write("signatures", func(ctx context.Context) error {
			return b.saver.SaveSignatures(ctx, b.documentID, sigs)
		})
	}

	b.mu.Lock()
	if target > b.written {
		b.written = target
	}
	close(b.progress)
	b.progress = make(chan struct{})
	b.mu.Unlock()
}

func (b *Bridge) write(collection string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.WriteTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		b.metrics.IncrementCounter("viewer.persist_failures", map[string]string{"collection": collection})
		b.logger.Error("Failed to persist collection",
			zap.String("collection", collection),
			zap.Error(err),
		)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
