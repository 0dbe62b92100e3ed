package storage

import (
	"context"
	"sync"

	"github.com/and161185/biasmeter/internal/monitor"
	"github.com/and161185/biasmeter/model"
	"go.uber.org/zap"
)

// DefaultQueueSize is the number of pending records a Recorder buffers.
const DefaultQueueSize = 256

type record struct {
	session string
	sample  *model.Sample
	alert   *model.AlertEvent
}

// Recorder is a monitor.Observer that copies ticks and alerts into an
// Archive from a background goroutine, so sessions never wait on storage.
// When the queue is full new records are dropped and logged.
type Recorder struct {
	archive Archive
	queue   chan record
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	dropped int
}

// NewRecorder creates a recorder writing to a. Call Run to start draining.
func NewRecorder(a Archive, logger *zap.SugaredLogger, size int) *Recorder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Recorder{archive: a, queue: make(chan record, size), logger: logger}
}

// OnTick queues the sample of a tick.
func (r *Recorder) OnTick(_ context.Context, sessionID string, res monitor.TickResult) {
	s := res.Sample
	r.enqueue(record{session: sessionID, sample: &s})
}

// OnAlert queues an alert.
func (r *Recorder) OnAlert(_ context.Context, sessionID string, ev model.AlertEvent) {
	r.enqueue(record{session: sessionID, alert: &ev})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		r.mu.Lock()
		r.dropped++
		n := r.dropped
		r.mu.Unlock()
		r.logger.Warnf("archive queue full, %d records dropped so far", n)
	}
}

// Dropped returns how many records were lost to a full queue.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Run writes queued records until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec record) {
	var err error
	switch {
	case rec.sample != nil:
		err = r.archive.SaveSample(ctx, rec.session, *rec.sample)
	case rec.alert != nil:
		err = r.archive.SaveAlert(ctx, rec.session, *rec.alert)
	}
	if err != nil {
		r.logger.Errorf("archive session %s: %v", rec.session, err)
	}
}

var _ monitor.Observer = (*Recorder)(nil)
