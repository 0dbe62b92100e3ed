// Package timeseries keeps a bounded, ordered window of fairness samples.
package timeseries

import (
	"sort"
	"time"

	"github.com/and161185/biasmeter/model"
)

// Window is the retention policy of a Buffer.
// A zero Duration or MaxSize means that dimension is unbounded.
type Window struct {
	Duration time.Duration `json:"duration"`
	MaxSize  int           `json:"maxSize"`
}

// TimeWindow keeps samples not older than d.
func TimeWindow(d time.Duration) Window { return Window{Duration: d} }

// CountWindow keeps at most n most recent samples.
func CountWindow(n int) Window { return Window{MaxSize: n} }

// Buffer is an ordered store of samples, oldest first.
// Buffer is not safe for concurrent use; callers serialize access.
type Buffer struct {
	samples []model.Sample
	window  Window
	now     func() time.Time

	// floor is the newest evicted timestamp; older samples are never readmitted.
	floor    time.Time
	hasFloor bool
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithClock replaces time.Now, used for time-window eviction.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) { b.now = now }
}

// NewBuffer creates an empty buffer with the given window.
func NewBuffer(w Window, opts ...Option) *Buffer {
	b := &Buffer{window: w, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push adds a sample and evicts everything outside the window.
// It returns false if the sample was dropped: it predates an evicted one or
// falls outside the window itself.
func (b *Buffer) Push(s model.Sample) bool {
	if b.hasFloor && s.Timestamp.Before(b.floor) {
		return false
	}

	n := len(b.samples)
	i := n
	if n == 0 || !s.Timestamp.Before(b.samples[n-1].Timestamp) {
		b.samples = append(b.samples, s)
	} else {
		i = sort.Search(n, func(i int) bool { return b.samples[i].Timestamp.After(s.Timestamp) })
		b.samples = append(b.samples, model.Sample{})
		copy(b.samples[i+1:], b.samples[i:])
		b.samples[i] = s
	}

	return i >= b.evict()
}

// SetWindow changes the retention policy. It takes effect on the next Push or Trim.
func (b *Buffer) SetWindow(w Window) {
	b.window = w
}

// Window returns the current retention policy.
func (b *Buffer) Window() Window {
	return b.window
}

// Trim applies the current window immediately.
func (b *Buffer) Trim() {
	b.evict()
}

// evict drops the samples outside the window and returns how many went.
func (b *Buffer) evict() int {
	drop := 0
	if b.window.Duration > 0 {
		cutoff := b.now().Add(-b.window.Duration)
		for drop < len(b.samples) && b.samples[drop].Timestamp.Before(cutoff) {
			drop++
		}
	}
	if b.window.MaxSize > 0 && len(b.samples)-drop > b.window.MaxSize {
		drop = len(b.samples) - b.window.MaxSize
	}
	if drop == 0 {
		return 0
	}

	b.floor = b.samples[drop-1].Timestamp
	b.hasFloor = true

	// shift in place so the backing array does not grow without bound
	n := copy(b.samples, b.samples[drop:])
	clear(b.samples[n:])
	b.samples = b.samples[:n]
	return drop
}

// Len returns the number of retained samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Values returns the retained fairness values, oldest first.
func (b *Buffer) Values() []float64 {
	out := make([]float64, len(b.samples))
	for i, s := range b.samples {
		out[i] = s.Value
	}
	return out
}

// Samples returns a copy of the retained samples, oldest first.
func (b *Buffer) Samples() []model.Sample {
	out := make([]model.Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Last returns the newest sample.
func (b *Buffer) Last() (model.Sample, bool) {
	if len(b.samples) == 0 {
		return model.Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Clear removes every sample and forgets the eviction history.
func (b *Buffer) Clear() {
	b.samples = nil
	b.floor = time.Time{}
	b.hasFloor = false
}
