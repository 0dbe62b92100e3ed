// Package source provides fairness samples to monitoring sessions.
package source

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/and161185/biasmeter/model"
)

// SampleSource yields the next observation. Implementations may block until one is available.
type SampleSource interface {
	Next(ctx context.Context) (model.Sample, error)
}

// Resetter is implemented by sources that restart when a session restarts.
type Resetter interface {
	Reset()
}

// WalkParams shapes a random walk of fairness scores.
type WalkParams struct {
	Start    float64 // value the walk starts from
	DipP     float64 // probability of a sharp dip
	SpikeP   float64 // probability of a sharp spike when there is no dip
	JumpMin  float64 // minimum size of a dip or spike
	JumpSpan float64 // random extra size of a dip or spike
	Jitter   float64 // half-width of the normal fluctuation
	Floor    float64
	Ceil     float64
}

// AnalyticsWalk mimics the detailed analytics feed: starts at 85, rare large dips.
func AnalyticsWalk() WalkParams {
	return WalkParams{Start: 85, DipP: 0.2, SpikeP: 0.1, JumpMin: 15, JumpSpan: 20, Jitter: 3, Floor: 60, Ceil: 100}
}

// LiveWalk mimics the live monitor feed: starts at 100, frequent dips.
func LiveWalk() WalkParams {
	return WalkParams{Start: 100, DipP: 0.3, SpikeP: 0.2, JumpMin: 10, JumpSpan: 20, Jitter: 5, Floor: 60, Ceil: 100}
}

// RandomWalk is a simulated fairness feed.
type RandomWalk struct {
	mu     sync.Mutex
	params WalkParams
	rng    *rand.Rand
	now    func() time.Time
	last   float64
}

// WalkOption configures a RandomWalk.
type WalkOption func(*RandomWalk)

// WithRand sets the random generator, for reproducible walks.
func WithRand(rng *rand.Rand) WalkOption {
	return func(w *RandomWalk) { w.rng = rng }
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) WalkOption {
	return func(w *RandomWalk) { w.now = now }
}

// NewRandomWalk creates a walk with the given parameters.
func NewRandomWalk(p WalkParams, opts ...WalkOption) *RandomWalk {
	w := &RandomWalk{
		params: p,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:    time.Now,
		last:   p.Start,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Next returns the next simulated sample. It never blocks.
func (w *RandomWalk) Next(ctx context.Context) (model.Sample, error) {
	if err := ctx.Err(); err != nil {
		return model.Sample{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	p := w.params
	var v float64
	switch {
	case w.rng.Float64() < p.DipP:
		v = max(p.Floor, w.last-(p.JumpMin+w.rng.Float64()*p.JumpSpan))
	case w.rng.Float64() < p.SpikeP:
		v = min(p.Ceil, w.last+(p.JumpMin+w.rng.Float64()*p.JumpSpan))
	default:
		v = min(p.Ceil, max(p.Floor, w.last+(w.rng.Float64()*2*p.Jitter-p.Jitter)))
	}
	w.last = v

	male, female := w.rates(v)
	return model.Sample{Timestamp: w.now(), Value: v, MaleRate: male, FemaleRate: female}, nil
}

// rates derives per-group selection rates that move with the fairness score.
func (w *RandomWalk) rates(v float64) (male, female float64) {
	shift := (v - 70) / 30 * 20
	return 40 + shift + w.rng.Float64()*10, 60 - shift + w.rng.Float64()*10
}

// Reset restarts the walk at its start value.
func (w *RandomWalk) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = w.params.Start
}

var (
	_ SampleSource = (*RandomWalk)(nil)
	_ Resetter     = (*RandomWalk)(nil)
)
