// Package monitor runs live fairness monitoring sessions.
//
// A Session owns the sample buffer, the smoothing level, the alert
// evaluator and the alert log of one monitored stream. Every tick pushes a
// sample, recomputes the trend line, evaluates the alert rules and hands the
// result to the registered observers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/and161185/biasmeter/internal/alerting"
	"github.com/and161185/biasmeter/internal/source"
	"github.com/and161185/biasmeter/internal/timeseries"
	"github.com/and161185/biasmeter/internal/trend"
	"github.com/and161185/biasmeter/model"
	"go.uber.org/zap"
)

var (
	ErrPaused           = errors.New("session is paused")
	ErrInvalidSample    = errors.New("invalid sample")
	ErrStaleSample      = errors.New("sample is older than the retained window")
	ErrInvalidWindow    = errors.New("invalid window")
	ErrInvalidSmoothing = errors.New("smoothing level must be within 0..100")
	ErrNoSource         = errors.New("session has no sample source")
)

// DefaultSmoothing is the initial smoothing level of a session.
const DefaultSmoothing = 50

// TickResult is what one tick produced.
type TickResult struct {
	Sample model.Sample       `json:"sample"`
	Trend  []float64          `json:"trend"`
	Stats  timeseries.Stats   `json:"stats"`
	Grade  trend.Grade        `json:"grade"`
	Alerts []model.AlertEvent `json:"alerts"`
}

// Observer is told about every tick and every alert of a session.
// Observers are called outside the session lock and must not block for long.
type Observer interface {
	OnTick(ctx context.Context, sessionID string, res TickResult)
	OnAlert(ctx context.Context, sessionID string, ev model.AlertEvent)
}

// Session is one monitored stream. It is safe for concurrent use.
type Session struct {
	id      string
	created time.Time

	mu     sync.Mutex
	buf    *timeseries.Buffer
	level  int
	eval   *alerting.Evaluator
	alerts *alerting.Log
	paused bool
	ticks  int

	src       source.SampleSource
	now       func() time.Time
	observers []Observer
	notifier  alerting.Notifier
	logger    *zap.SugaredLogger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSource sets the sample source used by Tick.
func WithSource(src source.SampleSource) SessionOption {
	return func(s *Session) { s.src = src }
}

// WithClock replaces time.Now for the buffer, the evaluator and the alert log.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithObservers registers tick and alert observers.
func WithObservers(obs ...Observer) SessionOption {
	return func(s *Session) { s.observers = append(s.observers, obs...) }
}

// WithNotifier sets the hook that receives high-severity alerts.
func WithNotifier(n alerting.Notifier) SessionOption {
	return func(s *Session) { s.notifier = n }
}

// WithLogger sets the session logger.
func WithLogger(l *zap.SugaredLogger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithGate overrides the alert gate, e.g. alerting.AlwaysGate in tests.
func WithGate(g alerting.Gate) SessionOption {
	return func(s *Session) {
		s.eval = alerting.NewEvaluator(s.eval.Profile(), alerting.WithGate(g), alerting.WithNow(s.clock))
	}
}

// NewSession creates a running (not paused) session.
func NewSession(id string, w timeseries.Window, p alerting.Profile, opts ...SessionOption) *Session {
	s := &Session{
		id:     id,
		level:  DefaultSmoothing,
		alerts: alerting.NewLog(alerting.DefaultLogSize, alerting.DefaultLowTTL),
		now:    time.Now,
		logger: zap.NewNop().Sugar(),
	}
	s.eval = alerting.NewEvaluator(p, alerting.WithNow(s.clock))
	for _, opt := range opts {
		opt(s)
	}
	s.buf = timeseries.NewBuffer(w, timeseries.WithClock(s.clock))
	s.created = s.now()
	return s
}

func (s *Session) clock() time.Time { return s.now() }

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Tick pulls the next sample from the source and ingests it.
// A paused session returns ErrPaused without consuming the source.
func (s *Session) Tick(ctx context.Context) (TickResult, error) {
	if s.Paused() {
		return TickResult{}, ErrPaused
	}
	if s.src == nil {
		return TickResult{}, ErrNoSource
	}

	sample, err := s.src.Next(ctx)
	if err != nil {
		return TickResult{}, fmt.Errorf("next sample: %w", err)
	}
	return s.Ingest(ctx, sample)
}

// Ingest runs one push, smooth, evaluate and present cycle for sample.
// A zero timestamp is replaced by the current time.
func (s *Session) Ingest(ctx context.Context, sample model.Sample) (TickResult, error) {
	if math.IsNaN(sample.Value) || sample.Value < 0 || sample.Value > 100 {
		return TickResult{}, fmt.Errorf("%w: value %v outside 0..100", ErrInvalidSample, sample.Value)
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now()
	}

	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return TickResult{}, ErrPaused
	}
	if !s.buf.Push(sample) {
		s.mu.Unlock()
		return TickResult{}, ErrStaleSample
	}
	values := s.buf.Values()
	res := TickResult{
		Sample: sample,
		Trend:  trend.Smooth(values, trend.FactorFromLevel(s.level)),
		Stats:  timeseries.Summarize(values),
		Grade:  trend.GradeOf(sample.Value),
		Alerts: s.eval.Evaluate(values),
	}
	for _, ev := range res.Alerts {
		s.alerts.Add(ev)
	}
	s.ticks++
	s.mu.Unlock()

	for _, o := range s.observers {
		o.OnTick(ctx, s.id, res)
	}
	for _, ev := range res.Alerts {
		s.publish(ctx, ev)
	}
	return res, nil
}

// Announce records a session-generated alert such as "System Connected".
func (s *Session) Announce(ctx context.Context, title, message string, sev model.Severity) model.AlertEvent {
	ev := model.AlertEvent{Title: title, Message: message, Severity: sev, Timestamp: s.now()}
	s.alerts.Add(ev)
	s.publish(ctx, ev)
	return ev
}

// TestAlert records a medium alert to check the alert path end to end.
func (s *Session) TestAlert(ctx context.Context) model.AlertEvent {
	return s.Announce(ctx, "Test Alert",
		"This is a test alert to verify the notification system is working correctly.",
		model.SeverityMedium)
}

func (s *Session) publish(ctx context.Context, ev model.AlertEvent) {
	for _, o := range s.observers {
		o.OnAlert(ctx, s.id, ev)
	}
	if ev.Severity != model.SeverityHigh || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Debugf("session %s: alert notifier failed: %v", s.id, err)
	}
}

// Pause stops accepting samples. State stays untouched until Resume.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume accepts samples again.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports whether the session is paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetWindow changes the retention policy and trims the buffer right away.
func (s *Session) SetWindow(w timeseries.Window) error {
	if w.Duration < 0 || w.MaxSize < 0 {
		return ErrInvalidWindow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.SetWindow(w)
	s.buf.Trim()
	return nil
}

// SetSmoothing sets the smoothing level, 0 (flat) to 100 (raw values).
func (s *Session) SetSmoothing(level int) error {
	if level < 0 || level > 100 {
		return ErrInvalidSmoothing
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
	return nil
}

// Reset clears samples and alerts and restarts the source if it supports it.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Clear()
	s.alerts.Reset()
	s.ticks = 0
	if r, ok := s.src.(source.Resetter); ok {
		r.Reset()
	}
}

// Samples returns a copy of the retained samples, oldest first.
func (s *Session) Samples() []model.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Samples()
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID         string             `json:"id"`
	Profile    string             `json:"profile"`
	Paused     bool               `json:"paused"`
	Window     timeseries.Window  `json:"window"`
	Smoothing  int                `json:"smoothing"`
	Samples    []model.Sample     `json:"samples"`
	Trend      []float64          `json:"trend"`
	Stats      timeseries.Stats   `json:"stats"`
	Grade      trend.Grade        `json:"grade,omitempty"`
	Alerts     []model.AlertEvent `json:"alerts"`
	AlertCount int                `json:"alertCount"`
	Ticks      int                `json:"ticks"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.buf.Samples()
	values := s.buf.Values()
	snap := Snapshot{
		ID:         s.id,
		Profile:    s.eval.Profile().Name,
		Paused:     s.paused,
		Window:     s.buf.Window(),
		Smoothing:  s.level,
		Samples:    samples,
		Trend:      trend.Smooth(values, trend.FactorFromLevel(s.level)),
		Stats:      timeseries.Summarize(values),
		Alerts:     s.alerts.List(s.now()),
		AlertCount: s.alerts.Total(),
		Ticks:      s.ticks,
		CreatedAt:  s.created,
	}
	if last, ok := s.buf.Last(); ok {
		snap.Grade = trend.GradeOf(last.Value)
	}
	return snap
}

// Chart is the series a dashboard draws: raw fairness, bias and trend, with axis labels.
type Chart struct {
	Labels   []string  `json:"labels"`
	Fairness []float64 `json:"fairness"`
	Bias     []float64 `json:"bias"`
	Trend    []float64 `json:"trend"`
}

// Chart returns the chart series for the retained samples.
func (s *Session) Chart() Chart {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.buf.Samples()
	values := s.buf.Values()
	bias := make([]float64, len(samples))
	for i, smp := range samples {
		bias[i] = smp.BiasScore()
	}
	return Chart{
		Labels:   trend.Labels(samples, s.now()),
		Fairness: values,
		Bias:     bias,
		Trend:    trend.Smooth(values, trend.FactorFromLevel(s.level)),
	}
}

// Run ticks every interval until ctx is cancelled. Cancellation is observed
// between ticks only: a tick in progress always completes.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_, err := s.Tick(context.WithoutCancel(ctx))
			switch {
			case err == nil, errors.Is(err, ErrPaused):
			default:
				s.logger.Warnf("session %s: tick failed: %v", s.id, err)
			}
		}
	}
}
