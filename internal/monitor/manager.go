package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/and161185/biasmeter/internal/alerting"
	"github.com/and161185/biasmeter/internal/source"
	"github.com/and161185/biasmeter/internal/timeseries"
	"github.com/and161185/biasmeter/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownSource   = errors.New("unknown sample source")
	ErrClosed          = errors.New("manager is closed")
)

const (
	// DefaultInterval is the tick period of simulated sessions.
	DefaultInterval = 2 * time.Second
	// DefaultMaxPoints is the count window of the live dashboard.
	DefaultMaxPoints = 15
	// DefaultTimeRange is the time window of the analytics dashboard.
	DefaultTimeRange = 30 * time.Second
)

// Source kinds accepted by Start.
const (
	SourceAnalytics = "analytics" // simulated walk starting at 85
	SourceLive      = "live"      // simulated walk starting at 100
	SourceExternal  = "external"  // no ticker, samples arrive through Ingest
)

// StartOptions describes a new session. Zero values pick defaults.
type StartOptions struct {
	Profile   string
	Source    string
	Window    timeseries.Window
	Smoothing *int
	Interval  time.Duration
}

// SourceFactory builds the sample source of a given kind.
type SourceFactory func(kind string) (source.SampleSource, error)

// DefaultSources builds random walks for the simulated kinds and nil for external feeds.
func DefaultSources(kind string) (source.SampleSource, error) {
	switch kind {
	case SourceAnalytics:
		return source.NewRandomWalk(source.AnalyticsWalk()), nil
	case SourceLive:
		return source.NewRandomWalk(source.LiveWalk()), nil
	case SourceExternal:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}
}

type entry struct {
	session *Session
	kind    string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager owns independent monitoring sessions keyed by UUID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	closed   bool

	profiles  alerting.Profiles
	sources   SourceFactory
	observers []Observer
	notifier  alerting.Notifier
	gate      alerting.Gate
	now       func() time.Time
	logger    *zap.SugaredLogger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithProfiles sets the alert profiles sessions may use.
func WithProfiles(p alerting.Profiles) ManagerOption {
	return func(m *Manager) { m.profiles = p }
}

// WithSourceFactory replaces DefaultSources.
func WithSourceFactory(f SourceFactory) ManagerOption {
	return func(m *Manager) { m.sources = f }
}

// WithSessionObservers registers observers on every new session.
func WithSessionObservers(obs ...Observer) ManagerOption {
	return func(m *Manager) { m.observers = append(m.observers, obs...) }
}

// WithAlertNotifier sets the high-severity hook of every new session.
func WithAlertNotifier(n alerting.Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithAlertGate overrides the alert gate of every new session.
func WithAlertGate(g alerting.Gate) ManagerOption {
	return func(m *Manager) { m.gate = g }
}

// WithManagerClock replaces time.Now in every new session.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithManagerLogger sets the logger handed to sessions.
func WithManagerLogger(l *zap.SugaredLogger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an empty manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*entry),
		profiles: alerting.Builtin(),
		sources:  DefaultSources,
		now:      time.Now,
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates a session, logs "System Connected" and, for simulated
// sources, starts its ticker. The ticker outlives ctx; use Stop or Close.
func (m *Manager) Start(ctx context.Context, o StartOptions) (*Session, error) {
	if o.Profile == "" {
		o.Profile = alerting.Analytics().Name
	}
	if o.Source == "" {
		o.Source = SourceAnalytics
	}
	if o.Window == (timeseries.Window{}) {
		o.Window = defaultWindow(o.Source)
	}
	if o.Window.Duration < 0 || o.Window.MaxSize < 0 {
		return nil, ErrInvalidWindow
	}
	if o.Smoothing != nil && (*o.Smoothing < 0 || *o.Smoothing > 100) {
		return nil, ErrInvalidSmoothing
	}

	prof, err := m.profiles.Get(o.Profile)
	if err != nil {
		return nil, err
	}
	src, err := m.sources(o.Source)
	if err != nil {
		return nil, err
	}

	opts := []SessionOption{
		WithClock(m.now),
		WithLogger(m.logger),
		WithObservers(m.observers...),
		WithNotifier(m.notifier),
	}
	if src != nil {
		opts = append(opts, WithSource(src))
	}
	if m.gate != nil {
		opts = append(opts, WithGate(m.gate))
	}

	s := NewSession(uuid.NewString(), o.Window, prof, opts...)
	if o.Smoothing != nil {
		_ = s.SetSmoothing(*o.Smoothing)
	}
	s.Reset()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &entry{session: s, kind: o.Source, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	m.sessions[s.ID()] = e
	m.mu.Unlock()

	s.Announce(ctx, "System Connected", "Real-time monitoring started successfully", model.SeverityLow)

	if src == nil {
		close(e.done)
	} else {
		go func() {
			defer close(e.done)
			_ = s.Run(runCtx, o.Interval)
		}()
	}

	m.logger.Infof("session %s started: profile=%s source=%s window=%+v", s.ID(), prof.Name, o.Source, o.Window)
	return s, nil
}

func defaultWindow(kind string) timeseries.Window {
	if kind == SourceLive {
		return timeseries.CountWindow(DefaultMaxPoints)
	}
	return timeseries.TimeWindow(DefaultTimeRange)
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e.session, nil
}

// Summary is the short description of a session returned by List.
type Summary struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Profile    string    `json:"profile"`
	Paused     bool      `json:"paused"`
	Samples    int       `json:"samples"`
	AlertCount int       `json:"alertCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// List describes every session, oldest first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		snap := e.session.Snapshot()
		out = append(out, Summary{
			ID:         snap.ID,
			Source:     e.kind,
			Profile:    snap.Profile,
			Paused:     snap.Paused,
			Samples:    snap.Stats.Count,
			AlertCount: snap.AlertCount,
			CreatedAt:  snap.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Stop cancels the session ticker, logs "Monitoring Stopped" and removes the
// session. It returns the final snapshot.
func (m *Manager) Stop(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	e.cancel()
	<-e.done
	e.session.Announce(ctx, "Monitoring Stopped", "Real-time monitoring has been stopped", model.SeverityLow)

	m.logger.Infof("session %s stopped", id)
	return e.session.Snapshot(), nil
}

// Close stops every session and rejects new ones.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if _, err := m.Stop(ctx, id); err != nil {
			m.logger.Debugf("close session %s: %v", id, err)
		}
	}
}
