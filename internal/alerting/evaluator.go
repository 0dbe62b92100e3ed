package alerting

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/and161185/biasmeter/model"
)

// Gate decides whether a matching rule actually fires.
type Gate func(r Rule) bool

// AlwaysGate fires every matching rule, which makes evaluation deterministic.
func AlwaysGate(Rule) bool { return true }

// RandomGate fires a matching rule with probability r.Chance.
// A nil rng uses the package-level generator.
func RandomGate(rng *rand.Rand) Gate {
	var mu sync.Mutex
	return func(r Rule) bool {
		if r.Chance >= 1 {
			return true
		}
		if r.Chance <= 0 {
			return false
		}
		if rng == nil {
			return rand.Float64() < r.Chance
		}
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < r.Chance
	}
}

// Evaluator applies a profile to the most recent values.
//
// Evaluation is first-match: rules are tried in profile order and the first
// rule whose condition holds and whose gate passes produces the only event.
// A rule that holds but is suppressed by the gate falls through to the next one.
type Evaluator struct {
	profile Profile
	gate    Gate
	now     func() time.Time
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithGate replaces the default random gate.
func WithGate(g Gate) EvaluatorOption {
	return func(e *Evaluator) { e.gate = g }
}

// WithNow replaces time.Now for event timestamps.
func WithNow(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator creates an evaluator for the profile.
func NewEvaluator(p Profile, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{profile: p, gate: RandomGate(nil), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Profile returns the rule set in use.
func (e *Evaluator) Profile() Profile {
	return e.profile
}

// Evaluate returns at most one alert for the ordered recent values.
func (e *Evaluator) Evaluate(recent []float64) []model.AlertEvent {
	for _, r := range e.profile.Rules {
		x, ok := r.figure(recent)
		if !ok || !r.holds(x) {
			continue
		}
		if !e.gate(r) {
			continue
		}
		return []model.AlertEvent{{
			Title:     r.Title,
			Message:   render(r.Message, x),
			Severity:  r.Severity,
			Timestamp: e.now(),
		}}
	}
	return nil
}

func render(tmpl string, x float64) string {
	if !strings.Contains(tmpl, "%") {
		return tmpl
	}
	return fmt.Sprintf(tmpl, x)
}
