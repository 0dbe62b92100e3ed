package alerting

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/and161185/biasmeter/model"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)

func deterministic(p Profile) *Evaluator {
	return NewEvaluator(p, WithGate(AlwaysGate), WithNow(func() time.Time { return fixed }))
}

func TestEvaluate_AnalyticsDeterministicRules(t *testing.T) {
	e := deterministic(Analytics())

	tests := []struct {
		name     string
		values   []float64
		severity model.Severity
		title    string
	}{
		{"critical", []float64{59}, model.SeverityHigh, "CRITICAL"},
		{"warning", []float64{65}, model.SeverityMedium, "WARNING"},
		{"warning_lower_bound", []float64{60}, model.SeverityMedium, "WARNING"},
		{"excellent", []float64{96}, model.SeverityLow, "Excellent Fairness"},
		{"monitor_trend", []float64{72, 72, 72, 72, 74}, model.SeverityLow, "MONITOR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(tc.values)
			require.Len(t, got, 1)
			require.Equal(t, tc.severity, got[0].Severity)
			require.Equal(t, tc.title, got[0].Title)
			require.Equal(t, fixed, got[0].Timestamp)
		})
	}
}

func TestEvaluate_NoAlert(t *testing.T) {
	e := deterministic(Analytics())

	require.Empty(t, e.Evaluate(nil))
	require.Empty(t, e.Evaluate([]float64{85}))
	require.Empty(t, e.Evaluate([]float64{72}), "mean rule needs five samples")
	require.Empty(t, e.Evaluate([]float64{95}))
}

func TestEvaluate_FirstMatchWins(t *testing.T) {
	e := deterministic(Live())

	got := e.Evaluate([]float64{50})
	require.Len(t, got, 1)
	require.Equal(t, model.SeverityHigh, got[0].Severity)
	require.Equal(t, "Fairness score dropped to 50.0%. Immediate action required.", got[0].Message)
}

func TestEvaluate_SuppressedRuleFallsThrough(t *testing.T) {
	var seen []string
	gate := func(r Rule) bool {
		seen = append(seen, r.Name)
		return r.Name != "critical"
	}
	e := NewEvaluator(Live(), WithGate(gate))

	got := e.Evaluate([]float64{62})
	require.Len(t, got, 1)
	require.Equal(t, model.SeverityMedium, got[0].Severity)
	require.Equal(t, []string{"critical", "high-bias"}, seen)
}

func TestEvaluate_NeverGateSilencesGatedRulesOnly(t *testing.T) {
	never := func(r Rule) bool { return false }
	e := NewEvaluator(Analytics(), WithGate(RandomGate(rand.New(rand.NewPCG(1, 1)))))
	require.Len(t, e.Evaluate([]float64{59}), 1, "chance 1 rules always fire")

	e = NewEvaluator(Analytics(), WithGate(never))
	require.Empty(t, e.Evaluate([]float64{59}))
}

func TestRandomGate_Probability(t *testing.T) {
	g := RandomGate(rand.New(rand.NewPCG(7, 11)))
	r := Rule{Chance: 0.3}

	fired := 0
	for i := 0; i < 10000; i++ {
		if g(r) {
			fired++
		}
	}
	require.InDelta(t, 3000, fired, 300)
	require.False(t, g(Rule{Chance: 0}))
	require.True(t, g(Rule{Chance: 1}))
}

func TestRule_Validate(t *testing.T) {
	ok := Analytics().Rules[0]
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Op = "eq"
	require.ErrorIs(t, bad.Validate(), ErrInvalidRule)

	bad = ok
	bad.Severity = "urgent"
	require.ErrorIs(t, bad.Validate(), ErrInvalidRule)

	bad = ok
	bad.Name = ""
	require.ErrorIs(t, bad.Validate(), ErrInvalidRule)
}

func TestLog_BoundedNewestFirst(t *testing.T) {
	l := NewLog(0, 0)
	for i := 0; i < 12; i++ {
		l.Add(model.AlertEvent{Title: string(rune('a' + i)), Severity: model.SeverityHigh, Timestamp: fixed})
	}

	got := l.List(fixed)
	require.Len(t, got, DefaultLogSize)
	require.Equal(t, "l", got[0].Title)
	require.Equal(t, "c", got[9].Title)
	require.Equal(t, 12, l.Total())
}

func TestLog_LowAlertsExpire(t *testing.T) {
	l := NewLog(10, time.Minute)
	l.Add(model.AlertEvent{Title: "low", Severity: model.SeverityLow, Timestamp: fixed})
	l.Add(model.AlertEvent{Title: "high", Severity: model.SeverityHigh, Timestamp: fixed})

	require.Equal(t, 2, l.Len(fixed.Add(59*time.Second)))

	got := l.List(fixed.Add(60 * time.Second))
	require.Len(t, got, 1)
	require.Equal(t, "high", got[0].Title)
	require.Equal(t, 2, l.Total())

	l.Reset()
	require.Zero(t, l.Total())
	require.Empty(t, l.List(fixed))
}

func TestLog_ExpiredLowsDoNotEvictLiveAlerts(t *testing.T) {
	l := NewLog(10, time.Minute)
	l.Add(model.AlertEvent{Title: "high", Severity: model.SeverityHigh, Timestamp: fixed})
	for i := 0; i < 9; i++ {
		l.Add(model.AlertEvent{Title: "low", Severity: model.SeverityLow, Timestamp: fixed})
	}
	later := fixed.Add(2 * time.Minute)
	l.Add(model.AlertEvent{Title: "new", Severity: model.SeverityMedium, Timestamp: later})

	got := l.List(later)
	require.Len(t, got, 2)
	require.Equal(t, "new", got[0].Title)
	require.Equal(t, "high", got[1].Title)
	require.Equal(t, 11, l.Total())
}

func TestParseProfiles(t *testing.T) {
	raw := []byte(`
profiles:
  - name: strict
    rules:
      - name: critical
        title: CRITICAL
        message: "below 80: %.0f"
        severity: high
        op: lt
        threshold: 80
`)
	profiles, err := ParseProfiles(raw)
	require.NoError(t, err)

	strict, err := profiles.Get("strict")
	require.NoError(t, err)
	require.Equal(t, Latest, strict.Rules[0].Metric)
	require.Equal(t, 1.0, strict.Rules[0].Chance)

	_, err = profiles.Get("analytics")
	require.NoError(t, err, "builtins stay available")

	got := NewEvaluator(strict).Evaluate([]float64{79})
	require.Len(t, got, 1)
	require.Equal(t, "below 80: 79", got[0].Message)

	_, err = profiles.Get("nope")
	require.ErrorIs(t, err, ErrUnknownProfile)
}

func TestParseProfiles_Invalid(t *testing.T) {
	_, err := ParseProfiles([]byte("profiles:\n  - name: x\n    rules:\n      - name: r\n        severity: bogus\n        op: lt\n"))
	require.ErrorIs(t, err, ErrInvalidRule)

	_, err = ParseProfiles([]byte("profiles: ["))
	require.Error(t, err)
}

func TestLoadProfiles_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: []\n"), 0o644))

	p, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, p, 2)

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNotifierFunc(t *testing.T) {
	boom := errors.New("no audio device")
	var n Notifier = NotifierFunc(func(ctx context.Context, ev model.AlertEvent) error { return boom })
	require.ErrorIs(t, n.Notify(context.Background(), model.AlertEvent{}), boom)
}
