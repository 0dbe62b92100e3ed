// Package alerting derives threshold alerts from recent fairness values.
package alerting

import (
	"errors"
	"fmt"

	"github.com/and161185/biasmeter/model"
)

// Metric selects which figure of the recent values a rule compares.
type Metric string

const (
	Latest Metric = "latest" // Latest compares the newest value.
	Mean   Metric = "mean"   // Mean compares the mean of the last Window values.
)

// Op is the comparison a rule applies against its threshold.
type Op string

const (
	Below Op = "lt"
	Above Op = "gt"
)

const defaultMeanWindow = 5

var ErrInvalidRule = errors.New("invalid alert rule")

// Rule is a single threshold check.
//
// Message is a fmt template receiving the compared figure as its only argument.
// Chance is the probability that a matching rule actually fires; values >= 1 always fire.
type Rule struct {
	Name       string         `yaml:"name" json:"name"`
	Title      string         `yaml:"title" json:"title"`
	Message    string         `yaml:"message" json:"message"`
	Severity   model.Severity `yaml:"severity" json:"severity"`
	Metric     Metric         `yaml:"metric" json:"metric"`
	Op         Op             `yaml:"op" json:"op"`
	Threshold  float64        `yaml:"threshold" json:"threshold"`
	Window     int            `yaml:"window,omitempty" json:"window,omitempty"`
	MinSamples int            `yaml:"min_samples,omitempty" json:"minSamples,omitempty"`
	Chance     float64        `yaml:"chance" json:"chance"`
}

// Validate checks the rule is usable.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRule)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w %q: unknown severity %q", ErrInvalidRule, r.Name, r.Severity)
	}
	if r.Metric != Latest && r.Metric != Mean {
		return fmt.Errorf("%w %q: unknown metric %q", ErrInvalidRule, r.Name, r.Metric)
	}
	if r.Op != Below && r.Op != Above {
		return fmt.Errorf("%w %q: unknown op %q", ErrInvalidRule, r.Name, r.Op)
	}
	if r.Chance < 0 {
		return fmt.Errorf("%w %q: negative chance", ErrInvalidRule, r.Name)
	}
	return nil
}

// figure returns the value the rule compares, or false when there is not enough data.
func (r Rule) figure(values []float64) (float64, bool) {
	if len(values) == 0 || len(values) < r.MinSamples {
		return 0, false
	}
	if r.Metric != Mean {
		return values[len(values)-1], true
	}

	w := r.Window
	if w <= 0 {
		w = defaultMeanWindow
	}
	recent := values[max(0, len(values)-w):]
	sum := 0.0
	for _, v := range recent {
		sum += v
	}
	return sum / float64(len(recent)), true
}

func (r Rule) holds(x float64) bool {
	if r.Op == Above {
		return x > r.Threshold
	}
	return x < r.Threshold
}

// Profile is an ordered rule set. Earlier rules take precedence.
type Profile struct {
	Name  string `yaml:"name" json:"name"`
	Rules []Rule `yaml:"rules" json:"rules"`
}

// Validate checks every rule in the profile.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: profile without name", ErrInvalidRule)
	}
	for _, r := range p.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", p.Name, err)
		}
	}
	return nil
}

// Analytics is the detailed-analytics rule set: critical below 60, warning below 70.
func Analytics() Profile {
	return Profile{
		Name: "analytics",
		Rules: []Rule{
			{
				Name:      "critical",
				Title:     "CRITICAL",
				Message:   "Fairness score below 60%% (%.1f%%)",
				Severity:  model.SeverityHigh,
				Metric:    Latest,
				Op:        Below,
				Threshold: 60,
				Chance:    1,
			},
			{
				Name:      "warning",
				Title:     "WARNING",
				Message:   "Fairness score below 70%% (%.1f%%)",
				Severity:  model.SeverityMedium,
				Metric:    Latest,
				Op:        Below,
				Threshold: 70,
				Chance:    1,
			},
			{
				Name:       "monitor",
				Title:      "MONITOR",
				Message:    "Average score trending low (%.1f%%)",
				Severity:   model.SeverityLow,
				Metric:     Mean,
				Op:         Below,
				Threshold:  75,
				Window:     5,
				MinSamples: 5,
				Chance:     0.3,
			},
			{
				Name:      "excellent",
				Title:     "Excellent Fairness",
				Message:   "Fairness score improved to %.1f%%. Good job!",
				Severity:  model.SeverityLow,
				Metric:    Latest,
				Op:        Above,
				Threshold: 95,
				Chance:    0.2,
			},
		},
	}
}

// Live is the real-time monitor rule set: critical below 65, randomly gated.
func Live() Profile {
	return Profile{
		Name: "live",
		Rules: []Rule{
			{
				Name:      "critical",
				Title:     "Critical Bias Detected",
				Message:   "Fairness score dropped to %.1f%%. Immediate action required.",
				Severity:  model.SeverityHigh,
				Metric:    Latest,
				Op:        Below,
				Threshold: 65,
				Chance:    0.5,
			},
			{
				Name:      "high-bias",
				Title:     "High Bias Warning",
				Message:   "Fairness score is %.1f%%. Monitor closely.",
				Severity:  model.SeverityMedium,
				Metric:    Latest,
				Op:        Below,
				Threshold: 75,
				Chance:    0.3,
			},
			{
				Name:      "excellent",
				Title:     "Excellent Fairness",
				Message:   "Fairness score improved to %.1f%%. Good job!",
				Severity:  model.SeverityLow,
				Metric:    Latest,
				Op:        Above,
				Threshold: 95,
				Chance:    0.2,
			},
		},
	}
}
