package alerting

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/and161185/biasmeter/model"
	"gopkg.in/yaml.v3"
)

var ErrUnknownProfile = errors.New("unknown alert profile")

// Profiles is a set of named rule profiles.
type Profiles map[string]Profile

// Builtin returns the analytics and live profiles.
func Builtin() Profiles {
	a, l := Analytics(), Live()
	return Profiles{a.Name: a, l.Name: l}
}

// Get returns the profile with the given name.
func (p Profiles) Get(name string) (Profile, error) {
	prof, ok := p[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return prof, nil
}

type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles reads profiles from a YAML file and merges them over the builtin ones.
//
//	profiles:
//	  - name: strict
//	    rules:
//	      - {name: critical, title: CRITICAL, severity: high, metric: latest, op: lt, threshold: 80, chance: 1}
func LoadProfiles(path string) (Profiles, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(raw)
}

// ParseProfiles decodes YAML profiles and merges them over the builtin ones.
func ParseProfiles(raw []byte) (Profiles, error) {
	var f profilesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	out := Builtin()
	for _, p := range f.Profiles {
		for i := range p.Rules {
			if p.Rules[i].Metric == "" {
				p.Rules[i].Metric = Latest
			}
			// an omitted chance means the rule is not gated
			if p.Rules[i].Chance == 0 {
				p.Rules[i].Chance = 1
			}
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out[p.Name] = p
	}
	return out, nil
}

// Notifier receives high-severity alerts, e.g. to sound an alarm.
// Delivery is best effort: callers ignore its errors.
type Notifier interface {
	Notify(ctx context.Context, ev model.AlertEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev model.AlertEvent) error

func (f NotifierFunc) Notify(ctx context.Context, ev model.AlertEvent) error { return f(ctx, ev) }
