// Package chart loads declarative machine definitions from YAML for
// machines whose states, events, and side effects are plain strings.
// Handlers are bound by name at build time:
//
//	transitions:
//	  - from: [depot]
//	    on: [dispatch]
//	    to: in_transit
//	    effect: picked_up
//	    handlers: [assign_courier]
//	  - except: [delivered]
//	    on: [abort]
//	    to: lost
//	    finish: true
package chart

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/quarticle/asyncfsm"
)

// Config is the top-level machine definition.
type Config struct {
	Name        string             `yaml:"name" json:"name"`
	Initial     string             `yaml:"initial" json:"initial"`
	Transitions []TransitionConfig `yaml:"transitions" json:"transitions"`
}

// TransitionConfig declares one transition rule. From and Except are
// mutually exclusive: a rule without From is a wildcard applying to every
// state except those in Except. An empty Effect means the transition carries
// no side effect.
type TransitionConfig struct {
	From     []string `yaml:"from,omitempty" json:"from,omitempty"`
	Except   []string `yaml:"except,omitempty" json:"except,omitempty"`
	On       []string `yaml:"on" json:"on"`
	To       string   `yaml:"to" json:"to"`
	Effect   string   `yaml:"effect,omitempty" json:"effect,omitempty"`
	Finish   bool     `yaml:"finish,omitempty" json:"finish,omitempty"`
	Handlers []string `yaml:"handlers,omitempty" json:"handlers,omitempty"`
}

// Parse unmarshals and validates a YAML machine definition.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse chart: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the definition for errors:
// - Non-empty Name and Initial
// - At least one transition, each with events and a target
// - From and Except never combined on one rule
// - At least one finishing transition
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("machine name is required")
	}
	if c.Initial == "" {
		return errors.New("initial state is required")
	}
	if len(c.Transitions) == 0 {
		return errors.New("at least one transition is required")
	}

	finish := false
	for i, t := range c.Transitions {
		if len(t.On) == 0 {
			return fmt.Errorf("transition %d: at least one triggering event is required", i)
		}
		if t.To == "" {
			return fmt.Errorf("transition %d: target state is required", i)
		}
		if len(t.From) > 0 && len(t.Except) > 0 {
			return fmt.Errorf("transition %d: from and except are mutually exclusive", i)
		}
		if t.Finish {
			finish = true
		}
	}
	if !finish {
		return errors.New("at least one finishing transition is required")
	}

	return nil
}

// Binding supplies the runtime half of a declarative definition: the named
// handlers referenced by the transitions, and the optional machine-level
// callbacks.
type Binding[C any] struct {
	Handlers     map[string]asyncfsm.Handler[string, string, C]
	OnTransition asyncfsm.TransitionCallback[string, string, string, C]
	OnException  asyncfsm.ExceptionCallback[string, string, C]
}

// Build binds the definition to bind's handlers and produces a runnable
// machine. Every name listed under a transition's handlers must be present
// in bind.Handlers.
func Build[C any](cfg *Config, bind Binding[C], opts ...asyncfsm.Option) (*asyncfsm.Machine[string, string, string, C], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i, t := range cfg.Transitions {
		for _, name := range t.Handlers {
			if _, ok := bind.Handlers[name]; !ok {
				return nil, fmt.Errorf("transition %d: unknown handler %q", i, name)
			}
		}
	}

	return asyncfsm.Build(cfg.Name, cfg.Initial, func(b *asyncfsm.Builder[string, string, string, C]) {
		if bind.OnTransition != nil {
			b.OnTransition(bind.OnTransition)
		}
		if bind.OnException != nil {
			b.OnException(bind.OnException)
		}

		for _, tc := range cfg.Transitions {
			var hs []asyncfsm.Handler[string, string, C]
			for _, name := range tc.Handlers {
				hs = append(hs, bind.Handlers[name])
			}

			var src *asyncfsm.TransitionSource[string, string, string, C]
			if len(tc.From) > 0 {
				src = b.From(tc.From...)
			} else {
				src = b.FromAll(tc.Except...)
			}
			decl := src.On(tc.On...).Execute(hs...)

			var effect []string
			if tc.Effect != "" {
				effect = append(effect, tc.Effect)
			}
			if tc.Finish {
				decl.FinishOn(tc.To, effect...)
			} else {
				decl.GoTo(tc.To, effect...)
			}
		}
	}, opts...)
}
