package loopviz

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type (
	// Scenario is a named, preloaded event list, stored as YAML.
	Scenario struct {
		// Name identifies the scenario.
		Name string `yaml:"name"`

		// Description explains what the scenario demonstrates.
		Description string `yaml:"description,omitempty"`

		// Templates optionally replaces the default catalog.
		Templates []Template `yaml:"templates,omitempty"`

		// Events lists template ids, in display order.
		Events []string `yaml:"events"`

		// Capacity overrides DefaultCapacity, if non-zero.
		Capacity int `yaml:"capacity,omitempty"`

		// Expect is checked against the settled snapshot of a run.
		Expect *ScenarioExpect `yaml:"expect,omitempty"`
	}

	// ScenarioExpect describes the outcome of running a scenario.
	ScenarioExpect struct {
		// Sync is the expected length of the sync log.
		Sync *int `yaml:"sync,omitempty"`

		// Async is the expected length of the async log.
		Async *int `yaml:"async,omitempty"`

		// Before lists pairs of template ids, where every instance of the
		// first must fire before every instance of the second.
		Before [][]string `yaml:"before,omitempty"`
	}
)

// LoadScenario parses and validates a scenario. Unknown fields are rejected.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf(`loopviz: parse scenario: %w`, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadScenarioFile reads a scenario from the named file.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf(`loopviz: open scenario: %w`, err)
	}
	defer f.Close()
	return LoadScenario(f)
}

// Save writes the scenario as YAML.
func (x *Scenario) Save(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(x); err != nil {
		return fmt.Errorf(`loopviz: encode scenario: %w`, err)
	}
	return encoder.Close()
}

// Catalog returns the catalog the scenario's events refer to.
func (x *Scenario) Catalog() (*Catalog, error) {
	if len(x.Templates) == 0 {
		return DefaultCatalog(), nil
	}
	return NewCatalog(x.Templates)
}

// Options returns the visualizer options that preload the scenario.
func (x *Scenario) Options() ([]Option, error) {
	catalog, err := x.Catalog()
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithCatalog(catalog),
		WithInitialTemplates(x.Events...),
	}
	if x.Capacity != 0 {
		opts = append(opts, WithCapacity(x.Capacity))
	}
	return opts, nil
}

func (x *Scenario) validate() error {
	if x.Name == `` {
		return errors.New(`loopviz: scenario: missing name`)
	}
	catalog, err := x.Catalog()
	if err != nil {
		return fmt.Errorf(`loopviz: scenario %q: %w`, x.Name, err)
	}
	for _, id := range x.Events {
		if _, ok := catalog.Lookup(id); !ok {
			return fmt.Errorf(`loopviz: scenario %q: event %q: %w`, x.Name, id, ErrUnknownTemplate)
		}
	}
	if x.Capacity < 0 {
		return fmt.Errorf(`loopviz: scenario %q: negative capacity`, x.Name)
	}
	if x.Expect != nil {
		for _, pair := range x.Expect.Before {
			if len(pair) != 2 {
				return fmt.Errorf(`loopviz: scenario %q: expect before: want pairs, got %q`, x.Name, pair)
			}
			if pair[0] == pair[1] {
				return fmt.Errorf(`loopviz: scenario %q: expect before: %q cannot fire before itself`, x.Name, pair[0])
			}
			for _, id := range pair {
				if _, ok := catalog.Lookup(id); !ok {
					return fmt.Errorf(`loopviz: scenario %q: expect before %q: %w`, x.Name, id, ErrUnknownTemplate)
				}
			}
		}
	}
	return nil
}

// Check compares a settled snapshot with the scenario's expectations,
// returning every mismatch, joined.
func (x *Scenario) Check(s *Snapshot) error {
	if x.Expect == nil {
		return nil
	}
	var errs []error
	if want := x.Expect.Sync; want != nil && *want != len(s.SyncLog) {
		errs = append(errs, fmt.Errorf(`sync log: got %d entries, want %d`, len(s.SyncLog), *want))
	}
	if want := x.Expect.Async; want != nil && *want != len(s.AsyncLog) {
		errs = append(errs, fmt.Errorf(`async log: got %d entries, want %d`, len(s.AsyncLog), *want))
	}
	for _, pair := range x.Expect.Before {
		for _, a := range s.Items {
			if a.TemplateID != pair[0] {
				continue
			}
			for _, b := range s.Items {
				if b.TemplateID != pair[1] {
					continue
				}
				ra, oka := s.Rank(a.ID)
				rb, okb := s.Rank(b.ID)
				if !oka || !okb || ra >= rb {
					errs = append(errs, fmt.Errorf(`%s (rank %d) should fire before %s (rank %d)`, a.ID, ra, b.ID, rb))
				}
			}
		}
	}
	if len(errs) != 0 {
		return fmt.Errorf(`loopviz: scenario %q: %w`, x.Name, errors.Join(errs...))
	}
	return nil
}
