package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
)

// MetaSource loads the descriptor of a built package.
type MetaSource interface {
	Meta(name string) (*Meta, error)
}

// DirSource reads descriptors from a build output directory.
type DirSource string

// Meta implements MetaSource.
func (d DirSource) Meta(name string) (*Meta, error) {
	return ReadMeta(PackageDir(string(d), name))
}

// Step is one package the loader resolves. Symbols lists what dependents
// need from it; it is empty for requested roots.
type Step struct {
	Package string   `json:"package" yaml:"package"`
	Symbols []string `json:"symbols,omitempty" yaml:"symbols,omitempty"`
}

// Plan is the order in which packages must be resolved into the registry.
// Every package appears after all of its external dependencies, except
// where a cycle makes that impossible.
type Plan struct {
	Steps []Step `json:"steps" yaml:"steps"`
	// Unavailable lists packages without a descriptor: their build failed
	// or never ran, and anything depending on them cannot be loaded.
	Unavailable []string `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
	// Cycles lists dependency edges that were skipped to break a cycle.
	Cycles []string `json:"cycles,omitempty" yaml:"cycles,omitempty"`
}

type planner struct {
	source  MetaSource
	state   map[string]int // 0 unseen, 1 in progress, 2 done
	symbols map[string]map[string]struct{}
	plan    *Plan
}

// LoadPlan computes the resolution order for roots.
func LoadPlan(source MetaSource, roots ...string) (*Plan, error) {
	p := &planner{
		source:  source,
		state:   make(map[string]int),
		symbols: make(map[string]map[string]struct{}),
		plan:    &Plan{},
	}
	for _, root := range roots {
		if err := p.visit(root, ""); err != nil {
			return nil, err
		}
	}
	for i := range p.plan.Steps {
		p.plan.Steps[i].Symbols = sortedKeys(p.symbols[p.plan.Steps[i].Package])
	}
	return p.plan, nil
}

func (p *planner) visit(name, parent string) error {
	switch p.state[name] {
	case 1:
		p.plan.Cycles = append(p.plan.Cycles, fmt.Sprintf("%s -> %s", parent, name))
		return nil
	case 2:
		return nil
	}
	p.state[name] = 1

	meta, err := p.source.Meta(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load meta of %s: %w", name, err)
		}
		p.state[name] = 2
		p.plan.Unavailable = append(p.plan.Unavailable, name)
		return nil
	}

	for _, dep := range meta.ExternalNames() {
		set := p.symbols[dep]
		if set == nil {
			set = make(map[string]struct{})
			p.symbols[dep] = set
		}
		for _, symbol := range meta.ExternalDependencies[dep] {
			set[symbol] = struct{}{}
		}
		if err := p.visit(dep, name); err != nil {
			return err
		}
	}

	p.state[name] = 2
	p.plan.Steps = append(p.plan.Steps, Step{Package: name})
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
