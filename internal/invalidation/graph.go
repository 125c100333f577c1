// Package invalidation maps mutations to the cache key groups whose content
// they change. The mapping is declared in graph.yaml and validated for
// transitive completeness when loaded.
package invalidation

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed graph.yaml
var defaultGraph []byte

var ErrUnknownMutation = errors.New("unknown mutation")

type Group struct {
	Prefixes    []string `yaml:"prefixes"`
	DerivedFrom []string `yaml:"derived_from"`
}

type Rule struct {
	Entity      string   `yaml:"entity"`
	Actions     []string `yaml:"actions"`
	Touches     string   `yaml:"touches"`
	Invalidates []string `yaml:"invalidates"`
}

type document struct {
	Groups map[string]Group `yaml:"groups"`
	Rules  []Rule           `yaml:"rules"`
}

type Graph struct {
	groups     map[string]Group
	rules      []Rule
	byMutation map[Mutation]Rule
}

// Default loads the embedded graph.
func Default() (*Graph, error) {
	return Load(defaultGraph)
}

// Load parses and validates a graph document.
func Load(data []byte) (*Graph, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse invalidation graph: %w", err)
	}
	graph := &Graph{
		groups:     doc.Groups,
		rules:      doc.Rules,
		byMutation: make(map[Mutation]Rule),
	}
	if graph.groups == nil {
		graph.groups = map[string]Group{}
	}
	var errs []error
	for _, rule := range doc.Rules {
		for _, action := range rule.Actions {
			mutation := For(rule.Entity, action)
			if _, dup := graph.byMutation[mutation]; dup {
				errs = append(errs, fmt.Errorf("mutation %s declared twice", mutation))
				continue
			}
			graph.byMutation[mutation] = rule
		}
	}
	if err := errors.Join(append(errs, graph.Validate())...); err != nil {
		return nil, err
	}
	return graph, nil
}

// Validate checks that every reference resolves, that each rule invalidates
// everything derived from the group it touches, and that no group is left
// without an invalidating rule.
func (g *Graph) Validate() error {
	var errs []error
	for _, name := range sortedKeys(g.groups) {
		group := g.groups[name]
		if len(group.Prefixes) == 0 {
			errs = append(errs, fmt.Errorf("group %s has no prefixes", name))
		}
		for _, parent := range group.DerivedFrom {
			if _, ok := g.groups[parent]; !ok {
				errs = append(errs, fmt.Errorf("group %s derives from unknown group %s", name, parent))
			}
		}
	}

	covered := make(map[string]bool)
	for _, rule := range g.rules {
		label := rule.Entity
		if rule.Entity == "" || len(rule.Actions) == 0 {
			errs = append(errs, fmt.Errorf("rule %q needs an entity and at least one action", label))
		}
		if _, ok := g.groups[rule.Touches]; !ok {
			errs = append(errs, fmt.Errorf("rule %s touches unknown group %q", label, rule.Touches))
			continue
		}
		declared := make(map[string]bool, len(rule.Invalidates))
		for _, name := range rule.Invalidates {
			if _, ok := g.groups[name]; !ok {
				errs = append(errs, fmt.Errorf("rule %s invalidates unknown group %s", label, name))
				continue
			}
			declared[name] = true
			covered[name] = true
		}
		if !declared[rule.Touches] {
			errs = append(errs, fmt.Errorf("rule %s does not invalidate the group it touches (%s)", label, rule.Touches))
		}
		for _, dependent := range g.Dependents(rule.Touches) {
			if !declared[dependent] {
				errs = append(errs, fmt.Errorf("rule %s misses %s, which derives from %s", label, dependent, rule.Touches))
			}
		}
	}
	for _, name := range sortedKeys(g.groups) {
		if !covered[name] {
			errs = append(errs, fmt.Errorf("group %s is never invalidated", name))
		}
	}
	return errors.Join(errs...)
}

// Dependents returns every group that transitively derives from group,
// sorted by name.
func (g *Graph) Dependents(group string) []string {
	children := make(map[string][]string)
	for name, def := range g.groups {
		for _, parent := range def.DerivedFrom {
			children[parent] = append(children[parent], name)
		}
	}
	seen := map[string]bool{group: true}
	queue := []string{group}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	sort.Strings(out)
	return out
}

// Groups returns the group names a mutation invalidates.
func (g *Graph) Groups(mutation Mutation) ([]string, error) {
	rule, ok := g.byMutation[mutation]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMutation, mutation)
	}
	return append([]string(nil), rule.Invalidates...), nil
}

// Targets returns the key prefixes a mutation must evict.
func (g *Graph) Targets(mutation Mutation) ([]string, error) {
	names, err := g.Groups(mutation)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var prefixes []string
	for _, name := range names {
		for _, prefix := range g.groups[name].Prefixes {
			if seen[prefix] {
				continue
			}
			seen[prefix] = true
			prefixes = append(prefixes, prefix)
		}
	}
	return prefixes, nil
}

// GroupPrefixes returns the prefixes of a single group.
func (g *Graph) GroupPrefixes(name string) ([]string, bool) {
	group, ok := g.groups[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), group.Prefixes...), true
}

func (g *Graph) GroupNames() []string {
	return sortedKeys(g.groups)
}

func (g *Graph) Mutations() []Mutation {
	out := make([]Mutation, 0, len(g.byMutation))
	for mutation := range g.byMutation {
		out = append(out, mutation)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
