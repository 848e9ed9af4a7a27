// Package graph orders pipeline targets by their dependencies.
//
// A plan is the dependency closure of the requested targets in topological
// order. Targets with no ordering constraint between them are ordered by
// name, so the same pipeline always produces the same plan.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dosanma1/pipeforge/internal/config"
)

var (
	ErrCycle         = errors.New("dependency cycle")
	ErrUnknownTarget = errors.New("unknown target")
)

// Graph is a target dependency graph.
type Graph struct {
	deps map[string][]string
}

// New builds the graph of all targets in the pipeline.
func New(p *config.Pipeline) *Graph {
	deps := make(map[string][]string, len(p.Targets))
	for name, t := range p.Targets {
		if t == nil {
			deps[name] = nil
			continue
		}
		deps[name] = append([]string(nil), t.Depends...)
	}
	return FromEdges(deps)
}

// FromEdges builds a graph from a target -> dependencies map.
func FromEdges(deps map[string][]string) *Graph {
	g := &Graph{deps: make(map[string][]string, len(deps))}
	for name, d := range deps {
		sorted := append([]string(nil), d...)
		sort.Strings(sorted)
		g.deps[name] = sorted
	}
	return g
}

// Dependencies returns the direct dependencies of a target.
func (g *Graph) Dependencies(name string) []string {
	return g.deps[name]
}

// Plan returns the dependency closure of targets in execution order.
// Unknown targets and cycles are rejected before anything is ordered.
func (g *Graph) Plan(targets ...string) ([]string, error) {
	closure, err := g.closure(targets)
	if err != nil {
		return nil, err
	}
	return g.order(closure), nil
}

// closure walks the graph depth-first from each requested target, collecting
// every reachable target and failing on the first cycle.
func (g *Graph) closure(targets []string) (map[string]bool, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int)
	var stack []string

	var visit func(name, from string) error
	visit = func(name, from string) error {
		deps, ok := g.deps[name]
		if !ok {
			if from == "" {
				return fmt.Errorf("%w %q", ErrUnknownTarget, name)
			}
			return fmt.Errorf("%w %q (required by %q)", ErrUnknownTarget, name, from)
		}

		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrCycle, cyclePath(stack, name))
		}

		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range deps {
			if err := visit(dep, name); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, t := range targets {
		if err := visit(t, ""); err != nil {
			return nil, err
		}
	}

	closure := make(map[string]bool, len(state))
	for name := range state {
		closure[name] = true
	}
	return closure, nil
}

// order topologically sorts an acyclic closure, picking the smallest ready
// name at each step.
func (g *Graph) order(closure map[string]bool) []string {
	pending := make(map[string]int, len(closure))
	dependents := make(map[string][]string)
	for name := range closure {
		pending[name] = len(g.deps[name])
		for _, dep := range g.deps[name] {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, n := range pending {
		if n == 0 {
			ready = append(ready, name)
		}
	}

	plan := make([]string, 0, len(closure))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		plan = append(plan, next)

		for _, d := range dependents[next] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return plan
}

// cyclePath renders the cycle that closes at name, e.g. "a -> b -> a".
func cyclePath(stack []string, name string) string {
	start := 0
	for i, s := range stack {
		if s == name {
			start = i
			break
		}
	}
	path := append(append([]string(nil), stack[start:]...), name)
	return strings.Join(path, " -> ")
}
