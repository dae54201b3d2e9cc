// Package status implements the data-driven lifecycle of payable objects:
// per-kind status chains loaded from the database, and the promotion engine
// that moves objects along them with their financial side effects.
package status

import (
	"context"
	"fmt"
	"sort"

	"github.com/shermatov/cargomart/internal/models"
	"github.com/shermatov/cargomart/internal/repository"
)

// Graph holds the status chains of every payable kind, ordered by sort
// position. Forward edges honor the per-row "next" override; backward edges
// are positional only, so a status skipped on the way forward is still the
// one a rollback lands on.
type Graph struct {
	chains map[models.PayableKind][]models.Status
	index  map[models.PayableKind]map[string]int
}

func NewGraph(statuses []models.Status) *Graph {
	g := &Graph{
		chains: make(map[models.PayableKind][]models.Status),
		index:  make(map[models.PayableKind]map[string]int),
	}

	for _, st := range statuses {
		g.chains[st.Kind] = append(g.chains[st.Kind], st)
	}
	for kind, chain := range g.chains {
		sort.SliceStable(chain, func(i, j int) bool {
			return chain[i].SortOrder < chain[j].SortOrder
		})
		idx := make(map[string]int, len(chain))
		for i, st := range chain {
			idx[st.Codename] = i
		}
		g.index[kind] = idx
	}

	return g
}

// LoadGraph reads every status row and builds the graph. Call it inside the
// transaction that uses it, so promotions see a consistent chain.
func LoadGraph(ctx context.Context, repo repository.StatusRepo) (*Graph, error) {
	statuses, err := repo.ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't load status graph: %w", err)
	}
	return NewGraph(statuses), nil
}

func (g *Graph) Get(kind models.PayableKind, codename string) (models.Status, bool) {
	i, ok := g.index[kind][codename]
	if !ok {
		return models.Status{}, false
	}
	return g.chains[kind][i], true
}

// Next returns the forward neighbor. A "next" codename in the status extra
// overrides the positional successor.
func (g *Graph) Next(kind models.PayableKind, codename string) (models.Status, bool) {
	st, ok := g.Get(kind, codename)
	if !ok {
		return models.Status{}, false
	}

	if override, ok := st.NextOverride(); ok {
		return g.Get(kind, override)
	}

	i := g.index[kind][codename]
	chain := g.chains[kind]
	if i+1 >= len(chain) {
		return models.Status{}, false
	}
	return chain[i+1], true
}

// Prev returns the positional predecessor. Overrides are deliberately not
// mirrored: rolling back from an overridden jump lands on the adjacent
// status, not the jump source.
func (g *Graph) Prev(kind models.PayableKind, codename string) (models.Status, bool) {
	i, ok := g.index[kind][codename]
	if !ok || i == 0 {
		return models.Status{}, false
	}
	return g.chains[kind][i-1], true
}

func (g *Graph) IsFinal(kind models.PayableKind, codename string) bool {
	st, ok := g.Get(kind, codename)
	return ok && st.IsFinal()
}

// CanTransition reports whether from may move to target within one kind.
// The forward edge (override aware) and the backward positional edge are
// allowed; "deleted" is reachable from any status of the kind.
func (g *Graph) CanTransition(kind models.PayableKind, from, target string) bool {
	if _, ok := g.Get(kind, target); !ok {
		return false
	}
	if target == models.StatusDeleted && from != target {
		if _, ok := g.Get(kind, from); ok {
			return true
		}
	}
	if next, ok := g.Next(kind, from); ok && next.Codename == target {
		return true
	}
	if prev, ok := g.Prev(kind, from); ok && prev.Codename == target {
		return true
	}
	return false
}
