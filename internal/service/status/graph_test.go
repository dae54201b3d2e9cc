package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shermatov/cargomart/internal/models"
)

func shipmentChain() []models.Status {
	return []models.Status{
		{Kind: models.KindShipment, Codename: "new", SortOrder: 10},
		{Kind: models.KindShipment, Codename: "paid", SortOrder: 20, Extra: map[string]any{"next": "dispatched"}},
		{Kind: models.KindShipment, Codename: "packed", SortOrder: 30},
		{Kind: models.KindShipment, Codename: "dispatched", SortOrder: 40},
		{Kind: models.KindShipment, Codename: "done", SortOrder: 50, Extra: map[string]any{"is_final": true}},
		{Kind: models.KindShipment, Codename: "deleted", SortOrder: 60, Extra: map[string]any{"is_final": true}},
		{Kind: models.KindOrder, Codename: "new", SortOrder: 10},
		{Kind: models.KindOrder, Codename: "paid", SortOrder: 20},
	}
}

func TestGraphNext(t *testing.T) {
	g := NewGraph(shipmentChain())

	tests := []struct {
		name     string
		kind     models.PayableKind
		from     string
		wantNext string
		wantOK   bool
	}{
		{
			name:     "positional successor",
			kind:     models.KindShipment,
			from:     "new",
			wantNext: "paid",
			wantOK:   true,
		},
		{
			name:     "extra next override skips packed",
			kind:     models.KindShipment,
			from:     "paid",
			wantNext: "dispatched",
			wantOK:   true,
		},
		{
			name:   "last status has no next",
			kind:   models.KindShipment,
			from:   "deleted",
			wantOK: false,
		},
		{
			name:   "unknown status",
			kind:   models.KindShipment,
			from:   "nope",
			wantOK: false,
		},
		{
			name:     "chains are scoped by kind",
			kind:     models.KindOrder,
			from:     "new",
			wantNext: "paid",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := g.Next(tt.kind, tt.from)

			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantNext, next.Codename)
			}
		})
	}
}

func TestGraphPrevIgnoresOverrides(t *testing.T) {
	g := NewGraph(shipmentChain())

	// Forward from "paid" jumps to "dispatched", but backward from
	// "dispatched" lands on the positional neighbor "packed".
	prev, ok := g.Prev(models.KindShipment, "dispatched")
	require.True(t, ok)
	assert.Equal(t, "packed", prev.Codename)

	_, ok = g.Prev(models.KindShipment, "new")
	assert.False(t, ok, "first status has no predecessor")
}

func TestGraphCanTransition(t *testing.T) {
	g := NewGraph(shipmentChain())

	assert.True(t, g.CanTransition(models.KindShipment, "new", "paid"))
	assert.True(t, g.CanTransition(models.KindShipment, "paid", "dispatched"), "override edge is a valid forward move")
	assert.True(t, g.CanTransition(models.KindShipment, "paid", "new"), "one step back is allowed")

	assert.True(t, g.CanTransition(models.KindShipment, "new", "deleted"), "deletion is reachable from any status")
	assert.True(t, g.CanTransition(models.KindShipment, "done", "deleted"))

	assert.False(t, g.CanTransition(models.KindShipment, "paid", "packed"), "overridden positional successor is unreachable")
	assert.False(t, g.CanTransition(models.KindShipment, "new", "done"), "no skipping ahead")
	assert.False(t, g.CanTransition(models.KindShipment, "paid", "paid"), "self transition is not an edge")
	assert.False(t, g.CanTransition(models.KindOrder, "new", "dispatched"), "edges never cross kinds")
}

func TestGraphIsFinal(t *testing.T) {
	g := NewGraph(shipmentChain())

	assert.True(t, g.IsFinal(models.KindShipment, "done"))
	assert.False(t, g.IsFinal(models.KindShipment, "dispatched"))
	assert.False(t, g.IsFinal(models.KindShipment, "missing"))
}
