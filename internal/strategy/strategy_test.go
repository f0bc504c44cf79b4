package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(
		Definition{ID: "b", Mode: ModePaper, TokenAddress: "tok"},
		Definition{ID: "a"},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, r.List())

	d, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, ModeSignal, d.Mode, "empty mode defaults to signal")

	require.NoError(t, r.Register(Definition{ID: "c", Steps: []Step{
		{Action: ActionBuy, Amount: 1},
		{Action: ActionWaitTrade},
		{Action: ActionSell, All: true},
		{Action: ActionStop},
	}}))

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	assert.ErrorIs(t, r.Register(Definition{}), ErrInvalidDefinition)
	assert.ErrorIs(t, r.Register(Definition{ID: "x", Mode: "live"}), ErrInvalidDefinition)
	assert.ErrorIs(t, r.Register(Definition{ID: "y", Steps: []Step{{Action: ActionBuy}}}), ErrInvalidDefinition)
	assert.ErrorIs(t, r.Register(Definition{ID: "z", Steps: []Step{{Action: ActionSell}}}), ErrInvalidDefinition)
	assert.ErrorIs(t, r.Register(Definition{ID: "w", Steps: []Step{{Action: "hodl"}}}), ErrInvalidDefinition)
	assert.Empty(t, r.List())
}
