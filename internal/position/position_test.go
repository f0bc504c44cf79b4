package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosition_ApplyBuy(t *testing.T) {
	p := New("TOKEN")
	p = p.ApplyBuy(10, 100, 1000)
	assert.Equal(t, 10.0, p.Amount)
	assert.Equal(t, 100.0, p.AverageEntryPrice)
	assert.Equal(t, 1000.0, p.TotalInvestedBase)

	p = p.ApplyBuy(10, 200, 2000)
	assert.Equal(t, 20.0, p.Amount)
	assert.InDelta(t, 150.0, p.AverageEntryPrice, 1e-9)
	assert.Equal(t, 3000.0, p.TotalInvestedBase)

	// Non-positive amounts are ignored.
	assert.Equal(t, p, p.ApplyBuy(0, 500, 0))
}

func TestPosition_ApplySell(t *testing.T) {
	p := New("TOKEN").ApplyBuy(1000, 0.001, 1).Mark(0.002)

	p, costBasis := p.ApplySell(500)
	assert.InDelta(t, 0.5, costBasis, 1e-12)
	assert.Equal(t, 500.0, p.Amount)
	assert.Equal(t, 0.001, p.AverageEntryPrice, "sells never change the average entry price")
	assert.InDelta(t, 0.5, p.TotalInvestedBase, 1e-12)
	assert.False(t, p.Closed())

	p, _ = p.ApplySell(500)
	assert.True(t, p.Closed())
	assert.Equal(t, 0.0, p.Amount)
	assert.Equal(t, 0.0, p.TotalInvestedBase)
}

func TestPosition_Mark(t *testing.T) {
	p := New("TOKEN").ApplyBuy(2, 10, 20).Mark(15)
	assert.Equal(t, 15.0, p.CurrentPrice)
	assert.Equal(t, 10.0, p.UnrealizedPnL)
	assert.Equal(t, 30.0, p.Value())

	// A non-positive price keeps the last known price.
	p = p.Mark(0)
	assert.Equal(t, 15.0, p.CurrentPrice)
}

func TestPosition_String(t *testing.T) {
	p := New("TOKEN").ApplyBuy(1, 2, 2).Mark(2)
	assert.Contains(t, p.String(), "Token: TOKEN")
}
