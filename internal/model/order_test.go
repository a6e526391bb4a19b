package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model/enum"
)

func TestParsePrice(t *testing.T) {
	p, err := ParsePrice("60000.5")
	require.NoError(t, err)
	assert.Equal(t, 60000.5, p)

	p, err = ParsePrice("")
	require.NoError(t, err)
	assert.Zero(t, p)

	_, err = ParsePrice("not-a-price")
	require.Error(t, err)
}

func TestFormatPriceTrimsTrailingZeros(t *testing.T) {
	assert.Equal(t, "100", FormatPrice(100.0))
	assert.Equal(t, "100.5", FormatPrice(100.5))
	assert.Equal(t, "0.001", FormatPrice(0.001))
}

func TestRoundToTick(t *testing.T) {
	assert.Equal(t, 100.0, RoundToTick(100.04, 0.1))
	assert.InDelta(t, 100.1, RoundToTick(100.06, 0.1), 1e-9)
	assert.InDelta(t, 99.95, RoundToTick(99.949, 0.05), 1e-9)
	// non-positive tick passes the price through
	assert.Equal(t, 123.456, RoundToTick(123.456, 0))
}

func TestProtectiveOrders(t *testing.T) {
	assert.False(t, OpenOrder{Type: enum.OrderTypeLimit}.Protective())
	assert.True(t, OpenOrder{Type: enum.OrderTypeStopMarket}.Protective())
	assert.True(t, OpenOrder{Type: enum.OrderTypeTrailingStopMarket}.Protective())
}

func TestTriggerKindFollowsSide(t *testing.T) {
	assert.Equal(t, enum.TriggerKindStopLoss, enum.TriggerKindFor(enum.OrderSideSell))
	assert.Equal(t, enum.TriggerKindTakeProfit, enum.TriggerKindFor(enum.OrderSideBuy))
}

func TestDepthBestPrices(t *testing.T) {
	d := Depth{
		Bids: []DepthRow{{Price: 99.9, Quantity: 1}, {Price: 99.8, Quantity: 2}},
		Asks: []DepthRow{{Price: 100.1, Quantity: 1}},
	}

	assert.Equal(t, 99.9, d.BestBid())
	assert.Equal(t, 100.1, d.BestAsk())
	assert.Zero(t, Depth{}.BestBid())
}

func TestPositionSnapshot(t *testing.T) {
	long := PositionSnapshot{Amount: 1.5, EntryPrice: 100}
	assert.True(t, long.Long())
	assert.True(t, long.EntryKnown())
	assert.False(t, long.Flat(1e-9))

	short := PositionSnapshot{Amount: -2}
	assert.False(t, short.Long())
	assert.False(t, short.EntryKnown())

	assert.True(t, PositionSnapshot{Amount: 1e-12}.Flat(1e-9))
}

func TestTickerMid(t *testing.T) {
	assert.Equal(t, 100.0, Ticker{Bid: 99.9, Ask: 100.1}.Mid())
	assert.Zero(t, Ticker{}.Mid())
}
