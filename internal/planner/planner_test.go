package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/model/enum"
)

func limitOrder(id string, side enum.OrderSide, price string, qty float64, reduceOnly bool) model.OpenOrder {
	return model.OpenOrder{
		ID:         id,
		Side:       side,
		Type:       enum.OrderTypeLimit,
		Price:      price,
		Quantity:   qty,
		Status:     enum.OrderStatusNew,
		ReduceOnly: reduceOnly,
	}
}

func TestDiffFullyMatchedIsEmpty(t *testing.T) {
	open := []model.OpenOrder{
		limitOrder("1", enum.OrderSideBuy, "64900.5", 0.01, false),
		limitOrder("2", enum.OrderSideSell, "65100.5", 0.01, false),
	}
	desired := []model.OrderIntent{
		{Side: enum.OrderSideBuy, Price: "64900.5", Quantity: 0.01},
		{Side: enum.OrderSideSell, Price: "65100.5", Quantity: 0.01},
	}

	plan := Diff(open, desired, 0)
	assert.True(t, plan.Empty())

	again := Diff(open, desired, 0)
	assert.Equal(t, plan, again)
}

func TestDiffDisjointCancelsAllPlacesAll(t *testing.T) {
	open := []model.OpenOrder{
		limitOrder("1", enum.OrderSideBuy, "100", 1, false),
		limitOrder("2", enum.OrderSideSell, "200", 1, false),
	}
	desired := []model.OrderIntent{
		{Side: enum.OrderSideBuy, Price: "101", Quantity: 1},
		{Side: enum.OrderSideSell, Price: "199", Quantity: 1},
	}

	plan := Diff(open, desired, 0)
	require.Len(t, plan.ToCancel, 2)
	require.Len(t, plan.ToPlace, 2)
	assert.Equal(t, open, plan.ToCancel)
	assert.Equal(t, desired, plan.ToPlace)
}

func TestDiffToleranceMatching(t *testing.T) {
	open := []model.OpenOrder{
		limitOrder("1", enum.OrderSideBuy, "100.04", 1, false),
	}
	desired := []model.OrderIntent{
		{Side: enum.OrderSideBuy, Price: "100.00", Quantity: 1},
	}

	assert.True(t, Diff(open, desired, 0.05).Empty())

	plan := Diff(open, desired, 0.01)
	assert.Len(t, plan.ToCancel, 1)
	assert.Len(t, plan.ToPlace, 1)
}

func TestDiffSideAndReduceOnlyMustMatch(t *testing.T) {
	open := []model.OpenOrder{
		limitOrder("1", enum.OrderSideBuy, "100", 1, true),
	}
	desired := []model.OrderIntent{
		{Side: enum.OrderSideBuy, Price: "100", Quantity: 1, ReduceOnly: false},
	}

	plan := Diff(open, desired, 0)
	assert.Len(t, plan.ToCancel, 1)
	assert.Len(t, plan.ToPlace, 1)
}

func TestDiffIntentConsumedOnce(t *testing.T) {
	// Two identical open orders, one matching intent: the second open order
	// has nothing left to match and must be canceled.
	open := []model.OpenOrder{
		limitOrder("1", enum.OrderSideBuy, "100", 1, false),
		limitOrder("2", enum.OrderSideBuy, "100", 1, false),
	}
	desired := []model.OrderIntent{
		{Side: enum.OrderSideBuy, Price: "100", Quantity: 1},
	}

	plan := Diff(open, desired, 0)
	require.Len(t, plan.ToCancel, 1)
	assert.Equal(t, "2", plan.ToCancel[0].ID)
	assert.Empty(t, plan.ToPlace)
}

func TestDiffSkipsDustIntents(t *testing.T) {
	desired := []model.OrderIntent{
		{Side: enum.OrderSideBuy, Price: "100", Quantity: 0},
		{Side: enum.OrderSideBuy, Price: "101", Quantity: DustQuantity / 2},
		{Side: enum.OrderSideSell, Price: "102", Quantity: 0.5},
	}

	plan := Diff(nil, desired, 0)
	require.Len(t, plan.ToPlace, 1)
	assert.Equal(t, "102", plan.ToPlace[0].Price)
}
