// Package strategy defines the collaborator that derives desired orders
// each cycle. The reconciliation core treats it as opaque: it only consumes
// the resulting intent list.
package strategy

import (
	"context"

	"main/internal/model"
)

// MarketView is the engine-held state handed to the strategy on each tick.
type MarketView struct {
	Symbol     string
	Ticker     model.Ticker
	Depth      model.Depth
	Position   model.PositionSnapshot
	OpenOrders []model.OpenOrder
}

// DesiredOrderSource produces the full desired order set for one cycle.
// Intents are fresh values every call; the engine never mutates them.
type DesiredOrderSource interface {
	DesiredOrders(ctx context.Context, view MarketView) ([]model.OrderIntent, error)
}
