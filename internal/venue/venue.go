// Package venue defines the adapter capability set the reconciliation core
// consumes. Each venue implements it once; the core never sees wire formats.
package venue

import (
	"context"

	"main/internal/model"
	"main/internal/model/enum"
)

// OrderParams carries everything an adapter needs to build a venue order.
type OrderParams struct {
	Symbol          string
	Side            enum.OrderSide
	Type            enum.OrderType
	TimeInForce     enum.OrderTimeInForce
	Quantity        float64
	Price           string
	StopPrice       string
	ActivationPrice string
	CallbackRate    float64
	ReduceOnly      bool
	ClosePosition   bool
	Trigger         enum.TriggerKind
	ClientOrderID   string
}

// PlacedOrder is the venue acknowledgment of a submitted order.
type PlacedOrder struct {
	ID            string
	ClientOrderID string
	Status        enum.OrderStatus
}

// AccountUpdate is one account feed push.
type AccountUpdate struct {
	Positions        map[string]model.PositionSnapshot
	AvailableBalance float64
}

// Venue is the uniform adapter capability set. Subscription callbacks run on
// adapter goroutines; handlers must do their own synchronization.
type Venue interface {
	CreateOrder(ctx context.Context, p OrderParams) (PlacedOrder, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelOrders(ctx context.Context, symbol string, orderIDs []string) error
	CancelAllOrders(ctx context.Context, symbol string) error

	WatchAccount(ctx context.Context, handler func(AccountUpdate)) error
	WatchOrders(ctx context.Context, symbol string, handler func([]model.OpenOrder)) error
	WatchDepth(ctx context.Context, symbol string, handler func(model.Depth)) error
	WatchTicker(ctx context.Context, symbol string, handler func(model.Ticker)) error
}

// BulkCapable is the optional batch submission capability. Venues exposing
// it get true multi-leg atomicity; others go through sequential fallback.
type BulkCapable interface {
	CreateBulkOrders(ctx context.Context, params []OrderParams) ([]PlacedOrder, error)
}
