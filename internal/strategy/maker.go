package strategy

import (
	"context"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

// Maker quotes symmetric levels around the book midpoint. It exists to
// drive the reconciliation loop end to end; production deployments swap in
// their own DesiredOrderSource.
type Maker struct {
	// OffsetPct is the distance of the first level from mid, in percent.
	OffsetPct float64
	// Levels is the quote count per side.
	Levels int
	// Quantity is the size of each quote.
	Quantity  float64
	PriceTick float64
}

func (m *Maker) DesiredOrders(_ context.Context, view MarketView) ([]model.OrderIntent, error) {
	mid := view.Ticker.Mid()
	if mid <= 0 {
		return nil, exception.ErrInvalidArgument
	}

	levels := m.Levels
	if levels <= 0 {
		levels = 1
	}

	intents := make([]model.OrderIntent, 0, levels*2)
	for i := 1; i <= levels; i++ {
		offset := mid * m.OffsetPct / 100 * float64(i)

		intents = append(intents, model.OrderIntent{
			Side:     enum.OrderSideBuy,
			Price:    model.FormatPrice(model.RoundToTick(mid-offset, m.PriceTick)),
			Quantity: m.Quantity,
		})
		intents = append(intents, model.OrderIntent{
			Side:     enum.OrderSideSell,
			Price:    model.FormatPrice(model.RoundToTick(mid+offset, m.PriceTick)),
			Quantity: m.Quantity,
		})
	}

	return intents, nil
}
