package coordinator

import (
	"context"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/oplog"
	"main/internal/venue"
	"main/pkg/exception"
)

// DualOrderPlacer submits a multi-leg order set as one conceptual unit.
type DualOrderPlacer interface {
	PlaceAll(ctx context.Context, params []venue.OrderParams) ([]venue.PlacedOrder, error)
}

// BulkPlacer uses the venue's batch primitive for true atomicity.
type BulkPlacer struct {
	Venue venue.BulkCapable
}

func (p BulkPlacer) PlaceAll(ctx context.Context, params []venue.OrderParams) ([]venue.PlacedOrder, error) {
	return p.Venue.CreateBulkOrders(ctx, params)
}

// SequentialPlacer submits the same legs one by one. It keeps going past
// individual failures so the resulting order set matches the bulk path as
// closely as the venue allows, and reports the first error afterwards.
type SequentialPlacer struct {
	Venue venue.Venue
}

func (p SequentialPlacer) PlaceAll(ctx context.Context, params []venue.OrderParams) ([]venue.PlacedOrder, error) {
	placed := make([]venue.PlacedOrder, 0, len(params))

	var firstErr error
	for _, prm := range params {
		o, err := p.Venue.CreateOrder(ctx, prm)
		if err != nil {
			if errors.Is(err, exception.ErrRateLimited) {
				// Stop hammering a throttled venue.
				return placed, err
			}
			if firstErr == nil && !errors.Is(err, exception.ErrUnknownOrder) {
				firstErr = err
			}
			continue
		}
		placed = append(placed, o)
	}

	return placed, firstErr
}

// DualProtection describes the OSO-style protective legs attached to a dual
// entry: a SELL stop covering the long fill and a BUY stop covering the
// short fill.
type DualProtection struct {
	LongStopTrigger  float64
	ShortStopTrigger float64
	Quantity         float64
}

// PlaceDualWithProtection places a BUY and a SELL entry, optionally with two
// protective legs, as one unit. The bulk primitive is used when the venue
// exposes one; on absence or bulk failure the same legs go out sequentially
// and the fallback is logged.
func (c *Coordinator) PlaceDualWithProtection(ctx context.Context, buy, sell model.OrderIntent, prot *DualProtection, guard PriceGuard) error {
	buyKey := ClassKey(enum.OrderTypeLimit, enum.OrderSideBuy, false)
	sellKey := ClassKey(enum.OrderTypeLimit, enum.OrderSideSell, false)

	if !c.priceWithinBand(buy.Price, guard.MarkPrice) || !c.priceWithinBand(sell.Price, guard.MarkPrice) {
		c.log.Logf(oplog.CategoryWarn, "dual placement rejected: entry price outside %.2f%% mark band",
			c.cfg.MaxPriceDeviationPct)
		return nil
	}

	if !c.TryLock(buyKey) {
		return nil
	}
	if !c.TryLock(sellKey) {
		c.Unlock(buyKey)
		return nil
	}
	defer c.Unlock(buyKey)
	defer c.Unlock(sellKey)

	params := c.buildDualParams(buy, sell, prot, guard.LastPrice)

	if bulk, ok := c.venue.(venue.BulkCapable); ok {
		placed, err := (BulkPlacer{Venue: bulk}).PlaceAll(ctx, params)
		if err == nil {
			c.logDualPlaced("bulk", placed)
			return nil
		}
		if errors.Is(err, exception.ErrRateLimited) {
			return errors.Wrap(err, "bulk dual placement")
		}
		c.log.Logf(oplog.CategoryWarn, "bulk placement failed, falling back to sequential: %v", err)
	}

	placed, err := (SequentialPlacer{Venue: c.venue}).PlaceAll(ctx, params)
	if err != nil {
		return errors.Wrap(err, "sequential dual placement")
	}
	c.logDualPlaced("sequential", placed)

	return nil
}

func (c *Coordinator) buildDualParams(buy, sell model.OrderIntent, prot *DualProtection, lastPrice float64) []venue.OrderParams {
	params := []venue.OrderParams{
		{
			Symbol:        c.cfg.Symbol,
			Side:          enum.OrderSideBuy,
			Type:          enum.OrderTypeLimit,
			TimeInForce:   enum.OrderTimeInForceGTC,
			Quantity:      buy.Quantity,
			Price:         buy.Price,
			ClientOrderID: newClientOrderID(),
		},
		{
			Symbol:        c.cfg.Symbol,
			Side:          enum.OrderSideSell,
			Type:          enum.OrderTypeLimit,
			TimeInForce:   enum.OrderTimeInForceGTC,
			Quantity:      sell.Quantity,
			Price:         sell.Price,
			ClientOrderID: newClientOrderID(),
		},
	}

	if prot == nil {
		return params
	}

	if triggerValid(enum.OrderSideSell, prot.LongStopTrigger, lastPrice) {
		params = append(params, venue.OrderParams{
			Symbol:        c.cfg.Symbol,
			Side:          enum.OrderSideSell,
			Type:          enum.OrderTypeStopMarket,
			Quantity:      prot.Quantity,
			StopPrice:     model.FormatPrice(model.RoundToTick(prot.LongStopTrigger, c.cfg.PriceTick)),
			ReduceOnly:    true,
			ClosePosition: true,
			Trigger:       enum.TriggerKindFor(enum.OrderSideSell),
			ClientOrderID: newClientOrderID(),
		})
	} else {
		c.log.Logf(oplog.CategoryStop, "dual long stop %s through last %s, leg dropped",
			model.FormatPrice(prot.LongStopTrigger), model.FormatPrice(lastPrice))
	}

	if triggerValid(enum.OrderSideBuy, prot.ShortStopTrigger, lastPrice) {
		params = append(params, venue.OrderParams{
			Symbol:        c.cfg.Symbol,
			Side:          enum.OrderSideBuy,
			Type:          enum.OrderTypeStopMarket,
			Quantity:      prot.Quantity,
			StopPrice:     model.FormatPrice(model.RoundToTick(prot.ShortStopTrigger, c.cfg.PriceTick)),
			ReduceOnly:    true,
			ClosePosition: true,
			Trigger:       enum.TriggerKindFor(enum.OrderSideBuy),
			ClientOrderID: newClientOrderID(),
		})
	} else {
		c.log.Logf(oplog.CategoryStop, "dual short stop %s through last %s, leg dropped",
			model.FormatPrice(prot.ShortStopTrigger), model.FormatPrice(lastPrice))
	}

	return params
}

func (c *Coordinator) logDualPlaced(path string, placed []venue.PlacedOrder) {
	for _, o := range placed {
		obs.OrderPlaced("dual", path)
		c.log.Logf(oplog.CategoryOrder, "dual %s leg placed id %s", path, o.ID)
	}
}
