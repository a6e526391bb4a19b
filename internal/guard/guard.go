// Package guard keeps the protective stop order aligned with the live
// position. Whenever a position is open and its entry price is known, a
// stop matching the configured loss limit must exist within a bounded
// number of cycles; a failed replacement is simply retried next cycle.
package guard

import (
	"context"
	"math"

	"main/internal/coordinator"
	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/oplog"
)

const defaultPositionEpsilon = 1e-9

type Config struct {
	// LossLimit caps the maximum loss in quote currency for the full
	// position size.
	LossLimit float64
	PriceTick float64
	// PositionEpsilon is the size below which a position counts as flat.
	PositionEpsilon float64
}

// Guard is the stop-loss state machine. States are implicit in the inputs:
// NoPosition, PositionNoProtection, PositionProtected, ProtectionStale.
type Guard struct {
	cfg   Config
	coord *coordinator.Coordinator
	log   *oplog.Sink

	// warnedNoEntry keeps the unknown-entry log to one line per onset.
	warnedNoEntry bool
}

func New(coord *coordinator.Coordinator, cfg Config, log *oplog.Sink) *Guard {
	if cfg.PositionEpsilon <= 0 {
		cfg.PositionEpsilon = defaultPositionEpsilon
	}

	return &Guard{cfg: cfg, coord: coord, log: log}
}

// TargetTrigger computes the stop trigger that caps the position's loss at
// the configured limit, snapped to the price tick. Long positions trigger
// below entry, short positions above.
func (g *Guard) TargetTrigger(pos model.PositionSnapshot) float64 {
	qty := math.Abs(pos.Amount)
	if qty == 0 {
		return 0
	}

	perUnit := g.cfg.LossLimit / qty
	target := pos.EntryPrice + perUnit
	if pos.Long() {
		target = pos.EntryPrice - perUnit
	}

	return model.RoundToTick(target, g.cfg.PriceTick)
}

// Reconcile checks the protective order against the current position and
// repairs it when missing or stale.
func (g *Guard) Reconcile(ctx context.Context, pos model.PositionSnapshot, open []model.OpenOrder, lastPrice float64) error {
	if pos.Flat(g.cfg.PositionEpsilon) {
		g.warnedNoEntry = false
		return nil
	}

	if !pos.EntryKnown() {
		if !g.warnedNoEntry {
			g.log.Log(oplog.CategoryStop, "position open but entry price unknown, cannot size protective stop yet")
			g.warnedNoEntry = true
		}
		return nil
	}
	g.warnedNoEntry = false

	side := enum.OrderSideSell
	if !pos.Long() {
		side = enum.OrderSideBuy
	}

	target := g.TargetTrigger(pos)
	qty := math.Abs(pos.Amount)

	existing, ok := findProtective(open, side)
	if !ok {
		return g.coord.PlaceStopProtection(ctx, open, side, target, qty, lastPrice)
	}

	current, err := model.ParsePrice(existing.StopPrice)
	if err != nil {
		return errors.Wrap(err, "parse protective trigger")
	}

	tick := g.cfg.PriceTick
	if tick <= 0 || math.Abs(current-target) < tick {
		return nil
	}

	g.log.Logf(oplog.CategoryStop, "protective trigger stale: %s -> %s",
		existing.StopPrice, model.FormatPrice(target))

	if err := g.coord.Cancel(ctx, existing.ID); err != nil {
		g.log.Logf(oplog.CategoryError, "protective replace cancel failed, retrying next cycle: %v", err)
		return err
	}

	obs.ProtectiveReplaced()

	return g.coord.PlaceStopProtection(ctx, open, side, target, qty, lastPrice)
}

func findProtective(open []model.OpenOrder, side enum.OrderSide) (model.OpenOrder, bool) {
	for _, o := range open {
		if o.Type == enum.OrderTypeStopMarket && o.Side == side {
			return o, true
		}
	}

	return model.OpenOrder{}, false
}
