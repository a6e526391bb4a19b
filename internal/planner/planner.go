// Package planner diffs the strategy's desired order set against the
// venue's open orders. Pure and order-stable: the same inputs always yield
// the same plan, and a fully-matched book yields an empty plan so the loop
// never churns cancels against itself.
package planner

import (
	"math"

	"main/internal/model"
)

// DustQuantity is the threshold below which an unmatched intent is not
// worth placing.
const DustQuantity = 1e-8

// Plan is the cycle's work: cancels execute before places so the order
// count never overshoots venue limits.
type Plan struct {
	ToCancel []model.OpenOrder
	ToPlace  []model.OrderIntent
}

// Empty reports whether the plan requires no venue action.
func (p Plan) Empty() bool {
	return len(p.ToCancel) == 0 && len(p.ToPlace) == 0
}

// Diff matches open orders against desired intents greedily, first found
// wins. An open order matches an intent iff side and reduce-only flags are
// equal and the prices are equal as strings, or within priceTolerance when
// tolerance > 0. Each open order consumes at most one intent and each
// intent is consumed at most once.
func Diff(open []model.OpenOrder, desired []model.OrderIntent, priceTolerance float64) Plan {
	var plan Plan

	matched := make([]bool, len(desired))

	for _, o := range open {
		idx := -1
		for i, d := range desired {
			if matched[i] {
				continue
			}
			if matches(o, d, priceTolerance) {
				idx = i
				break
			}
		}

		if idx < 0 {
			plan.ToCancel = append(plan.ToCancel, o)
			continue
		}

		matched[idx] = true
	}

	for i, d := range desired {
		if matched[i] {
			continue
		}
		if d.Quantity <= DustQuantity {
			continue
		}

		plan.ToPlace = append(plan.ToPlace, d)
	}

	return plan
}

func matches(o model.OpenOrder, d model.OrderIntent, tolerance float64) bool {
	if o.Side != d.Side || o.ReduceOnly != d.ReduceOnly {
		return false
	}

	if o.Price == d.Price {
		return true
	}

	if tolerance <= 0 {
		return false
	}

	op, err := model.ParsePrice(o.Price)
	if err != nil {
		return false
	}
	dp, err := model.ParsePrice(d.Price)
	if err != nil {
		return false
	}

	return math.Abs(op-dp) <= tolerance
}
