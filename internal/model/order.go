package model

import (
	"math"
	"strconv"

	"main/internal/model/enum"
)

// OrderIntent is one desired order produced by the strategy for the current
// cycle. Prices travel as decimal strings so that planner matching can
// compare them without float round-trips.
type OrderIntent struct {
	Side       enum.OrderSide
	Price      string
	Quantity   float64
	ReduceOnly bool
}

// OpenOrder is the venue-reported view of a resting order. The engine
// replaces its open-order set wholesale on every order-feed push; nothing
// mutates entries in place except the optimistic prune of acknowledged
// cancellations.
type OpenOrder struct {
	ID               string
	Side             enum.OrderSide
	Type             enum.OrderType
	Price            string
	StopPrice        string
	Quantity         float64
	ExecutedQuantity float64
	Status           enum.OrderStatus
	ReduceOnly       bool
	ClosePosition    bool
	UpdateTime       int64 // unix milli
}

// Protective reports whether the order is a position-protecting order.
func (o OpenOrder) Protective() bool {
	return o.Type.Protective()
}

// ParsePrice parses a decimal price string. Returns 0 for empty input.
func ParsePrice(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}

	return strconv.ParseFloat(s, 64)
}

// FormatPrice renders a price the way venues expect it on the wire.
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// RoundToTick snaps a price to the nearest multiple of tick.
// A non-positive tick leaves the price untouched.
func RoundToTick(p, tick float64) float64 {
	if tick <= 0 {
		return p
	}

	return math.Round(p/tick) * tick
}
