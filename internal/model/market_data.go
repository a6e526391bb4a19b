package model

import "math"

// PositionSnapshot is the account feed's view of the traded position.
// Amount sign encodes direction: long > 0, short < 0. Replaced wholesale
// on every account push.
type PositionSnapshot struct {
	Amount     float64
	EntryPrice float64
	MarkPrice  float64
}

// Flat reports whether the position size is below epsilon.
func (p PositionSnapshot) Flat(epsilon float64) bool {
	return math.Abs(p.Amount) < epsilon
}

// Long reports whether the position is long.
func (p PositionSnapshot) Long() bool {
	return p.Amount > 0
}

// EntryKnown reports whether the entry price is usable for stop sizing.
func (p PositionSnapshot) EntryKnown() bool {
	return p.EntryPrice > 0 && !math.IsNaN(p.EntryPrice) && !math.IsInf(p.EntryPrice, 0)
}

type DepthRow struct {
	Price    float64
	Quantity float64
}

type Depth struct {
	Bids        []DepthRow
	Asks        []DepthRow
	EventTsMill int64
}

// BestBid returns the top bid price, or 0 when the book side is empty.
func (d Depth) BestBid() float64 {
	if len(d.Bids) == 0 {
		return 0
	}

	return d.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 when the book side is empty.
func (d Depth) BestAsk() float64 {
	if len(d.Asks) == 0 {
		return 0
	}

	return d.Asks[0].Price
}

type Ticker struct {
	Bid         float64
	Ask         float64
	Last        float64
	EventTsMill int64
}

// Mid returns the book midprice, falling back to the last trade when one
// side is missing.
func (t Ticker) Mid() float64 {
	if t.Bid > 0 && t.Ask > 0 {
		return (t.Bid + t.Ask) / 2
	}

	return t.Last
}
