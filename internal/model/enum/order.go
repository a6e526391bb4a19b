package enum

// OrderSide buy, sell
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side. Unknown sides map to themselves.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return s
	}
}

// OrderType limit, stop market, trailing stop market
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeLimit
	OrderTypeStopMarket
	OrderTypeTrailingStopMarket
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStopMarket:
		return "STOP_MARKET"
	case OrderTypeTrailingStopMarket:
		return "TRAILING_STOP_MARKET"
	default:
		return "UNKNOWN"
	}
}

// Protective reports whether the order type exists to cap position loss.
func (t OrderType) Protective() bool {
	return t == OrderTypeStopMarket || t == OrderTypeTrailingStopMarket
}

// OrderStatus new, partial filled, filled, canceled, expired
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusNew
	OrderStatusPartialFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusExpired
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

// Open reports whether the status still rests on the book.
func (s OrderStatus) Open() bool {
	return s == OrderStatusNew || s == OrderStatusPartialFilled
}

// OrderTimeInForce GTC, IOC, FOK
type OrderTimeInForce uint8

const (
	_order_time_in_force_beg OrderTimeInForce = iota
	OrderTimeInForceGTC
	OrderTimeInForceIOC
	OrderTimeInForceFOK
	_order_time_in_force_end
)

func (s OrderTimeInForce) IsAvailable() bool {
	return s > _order_time_in_force_beg && s < _order_time_in_force_end
}

func (s OrderTimeInForce) String() string {
	switch s {
	case OrderTimeInForceGTC:
		return "GTC"
	case OrderTimeInForceIOC:
		return "IOC"
	case OrderTimeInForceFOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// TriggerKind is the venue trigger label carried by protective orders.
// The venue names the SELL-side protective trigger "stop loss" and the
// BUY-side one "take profit"; the mapping is fixed by order side.
type TriggerKind uint8

const (
	_trigger_kind_beg TriggerKind = iota
	TriggerKindStopLoss
	TriggerKindTakeProfit
	_trigger_kind_end
)

func (k TriggerKind) IsAvailable() bool {
	return k > _trigger_kind_beg && k < _trigger_kind_end
}

func (k TriggerKind) String() string {
	switch k {
	case TriggerKindStopLoss:
		return "STOP_LOSS"
	case TriggerKindTakeProfit:
		return "TAKE_PROFIT"
	default:
		return "UNKNOWN"
	}
}

// TriggerKindFor derives the trigger label from the protective order side.
func TriggerKindFor(side OrderSide) TriggerKind {
	if side == OrderSideBuy {
		return TriggerKindTakeProfit
	}

	return TriggerKindStopLoss
}
