package binance

import (
	"main/internal/model/enum"
	"main/pkg/exception"
)

// apiError is the venue's error envelope. A zero code means no error.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// mapAPIError folds venue error codes into the adapter taxonomy so the core
// never branches on raw codes.
func mapAPIError(code int) error {
	switch code {
	case -2011, -2013: // CANCEL_REJECTED, NO_SUCH_ORDER
		return exception.ErrUnknownOrder
	case -1003, -1015: // TOO_MANY_REQUESTS, TOO_MANY_ORDERS
		return exception.ErrRateLimited
	case -2018, -2019: // BALANCE_NOT_SUFFICIENT, MARGIN_NOT_SUFFICIENT
		return exception.ErrInsufficientBalance
	case -1102, -1111, -1130, -4014: // malformed or out-of-filter params
		return exception.ErrOrderInvalidRequest
	default:
		return nil
	}
}

func parseOrderStatus(s string) enum.OrderStatus {
	switch s {
	case "NEW":
		return enum.OrderStatusNew
	case "PARTIALLY_FILLED":
		return enum.OrderStatusPartialFilled
	case "FILLED":
		return enum.OrderStatusFilled
	case "CANCELED":
		return enum.OrderStatusCanceled
	case "EXPIRED":
		return enum.OrderStatusExpired
	default:
		return enum.OrderStatusNew
	}
}

func parseOrderSide(s string) enum.OrderSide {
	if s == "SELL" {
		return enum.OrderSideSell
	}
	return enum.OrderSideBuy
}

func parseOrderType(s string) enum.OrderType {
	switch s {
	case "STOP_MARKET", "TAKE_PROFIT_MARKET":
		return enum.OrderTypeStopMarket
	case "TRAILING_STOP_MARKET":
		return enum.OrderTypeTrailingStopMarket
	default:
		return enum.OrderTypeLimit
	}
}

// wireOrderType is the reverse mapping: the venue distinguishes loss-side
// and profit-side stops by order type, our model by trigger kind.
func wireOrderType(typ enum.OrderType, trigger enum.TriggerKind) string {
	if typ == enum.OrderTypeStopMarket && trigger == enum.TriggerKindTakeProfit {
		return "TAKE_PROFIT_MARKET"
	}
	return typ.String()
}
