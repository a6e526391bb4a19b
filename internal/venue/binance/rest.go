// Package binance adapts the USD-M perpetual futures API to the venue
// capability set: signed REST for order actions, websocket streams for
// market data and the user data feed.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/ws"

	"main/internal/model"
	"main/internal/venue"
	"main/pkg/exception"
)

const (
	defaultBaseURL    = "https://fapi.binance.com"
	defaultWsURL      = "wss://fstream.binance.com/ws"
	defaultRecvWindow = 5000
)

type Config struct {
	BaseURL    string
	WsURL      string
	APIKey     string
	APISecret  string
	RecvWindow int64
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.WsURL == "" {
		c.WsURL = defaultWsURL
	}
	if c.RecvWindow <= 0 {
		c.RecvWindow = defaultRecvWindow
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	return c
}

// Venue implements the full capability set including bulk submission.
type Venue struct {
	cfg Config
	hc  *http.Client

	marketOnce sync.Once
	marketErr  error
	marketWss  *ws.WebSocket
	subID      int64

	user userStream
}

func New(cfg Config) *Venue {
	return &Venue{
		cfg: cfg.withDefaults(),
		hc:  &http.Client{Timeout: 10 * time.Second},
	}
}

type placedOrderPayload struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	apiError
}

func (v *Venue) CreateOrder(ctx context.Context, p venue.OrderParams) (venue.PlacedOrder, error) {
	body, err := v.call(ctx, http.MethodPost, "/fapi/v1/order", orderQuery(p))
	if err != nil {
		return venue.PlacedOrder{}, errors.Wrap(err, "create order")
	}

	return parsePlacedOrder(body)
}

func (v *Venue) CreateBulkOrders(ctx context.Context, params []venue.OrderParams) ([]venue.PlacedOrder, error) {
	if len(params) == 0 {
		return nil, nil
	}
	if len(params) > 5 {
		return nil, errors.New("bulk submission holds at most 5 orders")
	}

	batch := make([]map[string]string, 0, len(params))
	for _, p := range params {
		item := make(map[string]string)
		for key, value := range orderQuery(p) {
			item[key] = value[0]
		}
		batch = append(batch, item)
	}

	encoded, err := sonic.ConfigFastest.Marshal(batch)
	if err != nil {
		return nil, errors.Wrap(err, "marshal batch orders")
	}

	q := url.Values{}
	q.Set("batchOrders", string(encoded))

	body, err := v.call(ctx, http.MethodPost, "/fapi/v1/batchOrders", q)
	if err != nil {
		return nil, errors.Wrap(err, "create bulk orders")
	}

	var payloads []placedOrderPayload
	if err := sonic.ConfigFastest.Unmarshal(body, &payloads); err != nil {
		return nil, errors.Wrap(err, "decode bulk response")
	}

	placed := make([]venue.PlacedOrder, 0, len(payloads))
	for _, item := range payloads {
		if item.Code != 0 {
			if mapped := mapAPIError(item.Code); mapped != nil {
				return placed, mapped
			}
			return placed, errors.Errorf("bulk order rejected, code %d: %s", item.Code, item.Msg)
		}
		placed = append(placed, placedFromPayload(item))
	}

	return placed, nil
}

func (v *Venue) CancelOrder(ctx context.Context, symbol, orderID string) error {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("orderId", orderID)

	if _, err := v.call(ctx, http.MethodDelete, "/fapi/v1/order", q); err != nil {
		return errors.Wrap(err, "cancel order")
	}

	return nil
}

func (v *Venue) CancelOrders(ctx context.Context, symbol string, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orderIDs))
	for _, id := range orderIDs {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return errors.Wrap(err, "parse order id "+id)
		}
		ids = append(ids, n)
	}

	encoded, err := sonic.ConfigFastest.Marshal(ids)
	if err != nil {
		return errors.Wrap(err, "marshal order id list")
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("orderIdList", string(encoded))

	if _, err := v.call(ctx, http.MethodDelete, "/fapi/v1/batchOrders", q); err != nil {
		return errors.Wrap(err, "cancel orders")
	}

	return nil
}

func (v *Venue) CancelAllOrders(ctx context.Context, symbol string) error {
	q := url.Values{}
	q.Set("symbol", symbol)

	if _, err := v.call(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", q); err != nil {
		return errors.Wrap(err, "cancel all orders")
	}

	return nil
}

type openOrderPayload struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	ReduceOnly    bool   `json:"reduceOnly"`
	ClosePosition bool   `json:"closePosition"`
	UpdateTime    int64  `json:"updateTime"`
}

func (p openOrderPayload) toModel() model.OpenOrder {
	qty, _ := model.ParsePrice(p.OrigQty)
	executed, _ := model.ParsePrice(p.ExecutedQty)

	return model.OpenOrder{
		ID:               strconv.FormatInt(p.OrderID, 10),
		Side:             parseOrderSide(p.Side),
		Type:             parseOrderType(p.Type),
		Price:            p.Price,
		StopPrice:        p.StopPrice,
		Quantity:         qty,
		ExecutedQuantity: executed,
		Status:           parseOrderStatus(p.Status),
		ReduceOnly:       p.ReduceOnly,
		ClosePosition:    p.ClosePosition,
		UpdateTime:       p.UpdateTime,
	}
}

// openOrders fetches the resting order snapshot used to seed the order feed.
func (v *Venue) openOrders(ctx context.Context, symbol string) ([]model.OpenOrder, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	body, err := v.call(ctx, http.MethodGet, "/fapi/v1/openOrders", q)
	if err != nil {
		return nil, errors.Wrap(err, "fetch open orders")
	}

	var payloads []openOrderPayload
	if err := sonic.ConfigFastest.Unmarshal(body, &payloads); err != nil {
		return nil, errors.Wrap(err, "decode open orders")
	}

	out := make([]model.OpenOrder, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, p.toModel())
	}

	return out, nil
}

func orderQuery(p venue.OrderParams) url.Values {
	q := url.Values{}
	q.Set("symbol", p.Symbol)
	q.Set("side", p.Side.String())
	q.Set("type", wireOrderType(p.Type, p.Trigger))

	if p.TimeInForce.IsAvailable() {
		q.Set("timeInForce", p.TimeInForce.String())
	}
	if p.Quantity > 0 && !p.ClosePosition {
		q.Set("quantity", model.FormatPrice(p.Quantity))
	}
	if p.Price != "" {
		q.Set("price", p.Price)
	}
	if p.StopPrice != "" {
		q.Set("stopPrice", p.StopPrice)
	}
	if p.ActivationPrice != "" {
		q.Set("activationPrice", p.ActivationPrice)
	}
	if p.CallbackRate > 0 {
		q.Set("callbackRate", model.FormatPrice(p.CallbackRate))
	}
	if p.ClosePosition {
		q.Set("closePosition", "true")
	} else if p.ReduceOnly {
		q.Set("reduceOnly", "true")
	}
	if p.ClientOrderID != "" {
		q.Set("newClientOrderId", p.ClientOrderID)
	}

	return q
}

func parsePlacedOrder(body []byte) (venue.PlacedOrder, error) {
	var payload placedOrderPayload
	if err := sonic.ConfigFastest.Unmarshal(body, &payload); err != nil {
		return venue.PlacedOrder{}, errors.Wrap(err, "decode order response")
	}

	if payload.OrderID == 0 {
		return venue.PlacedOrder{}, exception.ErrOrderEmptyResponseID
	}

	return placedFromPayload(payload), nil
}

func placedFromPayload(p placedOrderPayload) venue.PlacedOrder {
	return venue.PlacedOrder{
		ID:            strconv.FormatInt(p.OrderID, 10),
		ClientOrderID: p.ClientOrderID,
		Status:        parseOrderStatus(p.Status),
	}
}

func (v *Venue) sign(q url.Values) string {
	mac := hmac.New(sha256.New, []byte(v.cfg.APISecret))
	_, _ = io.WriteString(mac, q.Encode())
	return hex.EncodeToString(mac.Sum(nil))
}

// call executes one signed request. Query-string signing applies to every
// method; the venue reads parameters from the query even on POST.
func (v *Venue) call(ctx context.Context, method, path string, q url.Values) ([]byte, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	q.Set("recvWindow", strconv.FormatInt(v.cfg.RecvWindow, 10))
	q.Set("signature", v.sign(q))

	req, err := http.NewRequestWithContext(ctx, method, v.cfg.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("X-MBX-APIKEY", v.cfg.APIKey)

	resp, err := v.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		return nil, exception.ErrRateLimited
	}

	if resp.StatusCode/100 != 2 {
		var apiErr apiError
		if err := sonic.ConfigFastest.Unmarshal(body, &apiErr); err == nil {
			if mapped := mapAPIError(apiErr.Code); mapped != nil {
				return nil, mapped
			}
			return nil, errors.Errorf("%s %s rejected, code %d: %s", method, path, apiErr.Code, apiErr.Msg)
		}
		return nil, errors.Errorf("%s %s status %d: %s", method, path, resp.StatusCode, string(body))
	}

	return body, nil
}
