package binance

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/ws"

	"main/internal/model"
	"main/internal/venue"
)

const listenKeyKeepalive = 30 * time.Minute

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func (v *Venue) ensureMarket(ctx context.Context) (*ws.WebSocket, error) {
	v.marketOnce.Do(func() {
		wss := ws.New(ctx, v.cfg.WsURL)
		if err := wss.Start(ctx); err != nil {
			v.marketErr = errors.Wrap(err, "start market stream")
			return
		}
		v.marketWss = wss
	})

	return v.marketWss, v.marketErr
}

func (v *Venue) subscribeStreams(ctx context.Context, wss *ws.WebSocket, streams ...string) error {
	id := atomic.AddInt64(&v.subID, 1)

	if err := wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := subscribeRequest{
				Method: "SUBSCRIBE",
				Params: streams,
				ID:     id,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp subscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != id {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe rejected, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, true); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

type depthPayload struct {
	EventType string              `json:"e"`
	EventTime int64               `json:"E"`
	Symbol    string              `json:"s"`
	Bids      [][]decimal.Decimal `json:"b"` // [0]price [1]quantity
	Asks      [][]decimal.Decimal `json:"a"` // [0]price [1]quantity
}

func (v *Venue) WatchDepth(ctx context.Context, symbol string, handler func(model.Depth)) error {
	wss, err := v.ensureMarket(ctx)
	if err != nil {
		return err
	}

	stream := strings.ToLower(symbol) + "@depth20@100ms"
	if err := v.subscribeStreams(ctx, wss, stream); err != nil {
		return errors.Wrap(err, "subscribe depth")
	}

	ch, cancel := wss.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				resp, ok := ws.ReadMessage[depthPayload](m)
				if !ok || resp.EventType != "depthUpdate" || !strings.EqualFold(resp.Symbol, symbol) {
					continue
				}

				handler(model.Depth{
					Bids:        depthRows(resp.Bids),
					Asks:        depthRows(resp.Asks),
					EventTsMill: resp.EventTime,
				})
			}
		}
	}()

	return nil
}

func depthRows(rows [][]decimal.Decimal) []model.DepthRow {
	out := make([]model.DepthRow, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}

		price, err := model.ParsePrice(row[0].String())
		if err != nil {
			continue
		}
		qty, err := model.ParsePrice(row[1].String())
		if err != nil {
			continue
		}

		out = append(out, model.DepthRow{Price: price, Quantity: qty})
	}

	return out
}

type bookTickerPayload struct {
	EventType string          `json:"e"`
	EventTime int64           `json:"E"`
	Symbol    string          `json:"s"`
	Bid       decimal.Decimal `json:"b"`
	Ask       decimal.Decimal `json:"a"`
}

type aggTradePayload struct {
	EventType string          `json:"e"`
	Symbol    string          `json:"s"`
	Price     decimal.Decimal `json:"p"`
}

func (v *Venue) WatchTicker(ctx context.Context, symbol string, handler func(model.Ticker)) error {
	wss, err := v.ensureMarket(ctx)
	if err != nil {
		return err
	}

	lower := strings.ToLower(symbol)
	if err := v.subscribeStreams(ctx, wss, lower+"@bookTicker", lower+"@aggTrade"); err != nil {
		return errors.Wrap(err, "subscribe ticker")
	}

	ch, cancel := wss.Subscribe()
	go func() {
		defer cancel()

		// The book stream carries no trade price; the trade stream carries
		// no book. Emit on book updates with the latest trade attached.
		var last float64

		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				if trade, ok := ws.ReadMessage[aggTradePayload](m); ok &&
					trade.EventType == "aggTrade" && strings.EqualFold(trade.Symbol, symbol) {
					if p, err := model.ParsePrice(trade.Price.String()); err == nil {
						last = p
					}
					continue
				}

				book, ok := ws.ReadMessage[bookTickerPayload](m)
				if !ok || book.EventType != "bookTicker" || !strings.EqualFold(book.Symbol, symbol) {
					continue
				}

				bid, err := model.ParsePrice(book.Bid.String())
				if err != nil {
					continue
				}
				ask, err := model.ParsePrice(book.Ask.String())
				if err != nil {
					continue
				}

				handler(model.Ticker{
					Bid:         bid,
					Ask:         ask,
					Last:        last,
					EventTsMill: book.EventTime,
				})
			}
		}
	}()

	return nil
}

// userStream multiplexes the single listen-key socket to account and order
// watchers, and mirrors open orders and positions so watchers always receive
// complete snapshots rather than per-event deltas.
type userStream struct {
	once sync.Once
	err  error
	wss  *ws.WebSocket

	mu        sync.Mutex
	orders    map[string]map[string]model.OpenOrder // symbol -> order id -> order
	positions map[string]model.PositionSnapshot     // symbol -> position
	balance   float64
	account   []func(venue.AccountUpdate)
	watchers  []orderWatcher
}

type orderWatcher struct {
	symbol  string
	handler func([]model.OpenOrder)
}

func (v *Venue) WatchAccount(ctx context.Context, handler func(venue.AccountUpdate)) error {
	if err := v.ensureUser(ctx); err != nil {
		return err
	}

	v.user.mu.Lock()
	v.user.account = append(v.user.account, handler)
	v.user.mu.Unlock()

	return nil
}

func (v *Venue) WatchOrders(ctx context.Context, symbol string, handler func([]model.OpenOrder)) error {
	if err := v.ensureUser(ctx); err != nil {
		return err
	}

	open, err := v.openOrders(ctx, symbol)
	if err != nil {
		return err
	}

	v.user.mu.Lock()
	mirror := make(map[string]model.OpenOrder, len(open))
	for _, o := range open {
		mirror[o.ID] = o
	}
	v.user.orders[symbol] = mirror
	v.user.watchers = append(v.user.watchers, orderWatcher{symbol: symbol, handler: handler})
	snapshot := snapshotLocked(mirror)
	v.user.mu.Unlock()

	handler(snapshot)

	return nil
}

func (v *Venue) ensureUser(ctx context.Context) error {
	v.user.once.Do(func() {
		key, err := v.listenKey(ctx, http.MethodPost)
		if err != nil {
			v.user.err = err
			return
		}

		wss := ws.New(ctx, v.cfg.WsURL+"/"+key)
		if err := wss.Start(ctx); err != nil {
			v.user.err = errors.Wrap(err, "start user stream")
			return
		}

		v.user.wss = wss
		v.user.orders = make(map[string]map[string]model.OpenOrder)
		v.user.positions = make(map[string]model.PositionSnapshot)

		go v.keepaliveLoop(ctx)
		go v.userLoop(ctx)
	})

	return v.user.err
}

// listenKey creates or extends the user stream key. The endpoint
// authenticates by API key header alone.
func (v *Venue) listenKey(ctx context.Context, method string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, v.cfg.BaseURL+"/fapi/v1/listenKey", nil)
	if err != nil {
		return "", errors.Wrap(err, "build listen key request")
	}
	req.Header.Set("X-MBX-APIKEY", v.cfg.APIKey)

	resp, err := v.hc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "request listen key")
	}
	defer resp.Body.Close()

	var payload struct {
		ListenKey string `json:"listenKey"`
		apiError
	}
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "decode listen key response")
	}
	if resp.StatusCode/100 != 2 {
		return "", errors.Errorf("listen key rejected, code %d: %s", payload.Code, payload.Msg)
	}

	return payload.ListenKey, nil
}

func (v *Venue) keepaliveLoop(ctx context.Context) {
	ticker := time.NewTicker(listenKeyKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := v.listenKey(ctx, http.MethodPut); err != nil {
				logs.Warnf("listen key keepalive failed, err: %v", err)
			}
		}
	}
}

type accountBalancePayload struct {
	Asset              string          `json:"a"`
	CrossWalletBalance decimal.Decimal `json:"cw"`
}

type accountPositionPayload struct {
	Symbol     string          `json:"s"`
	Amount     decimal.Decimal `json:"pa"`
	EntryPrice decimal.Decimal `json:"ep"`
}

type accountEventPayload struct {
	EventType string `json:"e"`
	Data      struct {
		Balances  []accountBalancePayload  `json:"B"`
		Positions []accountPositionPayload `json:"P"`
	} `json:"a"`
}

type orderEventPayload struct {
	EventType string `json:"e"`
	Order     struct {
		Symbol        string          `json:"s"`
		OrderID       int64           `json:"i"`
		ClientOrderID string          `json:"c"`
		Side          string          `json:"S"`
		Type          string          `json:"o"`
		Price         string          `json:"p"`
		StopPrice     string          `json:"sp"`
		Quantity      decimal.Decimal `json:"q"`
		FilledQty     decimal.Decimal `json:"z"`
		Status        string          `json:"X"`
		ReduceOnly    bool            `json:"R"`
		ClosePosition bool            `json:"cp"`
		TradeTime     int64           `json:"T"`
	} `json:"o"`
}

func (v *Venue) userLoop(ctx context.Context) {
	ch, cancel := v.user.wss.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}

			if event, ok := ws.ReadMessage[accountEventPayload](m); ok && event.EventType == "ACCOUNT_UPDATE" {
				v.dispatchAccount(event)
				continue
			}

			if event, ok := ws.ReadMessage[orderEventPayload](m); ok && event.EventType == "ORDER_TRADE_UPDATE" {
				v.dispatchOrder(event)
			}
		}
	}
}

// dispatchAccount folds an ACCOUNT_UPDATE into the mirror and emits the
// merged state. The venue only sends what changed, so a balance-only event
// or another symbol's fill must not erase positions the mirror already
// holds.
func (v *Venue) dispatchAccount(event accountEventPayload) {
	v.user.mu.Lock()

	for _, b := range event.Data.Balances {
		if b.Asset == "USDT" {
			if balance, err := model.ParsePrice(b.CrossWalletBalance.String()); err == nil {
				v.user.balance = balance
			}
		}
	}

	if v.user.positions == nil {
		v.user.positions = make(map[string]model.PositionSnapshot)
	}
	for _, p := range event.Data.Positions {
		amount, err := model.ParsePrice(p.Amount.String())
		if err != nil {
			continue
		}
		entry, err := model.ParsePrice(p.EntryPrice.String())
		if err != nil {
			continue
		}

		v.user.positions[p.Symbol] = model.PositionSnapshot{
			Amount:     amount,
			EntryPrice: entry,
		}
	}

	update := venue.AccountUpdate{
		AvailableBalance: v.user.balance,
		Positions:        make(map[string]model.PositionSnapshot, len(v.user.positions)),
	}
	for symbol, p := range v.user.positions {
		update.Positions[symbol] = p
	}

	handlers := v.user.account
	v.user.mu.Unlock()

	for _, h := range handlers {
		h(update)
	}
}

func (v *Venue) dispatchOrder(event orderEventPayload) {
	o := event.Order

	qty, _ := model.ParsePrice(o.Quantity.String())
	filled, _ := model.ParsePrice(o.FilledQty.String())

	order := model.OpenOrder{
		ID:               strconv.FormatInt(o.OrderID, 10),
		Side:             parseOrderSide(o.Side),
		Type:             parseOrderType(o.Type),
		Price:            o.Price,
		StopPrice:        o.StopPrice,
		Quantity:         qty,
		ExecutedQuantity: filled,
		Status:           parseOrderStatus(o.Status),
		ReduceOnly:       o.ReduceOnly,
		ClosePosition:    o.ClosePosition,
		UpdateTime:       o.TradeTime,
	}

	v.user.mu.Lock()
	mirror := v.user.orders[o.Symbol]
	if mirror == nil {
		mirror = make(map[string]model.OpenOrder)
		v.user.orders[o.Symbol] = mirror
	}

	if order.Status.Open() {
		mirror[order.ID] = order
	} else {
		delete(mirror, order.ID)
	}

	snapshot := snapshotLocked(mirror)
	var handlers []func([]model.OpenOrder)
	for _, w := range v.user.watchers {
		if w.symbol == o.Symbol {
			handlers = append(handlers, w.handler)
		}
	}
	v.user.mu.Unlock()

	for _, h := range handlers {
		h(snapshot)
	}
}

func snapshotLocked(mirror map[string]model.OpenOrder) []model.OpenOrder {
	out := make([]model.OpenOrder, 0, len(mirror))
	for _, o := range mirror {
		out = append(out, o)
	}
	return out
}
