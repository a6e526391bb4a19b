// Package coordinator serializes order placement and cancellation against
// the venue, one logical operation per order class at a time. Classes are
// keyed by {type, side, open/close} so a BUY-open limit never blocks a
// concurrent SELL-close limit.
package coordinator

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/oplog"
	"main/internal/venue"
	"main/pkg/exception"
)

const defaultLockTimeout = 10 * time.Second

type Config struct {
	Symbol string
	// LockTimeout bounds how long a class stays locked when a venue
	// response is lost.
	LockTimeout time.Duration
	// MaxPriceDeviationPct rejects placements priced further than this
	// percentage from the mark price. Zero disables the band.
	MaxPriceDeviationPct float64
	PriceTick            float64
}

// PriceGuard carries the reference prices used for placement sanity checks.
type PriceGuard struct {
	MarkPrice float64
	LastPrice float64
}

type classLock struct {
	locked    bool
	pendingID string
	expiry    *time.Timer
}

// Coordinator owns the per-class lock map. The map itself is guarded by a
// mutex because feed callbacks and the tick goroutine both reach it; the
// per-class lock serializes across venue round-trips.
type Coordinator struct {
	venue venue.Venue
	cfg   Config
	log   *oplog.Sink

	mu    sync.Mutex
	locks map[string]*classLock
}

func New(v venue.Venue, cfg Config, log *oplog.Sink) *Coordinator {
	return &Coordinator{
		venue: v,
		cfg:   cfg,
		log:   log,
		locks: make(map[string]*classLock),
	}
}

// ClassKey derives the coordination domain for an order.
func ClassKey(typ enum.OrderType, side enum.OrderSide, closing bool) string {
	intent := "open"
	if closing {
		intent = "close"
	}

	return typ.String() + "/" + side.String() + "/" + intent
}

// TryLock acquires the class lock and arms its expiry timer. Returns false
// when the class is already locked.
func (c *Coordinator) TryLock(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ls := c.locks[key]
	if ls == nil {
		ls = &classLock{}
		c.locks[key] = ls
	}

	if ls.locked {
		return false
	}

	ls.locked = true
	if ls.expiry != nil {
		ls.expiry.Stop()
	}

	timeout := c.cfg.LockTimeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	ls.expiry = time.AfterFunc(timeout, func() { c.expireLock(key) })

	return true
}

// Unlock releases the class lock, clears the pending order id and stops the
// expiry timer. Idempotent.
func (c *Coordinator) Unlock(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ls := c.locks[key]
	if ls == nil {
		return
	}

	ls.locked = false
	ls.pendingID = ""
	if ls.expiry != nil {
		ls.expiry.Stop()
		ls.expiry = nil
	}
}

// Locked reports whether the class currently has an operation in flight.
func (c *Coordinator) Locked(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ls := c.locks[key]
	return ls != nil && ls.locked
}

// PendingOrderID returns the order id recorded for the in-flight operation.
func (c *Coordinator) PendingOrderID(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ls := c.locks[key]
	if ls == nil {
		return ""
	}
	return ls.pendingID
}

func (c *Coordinator) setPending(key, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ls := c.locks[key]; ls != nil {
		ls.pendingID = id
	}
}

func (c *Coordinator) expireLock(key string) {
	c.mu.Lock()
	ls := c.locks[key]
	if ls == nil || !ls.locked {
		c.mu.Unlock()
		return
	}
	ls.locked = false
	ls.pendingID = ""
	ls.expiry = nil
	c.mu.Unlock()

	c.log.Logf(oplog.CategoryWarn, "class %s lock expired without a venue response", key)
}

// Cancel cancels one order, treating an unknown order as already resolved.
func (c *Coordinator) Cancel(ctx context.Context, orderID string) error {
	err := c.venue.CancelOrder(ctx, c.cfg.Symbol, orderID)
	if err == nil {
		obs.OrdersCanceled(1)
		return nil
	}
	if errors.Is(err, exception.ErrUnknownOrder) {
		return nil
	}

	return errors.Wrap(err, "cancel order "+orderID)
}

// CancelBatch cancels several orders at once with the same tolerance.
func (c *Coordinator) CancelBatch(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}

	err := c.venue.CancelOrders(ctx, c.cfg.Symbol, orderIDs)
	if err == nil {
		obs.OrdersCanceled(len(orderIDs))
		return nil
	}
	if errors.Is(err, exception.ErrUnknownOrder) {
		return nil
	}

	return errors.Wrap(err, "cancel batch")
}

// CancelAll sweeps every resting order for the symbol. "Nothing to cancel"
// counts as success.
func (c *Coordinator) CancelAll(ctx context.Context) error {
	err := c.venue.CancelAllOrders(ctx, c.cfg.Symbol)
	if err == nil || errors.Is(err, exception.ErrUnknownOrder) {
		return nil
	}

	return errors.Wrap(err, "cancel all")
}

// Deduplicate resolves duplicate (type, side) orders left over from crashes
// or lock expiries: the most recently updated order survives, the rest get
// bulk-canceled. Ties on UpdateTime keep the feed's order.
func (c *Coordinator) Deduplicate(ctx context.Context, open []model.OpenOrder, typ enum.OrderType, side enum.OrderSide) error {
	var same []model.OpenOrder
	for _, o := range open {
		if o.Type == typ && o.Side == side {
			same = append(same, o)
		}
	}

	if len(same) < 2 {
		return nil
	}

	sort.SliceStable(same, func(i, j int) bool {
		return same[i].UpdateTime > same[j].UpdateTime
	})

	ids := make([]string, 0, len(same)-1)
	for _, o := range same[1:] {
		ids = append(ids, o.ID)
	}

	c.log.Logf(oplog.CategoryOrder, "dedupe %s %s: keeping %s, canceling %d duplicates",
		typ, side, same[0].ID, len(ids))

	if err := c.CancelBatch(ctx, ids); err != nil {
		c.log.Logf(oplog.CategoryError, "dedupe cancel failed: %v", err)
		return err
	}

	return nil
}

// PlaceLimit submits a limit order for the class derived from side and
// reduceOnly. No-op while the class is locked or when the price falls
// outside the mark-price band; the returned bool reports whether an order
// actually reached the venue. Unknown-order responses are swallowed; other
// venue errors propagate after the class is unlocked.
func (c *Coordinator) PlaceLimit(ctx context.Context, open []model.OpenOrder, side enum.OrderSide, price string, qty float64, reduceOnly bool, guard PriceGuard, skipDedupe bool) (bool, error) {
	key := ClassKey(enum.OrderTypeLimit, side, reduceOnly)
	if c.Locked(key) {
		return false, nil
	}

	if !c.priceWithinBand(price, guard.MarkPrice) {
		c.log.Logf(oplog.CategoryWarn, "limit %s %s rejected: deviates over %.2f%% from mark %s",
			side, price, c.cfg.MaxPriceDeviationPct, model.FormatPrice(guard.MarkPrice))
		return false, nil
	}

	if !skipDedupe {
		if err := c.Deduplicate(ctx, open, enum.OrderTypeLimit, side); err != nil {
			return false, err
		}
	}

	if !c.TryLock(key) {
		return false, nil
	}

	placed, err := c.venue.CreateOrder(ctx, venue.OrderParams{
		Symbol:        c.cfg.Symbol,
		Side:          side,
		Type:          enum.OrderTypeLimit,
		TimeInForce:   enum.OrderTimeInForceGTC,
		Quantity:      qty,
		Price:         price,
		ReduceOnly:    reduceOnly,
		ClientOrderID: newClientOrderID(),
	})
	if err != nil {
		c.Unlock(key)
		if errors.Is(err, exception.ErrUnknownOrder) {
			c.log.Logf(oplog.CategoryOrder, "limit %s %s resolved before submit completed", side, price)
			return false, nil
		}
		return false, errors.Wrap(err, "create limit order")
	}

	c.setPending(key, placed.ID)
	c.log.Logf(oplog.CategoryOrder, "placed limit %s %s x %s id %s",
		side, price, model.FormatPrice(qty), placed.ID)
	obs.OrderPlaced("limit", side.String())
	c.Unlock(key)

	return true, nil
}

// PlaceStopProtection submits a reduce-only, close-position stop order.
// Refuses triggers that would fire through the current price: a SELL stop
// must trigger below last, a BUY stop above it. The trigger label is
// derived from side, never from configuration.
func (c *Coordinator) PlaceStopProtection(ctx context.Context, open []model.OpenOrder, side enum.OrderSide, triggerPrice, qty, lastPrice float64) error {
	if !triggerValid(side, triggerPrice, lastPrice) {
		c.log.Logf(oplog.CategoryStop, "stop %s trigger %s through last %s, skipping",
			side, model.FormatPrice(triggerPrice), model.FormatPrice(lastPrice))
		return nil
	}

	key := ClassKey(enum.OrderTypeStopMarket, side, true)
	if c.Locked(key) {
		return nil
	}

	if err := c.Deduplicate(ctx, open, enum.OrderTypeStopMarket, side); err != nil {
		return err
	}

	if !c.TryLock(key) {
		return nil
	}

	placed, err := c.venue.CreateOrder(ctx, venue.OrderParams{
		Symbol:        c.cfg.Symbol,
		Side:          side,
		Type:          enum.OrderTypeStopMarket,
		Quantity:      qty,
		StopPrice:     model.FormatPrice(model.RoundToTick(triggerPrice, c.cfg.PriceTick)),
		ReduceOnly:    true,
		ClosePosition: true,
		Trigger:       enum.TriggerKindFor(side),
		ClientOrderID: newClientOrderID(),
	})
	if err != nil {
		c.Unlock(key)
		if errors.Is(err, exception.ErrUnknownOrder) {
			return nil
		}
		return errors.Wrap(err, "create stop order")
	}

	c.setPending(key, placed.ID)
	c.log.Logf(oplog.CategoryStop, "placed %s stop %s trigger %s x %s id %s",
		enum.TriggerKindFor(side), side, model.FormatPrice(triggerPrice),
		model.FormatPrice(qty), placed.ID)
	obs.OrderPlaced("stop", side.String())
	c.Unlock(key)

	return nil
}

// PlaceTrailingProtection is the trailing variant: an activation price and
// callback rate replace the fixed trigger.
func (c *Coordinator) PlaceTrailingProtection(ctx context.Context, open []model.OpenOrder, side enum.OrderSide, activationPrice, callbackRate, qty, lastPrice float64) error {
	if !triggerValid(side, activationPrice, lastPrice) {
		c.log.Logf(oplog.CategoryStop, "trailing %s activation %s through last %s, skipping",
			side, model.FormatPrice(activationPrice), model.FormatPrice(lastPrice))
		return nil
	}

	key := ClassKey(enum.OrderTypeTrailingStopMarket, side, true)
	if c.Locked(key) {
		return nil
	}

	if err := c.Deduplicate(ctx, open, enum.OrderTypeTrailingStopMarket, side); err != nil {
		return err
	}

	if !c.TryLock(key) {
		return nil
	}

	placed, err := c.venue.CreateOrder(ctx, venue.OrderParams{
		Symbol:          c.cfg.Symbol,
		Side:            side,
		Type:            enum.OrderTypeTrailingStopMarket,
		Quantity:        qty,
		ActivationPrice: model.FormatPrice(model.RoundToTick(activationPrice, c.cfg.PriceTick)),
		CallbackRate:    callbackRate,
		ReduceOnly:      true,
		Trigger:         enum.TriggerKindFor(side),
		ClientOrderID:   newClientOrderID(),
	})
	if err != nil {
		c.Unlock(key)
		if errors.Is(err, exception.ErrUnknownOrder) {
			return nil
		}
		return errors.Wrap(err, "create trailing stop order")
	}

	c.setPending(key, placed.ID)
	c.log.Logf(oplog.CategoryStop, "placed trailing %s activation %s callback %.2f%% id %s",
		side, model.FormatPrice(activationPrice), callbackRate, placed.ID)
	obs.OrderPlaced("trailing", side.String())
	c.Unlock(key)

	return nil
}

// Close exits position size with a reduce-only immediate-or-cancel limit at
// the guard-supplied expected price. Never an unconstrained market order.
func (c *Coordinator) Close(ctx context.Context, side enum.OrderSide, qty, expectedPrice float64, guard PriceGuard) error {
	price := model.FormatPrice(model.RoundToTick(expectedPrice, c.cfg.PriceTick))
	if !c.priceWithinBand(price, guard.MarkPrice) {
		c.log.Logf(oplog.CategoryWarn, "close %s %s rejected: deviates over %.2f%% from mark %s",
			side, price, c.cfg.MaxPriceDeviationPct, model.FormatPrice(guard.MarkPrice))
		return nil
	}

	key := ClassKey(enum.OrderTypeLimit, side, true)
	if !c.TryLock(key) {
		return nil
	}

	placed, err := c.venue.CreateOrder(ctx, venue.OrderParams{
		Symbol:        c.cfg.Symbol,
		Side:          side,
		Type:          enum.OrderTypeLimit,
		TimeInForce:   enum.OrderTimeInForceIOC,
		Quantity:      qty,
		Price:         price,
		ReduceOnly:    true,
		ClientOrderID: newClientOrderID(),
	})
	if err != nil {
		c.Unlock(key)
		if errors.Is(err, exception.ErrUnknownOrder) {
			return nil
		}
		return errors.Wrap(err, "create close order")
	}

	c.setPending(key, placed.ID)
	c.log.Logf(oplog.CategoryOrder, "close %s %s x %s id %s",
		side, price, model.FormatPrice(qty), placed.ID)
	obs.OrderPlaced("close", side.String())
	c.Unlock(key)

	return nil
}

func (c *Coordinator) priceWithinBand(price string, mark float64) bool {
	if c.cfg.MaxPriceDeviationPct <= 0 || mark <= 0 {
		return true
	}

	p, err := model.ParsePrice(price)
	if err != nil || p <= 0 {
		return false
	}

	return math.Abs(p-mark)/mark*100 <= c.cfg.MaxPriceDeviationPct
}

// A SELL stop protects a long and must trigger below the current price; a
// BUY stop protects a short and must trigger above it. Anything else would
// reject at the venue or fire instantly.
func triggerValid(side enum.OrderSide, trigger, last float64) bool {
	if trigger <= 0 || last <= 0 {
		return false
	}

	switch side {
	case enum.OrderSideSell:
		return trigger < last
	case enum.OrderSideBuy:
		return trigger > last
	default:
		return false
	}
}

func newClientOrderID() string {
	return "keeper-" + uuid.NewString()
}
