// Package engine drives one symbol's reconciliation loop: feed callbacks
// update engine-held state, a periodic tick diffs desired orders against the
// venue book and repairs the difference through the coordinator, and the
// stop guard runs every cycle regardless of throttling.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/coordinator"
	"main/internal/errors"
	"main/internal/guard"
	"main/internal/journal"
	"main/internal/model"
	"main/internal/obs"
	"main/internal/oplog"
	"main/internal/planner"
	"main/internal/ratelimit"
	"main/internal/strategy"
	"main/internal/venue"
	"main/pkg/exception"
)

const (
	defaultTickInterval    = time.Second
	defaultBalanceCooldown = time.Minute
)

type Config struct {
	Symbol string
	// TickInterval is the reconciliation period.
	TickInterval time.Duration
	// PriceTolerance widens the planner's price match beyond string equality.
	PriceTolerance float64
	// BalanceCooldown is how long entry placement stays blocked after the
	// venue rejects an order for insufficient balance.
	BalanceCooldown time.Duration
}

// feedState is the engine-owned mirror of the four venue feeds. Callbacks
// run on adapter goroutines, the tick runs on its own, so the mirror has its
// own mutex.
type feedState struct {
	mu sync.Mutex

	ticker   model.Ticker
	tickerOK bool

	depth   model.Depth
	depthOK bool

	position  model.PositionSnapshot
	balance   float64
	accountOK bool

	open     []model.OpenOrder
	ordersOK bool
}

type Engine struct {
	cfg     Config
	venue   venue.Venue
	coord   *coordinator.Coordinator
	guard   *guard.Guard
	limiter *ratelimit.Controller
	source  strategy.DesiredOrderSource
	journal *journal.Journal
	log     *oplog.Sink

	feeds   feedState
	ticking atomic.Bool

	// Owned by the tick goroutine; the re-entrancy guard makes unsynchronized
	// access safe.
	startupDone    bool
	missingLogged  bool
	balanceLimited bool
	balanceUntil   time.Time

	obsMu     sync.Mutex
	observers []func(Snapshot)

	now func() time.Time
}

func New(v venue.Venue, coord *coordinator.Coordinator, g *guard.Guard, limiter *ratelimit.Controller, source strategy.DesiredOrderSource, jrnl *journal.Journal, log *oplog.Sink, cfg Config) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.BalanceCooldown <= 0 {
		cfg.BalanceCooldown = defaultBalanceCooldown
	}

	return &Engine{
		cfg:     cfg,
		venue:   v,
		coord:   coord,
		guard:   g,
		limiter: limiter,
		source:  source,
		journal: jrnl,
		log:     log,
		now:     time.Now,
	}
}

// Run subscribes the four feeds and ticks until the context ends.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.subscribe(ctx); err != nil {
		return errors.Wrap(err, "subscribe feeds")
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.log.Logf(oplog.CategoryInfo, "engine %s running, tick %s", e.cfg.Symbol, e.cfg.TickInterval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

func (e *Engine) subscribe(ctx context.Context) error {
	if err := e.venue.WatchAccount(ctx, e.OnAccount); err != nil {
		return err
	}
	if err := e.venue.WatchOrders(ctx, e.cfg.Symbol, e.OnOrders); err != nil {
		return err
	}
	if err := e.venue.WatchDepth(ctx, e.cfg.Symbol, e.OnDepth); err != nil {
		return err
	}
	return e.venue.WatchTicker(ctx, e.cfg.Symbol, e.OnTicker)
}

func (e *Engine) OnAccount(u venue.AccountUpdate) {
	e.feeds.mu.Lock()
	defer e.feeds.mu.Unlock()

	e.feeds.position = u.Positions[e.cfg.Symbol]
	e.feeds.balance = u.AvailableBalance
	e.feeds.accountOK = true
}

func (e *Engine) OnOrders(open []model.OpenOrder) {
	e.feeds.mu.Lock()
	defer e.feeds.mu.Unlock()

	e.feeds.open = open
	e.feeds.ordersOK = true
}

func (e *Engine) OnDepth(d model.Depth) {
	e.feeds.mu.Lock()
	defer e.feeds.mu.Unlock()

	e.feeds.depth = d
	e.feeds.depthOK = true
}

func (e *Engine) OnTicker(t model.Ticker) {
	e.feeds.mu.Lock()
	defer e.feeds.mu.Unlock()

	e.feeds.ticker = t
	e.feeds.tickerOK = true
}

// Tick runs one reconciliation cycle. An overlapping timer firing while a
// tick is in flight is a no-op.
func (e *Engine) Tick(ctx context.Context) {
	if !e.ticking.CompareAndSwap(false, true) {
		return
	}
	defer e.ticking.Store(false)

	started := e.now()

	view, feeds := e.snapshotFeeds()
	if !feeds.Ready() {
		e.logMissingFeeds(feeds)
		e.publish(view, feeds, nil, false)
		obs.CycleCompleted("awaiting_feeds")
		return
	}
	if e.missingLogged {
		e.missingLogged = false
		e.log.Logf(oplog.CategoryInfo, "all feeds ready for %s", e.cfg.Symbol)
	}

	gate := e.limiter.BeforeCycle()
	if gate == ratelimit.GateSkip {
		e.publish(view, feeds, nil, false)
		obs.CycleCompleted("skipped")
		return
	}

	// The reset waits out any pause window like every other venue action,
	// so a rate-limited reset backs off instead of hammering the venue.
	if !e.startupDone && gate == ratelimit.GateProceed {
		if err := e.coord.CancelAll(ctx); err != nil {
			if errors.Is(err, exception.ErrRateLimited) {
				e.limiter.RegisterRateLimit("startup reset")
				obs.RateLimitPause()
			}
			e.log.Logf(oplog.CategoryError, "startup reset failed: %v", err)
			e.publish(view, feeds, nil, false)
			obs.CycleCompleted("error")
			return
		}
		e.startupDone = true
		e.log.Logf(oplog.CategoryInfo, "startup reset: canceled all resting %s orders", e.cfg.Symbol)
	}

	result := "ok"
	hadRateLimit := false
	canceled, placed := 0, 0
	lastPrice := e.lastPrice(view)
	var desired []model.OrderIntent

	switch {
	case gate == ratelimit.GatePaused:
		// Pause window still open: no entry work, but protective
		// maintenance and the snapshot still happen below.
		result = "paused"

	default:
		var err error
		desired, err = e.source.DesiredOrders(ctx, view)
		if err != nil {
			// A broken strategy must not cancel the book: keep the
			// resting orders and retry next tick.
			e.log.Logf(oplog.CategoryError, "strategy failed: %v", err)
			result = "error"
			break
		}

		plan := planner.Diff(nonProtective(view.OpenOrders), desired, e.cfg.PriceTolerance)

		canceled, hadRateLimit = e.executeCancels(ctx, &view, plan.ToCancel)
		if !hadRateLimit {
			placed, hadRateLimit = e.executePlaces(ctx, view, plan.ToPlace, lastPrice)
		}
		if hadRateLimit {
			result = "rate_limited"
		}
	}

	if err := e.guard.Reconcile(ctx, view.Position, view.OpenOrders, lastPrice); err != nil {
		e.log.Logf(oplog.CategoryError, "stop guard failed: %v", err)
	}

	e.journal.RecordCycle(journal.CycleRecord{
		Symbol:      e.cfg.Symbol,
		Result:      result,
		OpenOrders:  len(view.OpenOrders),
		Desired:     len(desired),
		Canceled:    canceled,
		Placed:      placed,
		Position:    view.Position.Amount,
		DurationMS:  e.now().Sub(started).Milliseconds(),
		RateLimited: hadRateLimit,
	})
	e.publish(view, feeds, desired, result == "paused")

	e.limiter.OnCycleComplete(hadRateLimit)
	obs.CycleCompleted(result)
	obs.SetPosition(e.cfg.Symbol, view.Position.Amount)
	obs.SetOpenOrders(e.cfg.Symbol, len(view.OpenOrders))
}

func (e *Engine) snapshotFeeds() (strategy.MarketView, FeedStatus) {
	e.feeds.mu.Lock()
	defer e.feeds.mu.Unlock()

	open := make([]model.OpenOrder, len(e.feeds.open))
	copy(open, e.feeds.open)

	view := strategy.MarketView{
		Symbol:     e.cfg.Symbol,
		Ticker:     e.feeds.ticker,
		Depth:      e.feeds.depth,
		Position:   e.feeds.position,
		OpenOrders: open,
	}
	feeds := FeedStatus{
		Account: e.feeds.accountOK,
		Orders:  e.feeds.ordersOK,
		Depth:   e.feeds.depthOK,
		Ticker:  e.feeds.tickerOK,
	}

	return view, feeds
}

// logMissingFeeds reports which feeds are still silent, once per blocked
// interval. The flag resets when feeds become ready.
func (e *Engine) logMissingFeeds(feeds FeedStatus) {
	if e.missingLogged {
		return
	}
	e.missingLogged = true

	e.log.Logf(oplog.CategoryWarn, "waiting for feeds %s: %s", e.cfg.Symbol, feeds.Missing())
}

func (e *Engine) executeCancels(ctx context.Context, view *strategy.MarketView, toCancel []model.OpenOrder) (int, bool) {
	if len(toCancel) == 0 {
		return 0, false
	}

	ids := make([]string, 0, len(toCancel))
	for _, o := range toCancel {
		ids = append(ids, o.ID)
	}

	if err := e.coord.CancelBatch(ctx, ids); err != nil {
		if errors.Is(err, exception.ErrRateLimited) {
			e.onRateLimited(ctx, *view, "cancel batch")
			return 0, true
		}
		e.log.Logf(oplog.CategoryError, "cancel batch failed: %v", err)
		return 0, false
	}

	// The feed echoes the cancels eventually; prune the working copy now so
	// the guard and the snapshot do not act on orders known to be gone.
	view.OpenOrders = withoutIDs(view.OpenOrders, ids)
	for _, o := range toCancel {
		e.journal.RecordOrder(journal.OrderRecord{
			Symbol:  e.cfg.Symbol,
			OrderID: o.ID,
			Action:  "cancel",
			Side:    o.Side.String(),
			Type:    o.Type.String(),
			Price:   o.Price,
		})
	}

	return len(ids), false
}

func (e *Engine) executePlaces(ctx context.Context, view strategy.MarketView, toPlace []model.OrderIntent, lastPrice float64) (int, bool) {
	if len(toPlace) == 0 {
		return 0, false
	}

	if e.entriesBlocked() {
		return 0, false
	}

	priceGuard := coordinator.PriceGuard{
		MarkPrice: e.markPrice(view),
		LastPrice: lastPrice,
	}

	placed := 0
	for _, d := range toPlace {
		// The plan is already duplicate-free: anything unmatched was
		// canceled above, and sibling quotes on the same side are
		// legitimate levels, so dedupe must not run here.
		submitted, err := e.coord.PlaceLimit(ctx, view.OpenOrders, d.Side, d.Price, d.Quantity, d.ReduceOnly, priceGuard, true)
		if err == nil {
			if !submitted {
				continue
			}
			placed++
			e.clearBalanceLimit()
			e.journal.RecordOrder(journal.OrderRecord{
				Symbol:     e.cfg.Symbol,
				Action:     "place",
				Side:       d.Side.String(),
				Type:       "LIMIT",
				Price:      d.Price,
				Quantity:   d.Quantity,
				ReduceOnly: d.ReduceOnly,
			})
			continue
		}

		if errors.Is(err, exception.ErrRateLimited) {
			e.onRateLimited(ctx, view, "place limit")
			return placed, true
		}
		if errors.Is(err, exception.ErrInsufficientBalance) {
			e.balanceLimited = true
			e.balanceUntil = e.now().Add(e.cfg.BalanceCooldown)
			e.log.Logf(oplog.CategoryWarn, "insufficient balance, blocking entries for %s", e.cfg.BalanceCooldown)
			return placed, false
		}

		e.log.Logf(oplog.CategoryError, "place %s %s failed: %v", d.Side, d.Price, err)
	}

	return placed, false
}

// onRateLimited opens the backoff window and sheds every non-protective
// order so the position's stop survives while everything else drains.
func (e *Engine) onRateLimited(ctx context.Context, view strategy.MarketView, scope string) {
	e.limiter.RegisterRateLimit(scope)
	obs.RateLimitPause()

	var ids []string
	for _, o := range nonProtective(view.OpenOrders) {
		ids = append(ids, o.ID)
	}
	if len(ids) == 0 {
		return
	}

	if err := e.coord.CancelBatch(ctx, ids); err != nil {
		e.log.Logf(oplog.CategoryError, "defensive sweep failed: %v", err)
		return
	}
	e.log.Logf(oplog.CategoryWarn, "rate limited: swept %d non-protective orders", len(ids))
}

// entriesBlocked reports whether new entry placement must be withheld this
// cycle. Cancels and protective maintenance are never withheld.
func (e *Engine) entriesBlocked() bool {
	if e.limiter.ShouldBlockEntries() {
		return true
	}

	if e.balanceLimited && e.now().Before(e.balanceUntil) {
		return true
	}

	return false
}

func (e *Engine) clearBalanceLimit() {
	if !e.balanceLimited {
		return
	}

	e.balanceLimited = false
	e.log.Logf(oplog.CategoryInfo, "balance recovered, entries unblocked")
}

func (e *Engine) lastPrice(view strategy.MarketView) float64 {
	if view.Ticker.Last > 0 {
		return view.Ticker.Last
	}
	return view.Ticker.Mid()
}

func (e *Engine) markPrice(view strategy.MarketView) float64 {
	if view.Position.MarkPrice > 0 {
		return view.Position.MarkPrice
	}
	return view.Ticker.Mid()
}

func nonProtective(open []model.OpenOrder) []model.OpenOrder {
	out := make([]model.OpenOrder, 0, len(open))
	for _, o := range open {
		if o.Protective() {
			continue
		}
		out = append(out, o)
	}
	return out
}

func withoutIDs(open []model.OpenOrder, ids []string) []model.OpenOrder {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	out := open[:0]
	for _, o := range open {
		if _, ok := drop[o.ID]; ok {
			continue
		}
		out = append(out, o)
	}
	return out
}
