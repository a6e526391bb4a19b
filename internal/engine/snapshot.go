package engine

import (
	"strings"
	"time"

	"main/internal/model"
	"main/internal/oplog"
	"main/internal/strategy"
)

// FeedStatus tracks which venue feeds have delivered at least one snapshot.
type FeedStatus struct {
	Account bool
	Orders  bool
	Depth   bool
	Ticker  bool
}

func (f FeedStatus) Ready() bool {
	return f.Account && f.Orders && f.Depth && f.Ticker
}

// Missing names the silent feeds for logging.
func (f FeedStatus) Missing() string {
	var missing []string
	if !f.Account {
		missing = append(missing, "account")
	}
	if !f.Orders {
		missing = append(missing, "orders")
	}
	if !f.Depth {
		missing = append(missing, "depth")
	}
	if !f.Ticker {
		missing = append(missing, "ticker")
	}

	return strings.Join(missing, ",")
}

// Snapshot is the per-cycle immutable view handed to observers.
type Snapshot struct {
	Time             time.Time
	Symbol           string
	Feeds            FeedStatus
	Position         model.PositionSnapshot
	AvailableBalance float64
	OpenOrders       []model.OpenOrder
	Desired          []model.OrderIntent
	RecentLogs       []oplog.Entry
	Paused           bool
	EntriesBlocked   bool
}

// Observe registers a snapshot observer. Observers run on the tick
// goroutine and must not block.
func (e *Engine) Observe(fn func(Snapshot)) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()

	e.observers = append(e.observers, fn)
}

func (e *Engine) publish(view strategy.MarketView, feeds FeedStatus, desired []model.OrderIntent, paused bool) {
	e.obsMu.Lock()
	observers := e.observers
	e.obsMu.Unlock()

	if len(observers) == 0 {
		return
	}

	e.feeds.mu.Lock()
	balance := e.feeds.balance
	e.feeds.mu.Unlock()

	snap := Snapshot{
		Time:             e.now(),
		Symbol:           e.cfg.Symbol,
		Feeds:            feeds,
		Position:         view.Position,
		AvailableBalance: balance,
		OpenOrders:       view.OpenOrders,
		Desired:          desired,
		RecentLogs:       e.log.Recent(),
		Paused:           paused,
		EntriesBlocked:   e.entriesBlocked(),
	}

	for _, fn := range observers {
		fn(snap)
	}
}
