package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/oplog"
	"main/internal/venue"
	"main/internal/venue/paper"
	"main/pkg/exception"
)

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *paper.Venue) {
	t.Helper()

	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = time.Second
	}

	pv := paper.New()
	return New(pv, cfg, oplog.NewSink(16)), pv
}

func TestLockLiveness(t *testing.T) {
	c, _ := newTestCoordinator(t, Config{LockTimeout: 30 * time.Millisecond})

	key := ClassKey(enum.OrderTypeLimit, enum.OrderSideBuy, false)
	require.True(t, c.TryLock(key))
	assert.False(t, c.TryLock(key))
	assert.True(t, c.Locked(key))

	assert.Eventually(t, func() bool { return !c.Locked(key) },
		500*time.Millisecond, 5*time.Millisecond,
		"lock must auto-release after its timeout")
}

func TestUnlockIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(t, Config{})

	key := ClassKey(enum.OrderTypeLimit, enum.OrderSideSell, true)
	c.Unlock(key) // never locked: no-op

	require.True(t, c.TryLock(key))
	c.Unlock(key)
	c.Unlock(key)
	assert.False(t, c.Locked(key))
	assert.Empty(t, c.PendingOrderID(key))
}

// cancelRecorder wraps a venue to capture batch-cancel targets.
type cancelRecorder struct {
	venue.Venue
	canceled []string
}

func (r *cancelRecorder) CancelOrders(_ context.Context, _ string, ids []string) error {
	r.canceled = append(r.canceled, ids...)
	return nil
}

func TestDeduplicateKeepsNewest(t *testing.T) {
	rec := &cancelRecorder{Venue: paper.New()}
	c := New(rec, Config{Symbol: "BTCUSDT", LockTimeout: time.Second}, oplog.NewSink(16))

	open := []model.OpenOrder{
		{ID: "old", Side: enum.OrderSideBuy, Type: enum.OrderTypeLimit, UpdateTime: 100},
		{ID: "new", Side: enum.OrderSideBuy, Type: enum.OrderTypeLimit, UpdateTime: 200},
		{ID: "mid", Side: enum.OrderSideBuy, Type: enum.OrderTypeLimit, UpdateTime: 150},
		{ID: "sell", Side: enum.OrderSideSell, Type: enum.OrderTypeLimit, UpdateTime: 300},
	}

	require.NoError(t, c.Deduplicate(t.Context(), open, enum.OrderTypeLimit, enum.OrderSideBuy))
	assert.ElementsMatch(t, []string{"old", "mid"}, rec.canceled,
		"the most recently updated duplicate must survive")
}

func TestDeduplicateSkipsSingles(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{})

	open := []model.OpenOrder{
		{ID: "1", Side: enum.OrderSideBuy, Type: enum.OrderTypeLimit, UpdateTime: 100},
	}
	require.NoError(t, c.Deduplicate(t.Context(), open, enum.OrderTypeLimit, enum.OrderSideBuy))
	assert.Empty(t, pv.Submissions())
}

func TestPlaceLimit(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{})

	submitted, err := c.PlaceLimit(t.Context(), nil, enum.OrderSideBuy, "65000", 0.01, false, PriceGuard{}, false)
	require.NoError(t, err)
	assert.True(t, submitted)

	subs := pv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, enum.OrderTypeLimit, subs[0].Type)
	assert.Equal(t, enum.OrderTimeInForceGTC, subs[0].TimeInForce)
	assert.Equal(t, "65000", subs[0].Price)
	assert.NotEmpty(t, subs[0].ClientOrderID)

	// Class unlocked again after the terminal success.
	assert.False(t, c.Locked(ClassKey(enum.OrderTypeLimit, enum.OrderSideBuy, false)))
}

func TestPlaceLimitNoOpWhileLocked(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{})

	require.True(t, c.TryLock(ClassKey(enum.OrderTypeLimit, enum.OrderSideBuy, false)))

	submitted, err := c.PlaceLimit(t.Context(), nil, enum.OrderSideBuy, "65000", 0.01, false, PriceGuard{}, false)
	require.NoError(t, err)
	assert.False(t, submitted)
	assert.Empty(t, pv.Submissions())
}

func TestPlaceLimitPriceBandReject(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{MaxPriceDeviationPct: 1})

	// 65000 vs mark 60000 is an 8.3% deviation: logged skip, no error.
	submitted, err := c.PlaceLimit(t.Context(), nil, enum.OrderSideBuy, "65000", 0.01, false,
		PriceGuard{MarkPrice: 60000}, false)
	require.NoError(t, err)
	assert.False(t, submitted)
	assert.Empty(t, pv.Submissions())

	// Within the band it goes through.
	submitted, err = c.PlaceLimit(t.Context(), nil, enum.OrderSideBuy, "60500", 0.01, false,
		PriceGuard{MarkPrice: 60000}, false)
	require.NoError(t, err)
	assert.True(t, submitted)
	assert.Len(t, pv.Submissions(), 1)
}

func TestPlaceLimitSwallowsUnknownOrder(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{})

	pv.FailNextCreate(exception.ErrUnknownOrder)
	submitted, err := c.PlaceLimit(t.Context(), nil, enum.OrderSideBuy, "65000", 0.01, false, PriceGuard{}, false)
	require.NoError(t, err)
	assert.False(t, submitted)
	assert.False(t, c.Locked(ClassKey(enum.OrderTypeLimit, enum.OrderSideBuy, false)))
}

func TestPlaceLimitPropagatesVenueErrorUnlocked(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{})

	pv.FailNextCreate(exception.ErrRateLimited)
	_, err := c.PlaceLimit(t.Context(), nil, enum.OrderSideBuy, "65000", 0.01, false, PriceGuard{}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrRateLimited))
	assert.False(t, c.Locked(ClassKey(enum.OrderTypeLimit, enum.OrderSideBuy, false)))
}

func TestPlaceStopProtection(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{PriceTick: 0.1})

	err := c.PlaceStopProtection(t.Context(), nil, enum.OrderSideSell, 90, 1, 100)
	require.NoError(t, err)

	subs := pv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, enum.OrderTypeStopMarket, subs[0].Type)
	assert.Equal(t, "90", subs[0].StopPrice)
	assert.True(t, subs[0].ReduceOnly)
	assert.True(t, subs[0].ClosePosition)
	assert.Equal(t, enum.TriggerKindStopLoss, subs[0].Trigger)
}

func TestPlaceStopProtectionTriggerThroughPrice(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{})

	// SELL stop must trigger below last price.
	require.NoError(t, c.PlaceStopProtection(t.Context(), nil, enum.OrderSideSell, 110, 1, 100))
	// BUY stop must trigger above last price.
	require.NoError(t, c.PlaceStopProtection(t.Context(), nil, enum.OrderSideBuy, 90, 1, 100))
	assert.Empty(t, pv.Submissions())
}

func TestTriggerKindFollowsSide(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{})

	// Protective BUY on a short position carries the venue's take-profit label.
	require.NoError(t, c.PlaceStopProtection(t.Context(), nil, enum.OrderSideBuy, 110, 1, 100))

	subs := pv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, enum.TriggerKindTakeProfit, subs[0].Trigger)
}

func TestPlaceTrailingProtection(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{})

	err := c.PlaceTrailingProtection(t.Context(), nil, enum.OrderSideSell, 95, 0.5, 1, 100)
	require.NoError(t, err)

	subs := pv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, enum.OrderTypeTrailingStopMarket, subs[0].Type)
	assert.Equal(t, "95", subs[0].ActivationPrice)
	assert.Equal(t, 0.5, subs[0].CallbackRate)
	assert.True(t, subs[0].ReduceOnly)
}

func TestCloseIsReduceOnlyIOC(t *testing.T) {
	c, pv := newTestCoordinator(t, Config{PriceTick: 0.1})

	err := c.Close(t.Context(), enum.OrderSideSell, 1, 100.04, PriceGuard{MarkPrice: 100})
	require.NoError(t, err)

	subs := pv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, enum.OrderTypeLimit, subs[0].Type)
	assert.Equal(t, enum.OrderTimeInForceIOC, subs[0].TimeInForce)
	assert.Equal(t, "100", subs[0].Price)
	assert.True(t, subs[0].ReduceOnly)
}

func TestCancelToleratesUnknownOrder(t *testing.T) {
	c, _ := newTestCoordinator(t, Config{})

	require.NoError(t, c.Cancel(t.Context(), "no-such-order"))
}
