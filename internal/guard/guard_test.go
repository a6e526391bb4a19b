package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/coordinator"
	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/oplog"
	"main/internal/venue/paper"
)

func newTestGuard(t *testing.T, cfg Config) (*Guard, *paper.Venue, *oplog.Sink) {
	t.Helper()

	pv := paper.New()
	sink := oplog.NewSink(32)
	coord := coordinator.New(pv, coordinator.Config{
		Symbol:      "BTCUSDT",
		LockTimeout: time.Second,
		PriceTick:   cfg.PriceTick,
	}, sink)

	return New(coord, cfg, sink), pv, sink
}

func TestScenarioLongStop(t *testing.T) {
	// long 1.0 @ entry 100, lossLimit 10, tick 0.1 => SELL stop at 90.0.
	g, pv, _ := newTestGuard(t, Config{LossLimit: 10, PriceTick: 0.1})

	pos := model.PositionSnapshot{Amount: 1.0, EntryPrice: 100}
	require.NoError(t, g.Reconcile(t.Context(), pos, nil, 100))

	subs := pv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, enum.OrderSideSell, subs[0].Side)
	assert.Equal(t, enum.OrderTypeStopMarket, subs[0].Type)
	assert.Equal(t, "90", subs[0].StopPrice)
	assert.True(t, subs[0].ReduceOnly)
	assert.Equal(t, enum.TriggerKindStopLoss, subs[0].Trigger)
}

func TestShortPositionBuyStop(t *testing.T) {
	g, pv, _ := newTestGuard(t, Config{LossLimit: 10, PriceTick: 0.1})

	pos := model.PositionSnapshot{Amount: -2.0, EntryPrice: 100}
	require.NoError(t, g.Reconcile(t.Context(), pos, nil, 100))

	subs := pv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, enum.OrderSideBuy, subs[0].Side)
	// 100 + 10/2 = 105, above entry for a short.
	assert.Equal(t, "105", subs[0].StopPrice)
	assert.Equal(t, enum.TriggerKindTakeProfit, subs[0].Trigger)
}

func TestNoPositionNoAction(t *testing.T) {
	g, pv, _ := newTestGuard(t, Config{LossLimit: 10, PriceTick: 0.1})

	require.NoError(t, g.Reconcile(t.Context(), model.PositionSnapshot{}, nil, 100))
	assert.Empty(t, pv.Submissions())
}

func TestReplaceThreshold(t *testing.T) {
	g, pv, _ := newTestGuard(t, Config{LossLimit: 10, PriceTick: 0.1})

	pos := model.PositionSnapshot{Amount: 1.0, EntryPrice: 100}

	// Existing trigger within one tick of the 90.0 target: no churn.
	within := []model.OpenOrder{{
		ID:        "stop-1",
		Side:      enum.OrderSideSell,
		Type:      enum.OrderTypeStopMarket,
		StopPrice: "90.05",
	}}
	require.NoError(t, g.Reconcile(t.Context(), pos, within, 100))
	assert.Empty(t, pv.Submissions())

	// A full tick away: cancel and replace.
	stale := []model.OpenOrder{{
		ID:        "stop-1",
		Side:      enum.OrderSideSell,
		Type:      enum.OrderTypeStopMarket,
		StopPrice: "90.2",
	}}
	require.NoError(t, g.Reconcile(t.Context(), pos, stale, 100))

	subs := pv.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "90", subs[0].StopPrice)
}

func TestUnknownEntryLoggedOncePerOnset(t *testing.T) {
	g, pv, sink := newTestGuard(t, Config{LossLimit: 10, PriceTick: 0.1})

	pos := model.PositionSnapshot{Amount: 1.0}

	require.NoError(t, g.Reconcile(t.Context(), pos, nil, 100))
	require.NoError(t, g.Reconcile(t.Context(), pos, nil, 100))
	assert.Empty(t, pv.Submissions())

	stops := 0
	for _, e := range sink.Recent() {
		if e.Category == oplog.CategoryStop {
			stops++
		}
	}
	assert.Equal(t, 1, stops, "unknown entry must log once per onset")

	// Flat resets the onset; a fresh unknown-entry position logs again.
	require.NoError(t, g.Reconcile(t.Context(), model.PositionSnapshot{}, nil, 100))
	require.NoError(t, g.Reconcile(t.Context(), pos, nil, 100))

	stops = 0
	for _, e := range sink.Recent() {
		if e.Category == oplog.CategoryStop {
			stops++
		}
	}
	assert.Equal(t, 2, stops)
}

func TestReplaceCancelFailureRetries(t *testing.T) {
	g, pv, _ := newTestGuard(t, Config{LossLimit: 10, PriceTick: 0.1})

	pos := model.PositionSnapshot{Amount: 1.0, EntryPrice: 100}
	stale := []model.OpenOrder{{
		ID:        "stop-1",
		Side:      enum.OrderSideSell,
		Type:      enum.OrderTypeStopMarket,
		StopPrice: "95",
	}}

	pv.FailNextCancel(errors.New("venue unavailable"))
	require.Error(t, g.Reconcile(t.Context(), pos, stale, 100))
	assert.Empty(t, pv.Submissions(), "no replacement after a failed cancel")

	// Next cycle succeeds without external intervention.
	require.NoError(t, g.Reconcile(t.Context(), pos, stale, 100))
	assert.Len(t, pv.Submissions(), 1)
}
