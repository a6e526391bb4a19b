package coordinator

import (
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
)

// noBulkVenue hides the paper venue's bulk capability.
type noBulkVenue struct {
	venue.Venue
}

type orderShape struct {
	Side          enum.OrderSide
	Type          enum.OrderType
	Price         string
	StopPrice     string
	ReduceOnly    bool
	ClosePosition bool
	Trigger       enum.TriggerKind
}

func shapes(subs []venue.OrderParams) []orderShape {
	out := make([]orderShape, 0, len(subs))
	for _, p := range subs {
		out = append(out, orderShape{
			Side:          p.Side,
			Type:          p.Type,
			Price:         p.Price,
			StopPrice:     p.StopPrice,
			ReduceOnly:    p.ReduceOnly,
			ClosePosition: p.ClosePosition,
			Trigger:       p.Trigger,
		})
	}
	return out
}

func dualFixture() (model.OrderIntent, model.OrderIntent, *DualProtection, PriceGuard) {
	buy := model.OrderIntent{Side: enum.OrderSideBuy, Price: "99", Quantity: 1}
	sell := model.OrderIntent{Side: enum.OrderSideSell, Price: "101", Quantity: 1}
	prot := &DualProtection{LongStopTrigger: 95, ShortStopTrigger: 105, Quantity: 1}
	guard := PriceGuard{MarkPrice: 100, LastPrice: 100}
	return buy, sell, prot, guard
}

func TestDualBulkPath(t *testing.T) {
	pv := paper.New()
	c := New(pv, Config{Symbol: "BTCUSDT", LockTimeout: time.Second}, oplog.NewSink(16))

	buy, sell, prot, guard := dualFixture()
	require.NoError(t, c.PlaceDualWithProtection(t.Context(), buy, sell, prot, guard))

	subs := pv.Submissions()
	require.Len(t, subs, 4, "two entries plus two protective legs")
	assert.Len(t, pv.OpenOrders(), 4)
}

func TestDualFallbackEquivalence(t *testing.T) {
	// Bulk path first, to capture the reference order set.
	bulkVenue := paper.New()
	bulkCoord := New(bulkVenue, Config{Symbol: "BTCUSDT", LockTimeout: time.Second}, oplog.NewSink(16))

	buy, sell, prot, guard := dualFixture()
	require.NoError(t, bulkCoord.PlaceDualWithProtection(t.Context(), buy, sell, prot, guard))
	want := shapes(bulkVenue.Submissions())
	require.Len(t, want, 4)

	// Bulk primitive throws: sequential submission must produce the same set.
	failingVenue := paper.New()
	failingVenue.FailBulk(errors.New("bulk endpoint down"))
	failCoord := New(failingVenue, Config{Symbol: "BTCUSDT", LockTimeout: time.Second}, oplog.NewSink(16))
	require.NoError(t, failCoord.PlaceDualWithProtection(t.Context(), buy, sell, prot, guard))
	assert.Equal(t, want, shapes(failingVenue.Submissions()))

	// Bulk primitive absent entirely: same story.
	plainVenue := paper.New()
	plainCoord := New(noBulkVenue{plainVenue}, Config{Symbol: "BTCUSDT", LockTimeout: time.Second}, oplog.NewSink(16))
	require.NoError(t, plainCoord.PlaceDualWithProtection(t.Context(), buy, sell, prot, guard))
	assert.Equal(t, want, shapes(plainVenue.Submissions()))
}

func TestDualWithoutProtectionPlacesTwoLegs(t *testing.T) {
	pv := paper.New()
	c := New(pv, Config{Symbol: "BTCUSDT", LockTimeout: time.Second}, oplog.NewSink(16))

	buy, sell, _, guard := dualFixture()
	require.NoError(t, c.PlaceDualWithProtection(t.Context(), buy, sell, nil, guard))
	assert.Len(t, pv.Submissions(), 2)
}

func TestDualNoOpWhenEntryClassLocked(t *testing.T) {
	pv := paper.New()
	c := New(pv, Config{Symbol: "BTCUSDT", LockTimeout: time.Second}, oplog.NewSink(16))

	require.True(t, c.TryLock(ClassKey(enum.OrderTypeLimit, enum.OrderSideSell, false)))

	buy, sell, prot, guard := dualFixture()
	require.NoError(t, c.PlaceDualWithProtection(t.Context(), buy, sell, prot, guard))
	assert.Empty(t, pv.Submissions())

	// The probe on the buy class must not leave it locked behind.
	assert.False(t, c.Locked(ClassKey(enum.OrderTypeLimit, enum.OrderSideBuy, false)))
}
