package binance

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/venue"
)

func accountEvent(t *testing.T, raw string) accountEventPayload {
	t.Helper()

	var event accountEventPayload
	require.NoError(t, sonic.ConfigFastest.Unmarshal([]byte(raw), &event))
	return event
}

func TestDispatchAccountKeepsPositionOnBalanceOnlyEvent(t *testing.T) {
	v := New(Config{})

	var updates []venue.AccountUpdate
	v.user.account = append(v.user.account, func(u venue.AccountUpdate) { updates = append(updates, u) })

	v.dispatchAccount(accountEvent(t,
		`{"e":"ACCOUNT_UPDATE","a":{"B":[{"a":"USDT","cw":"10000"}],"P":[{"s":"BTCUSDT","pa":"1.0","ep":"100.5"}]}}`))

	require.Len(t, updates, 1)
	require.Contains(t, updates[0].Positions, "BTCUSDT")
	assert.Equal(t, 1.0, updates[0].Positions["BTCUSDT"].Amount)
	assert.Equal(t, 10000.0, updates[0].AvailableBalance)

	// Funding fee settlement: balances change, no position entries at all.
	v.dispatchAccount(accountEvent(t,
		`{"e":"ACCOUNT_UPDATE","a":{"B":[{"a":"USDT","cw":"9987.5"}]}}`))

	require.Len(t, updates, 2)
	require.Contains(t, updates[1].Positions, "BTCUSDT")
	assert.Equal(t, 1.0, updates[1].Positions["BTCUSDT"].Amount)
	assert.Equal(t, 100.5, updates[1].Positions["BTCUSDT"].EntryPrice)
	assert.Equal(t, 9987.5, updates[1].AvailableBalance)
}

func TestDispatchAccountMergesAcrossSymbols(t *testing.T) {
	v := New(Config{})

	var updates []venue.AccountUpdate
	v.user.account = append(v.user.account, func(u venue.AccountUpdate) { updates = append(updates, u) })

	v.dispatchAccount(accountEvent(t,
		`{"e":"ACCOUNT_UPDATE","a":{"P":[{"s":"BTCUSDT","pa":"1.0","ep":"100"}]}}`))
	// Another symbol fills; its event must not erase the BTCUSDT position.
	v.dispatchAccount(accountEvent(t,
		`{"e":"ACCOUNT_UPDATE","a":{"P":[{"s":"ETHUSDT","pa":"-2.0","ep":"2000"}]}}`))

	require.Len(t, updates, 2)
	assert.Equal(t, 1.0, updates[1].Positions["BTCUSDT"].Amount)
	assert.Equal(t, -2.0, updates[1].Positions["ETHUSDT"].Amount)
}
