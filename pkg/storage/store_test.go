package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/spotdex/pkg/exchange"
	"github.com/uhyunpark/spotdex/pkg/ledger"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000B2")
)

func newTestStore(t *testing.T) *Store {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPairsRoundTripInIDOrder(t *testing.T) {
	s := newTestStore(t)

	// Written out of order; reads come back sorted by id.
	require.NoError(t, s.SavePair("token", &exchange.Pair{ID: 2, Base: 1, Target: 5, Active: true}))
	require.NoError(t, s.SavePair("token", &exchange.Pair{ID: 0, Base: 1, Target: 2, Active: true}))
	require.NoError(t, s.SavePair("token", &exchange.Pair{ID: 1, Base: 3, Target: 4}))
	require.NoError(t, s.SavePair("native", &exchange.Pair{ID: 0, Target: 9, Active: true}))

	pairs, err := s.LoadPairs("token")
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	for i, p := range pairs {
		assert.Equal(t, exchange.PairID(i), p.ID)
	}

	native, err := s.LoadPairs("native")
	require.NoError(t, err)
	require.Len(t, native, 1)
	assert.Equal(t, ledger.AssetID(9), native[0].Target)
}

func TestOrdersRoundTripBuysBeforeSells(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveOrder("token", &exchange.Order{ID: 1, Pair: 0, Side: exchange.Sell, Owner: bob, Volume: 40}))
	require.NoError(t, s.SaveOrder("token", &exchange.Order{ID: 1, Pair: 0, Side: exchange.Buy, Owner: alice, Volume: 20}))
	require.NoError(t, s.SaveOrder("token", &exchange.Order{ID: 0, Pair: 0, Side: exchange.Buy, Owner: alice, Volume: 10}))
	require.NoError(t, s.SaveOrder("token", &exchange.Order{ID: 0, Pair: 1, Side: exchange.Buy, Owner: bob, Volume: 99}))

	orders, err := s.LoadOrders("token", 0)
	require.NoError(t, err)
	require.Len(t, orders, 3, "other pairs excluded")

	assert.Equal(t, exchange.Buy, orders[0].Side)
	assert.Equal(t, exchange.OrderID(0), orders[0].ID)
	assert.Equal(t, exchange.Buy, orders[1].Side)
	assert.Equal(t, exchange.OrderID(1), orders[1].ID)
	assert.Equal(t, exchange.Sell, orders[2].Side)

	require.NoError(t, s.DeleteOrder("token", 0, exchange.Buy, 0))
	orders, err = s.LoadOrders("token", 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, exchange.OrderID(1), orders[0].ID)
}

func TestCountersRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.LoadCounters("token", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	want := exchange.Counters{NextBuy: 3, NextSell: 1, NextTrade: 2}
	require.NoError(t, s.SaveCounters("token", 0, want))

	got, ok, err := s.LoadCounters("token", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRecentTradesNewestFirst(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveTrade("token", &exchange.Trade{
			ID: exchange.TradeID(i), Pair: 0, Buyer: alice, Seller: bob, Volume: uint64(i + 1),
		}))
	}

	trades, err := s.LoadRecentTrades("token", 0, 3)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, exchange.TradeID(4), trades[0].ID)
	assert.Equal(t, exchange.TradeID(2), trades[2].ID)

	all, err := s.LoadRecentTrades("token", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestLedgerStateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	asset := &ledger.Asset{ID: 1, Name: "Token", Symbol: "TOK", Owner: alice, Created: 3}
	require.NoError(t, s.SaveAsset(asset))
	require.NoError(t, s.SaveSupply(1, 1000))
	require.NoError(t, s.SaveBalance(1, alice, 600))
	require.NoError(t, s.SaveBalance(1, bob, 400))

	assets, err := s.LoadAssets()
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "TOK", assets[0].Symbol)

	supply, err := s.LoadSupply(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), supply)

	balances, err := s.LoadBalances(1)
	require.NoError(t, err)
	assert.Equal(t, map[common.Address]uint64{alice: 600, bob: 400}, balances)

	other, err := s.LoadBalances(2)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCoinBalancesRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveCoinBalance(alice, 12))
	require.NoError(t, s.SaveCoinBalance(bob, 34))
	require.NoError(t, s.DeleteCoinBalance(bob))

	balances, err := s.LoadCoinBalances()
	require.NoError(t, err)
	assert.Equal(t, map[common.Address]uint64{alice: 12}, balances)
}

func TestNodeMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)

	h, err := s.LoadHeight()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), h, "fresh store starts at height zero")

	require.NoError(t, s.SaveHeight(42))
	h, err = s.LoadHeight()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h)

	acct := exchange.Accounts{Operation: alice, Vault: bob}
	require.NoError(t, s.SaveAccounts("token", acct))
	gotAcct, ok, err := s.LoadAccounts("token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, acct, gotAcct)

	_, ok, err = s.LoadThresholds("native")
	require.NoError(t, err)
	assert.False(t, ok)

	thr := exchange.Thresholds{MinVolume: 100, MinRatio: 2}
	require.NoError(t, s.SaveThresholds("native", thr))
	gotThr, ok, err := s.LoadThresholds("native")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, thr, gotThr)
}
