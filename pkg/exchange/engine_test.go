package exchange

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/spotdex/pkg/ledger"
)

var (
	carol     = common.HexToAddress("0x00000000000000000000000000000000000000C3")
	issuer    = common.HexToAddress("0x00000000000000000000000000000000000000D4")
	banker    = common.HexToAddress("0x00000000000000000000000000000000000000D5")
	operation = common.HexToAddress("0x00000000000000000000000000000000000000E0")
	vault     = common.HexToAddress("0x00000000000000000000000000000000000000E1")
)

func unit(n uint64) uint64 { return n * Scale }

// tokenFixture is a token engine over one pair of ledger assets.
type tokenFixture struct {
	t      *testing.T
	ledger *ledger.Ledger
	engine *Engine
	pair   *Pair
	base   ledger.AssetID
	target ledger.AssetID
}

func newTokenFixture(t *testing.T, thresholds Thresholds) *tokenFixture {
	log := zaptest.NewLogger(t).Sugar()
	ldg := ledger.NewLedger(log, nil)
	baseAsset := ldg.Create(issuer, "Base Token", "BASE", 0, 0)
	targetAsset := ldg.Create(issuer, "Target Token", "TGT", 0, 0)

	eng := NewEngine("token", log, TokenBinder{Ledger: ldg},
		Accounts{Operation: operation, Vault: vault}, thresholds, nil, nil)
	pair := eng.CreatePair(banker, baseAsset.ID, targetAsset.ID, 0)

	return &tokenFixture{
		t:      t,
		ledger: ldg,
		engine: eng,
		pair:   pair,
		base:   baseAsset.ID,
		target: targetAsset.ID,
	}
}

func (f *tokenFixture) fund(asset ledger.AssetID, addr common.Address, amount uint64) {
	require.NoError(f.t, f.ledger.Mint(issuer, asset, amount))
	require.NoError(f.t, f.ledger.Transfer(asset, issuer, addr, amount))
}

func defaultThresholds() Thresholds {
	return Thresholds{MinVolume: Scale / 1000, MinRatio: 1}
}

func TestSubmitEscrowsBuyFunds(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(10))

	o, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(10), 2*Scale, 1)
	require.NoError(t, err)
	assert.Equal(t, OrderID(0), o.ID)
	assert.Equal(t, uint64(1), o.Created)

	assert.Equal(t, uint64(0), f.ledger.Balance(f.base, alice), "full volume escrowed")
	assert.Equal(t, unit(10), f.ledger.Balance(f.base, operation))
	assert.Equal(t, 1, f.engine.Book(f.pair.ID).Depth(Buy))
}

func TestSubmitEscrowsSellTargetLeg(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.target, bob, unit(40))

	_, err := f.engine.Submit(bob, f.pair.ID, Sell, unit(40), 2*Scale, 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), f.ledger.Balance(f.target, bob))
	assert.Equal(t, unit(40), f.ledger.Balance(f.target, operation))
	assert.Equal(t, uint64(0), f.ledger.Balance(f.base, operation), "buy leg untouched")
}

func TestSubmitRejections(t *testing.T) {
	f := newTokenFixture(t, Thresholds{MinVolume: unit(1), MinRatio: Scale / 100})
	f.fund(f.base, alice, unit(5))

	tests := []struct {
		name    string
		pair    PairID
		volume  uint64
		ratio   uint64
		wantErr error
	}{
		{"unknown pair", 42, unit(2), Scale, ErrPairNotFound},
		{"below minimum volume", f.pair.ID, unit(1) - 1, Scale, ErrBelowMinimumVolume},
		{"below minimum ratio", f.pair.ID, unit(2), Scale/100 - 1, ErrBelowMinimumRatio},
		{"insufficient balance", f.pair.ID, unit(6), Scale, ErrInsufficientAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Submit(alice, tt.pair, Buy, tt.volume, tt.ratio, 1)
			require.ErrorIs(t, err, tt.wantErr)
			// All-or-nothing: a rejection leaves no trace.
			assert.Equal(t, unit(5), f.ledger.Balance(f.base, alice))
			assert.Equal(t, uint64(0), f.ledger.Balance(f.base, operation))
			assert.Equal(t, 0, f.engine.Book(f.pair.ID).Depth(Buy))
		})
	}
}

func TestSubmitInactivePair(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(10))
	require.NoError(t, f.engine.SetPairActive(f.pair.ID, false))

	_, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(10), Scale, 1)
	require.ErrorIs(t, err, ErrPairInactive)
	assert.Equal(t, unit(10), f.ledger.Balance(f.base, alice))
}

func TestMatchBuySideExhausted(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(10))
	f.fund(f.target, bob, unit(40))

	// Buy at 0.5, sell asks only 0.25: crossing executes at the buy price.
	_, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(10), Scale/2, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(bob, f.pair.ID, Sell, unit(40), Scale/4, 1)
	require.NoError(t, err)

	f.engine.MatchAll(2)

	// buy implied = 10 * 0.5 = 5 base; sell volume 40 >= 5, so the buy side
	// is exhausted: base fill 5, target fill 10.
	book := f.engine.Book(f.pair.ID)
	buy, ok := book.Order(Buy, 0)
	require.True(t, ok)
	assert.Equal(t, unit(5), buy.Volume)
	sell, ok := book.Order(Sell, 0)
	require.True(t, ok)
	assert.Equal(t, unit(30), sell.Volume)

	// Seller receives the base leg net of the 0.1% cut, buyer the target leg.
	wantSellerNet, wantSellerFee := FeeSplit(unit(5))
	wantBuyerNet, wantBuyerFee := FeeSplit(unit(10))
	assert.Equal(t, wantSellerNet, f.ledger.Balance(f.base, bob))
	assert.Equal(t, wantSellerFee, f.ledger.Balance(f.base, vault))
	assert.Equal(t, wantBuyerNet, f.ledger.Balance(f.target, alice))
	assert.Equal(t, wantBuyerFee, f.ledger.Balance(f.target, vault))

	// Escrow keeps what is still resting.
	assert.Equal(t, unit(5), f.ledger.Balance(f.base, operation))
	assert.Equal(t, unit(30), f.ledger.Balance(f.target, operation))

	trades := book.RecentTrades(10)
	require.Len(t, trades, 1)
	assert.Equal(t, TradeID(0), trades[0].ID)
	assert.Equal(t, unit(10), trades[0].Volume, "trade volume is the buyer leg")
	assert.Equal(t, Scale/2, trades[0].Ratio, "execution price is the buy order's ratio")
	assert.Equal(t, bob.Hex(), trades[0].Seller.Hex())
	assert.Equal(t, alice.Hex(), trades[0].Buyer.Hex())
	assert.Equal(t, uint64(2), trades[0].Created)
}

func TestMatchSellSideExhaustedImpliedRoundsToZero(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(100))
	f.fund(f.target, bob, unit(40))

	_, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(100), 2*Scale, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(bob, f.pair.ID, Sell, unit(40), 2*Scale, 1)
	require.NoError(t, err)

	f.engine.MatchAll(2)

	// buy implied = 100 * 2 = 200 > sell volume 40, so the sell side is
	// exhausted. The sell-implied base fill divides ratio by volume before
	// rescaling, which floors to zero here: the seller's 40 target units
	// clear without any base moving.
	book := f.engine.Book(f.pair.ID)
	buy, ok := book.Order(Buy, 0)
	require.True(t, ok)
	assert.Equal(t, unit(100), buy.Volume, "buy volume untouched by a zero base fill")

	_, ok = book.Order(Sell, 0)
	assert.False(t, ok, "drained sell is pruned")

	assert.Equal(t, uint64(0), f.ledger.Balance(f.base, bob), "seller paid nothing")
	wantNet, wantFee := FeeSplit(unit(40))
	assert.Equal(t, wantNet, f.ledger.Balance(f.target, alice))
	assert.Equal(t, wantFee, f.ledger.Balance(f.target, vault))
	assert.Equal(t, uint64(0), f.ledger.Balance(f.target, operation), "target escrow fully paid out")
	assert.Equal(t, unit(100), f.ledger.Balance(f.base, operation), "base escrow untouched")

	trades := book.RecentTrades(10)
	require.Len(t, trades, 1)
	assert.Equal(t, unit(40), trades[0].Volume)
	assert.Equal(t, 2*Scale, trades[0].Ratio)
}

func TestMatchSellSideExhaustedNonZeroImplied(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(100))
	f.fund(f.target, bob, Scale/2)

	_, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(100), 2*Scale, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(bob, f.pair.ID, Sell, Scale/2, 2*Scale, 1)
	require.NoError(t, err)

	f.engine.MatchAll(2)

	// sell implied = ratio/volume * scale = 2/0.5 * 1 = 4 base.
	book := f.engine.Book(f.pair.ID)
	buy, ok := book.Order(Buy, 0)
	require.True(t, ok)
	assert.Equal(t, unit(96), buy.Volume)
	_, ok = book.Order(Sell, 0)
	assert.False(t, ok)

	wantSellerNet, _ := FeeSplit(unit(4))
	wantBuyerNet, _ := FeeSplit(Scale / 2)
	assert.Equal(t, wantSellerNet, f.ledger.Balance(f.base, bob))
	assert.Equal(t, wantBuyerNet, f.ledger.Balance(f.target, alice))

	trades := book.RecentTrades(10)
	require.Len(t, trades, 1)
	assert.Equal(t, Scale/2, trades[0].Volume)
}

func TestMatchBuyConsumesSuccessiveSellsInOnePass(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(100))
	f.fund(f.target, bob, unit(2))

	// One resting buy against two small sells: a fill against the first
	// sell must not end the scan, and the buy's volume reductions apply
	// cumulatively within the pass.
	_, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(100), Scale, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(bob, f.pair.ID, Sell, unit(1), Scale, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(bob, f.pair.ID, Sell, unit(1), Scale, 1)
	require.NoError(t, err)

	f.engine.MatchAll(2)

	// Each sell implies a base fill of ratio/volume * scale = 1, so the buy
	// pays one base unit per sell.
	book := f.engine.Book(f.pair.ID)
	buy, ok := book.Order(Buy, 0)
	require.True(t, ok)
	assert.Equal(t, unit(98), buy.Volume, "both fills deducted in the same pass")

	_, ok = book.Order(Sell, 0)
	assert.False(t, ok, "first sell drained and pruned")
	_, ok = book.Order(Sell, 1)
	assert.False(t, ok, "second sell drained and pruned")

	trades := book.RecentTrades(10)
	require.Len(t, trades, 2)
	assert.Equal(t, TradeID(1), trades[0].ID)
	for _, tr := range trades {
		assert.Equal(t, unit(1), tr.Volume)
		assert.Equal(t, Scale, tr.Ratio)
	}

	// Both settlements paid out: two base units to the seller, two target
	// units to the buyer, each net of the 0.1% cut.
	sellerNet, sellerFee := FeeSplit(unit(1))
	buyerNet, buyerFee := FeeSplit(unit(1))
	assert.Equal(t, 2*sellerNet, f.ledger.Balance(f.base, bob))
	assert.Equal(t, 2*sellerFee, f.ledger.Balance(f.base, vault))
	assert.Equal(t, 2*buyerNet, f.ledger.Balance(f.target, alice))
	assert.Equal(t, 2*buyerFee, f.ledger.Balance(f.target, vault))
	assert.Equal(t, unit(98), f.ledger.Balance(f.base, operation))
	assert.Equal(t, uint64(0), f.ledger.Balance(f.target, operation), "target escrow fully cleared")
}

func TestNoCrossBelowAsk(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(10))
	f.fund(f.target, bob, unit(10))

	_, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(10), Scale/4, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(bob, f.pair.ID, Sell, unit(10), Scale/2, 1)
	require.NoError(t, err)

	f.engine.MatchAll(2)

	book := f.engine.Book(f.pair.ID)
	assert.Equal(t, 1, book.Depth(Buy))
	assert.Equal(t, 1, book.Depth(Sell))
	assert.Empty(t, book.RecentTrades(10))
}

func TestOldestBuyMatchesFirst(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(100))
	f.fund(f.base, bob, unit(100))
	f.fund(f.target, carol, Scale/2)

	_, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(100), 2*Scale, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(bob, f.pair.ID, Buy, unit(100), 2*Scale, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(carol, f.pair.ID, Sell, Scale/2, 2*Scale, 1)
	require.NoError(t, err)

	f.engine.MatchAll(2)

	trades := f.engine.Book(f.pair.ID).RecentTrades(10)
	require.Len(t, trades, 1)
	assert.Equal(t, alice.Hex(), trades[0].Buyer.Hex(), "earlier buy wins")

	bobOrder, ok := f.engine.Book(f.pair.ID).Order(Buy, 1)
	require.True(t, ok)
	assert.Equal(t, unit(100), bobOrder.Volume)
}

func TestMatchIsIdempotentAcrossCycles(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(100))
	f.fund(f.target, bob, unit(40))

	_, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(100), 2*Scale, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(bob, f.pair.ID, Sell, unit(40), 2*Scale, 1)
	require.NoError(t, err)

	f.engine.MatchAll(2)
	aliceTarget := f.ledger.Balance(f.target, alice)
	tradeCount := len(f.engine.Book(f.pair.ID).RecentTrades(100))

	f.engine.MatchAll(3)

	assert.Equal(t, aliceTarget, f.ledger.Balance(f.target, alice))
	assert.Len(t, f.engine.Book(f.pair.ID).RecentTrades(100), tradeCount)
}

func TestCancelRefundsWithFee(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(10))

	o, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(10), Scale, 1)
	require.NoError(t, err)

	// Not the creator.
	err = f.engine.Cancel(bob, f.pair.ID, Buy, o.ID)
	require.ErrorIs(t, err, ErrNotOrderCreator)
	assert.Equal(t, 1, f.engine.Book(f.pair.ID).Depth(Buy))

	require.NoError(t, f.engine.Cancel(alice, f.pair.ID, Buy, o.ID))
	assert.Equal(t, 0, f.engine.Book(f.pair.ID).Depth(Buy))

	wantNet, wantFee := FeeSplit(unit(10))
	assert.Equal(t, wantNet, f.ledger.Balance(f.base, alice))
	assert.Equal(t, wantFee, f.ledger.Balance(f.base, vault))
	assert.Equal(t, uint64(0), f.ledger.Balance(f.base, operation))

	// Canceling a gone order is a harmless no-op.
	require.NoError(t, f.engine.Cancel(alice, f.pair.ID, Buy, o.ID))
}

func TestCancelRefundsRemainingAfterPartialFill(t *testing.T) {
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(10))
	f.fund(f.target, bob, unit(40))

	o, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(10), Scale/2, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(bob, f.pair.ID, Sell, unit(40), Scale/4, 1)
	require.NoError(t, err)

	f.engine.MatchAll(2)

	// Base fill was 5: the buy rests with volume 5 and only that refunds.
	buyerNetBefore := f.ledger.Balance(f.target, alice)
	require.NoError(t, f.engine.Cancel(alice, f.pair.ID, Buy, o.ID))

	wantNet, _ := FeeSplit(unit(5))
	assert.Equal(t, wantNet, f.ledger.Balance(f.base, alice))
	assert.Equal(t, buyerNetBefore, f.ledger.Balance(f.target, alice), "target holdings untouched")
}

func TestNativeEngineCoinBaseLeg(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	ldg := ledger.NewLedger(log, nil)
	bank := ledger.NewBank(log, nil)
	targetAsset := ldg.Create(issuer, "Target Token", "TGT", 0, 0)

	eng := NewEngine("native", log, NativeBinder{Bank: bank, Ledger: ldg},
		Accounts{Operation: operation, Vault: vault}, defaultThresholds(), nil, nil)
	pair := eng.CreatePair(banker, 0, targetAsset.ID, 0)

	bank.Deposit(alice, unit(10))
	require.NoError(t, ldg.Mint(issuer, targetAsset.ID, unit(40)))
	require.NoError(t, ldg.Transfer(targetAsset.ID, issuer, bob, unit(40)))

	_, err := eng.Submit(alice, pair.ID, Buy, unit(10), Scale/2, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), bank.Balance(alice), "buy escrows the coin leg")
	assert.Equal(t, unit(10), bank.Balance(operation))

	_, err = eng.Submit(bob, pair.ID, Sell, unit(40), Scale/4, 1)
	require.NoError(t, err)

	eng.MatchAll(2)

	wantSellerNet, wantSellerFee := FeeSplit(unit(5))
	wantBuyerNet, _ := FeeSplit(unit(10))
	assert.Equal(t, wantSellerNet, bank.Balance(bob), "seller is paid in coin")
	assert.Equal(t, wantSellerFee, bank.Balance(vault))
	assert.Equal(t, wantBuyerNet, ldg.Balance(targetAsset.ID, alice))
}

func TestDustPrunedWithoutRefund(t *testing.T) {
	// Raise the minimum after submission so a partially filled remainder
	// falls below it and is discarded.
	f := newTokenFixture(t, defaultThresholds())
	f.fund(f.base, alice, unit(10))
	f.fund(f.target, bob, unit(40))

	_, err := f.engine.Submit(alice, f.pair.ID, Buy, unit(10), Scale/2, 1)
	require.NoError(t, err)
	_, err = f.engine.Submit(bob, f.pair.ID, Sell, unit(40), Scale/4, 1)
	require.NoError(t, err)

	f.engine.SetThresholds(Thresholds{MinVolume: unit(6), MinRatio: 1})
	f.engine.MatchAll(2)

	// The crossing leaves the buy at 5 (below the minimum of 6): pruned,
	// and the escrowed remainder stays with the operation account.
	book := f.engine.Book(f.pair.ID)
	_, ok := book.Order(Buy, 0)
	assert.False(t, ok)
	assert.Equal(t, unit(5), f.ledger.Balance(f.base, operation), "pruned remainder is not refunded")
	assert.Equal(t, uint64(0), f.ledger.Balance(f.base, alice))
}
