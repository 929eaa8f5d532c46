package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotdex/pkg/ledger"
)

type (
	PairID  uint64
	OrderID uint64
	TradeID uint64
)

// Side of a resting order.
type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Pair is a market linking a base asset to a target asset. Engines trading
// against the native coin leave Base zero; their base leg is the coin bank.
type Pair struct {
	ID      PairID          `json:"id"`
	Base    ledger.AssetID  `json:"base"`
	Target  ledger.AssetID  `json:"target"`
	Banker  common.Address  `json:"banker"`
	Active  bool            `json:"active"`
	Created uint64          `json:"created"` // cycle height
}

// Order is a resting limit order. Volume is the remaining volume: funds
// already escrowed minus volume already filled, never negative. Order ids
// are pair-scoped per side, monotonically increasing, and never reused.
type Order struct {
	ID      OrderID        `json:"id"`
	Pair    PairID         `json:"pair"`
	Side    Side           `json:"side"`
	Owner   common.Address `json:"owner"`
	Volume  uint64         `json:"volume"`
	Ratio   uint64         `json:"ratio"` // limit price, fixed-point (Scale)
	Created uint64         `json:"created"`
}

// Trade is an immutable record of one completed fill. Volume is the
// buyer-leg (target asset) volume; Ratio is the execution price, which is
// the buy order's limit price.
type Trade struct {
	ID      TradeID        `json:"id"`
	Pair    PairID         `json:"pair"`
	Seller  common.Address `json:"seller"`
	Buyer   common.Address `json:"buyer"`
	Volume  uint64         `json:"volume"`
	Ratio   uint64         `json:"ratio"`
	Created uint64         `json:"created"`
}

// Thresholds gate order admission and drive dust pruning. Set by the
// operation account, read by every core operation.
type Thresholds struct {
	MinVolume uint64 `json:"min_volume"`
	MinRatio  uint64 `json:"min_ratio"`
}

// Accounts are the custodial accounts: Operation escrows all resting order
// funds, Vault receives the retained cut of settlements and refunds.
type Accounts struct {
	Operation common.Address `json:"operation"`
	Vault     common.Address `json:"vault"`
}

// Counters snapshot a pair's id sequences for persistence.
type Counters struct {
	NextBuy   OrderID `json:"next_buy"`
	NextSell  OrderID `json:"next_sell"`
	NextTrade TradeID `json:"next_trade"`
}
