package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotdex/pkg/exchange"
	"github.com/uhyunpark/spotdex/pkg/ledger"
)

// Pebble key schema. Engine namespaces ("token", "native") keep the two
// exchange instantiations apart; numeric components are zero-padded so a
// prefix scan yields records in id order:
//
//   pair:{engine}:{pairID}             → Pair
//   ord:{engine}:{pairID}:{b|s}:{id}   → Order
//   cnt:{engine}:{pairID}              → Counters
//   trade:{engine}:{pairID}:{tradeID}  → Trade
//   asset:{assetID}                    → Asset
//   sup:{assetID}                      → supply (u64)
//   bal:{assetID}:{address}            → balance (u64)
//   coin:{address}                     → coin balance (u64)
//   meta:height                        → cycle height (u64)
//   meta:acct:{engine}                 → Accounts
//   meta:thr:{engine}                  → Thresholds
const (
	prefixPair       = "pair:"
	prefixOrder      = "ord:"
	prefixCounters   = "cnt:"
	prefixTrade      = "trade:"
	prefixAsset      = "asset:"
	prefixSupply     = "sup:"
	prefixBalance    = "bal:"
	prefixCoin       = "coin:"
	keyHeight        = "meta:height"
	prefixAccounts   = "meta:acct:"
	prefixThresholds = "meta:thr:"
)

func pairKey(engine string, id exchange.PairID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixPair, engine, id))
}

func pairPrefix(engine string) []byte {
	return []byte(prefixPair + engine + ":")
}

func sideTag(s exchange.Side) string {
	if s == exchange.Buy {
		return "b"
	}
	return "s"
}

func orderKey(engine string, pair exchange.PairID, side exchange.Side, id exchange.OrderID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s:%020d", prefixOrder, engine, pair, sideTag(side), id))
}

func orderPrefix(engine string, pair exchange.PairID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:", prefixOrder, engine, pair))
}

func countersKey(engine string, pair exchange.PairID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixCounters, engine, pair))
}

func tradeKey(engine string, pair exchange.PairID, id exchange.TradeID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%020d", prefixTrade, engine, pair, id))
}

func tradePrefix(engine string, pair exchange.PairID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:", prefixTrade, engine, pair))
}

func assetKey(id ledger.AssetID) []byte {
	return []byte(fmt.Sprintf("%s%010d", prefixAsset, id))
}

func supplyKey(id ledger.AssetID) []byte {
	return []byte(fmt.Sprintf("%s%010d", prefixSupply, id))
}

func balanceKey(id ledger.AssetID, addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%010d:%s", prefixBalance, id, addr.Hex()))
}

func balancePrefix(id ledger.AssetID) []byte {
	return []byte(fmt.Sprintf("%s%010d:", prefixBalance, id))
}

func coinKey(addr common.Address) []byte {
	return []byte(prefixCoin + addr.Hex())
}

func accountsKey(engine string) []byte {
	return []byte(prefixAccounts + engine)
}

func thresholdsKey(engine string) []byte {
	return []byte(prefixThresholds + engine)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
