// Package storage persists the node's state to Pebble. In-memory structures
// remain the source of truth at runtime; the store is a write-through journal
// read back in full at startup.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotdex/pkg/exchange"
	"github.com/uhyunpark/spotdex/pkg/ledger"
)

type Store struct {
	db *pebble.DB
}

func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

var (
	_ exchange.Persistence = (*Store)(nil)
	_ ledger.Store         = (*Store)(nil)
	_ ledger.BankStore     = (*Store)(nil)
)

func (s *Store) setJSON(key []byte, v any, opts *pebble.WriteOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.db.Set(key, data, opts); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) setU64(key []byte, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	if err := s.db.Set(key, buf[:], pebble.Sync); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// getU64 reads a u64 value; missing keys read as zero.
func (s *Store) getU64(key []byte) (uint64, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	if len(data) != 8 {
		return 0, fmt.Errorf("get %s: bad value length %d", key, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// ----------------------------------------------------------------------------
// Exchange persistence
// ----------------------------------------------------------------------------

func (s *Store) SavePair(engine string, p *exchange.Pair) error {
	return s.setJSON(pairKey(engine, p.ID), p, pebble.Sync)
}

func (s *Store) SaveOrder(engine string, o *exchange.Order) error {
	return s.setJSON(orderKey(engine, o.Pair, o.Side, o.ID), o, pebble.Sync)
}

func (s *Store) DeleteOrder(engine string, pair exchange.PairID, side exchange.Side, id exchange.OrderID) error {
	if err := s.db.Delete(orderKey(engine, pair, side, id), pebble.Sync); err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	return nil
}

func (s *Store) SaveCounters(engine string, pair exchange.PairID, c exchange.Counters) error {
	return s.setJSON(countersKey(engine, pair), c, pebble.Sync)
}

// SaveTrade journals a settled trade. Trade history is informational, so the
// write skips the sync barrier.
func (s *Store) SaveTrade(engine string, t *exchange.Trade) error {
	return s.setJSON(tradeKey(engine, t.Pair, t.ID), t, pebble.NoSync)
}

// LoadPairs returns the engine's pairs in ascending id order.
func (s *Store) LoadPairs(engine string) ([]*exchange.Pair, error) {
	prefix := pairPrefix(engine)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var pairs []*exchange.Pair
	for iter.First(); iter.Valid(); iter.Next() {
		var p exchange.Pair
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			return nil, fmt.Errorf("unmarshal pair %s: %w", iter.Key(), err)
		}
		pairs = append(pairs, &p)
	}
	return pairs, nil
}

// LoadOrders returns a pair's resting orders, buys before sells, each side in
// ascending id order. That matches original submission order per side.
func (s *Store) LoadOrders(engine string, pair exchange.PairID) ([]*exchange.Order, error) {
	prefix := orderPrefix(engine, pair)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*exchange.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o exchange.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("unmarshal order %s: %w", iter.Key(), err)
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

// LoadCounters returns a pair's persisted id sequences; ok is false when the
// pair has never recorded any.
func (s *Store) LoadCounters(engine string, pair exchange.PairID) (exchange.Counters, bool, error) {
	data, closer, err := s.db.Get(countersKey(engine, pair))
	if err == pebble.ErrNotFound {
		return exchange.Counters{}, false, nil
	}
	if err != nil {
		return exchange.Counters{}, false, err
	}
	defer closer.Close()

	var c exchange.Counters
	if err := json.Unmarshal(data, &c); err != nil {
		return exchange.Counters{}, false, fmt.Errorf("unmarshal counters: %w", err)
	}
	return c, true, nil
}

// LoadRecentTrades returns up to limit of a pair's trades, newest first.
func (s *Store) LoadRecentTrades(engine string, pair exchange.PairID, limit int) ([]*exchange.Trade, error) {
	prefix := tradePrefix(engine, pair)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []*exchange.Trade
	for iter.Last(); iter.Valid() && (limit <= 0 || len(trades) < limit); iter.Prev() {
		var t exchange.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("unmarshal trade %s: %w", iter.Key(), err)
		}
		trades = append(trades, &t)
	}
	return trades, nil
}

// ----------------------------------------------------------------------------
// Ledger persistence
// ----------------------------------------------------------------------------

func (s *Store) SaveAsset(a *ledger.Asset) error {
	return s.setJSON(assetKey(a.ID), a, pebble.Sync)
}

func (s *Store) SaveSupply(asset ledger.AssetID, supply uint64) error {
	return s.setU64(supplyKey(asset), supply)
}

func (s *Store) SaveBalance(asset ledger.AssetID, addr common.Address, amount uint64) error {
	return s.setU64(balanceKey(asset, addr), amount)
}

func (s *Store) SaveCoinBalance(addr common.Address, amount uint64) error {
	return s.setU64(coinKey(addr), amount)
}

func (s *Store) DeleteCoinBalance(addr common.Address) error {
	if err := s.db.Delete(coinKey(addr), pebble.Sync); err != nil {
		return fmt.Errorf("delete coin balance %s: %w", addr.Hex(), err)
	}
	return nil
}

// LoadAssets returns every persisted asset record.
func (s *Store) LoadAssets() ([]*ledger.Asset, error) {
	prefix := []byte(prefixAsset)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var assets []*ledger.Asset
	for iter.First(); iter.Valid(); iter.Next() {
		var a ledger.Asset
		if err := json.Unmarshal(iter.Value(), &a); err != nil {
			return nil, fmt.Errorf("unmarshal asset %s: %w", iter.Key(), err)
		}
		assets = append(assets, &a)
	}
	return assets, nil
}

// LoadSupply returns an asset's persisted total supply.
func (s *Store) LoadSupply(asset ledger.AssetID) (uint64, error) {
	return s.getU64(supplyKey(asset))
}

// LoadBalances returns every persisted holder balance of one asset.
func (s *Store) LoadBalances(asset ledger.AssetID) (map[common.Address]uint64, error) {
	prefix := balancePrefix(asset)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	balances := make(map[common.Address]uint64)
	for iter.First(); iter.Valid(); iter.Next() {
		addrPart := strings.TrimPrefix(string(iter.Key()), string(prefix))
		if !common.IsHexAddress(addrPart) {
			continue
		}
		if len(iter.Value()) != 8 {
			continue
		}
		balances[common.HexToAddress(addrPart)] = binary.BigEndian.Uint64(iter.Value())
	}
	return balances, nil
}

// LoadCoinBalances returns every persisted native coin balance.
func (s *Store) LoadCoinBalances() (map[common.Address]uint64, error) {
	prefix := []byte(prefixCoin)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	balances := make(map[common.Address]uint64)
	for iter.First(); iter.Valid(); iter.Next() {
		addrPart := strings.TrimPrefix(string(iter.Key()), prefixCoin)
		if !common.IsHexAddress(addrPart) || len(iter.Value()) != 8 {
			continue
		}
		balances[common.HexToAddress(addrPart)] = binary.BigEndian.Uint64(iter.Value())
	}
	return balances, nil
}

// ----------------------------------------------------------------------------
// Node metadata
// ----------------------------------------------------------------------------

func (s *Store) SaveHeight(h uint64) error {
	return s.setU64([]byte(keyHeight), h)
}

// LoadHeight returns the last persisted cycle height, zero for a fresh store.
func (s *Store) LoadHeight() (uint64, error) {
	return s.getU64([]byte(keyHeight))
}

func (s *Store) SaveAccounts(engine string, a exchange.Accounts) error {
	return s.setJSON(accountsKey(engine), a, pebble.Sync)
}

func (s *Store) LoadAccounts(engine string) (exchange.Accounts, bool, error) {
	data, closer, err := s.db.Get(accountsKey(engine))
	if err == pebble.ErrNotFound {
		return exchange.Accounts{}, false, nil
	}
	if err != nil {
		return exchange.Accounts{}, false, err
	}
	defer closer.Close()

	var a exchange.Accounts
	if err := json.Unmarshal(data, &a); err != nil {
		return exchange.Accounts{}, false, fmt.Errorf("unmarshal accounts: %w", err)
	}
	return a, true, nil
}

func (s *Store) SaveThresholds(engine string, t exchange.Thresholds) error {
	return s.setJSON(thresholdsKey(engine), t, pebble.Sync)
}

func (s *Store) LoadThresholds(engine string) (exchange.Thresholds, bool, error) {
	data, closer, err := s.db.Get(thresholdsKey(engine))
	if err == pebble.ErrNotFound {
		return exchange.Thresholds{}, false, nil
	}
	if err != nil {
		return exchange.Thresholds{}, false, err
	}
	defer closer.Close()

	var t exchange.Thresholds
	if err := json.Unmarshal(data, &t); err != nil {
		return exchange.Thresholds{}, false, fmt.Errorf("unmarshal thresholds: %w", err)
	}
	return t, true, nil
}
