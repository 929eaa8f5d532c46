package exchange

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// sideBook holds one side of a pair's book: the insertion-ordered list of
// live order ids, the id-keyed records, and the per-owner secondary index.
// The three views are updated together; an id is in the list iff its record
// exists iff it is in exactly one owner list.
type sideBook struct {
	ids     []OrderID
	orders  map[OrderID]*Order
	byOwner map[common.Address][]OrderID
	nextID  OrderID
}

func newSideBook() *sideBook {
	return &sideBook{
		orders:  make(map[OrderID]*Order),
		byOwner: make(map[common.Address][]OrderID),
	}
}

func (sb *sideBook) insert(o *Order) {
	sb.ids = append(sb.ids, o.ID)
	sb.orders[o.ID] = o
	sb.byOwner[o.Owner] = append(sb.byOwner[o.Owner], o.ID)
}

func (sb *sideBook) remove(id OrderID) (*Order, bool) {
	o, ok := sb.orders[id]
	if !ok {
		return nil, false
	}
	delete(sb.orders, id)
	sb.ids = removeID(sb.ids, id)

	owned := removeID(sb.byOwner[o.Owner], id)
	if len(owned) == 0 {
		delete(sb.byOwner, o.Owner)
	} else {
		sb.byOwner[o.Owner] = owned
	}
	return o, true
}

func removeID(ids []OrderID, id OrderID) []OrderID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// OrderBook is the per-pair book: both sides plus the pair's trade history
// and id counters. Safe for concurrent readers; the matching pass and the
// request loop are the only writers.
type OrderBook struct {
	mu        sync.RWMutex
	pair      PairID
	buys      *sideBook
	sells     *sideBook
	trades    []*Trade
	nextTrade TradeID
}

func NewOrderBook(pair PairID) *OrderBook {
	return &OrderBook{
		pair:  pair,
		buys:  newSideBook(),
		sells: newSideBook(),
	}
}

func (b *OrderBook) side(s Side) *sideBook {
	if s == Buy {
		return b.buys
	}
	return b.sells
}

// Append assigns the side's next id to o and inserts it into all views.
func (b *OrderBook) Append(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sb := b.side(o.Side)
	o.ID = sb.nextID
	sb.nextID++
	sb.insert(o)
}

// Order returns a copy of the order record, reloading current volume.
func (b *OrderBook) Order(side Side, id OrderID) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	o, ok := b.side(side).orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Reduce subtracts amount from the order's remaining volume, saturating at
// zero, and returns the new volume.
func (b *OrderBook) Reduce(side Side, id OrderID, amount uint64) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.side(side).orders[id]
	if !ok {
		return 0, false
	}
	o.Volume = satSub(o.Volume, amount)
	return o.Volume, true
}

// Remove deletes the order from the id list, the owner list, and the record
// map. Returns the removed record.
func (b *OrderBook) Remove(side Side, id OrderID) (*Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.side(side).remove(id)
}

// SnapshotIDs returns a copy of the side's live id list in insertion order.
// Matching snapshots membership at the start of a pass; volumes are re-read
// through Order on each access.
func (b *OrderBook) SnapshotIDs(side Side) []OrderID {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sb := b.side(side)
	ids := make([]OrderID, len(sb.ids))
	copy(ids, sb.ids)
	return ids
}

// OwnerOrders returns copies of the owner's live orders on side, in
// insertion order.
func (b *OrderBook) OwnerOrders(side Side, owner common.Address) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sb := b.side(side)
	out := make([]Order, 0, len(sb.byOwner[owner]))
	for _, id := range sb.byOwner[owner] {
		out = append(out, *sb.orders[id])
	}
	return out
}

// Orders returns copies of every live order on side, in insertion order.
func (b *OrderBook) Orders(side Side) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sb := b.side(side)
	out := make([]Order, 0, len(sb.ids))
	for _, id := range sb.ids {
		out = append(out, *sb.orders[id])
	}
	return out
}

// Depth returns the number of live orders on side.
func (b *OrderBook) Depth(side Side) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.side(side).ids)
}

// AppendTrade assigns the pair's next trade sequence number and records the
// trade. Trades are append-only and never mutated; sequence numbers are
// never reused.
func (b *OrderBook) AppendTrade(t *Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t.ID = b.nextTrade
	b.nextTrade++
	b.trades = append(b.trades, t)
}

// RecentTrades returns up to limit most recent trades, newest first.
func (b *OrderBook) RecentTrades(limit int) []*Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Trade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, b.trades[i])
	}
	return out
}

// TradeCount returns the pair's next trade sequence number.
func (b *OrderBook) TradeCount() TradeID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextTrade
}

// Counters snapshots the pair's id sequences.
func (b *OrderBook) Counters() Counters {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Counters{
		NextBuy:   b.buys.nextID,
		NextSell:  b.sells.nextID,
		NextTrade: b.nextTrade,
	}
}

// RestoreOrder reinserts a persisted order without assigning a new id.
// Startup only.
func (b *OrderBook) RestoreOrder(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sb := b.side(o.Side)
	sb.insert(o)
	if o.ID >= sb.nextID {
		sb.nextID = o.ID + 1
	}
}

// RestoreCounters reloads persisted id sequences. Startup only.
func (b *OrderBook) RestoreCounters(c Counters) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c.NextBuy > b.buys.nextID {
		b.buys.nextID = c.NextBuy
	}
	if c.NextSell > b.sells.nextID {
		b.sells.nextID = c.NextSell
	}
	if c.NextTrade > b.nextTrade {
		b.nextTrade = c.NextTrade
	}
}
