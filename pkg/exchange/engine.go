// Package exchange implements the order book, matching, settlement, and
// cancellation engine. One Engine instance serves token/token pairs and a
// second serves native-coin pairs; both run the same crossing algorithm over
// the Leg abstraction.
package exchange

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotdex/pkg/ledger"
	"github.com/uhyunpark/spotdex/pkg/metrics"
)

// Persistence is the write-through journal the engine records state changes
// to. Implemented by pkg/storage; nil disables persistence.
type Persistence interface {
	SavePair(engine string, p *Pair) error
	SaveOrder(engine string, o *Order) error
	DeleteOrder(engine string, pair PairID, side Side, id OrderID) error
	SaveCounters(engine string, pair PairID, c Counters) error
	SaveTrade(engine string, t *Trade) error
}

// Engine holds the pairs and order books of one exchange instantiation and
// runs admission, matching, settlement, and cancellation over them.
//
// Mutating operations are serialized by the application's cycle loop: order
// submission and cancellation apply strictly before the cycle's matching
// pass, which runs to completion before the next cycle begins. The engine's
// own locking only protects concurrent API readers.
type Engine struct {
	mu       sync.RWMutex
	name     string
	log      *zap.SugaredLogger
	legs     LegBinder
	notifier Notifier
	store    Persistence

	accounts   Accounts
	thresholds Thresholds

	pairs []*Pair
	books map[PairID]*OrderBook
}

// NewEngine creates an engine named for its instantiation ("token" or
// "native"). notifier and store may be nil.
func NewEngine(name string, log *zap.SugaredLogger, legs LegBinder, accounts Accounts, thresholds Thresholds, notifier Notifier, store Persistence) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		name:       name,
		log:        log,
		legs:       legs,
		notifier:   notifier,
		store:      store,
		accounts:   accounts,
		thresholds: thresholds,
		books:      make(map[PairID]*OrderBook),
	}
}

func (e *Engine) Name() string { return e.name }

// SetNotifier replaces the event sink. Call during wiring, before the cycle
// loop starts.
func (e *Engine) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	e.notifier = n
}

// Accounts returns the custodial accounts currently in force.
func (e *Engine) Accounts() Accounts {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accounts
}

// SetAccounts replaces the custodial accounts.
func (e *Engine) SetAccounts(a Accounts) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accounts = a
}

// Thresholds returns the admission thresholds currently in force.
func (e *Engine) Thresholds() Thresholds {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholds
}

// SetThresholds replaces the admission thresholds.
func (e *Engine) SetThresholds(t Thresholds) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thresholds = t
}

// CreatePair registers a new trading pair with the next pair id.
func (e *Engine) CreatePair(banker common.Address, base, target ledger.AssetID, height uint64) *Pair {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := &Pair{
		ID:      PairID(len(e.pairs)),
		Base:    base,
		Target:  target,
		Banker:  banker,
		Active:  true,
		Created: height,
	}
	e.pairs = append(e.pairs, p)
	e.books[p.ID] = NewOrderBook(p.ID)
	e.persistPair(p)

	e.log.Infow("pair_created", "engine", e.name, "pair", p.ID, "base", base, "target", target)
	return p
}

// EditPairTarget repoints a pair's target asset, keeping banker, active
// flag, and creation height.
func (e *Engine) EditPairTarget(id PairID, target ledger.AssetID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pairLocked(id)
	if p == nil {
		return ErrPairNotFound
	}
	p.Target = target
	e.persistPair(p)
	return nil
}

// SetPairActive pauses or resumes a pair's trading flag.
func (e *Engine) SetPairActive(id PairID, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pairLocked(id)
	if p == nil {
		return ErrPairNotFound
	}
	p.Active = active
	e.persistPair(p)
	return nil
}

// Pair returns the pair record, or nil if unknown.
func (e *Engine) Pair(id PairID) *Pair {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pairLocked(id)
}

func (e *Engine) pairLocked(id PairID) *Pair {
	if int(id) >= len(e.pairs) {
		return nil
	}
	return e.pairs[id]
}

// Pairs returns all pairs in ascending id order.
func (e *Engine) Pairs() []*Pair {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Pair, len(e.pairs))
	copy(out, e.pairs)
	return out
}

// Book returns the pair's order book, or nil if the pair is unknown.
func (e *Engine) Book(id PairID) *OrderBook {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.books[id]
}

// Submit admits a resting limit order. The full requested volume is
// escrowed to the operation account before the order is recorded; any
// precondition failure leaves no effect at all.
//
// Buy orders escrow the pair's base leg, sell orders the target leg.
func (e *Engine) Submit(owner common.Address, pairID PairID, side Side, volume, ratio, height uint64) (*Order, error) {
	e.mu.RLock()
	pair := e.pairLocked(pairID)
	book := e.books[pairID]
	accounts := e.accounts
	thresholds := e.thresholds
	e.mu.RUnlock()

	if pair == nil {
		return nil, e.reject(pairID, "pair_not_found", ErrPairNotFound)
	}
	if !pair.Active {
		// Resting orders keep matching; only new admission stops.
		return nil, e.reject(pairID, "pair_inactive", ErrPairInactive)
	}
	if volume < thresholds.MinVolume {
		return nil, e.reject(pairID, "below_minimum_volume", ErrBelowMinimumVolume)
	}
	if ratio < thresholds.MinRatio {
		return nil, e.reject(pairID, "below_minimum_ratio", ErrBelowMinimumRatio)
	}

	leg := e.escrowLeg(pair, side)
	if leg.Balance(owner) < volume {
		return nil, e.reject(pairID, "insufficient_amount", ErrInsufficientAmount)
	}
	if err := leg.Transfer(owner, accounts.Operation, volume); err != nil {
		return nil, e.reject(pairID, "escrow_failed", fmt.Errorf("escrow transfer: %w", err))
	}

	o := &Order{
		Pair:    pairID,
		Side:    side,
		Owner:   owner,
		Volume:  volume,
		Ratio:   ratio,
		Created: height,
	}
	book.Append(o)
	e.persistOrder(book, o)

	metrics.OrdersSubmitted.WithLabelValues(e.name, side.String()).Inc()
	metrics.RestingOrders.WithLabelValues(e.name, side.String()).Inc()
	e.notifier.OrderCreated(e.name, o)
	return o, nil
}

// Cancel removes the caller's order and refunds the current remaining
// volume at the settlement fee split. Canceling an order that is no longer
// resident (already filled, pruned, or canceled) is a harmless no-op.
func (e *Engine) Cancel(caller common.Address, pairID PairID, side Side, id OrderID) error {
	e.mu.RLock()
	pair := e.pairLocked(pairID)
	book := e.books[pairID]
	accounts := e.accounts
	e.mu.RUnlock()

	if pair == nil {
		return ErrPairNotFound
	}

	ord, ok := book.Order(side, id)
	if !ok {
		// Stale reference: already matched away or previously canceled.
		e.log.Debugw("cancel_miss", "engine", e.name, "pair", pairID, "side", side.String(), "order", id)
		return nil
	}
	if ord.Owner != caller {
		return ErrNotOrderCreator
	}

	book.Remove(side, id)
	e.deleteOrder(pairID, side, id)

	leg := e.escrowLeg(pair, side)
	net, fee := FeeSplit(ord.Volume)
	leg.Move(accounts.Operation, ord.Owner, net)
	leg.Move(accounts.Operation, accounts.Vault, fee)

	metrics.OrdersCanceled.WithLabelValues(e.name).Inc()
	metrics.RestingOrders.WithLabelValues(e.name, side.String()).Dec()
	e.log.Infow("order_canceled",
		"engine", e.name, "pair", pairID, "side", side.String(), "order", id, "refund", ord.Volume)
	return nil
}

// escrowLeg returns the leg a given side's funds rest on.
func (e *Engine) escrowLeg(p *Pair, side Side) Leg {
	base, target := e.legs.Legs(p)
	if side == Buy {
		return base
	}
	return target
}

// MatchAll runs the cycle's matching pass over every pair in ascending id
// order: the double-scan crossing followed by dust pruning per pair.
func (e *Engine) MatchAll(height uint64) {
	e.mu.RLock()
	pairs := make([]*Pair, len(e.pairs))
	copy(pairs, e.pairs)
	e.mu.RUnlock()

	for _, p := range pairs {
		e.matchPair(p, height)
	}
}

// matchPair crosses the pair's buy orders against its sell orders,
// oldest-first on both sides. Membership of both scans is snapshotted at
// the start of the pass; the buy order is loaded once per outer iteration
// and each sell order is reloaded on access, while volume reductions apply
// to the stored records cumulatively. A buy order may therefore match
// several sells in one pass even after its snapshot volume is spent.
func (e *Engine) matchPair(p *Pair, height uint64) {
	e.mu.RLock()
	book := e.books[p.ID]
	minVolume := e.thresholds.MinVolume
	e.mu.RUnlock()

	base, target := e.legs.Legs(p)

	buyIDs := book.SnapshotIDs(Buy)
	sellIDs := book.SnapshotIDs(Sell)

	for _, b := range buyIDs {
		buy, ok := book.Order(Buy, b)
		if !ok {
			continue
		}
		for _, s := range sellIDs {
			sell, ok := book.Order(Sell, s)
			if !ok {
				continue
			}
			if buy.Ratio < sell.Ratio || buy.Volume < minVolume || sell.Volume < minVolume {
				continue
			}
			if sell.Volume == 0 {
				// Unreachable unless MinVolume is zero; guards the division below.
				continue
			}

			buyImplied := mulDiv(buy.Volume, buy.Ratio, Scale)
			sellImplied := satMul(sell.Ratio/sell.Volume, Scale)

			var baseFill, targetFill uint64
			if sell.Volume < buyImplied {
				baseFill, targetFill = sellImplied, sell.Volume
			} else {
				baseFill, targetFill = buyImplied, buy.Volume
			}

			book.Reduce(Buy, b, baseFill)
			book.Reduce(Sell, s, targetFill)

			e.settle(p, book, sell.Owner, buy.Owner, baseFill, targetFill, buy.Ratio, height, base, target)
		}
	}

	e.pruneDust(p.ID, book, buyIDs, Buy, minVolume)
	e.pruneDust(p.ID, book, sellIDs, Sell, minVolume)
}

// settle executes the fee-bearing two-leg transfer for one match and
// appends the trade record. There is no failure path: escrow is guaranteed
// by admission, and a ledger fault here is fatal by contract.
func (e *Engine) settle(p *Pair, book *OrderBook, seller, buyer common.Address, sellerLeg, buyerLeg, price, height uint64, base, target Leg) {
	e.mu.RLock()
	accounts := e.accounts
	e.mu.RUnlock()

	baseNet, baseFee := FeeSplit(sellerLeg)
	base.Move(accounts.Operation, seller, baseNet)
	base.Move(accounts.Operation, accounts.Vault, baseFee)

	targetNet, targetFee := FeeSplit(buyerLeg)
	target.Move(accounts.Operation, buyer, targetNet)
	target.Move(accounts.Operation, accounts.Vault, targetFee)

	t := &Trade{
		Pair:    p.ID,
		Seller:  seller,
		Buyer:   buyer,
		Volume:  buyerLeg,
		Ratio:   price,
		Created: height,
	}
	book.AppendTrade(t)
	e.persistTrade(book, t)

	metrics.TradesExecuted.WithLabelValues(e.name).Inc()
	metrics.TradedVolume.WithLabelValues(e.name).Add(float64(buyerLeg))
	e.notifier.TradeCompleted(e.name, t)
}

// pruneDust removes every order from the pass's snapshot whose remaining
// volume is at or below the minimum. The remainder is discarded, not
// refunded. Running the pass again on a pruned book is a no-op.
func (e *Engine) pruneDust(pairID PairID, book *OrderBook, ids []OrderID, side Side, minVolume uint64) {
	for _, id := range ids {
		o, ok := book.Order(side, id)
		if !ok {
			continue
		}
		if o.Volume > minVolume {
			continue
		}
		book.Remove(side, id)
		e.deleteOrder(pairID, side, id)
		metrics.DustPruned.WithLabelValues(e.name, side.String()).Inc()
		metrics.RestingOrders.WithLabelValues(e.name, side.String()).Dec()
	}
}

// RestorePair reloads a persisted pair at startup.
func (e *Engine) RestorePair(p *Pair) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for int(p.ID) >= len(e.pairs) {
		e.pairs = append(e.pairs, nil)
	}
	e.pairs[p.ID] = p
	if e.books[p.ID] == nil {
		e.books[p.ID] = NewOrderBook(p.ID)
	}
}

// RestoreOrder reloads a persisted order at startup.
func (e *Engine) RestoreOrder(o *Order) {
	e.mu.RLock()
	book := e.books[o.Pair]
	e.mu.RUnlock()
	if book == nil {
		e.log.Warnw("restore_order_orphan", "engine", e.name, "pair", o.Pair, "order", o.ID)
		return
	}
	book.RestoreOrder(o)
	metrics.RestingOrders.WithLabelValues(e.name, o.Side.String()).Inc()
}

// RestoreCounters reloads persisted id sequences at startup.
func (e *Engine) RestoreCounters(pairID PairID, c Counters) {
	e.mu.RLock()
	book := e.books[pairID]
	e.mu.RUnlock()
	if book != nil {
		book.RestoreCounters(c)
	}
}

func (e *Engine) persistPair(p *Pair) {
	if e.store == nil {
		return
	}
	if err := e.store.SavePair(e.name, p); err != nil {
		e.log.Warnw("persist_pair_failed", "engine", e.name, "pair", p.ID, "err", err)
	}
}

func (e *Engine) persistOrder(book *OrderBook, o *Order) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveOrder(e.name, o); err != nil {
		e.log.Warnw("persist_order_failed", "engine", e.name, "pair", o.Pair, "order", o.ID, "err", err)
	}
	if err := e.store.SaveCounters(e.name, o.Pair, book.Counters()); err != nil {
		e.log.Warnw("persist_counters_failed", "engine", e.name, "pair", o.Pair, "err", err)
	}
}

func (e *Engine) persistTrade(book *OrderBook, t *Trade) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveTrade(e.name, t); err != nil {
		e.log.Warnw("persist_trade_failed", "engine", e.name, "pair", t.Pair, "trade", t.ID, "err", err)
	}
	if err := e.store.SaveCounters(e.name, t.Pair, book.Counters()); err != nil {
		e.log.Warnw("persist_counters_failed", "engine", e.name, "pair", t.Pair, "err", err)
	}
}

func (e *Engine) deleteOrder(pairID PairID, side Side, id OrderID) {
	if e.store == nil {
		return
	}
	if err := e.store.DeleteOrder(e.name, pairID, side, id); err != nil {
		e.log.Warnw("delete_order_failed", "engine", e.name, "pair", pairID, "order", id, "err", err)
	}
}

func (e *Engine) reject(pairID PairID, reason string, err error) error {
	metrics.OrdersRejected.WithLabelValues(e.name, reason).Inc()
	e.log.Debugw("order_rejected", "engine", e.name, "pair", pairID, "reason", reason)
	return err
}
