// Package app drives the node: it owns the ledger, the coin bank, and the
// two exchange engines, and advances them in discrete cycles. Each cycle
// drains the request queue (admin, then cancellations, then orders), runs the
// native engine's matching pass, then the token engine's, and increments the
// cycle height.
package app

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotdex/pkg/exchange"
	"github.com/uhyunpark/spotdex/pkg/ledger"
	"github.com/uhyunpark/spotdex/pkg/metrics"
	"github.com/uhyunpark/spotdex/pkg/storage"
	"github.com/uhyunpark/spotdex/pkg/util"
)

// Engine namespaces.
const (
	EngineToken  = "token"
	EngineNative = "native"
)

var (
	ErrUnknownEngine = errors.New("unknown engine")
	ErrNotAdmin      = errors.New("caller is not the admin account")
	ErrShuttingDown  = errors.New("node is shutting down")
)

type App struct {
	log      *zap.SugaredLogger
	clock    util.Clock
	interval time.Duration

	ledger *ledger.Ledger
	bank   *ledger.Bank
	token  *exchange.Engine
	native *exchange.Engine
	store  *storage.Store
	admin  common.Address

	queue  *Queue
	height atomic.Uint64

	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// New wires an App. store may be nil for an ephemeral node.
func New(log *zap.SugaredLogger, clock util.Clock, interval time.Duration,
	ldg *ledger.Ledger, bank *ledger.Bank, token, native *exchange.Engine,
	store *storage.Store, admin common.Address) *App {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &App{
		log:      log,
		clock:    clock,
		interval: interval,
		ledger:   ldg,
		bank:     bank,
		token:    token,
		native:   native,
		store:    store,
		admin:    admin,
		queue:    NewQueue(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (a *App) Ledger() *ledger.Ledger { return a.ledger }
func (a *App) Bank() *ledger.Bank     { return a.bank }

// Engine resolves an engine namespace.
func (a *App) Engine(name string) (*exchange.Engine, error) {
	switch name {
	case EngineToken:
		return a.token, nil
	case EngineNative:
		return a.native, nil
	default:
		return nil, ErrUnknownEngine
	}
}

// Height returns the current cycle height.
func (a *App) Height() uint64 { return a.height.Load() }

// QueueLen returns the number of requests waiting for the next cycle.
func (a *App) QueueLen() int { return a.queue.Len() }

// Restore reloads all persisted state. Call before Run.
func (a *App) Restore() error {
	if a.store == nil {
		return nil
	}

	h, err := a.store.LoadHeight()
	if err != nil {
		return err
	}
	a.height.Store(h)

	assets, err := a.store.LoadAssets()
	if err != nil {
		return err
	}
	for _, asset := range assets {
		supply, err := a.store.LoadSupply(asset.ID)
		if err != nil {
			return err
		}
		balances, err := a.store.LoadBalances(asset.ID)
		if err != nil {
			return err
		}
		a.ledger.Restore(asset, supply, balances)
	}

	coins, err := a.store.LoadCoinBalances()
	if err != nil {
		return err
	}
	a.bank.Restore(coins)

	for _, eng := range []*exchange.Engine{a.native, a.token} {
		if err := a.restoreEngine(eng); err != nil {
			return err
		}
	}

	a.log.Infow("state_restored", "height", h, "assets", len(assets), "coin_accounts", len(coins))
	return nil
}

func (a *App) restoreEngine(eng *exchange.Engine) error {
	name := eng.Name()

	if acct, ok, err := a.store.LoadAccounts(name); err != nil {
		return err
	} else if ok {
		eng.SetAccounts(acct)
	}
	if thr, ok, err := a.store.LoadThresholds(name); err != nil {
		return err
	} else if ok {
		eng.SetThresholds(thr)
	}

	pairs, err := a.store.LoadPairs(name)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		eng.RestorePair(p)

		if c, ok, err := a.store.LoadCounters(name, p.ID); err != nil {
			return err
		} else if ok {
			eng.RestoreCounters(p.ID, c)
		}

		orders, err := a.store.LoadOrders(name, p.ID)
		if err != nil {
			return err
		}
		for _, o := range orders {
			eng.RestoreOrder(o)
		}
	}
	return nil
}

// Run executes cycles at the configured interval until Stop.
func (a *App) Run() {
	defer close(a.done)
	a.log.Infow("app_running", "interval", a.interval)
	for {
		select {
		case <-a.quit:
			return
		case <-a.clock.After(a.interval):
			a.Cycle()
		}
	}
}

// Stop halts the cycle loop and waits for the in-flight cycle to finish.
// Requests still queued are failed, and later arrivals are refused at the
// queue. Safe to call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.quit)
		<-a.done

		ops, cancels, orders := a.queue.close()
		for _, r := range ops {
			r.reply <- ErrShuttingDown
		}
		for _, r := range cancels {
			r.reply <- ErrShuttingDown
		}
		for _, r := range orders {
			r.reply <- submitResult{err: ErrShuttingDown}
		}
	})
}

// Cycle applies one full cycle: queued requests, then the native engine's
// matching pass, then the token engine's, then the height increment.
func (a *App) Cycle() {
	start := time.Now()
	h := a.height.Load()

	ops, cancels, orders := a.queue.drain()
	for _, r := range ops {
		r.reply <- r.apply(h)
	}
	for _, r := range cancels {
		eng, err := a.Engine(r.engine)
		if err != nil {
			r.reply <- err
			continue
		}
		r.reply <- eng.Cancel(r.caller, r.pair, r.side, r.id)
	}
	for _, r := range orders {
		eng, err := a.Engine(r.engine)
		if err != nil {
			r.reply <- submitResult{err: err}
			continue
		}
		o, err := eng.Submit(r.owner, r.pair, r.side, r.volume, r.ratio, h)
		r.reply <- submitResult{order: o, err: err}
	}

	a.native.MatchAll(h)
	a.token.MatchAll(h)

	a.height.Store(h + 1)
	if a.store != nil {
		if err := a.store.SaveHeight(h + 1); err != nil {
			a.log.Warnw("persist_height_failed", "height", h+1, "err", err)
		}
	}

	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	if len(ops)+len(cancels)+len(orders) > 0 {
		a.log.Debugw("cycle_done",
			"height", h, "ops", len(ops), "cancels", len(cancels), "orders", len(orders),
			"took", time.Since(start))
	}
}

// SubmitOrder queues an order and blocks until the cycle that admits it.
func (a *App) SubmitOrder(engine string, owner common.Address, pair exchange.PairID, side exchange.Side, volume, ratio uint64) (*exchange.Order, error) {
	if _, err := a.Engine(engine); err != nil {
		return nil, err
	}
	r := &submitReq{
		engine: engine,
		owner:  owner,
		pair:   pair,
		side:   side,
		volume: volume,
		ratio:  ratio,
		reply:  make(chan submitResult, 1),
	}
	if !a.queue.pushSubmit(r) {
		return nil, ErrShuttingDown
	}
	res := <-r.reply
	return res.order, res.err
}

// CancelOrder queues a cancellation and blocks until it is applied.
func (a *App) CancelOrder(engine string, caller common.Address, pair exchange.PairID, side exchange.Side, id exchange.OrderID) error {
	if _, err := a.Engine(engine); err != nil {
		return err
	}
	r := &cancelReq{
		engine: engine,
		caller: caller,
		pair:   pair,
		side:   side,
		id:     id,
		reply:  make(chan error, 1),
	}
	if !a.queue.pushCancel(r) {
		return ErrShuttingDown
	}
	return <-r.reply
}

// runOp queues a non-order mutation and blocks until it is applied.
func (a *App) runOp(fn func(height uint64) error) error {
	r := &opReq{apply: fn, reply: make(chan error, 1)}
	if !a.queue.pushOp(r) {
		return ErrShuttingDown
	}
	return <-r.reply
}

// runAdmin is runOp restricted to the node admin account.
func (a *App) runAdmin(caller common.Address, fn func(height uint64) error) error {
	if caller != a.admin {
		return ErrNotAdmin
	}
	return a.runOp(fn)
}

// CreateAsset registers a new ledger asset, crediting the initial supply to
// the creator. The ledger assigns the asset id.
func (a *App) CreateAsset(creator common.Address, name, symbol string, initialSupply uint64) (*ledger.Asset, error) {
	var created *ledger.Asset
	err := a.runOp(func(height uint64) error {
		created = a.ledger.Create(creator, name, symbol, initialSupply, height)
		return nil
	})
	return created, err
}

// EditAsset renames an asset. The ledger enforces the owner check.
func (a *App) EditAsset(caller common.Address, asset ledger.AssetID, name, symbol string) error {
	return a.runOp(func(uint64) error {
		return a.ledger.Edit(caller, asset, name, symbol)
	})
}

// MintAsset issues additional supply to the asset owner.
func (a *App) MintAsset(caller common.Address, asset ledger.AssetID, amount uint64) error {
	return a.runOp(func(uint64) error {
		return a.ledger.Mint(caller, asset, amount)
	})
}

// BurnAsset retires supply from the asset owner's balance.
func (a *App) BurnAsset(caller common.Address, asset ledger.AssetID, amount uint64) error {
	return a.runOp(func(uint64) error {
		return a.ledger.Burn(caller, asset, amount)
	})
}

// TransferAsset moves asset balance between accounts with full checks.
func (a *App) TransferAsset(from, to common.Address, asset ledger.AssetID, amount uint64) error {
	return a.runOp(func(uint64) error {
		return a.ledger.Transfer(asset, from, to, amount)
	})
}

// TransferCoin moves native coin between accounts with balance checks.
func (a *App) TransferCoin(from, to common.Address, amount uint64) error {
	return a.runOp(func(uint64) error {
		return a.bank.Transfer(from, to, amount)
	})
}

// DepositCoin credits native coin to an account. Admin only.
func (a *App) DepositCoin(caller, to common.Address, amount uint64) error {
	return a.runAdmin(caller, func(uint64) error {
		a.bank.Deposit(to, amount)
		return nil
	})
}

// CreatePair registers a trading pair on the named engine. Native pairs
// ignore base.
func (a *App) CreatePair(caller common.Address, engine string, banker common.Address, base, target ledger.AssetID) (*exchange.Pair, error) {
	eng, err := a.Engine(engine)
	if err != nil {
		return nil, err
	}
	if engine == EngineNative {
		base = 0
	}
	var created *exchange.Pair
	err = a.runAdmin(caller, func(height uint64) error {
		created = eng.CreatePair(banker, base, target, height)
		return nil
	})
	return created, err
}

// EditPairTarget repoints a pair's target asset.
func (a *App) EditPairTarget(caller common.Address, engine string, id exchange.PairID, target ledger.AssetID) error {
	eng, err := a.Engine(engine)
	if err != nil {
		return err
	}
	return a.runAdmin(caller, func(uint64) error {
		return eng.EditPairTarget(id, target)
	})
}

// SetPairActive pauses or resumes a pair.
func (a *App) SetPairActive(caller common.Address, engine string, id exchange.PairID, active bool) error {
	eng, err := a.Engine(engine)
	if err != nil {
		return err
	}
	return a.runAdmin(caller, func(uint64) error {
		return eng.SetPairActive(id, active)
	})
}

// SetThresholds replaces an engine's admission thresholds.
func (a *App) SetThresholds(caller common.Address, engine string, t exchange.Thresholds) error {
	eng, err := a.Engine(engine)
	if err != nil {
		return err
	}
	return a.runAdmin(caller, func(uint64) error {
		eng.SetThresholds(t)
		if a.store != nil {
			return a.store.SaveThresholds(engine, t)
		}
		return nil
	})
}

// SetAccounts replaces an engine's custodial accounts.
func (a *App) SetAccounts(caller common.Address, engine string, acct exchange.Accounts) error {
	eng, err := a.Engine(engine)
	if err != nil {
		return err
	}
	return a.runAdmin(caller, func(uint64) error {
		eng.SetAccounts(acct)
		if a.store != nil {
			return a.store.SaveAccounts(engine, acct)
		}
		return nil
	})
}
