// Package ledger implements the asset ledger the exchange settles against:
// a fungible-token ledger keyed by (asset, account) and a native-coin bank.
package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// AssetID identifies a fungible asset on the ledger.
type AssetID uint32

// Asset holds the descriptive record for a ledger asset.
type Asset struct {
	ID      AssetID        `json:"id"`
	Name    string         `json:"name"`
	Symbol  string         `json:"symbol"`
	Owner   common.Address `json:"owner"`
	Created uint64         `json:"created"` // cycle height at creation
}

// Store is the persistence hook the ledger writes through to.
// Implemented by pkg/storage; a nil Store keeps the ledger in-memory only.
type Store interface {
	SaveAsset(a *Asset) error
	SaveSupply(asset AssetID, supply uint64) error
	SaveBalance(asset AssetID, addr common.Address, amount uint64) error
}

// Ledger manages asset records, balances, allowances, and per-account
// freeze flags in a thread-safe manner. In-memory maps are the source of
// truth; every mutation is written through to the Store when one is set.
type Ledger struct {
	mu    sync.RWMutex
	log   *zap.SugaredLogger
	store Store

	assets    map[AssetID]*Asset
	nextAsset AssetID

	balances  map[AssetID]map[common.Address]uint64
	supply    map[AssetID]uint64
	paused    map[AssetID]bool
	frozen    map[AssetID]map[common.Address]bool
	allowance map[AssetID]map[common.Address]map[common.Address]uint64 // asset -> owner -> spender
}

// NewLedger creates an empty ledger. store may be nil (memory only).
func NewLedger(log *zap.SugaredLogger, store Store) *Ledger {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Ledger{
		log:       log,
		store:     store,
		assets:    make(map[AssetID]*Asset),
		balances:  make(map[AssetID]map[common.Address]uint64),
		supply:    make(map[AssetID]uint64),
		paused:    make(map[AssetID]bool),
		frozen:    make(map[AssetID]map[common.Address]bool),
		allowance: make(map[AssetID]map[common.Address]map[common.Address]uint64),
	}
}

// Create registers a new asset, crediting the initial supply to the creator.
func (l *Ledger) Create(creator common.Address, name, symbol string, initialSupply uint64, height uint64) *Asset {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextAsset
	l.nextAsset++

	a := &Asset{ID: id, Name: name, Symbol: symbol, Owner: creator, Created: height}
	l.assets[id] = a
	l.balances[id] = map[common.Address]uint64{creator: initialSupply}
	l.supply[id] = initialSupply

	l.persistAsset(a)
	l.persistSupply(id)
	l.persistBalance(id, creator)

	l.log.Infow("asset_created", "asset", id, "symbol", symbol, "owner", creator.Hex(), "supply", initialSupply)
	return a
}

// Edit updates an asset's name and symbol. Owner only.
func (l *Ledger) Edit(caller common.Address, asset AssetID, name, symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[asset]
	if !ok {
		return ErrAssetNotFound
	}
	if a.Owner != caller {
		return ErrNotAssetOwner
	}
	a.Name = name
	a.Symbol = symbol
	l.persistAsset(a)
	return nil
}

// Asset returns the asset record, or nil if unknown.
func (l *Ledger) Asset(asset AssetID) *Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.assets[asset]
}

// Balance returns the balance of account on asset. Unknown accounts hold zero.
func (l *Ledger) Balance(asset AssetID, addr common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[asset][addr]
}

// Supply returns the total issued supply of asset.
func (l *Ledger) Supply(asset AssetID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply[asset]
}

// Transfer moves amount from one account to another, enforcing balance,
// pause, and freeze checks.
func (l *Ledger) Transfer(asset AssetID, from, to common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[asset]; !ok {
		return ErrAssetNotFound
	}
	if l.balances[asset][from] < amount {
		return ErrInsufficientBalance
	}
	if l.paused[asset] {
		return ErrAssetPaused
	}
	if l.frozen[asset][from] {
		return ErrAccountFrozen
	}

	l.move(asset, from, to, amount)
	return nil
}

// Spend moves amount out of owner's balance on behalf of spender, consuming
// the spender's allowance.
func (l *Ledger) Spend(asset AssetID, owner, spender common.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[asset]; !ok {
		return ErrAssetNotFound
	}
	if l.balances[asset][owner] < amount {
		return ErrInsufficientBalance
	}
	if l.allowanceOf(asset, owner, spender) < amount {
		return ErrInsufficientAllowance
	}
	if l.paused[asset] {
		return ErrAssetPaused
	}
	if l.frozen[asset][owner] {
		return ErrAccountFrozen
	}

	l.allowance[asset][owner][spender] -= amount
	l.move(asset, owner, spender, amount)
	return nil
}

// Move transfers without balance, pause, or freeze checks. It is the
// settlement path: the exchange has already escrowed the funds, so the
// transfer is treated as infallible.
func (l *Ledger) Move(asset AssetID, from, to common.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.move(asset, from, to, amount)
}

func (l *Ledger) move(asset AssetID, from, to common.Address, amount uint64) {
	bals := l.balances[asset]
	if bals == nil {
		bals = make(map[common.Address]uint64)
		l.balances[asset] = bals
	}
	if bals[from] < amount {
		// Settlement contract violated upstream; fail loudly rather than
		// mint funds out of the escrow account.
		l.log.Panicw("unchecked_move_underflow", "asset", asset, "from", from.Hex(), "have", bals[from], "need", amount)
	}
	bals[from] -= amount
	bals[to] += amount
	l.persistBalance(asset, from)
	l.persistBalance(asset, to)
}

// Mint issues new supply to the asset owner. Owner only.
func (l *Ledger) Mint(caller common.Address, asset AssetID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[asset]
	if !ok {
		return ErrAssetNotFound
	}
	if a.Owner != caller {
		return ErrNotAssetOwner
	}
	if l.balances[asset] == nil {
		l.balances[asset] = make(map[common.Address]uint64)
	}
	l.balances[asset][caller] += amount
	l.supply[asset] += amount
	l.persistBalance(asset, caller)
	l.persistSupply(asset)
	return nil
}

// Burn destroys supply held by the asset owner. Owner only.
func (l *Ledger) Burn(caller common.Address, asset AssetID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[asset]
	if !ok {
		return ErrAssetNotFound
	}
	if a.Owner != caller {
		return ErrNotAssetOwner
	}
	if l.balances[asset][caller] < amount {
		return ErrInsufficientBalance
	}
	l.balances[asset][caller] -= amount
	l.supply[asset] -= amount
	l.persistBalance(asset, caller)
	l.persistSupply(asset)
	return nil
}

// SetPaused pauses or resumes all transfers of asset. Owner only.
func (l *Ledger) SetPaused(caller common.Address, asset AssetID, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[asset]
	if !ok {
		return ErrAssetNotFound
	}
	if a.Owner != caller {
		return ErrNotAssetOwner
	}
	l.paused[asset] = paused
	return nil
}

// Freeze blocks outgoing transfers from user on asset. Owner only.
func (l *Ledger) Freeze(caller common.Address, asset AssetID, user common.Address) error {
	return l.setFrozen(caller, asset, user, true)
}

// Thaw lifts a freeze. Owner only.
func (l *Ledger) Thaw(caller common.Address, asset AssetID, user common.Address) error {
	return l.setFrozen(caller, asset, user, false)
}

func (l *Ledger) setFrozen(caller common.Address, asset AssetID, user common.Address, frozen bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[asset]
	if !ok {
		return ErrAssetNotFound
	}
	if a.Owner != caller {
		return ErrNotAssetOwner
	}
	if l.frozen[asset] == nil {
		l.frozen[asset] = make(map[common.Address]bool)
	}
	l.frozen[asset][user] = frozen
	return nil
}

// Approve sets spender's allowance over owner's balance on asset.
func (l *Ledger) Approve(owner common.Address, asset AssetID, spender common.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowance[asset] == nil {
		l.allowance[asset] = make(map[common.Address]map[common.Address]uint64)
	}
	if l.allowance[asset][owner] == nil {
		l.allowance[asset][owner] = make(map[common.Address]uint64)
	}
	l.allowance[asset][owner][spender] = amount
}

// Allowance returns spender's remaining allowance over owner's balance.
func (l *Ledger) Allowance(asset AssetID, owner, spender common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowanceOf(asset, owner, spender)
}

func (l *Ledger) allowanceOf(asset AssetID, owner, spender common.Address) uint64 {
	if m := l.allowance[asset]; m != nil {
		return m[owner][spender]
	}
	return 0
}

// Frozen reports whether user is frozen on asset.
func (l *Ledger) Frozen(asset AssetID, user common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen[asset][user]
}

// Restore loads a previously persisted asset and its balances. Used by the
// node at startup; not safe to call once trading has begun.
func (l *Ledger) Restore(a *Asset, supply uint64, balances map[common.Address]uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.assets[a.ID] = a
	l.supply[a.ID] = supply
	if balances == nil {
		balances = make(map[common.Address]uint64)
	}
	l.balances[a.ID] = balances
	if a.ID >= l.nextAsset {
		l.nextAsset = a.ID + 1
	}
}

func (l *Ledger) persistAsset(a *Asset) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveAsset(a); err != nil {
		l.log.Warnw("persist_asset_failed", "asset", a.ID, "err", err)
	}
}

func (l *Ledger) persistSupply(asset AssetID) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveSupply(asset, l.supply[asset]); err != nil {
		l.log.Warnw("persist_supply_failed", "asset", asset, "err", err)
	}
}

func (l *Ledger) persistBalance(asset AssetID, addr common.Address) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveBalance(asset, addr, l.balances[asset][addr]); err != nil {
		l.log.Warnw("persist_balance_failed", "asset", asset, "addr", addr.Hex(), "err", err)
	}
}
