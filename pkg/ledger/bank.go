package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// BankStore persists native-coin balances.
type BankStore interface {
	SaveCoinBalance(addr common.Address, amount uint64) error
	DeleteCoinBalance(addr common.Address) error
}

// Bank holds native settlement-coin balances.
//
// ReapZeroBalances selects the existence policy for drained accounts: when
// true (the default, matching the reference chain's AllowDeath transfers) an
// account whose balance reaches zero is removed outright.
type Bank struct {
	mu    sync.RWMutex
	log   *zap.SugaredLogger
	store BankStore

	balances map[common.Address]uint64

	ReapZeroBalances bool
}

// NewBank creates an empty native-coin bank. store may be nil.
func NewBank(log *zap.SugaredLogger, store BankStore) *Bank {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bank{
		log:              log,
		store:            store,
		balances:         make(map[common.Address]uint64),
		ReapZeroBalances: true,
	}
}

// Balance returns the native-coin balance of addr. Reaped or unknown
// accounts hold zero.
func (b *Bank) Balance(addr common.Address) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[addr]
}

// Deposit credits amount to addr, creating the account if needed.
func (b *Bank) Deposit(addr common.Address, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] += amount
	b.persist(addr)
}

// Transfer moves amount between accounts, failing on insufficient balance.
func (b *Bank) Transfer(from, to common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[from] < amount {
		return ErrInsufficientBalance
	}
	b.move(from, to, amount)
	return nil
}

// Move transfers without a balance check; the escrow settlement path.
// Panics if the source cannot cover the amount.
func (b *Bank) Move(from, to common.Address, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[from] < amount {
		b.log.Panicw("unchecked_coin_move_underflow", "from", from.Hex(), "have", b.balances[from], "need", amount)
	}
	b.move(from, to, amount)
}

func (b *Bank) move(from, to common.Address, amount uint64) {
	b.balances[from] -= amount
	b.balances[to] += amount

	if b.balances[from] == 0 && b.ReapZeroBalances {
		delete(b.balances, from)
		if b.store != nil {
			if err := b.store.DeleteCoinBalance(from); err != nil {
				b.log.Warnw("reap_coin_balance_failed", "addr", from.Hex(), "err", err)
			}
		}
	} else {
		b.persist(from)
	}
	b.persist(to)
}

// Exists reports whether addr currently has a balance entry. A reaped
// account does not exist even though its balance reads as zero.
func (b *Bank) Exists(addr common.Address) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.balances[addr]
	return ok
}

// Restore loads previously persisted coin balances at startup.
func (b *Bank) Restore(balances map[common.Address]uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for addr, amt := range balances {
		b.balances[addr] = amt
	}
}

func (b *Bank) persist(addr common.Address) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveCoinBalance(addr, b.balances[addr]); err != nil {
		b.log.Warnw("persist_coin_balance_failed", "addr", addr.Hex(), "err", err)
	}
}
