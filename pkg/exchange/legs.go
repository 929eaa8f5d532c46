package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotdex/pkg/ledger"
)

// Leg moves one side of a pair's funds. Balance and the checked Transfer
// back order admission; Move is the settlement path, which assumes escrow
// already holds the funds and therefore cannot fail.
type Leg interface {
	Balance(addr common.Address) uint64
	Transfer(from, to common.Address, amount uint64) error
	Move(from, to common.Address, amount uint64)
}

// LegBinder resolves a pair to its base and target legs. The engine is
// generic over this: token/token pairs bind two ledger legs, native pairs a
// coin-bank base leg plus a ledger target leg.
type LegBinder interface {
	Legs(p *Pair) (base, target Leg)
}

// AssetLeg binds a ledger asset.
type AssetLeg struct {
	Ledger *ledger.Ledger
	Asset  ledger.AssetID
}

func (l AssetLeg) Balance(addr common.Address) uint64 {
	return l.Ledger.Balance(l.Asset, addr)
}

func (l AssetLeg) Transfer(from, to common.Address, amount uint64) error {
	return l.Ledger.Transfer(l.Asset, from, to, amount)
}

func (l AssetLeg) Move(from, to common.Address, amount uint64) {
	l.Ledger.Move(l.Asset, from, to, amount)
}

// CoinLeg binds the native settlement coin.
type CoinLeg struct {
	Bank *ledger.Bank
}

func (l CoinLeg) Balance(addr common.Address) uint64 {
	return l.Bank.Balance(addr)
}

func (l CoinLeg) Transfer(from, to common.Address, amount uint64) error {
	return l.Bank.Transfer(from, to, amount)
}

func (l CoinLeg) Move(from, to common.Address, amount uint64) {
	l.Bank.Move(from, to, amount)
}

// TokenBinder binds both legs of a pair to ledger assets.
type TokenBinder struct {
	Ledger *ledger.Ledger
}

func (b TokenBinder) Legs(p *Pair) (Leg, Leg) {
	return AssetLeg{Ledger: b.Ledger, Asset: p.Base}, AssetLeg{Ledger: b.Ledger, Asset: p.Target}
}

// NativeBinder binds the base leg to the coin bank and the target leg to a
// ledger asset.
type NativeBinder struct {
	Bank   *ledger.Bank
	Ledger *ledger.Ledger
}

func (b NativeBinder) Legs(p *Pair) (Leg, Leg) {
	return CoinLeg{Bank: b.Bank}, AssetLeg{Ledger: b.Ledger, Asset: p.Target}
}
