package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestBank(t *testing.T) *Bank {
	return NewBank(zaptest.NewLogger(t).Sugar(), nil)
}

func TestBankDepositAndTransfer(t *testing.T) {
	b := newTestBank(t)

	b.Deposit(owner, 100)
	assert.Equal(t, uint64(100), b.Balance(owner))
	assert.Equal(t, uint64(0), b.Balance(holder))

	require.ErrorIs(t, b.Transfer(owner, holder, 101), ErrInsufficientBalance)
	require.NoError(t, b.Transfer(owner, holder, 40))
	assert.Equal(t, uint64(60), b.Balance(owner))
	assert.Equal(t, uint64(40), b.Balance(holder))
}

func TestBankReapsDrainedAccounts(t *testing.T) {
	b := newTestBank(t)
	b.Deposit(owner, 50)

	require.NoError(t, b.Transfer(owner, holder, 50))
	assert.False(t, b.Exists(owner), "fully drained account is reaped")
	assert.Equal(t, uint64(0), b.Balance(owner))
	assert.True(t, b.Exists(holder))
}

func TestBankKeepDrainedAccountsWhenReapingDisabled(t *testing.T) {
	b := newTestBank(t)
	b.ReapZeroBalances = false
	b.Deposit(owner, 50)

	require.NoError(t, b.Transfer(owner, holder, 50))
	assert.True(t, b.Exists(owner))
	assert.Equal(t, uint64(0), b.Balance(owner))
}

func TestBankMovePanicsOnUnderflow(t *testing.T) {
	b := newTestBank(t)
	b.Deposit(owner, 10)

	b.Move(owner, holder, 10)
	assert.Equal(t, uint64(10), b.Balance(holder))
	assert.Panics(t, func() { b.Move(owner, holder, 1) })
}

func TestBankRestore(t *testing.T) {
	b := newTestBank(t)
	b.Restore(map[common.Address]uint64{owner: 7, holder: 9})

	assert.Equal(t, uint64(7), b.Balance(owner))
	assert.Equal(t, uint64(9), b.Balance(holder))
	assert.True(t, b.Exists(owner))
}
