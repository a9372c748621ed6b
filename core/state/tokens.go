package state

import (
	"math/big"
)

var (
	balancePrefix   = []byte("token/balance:")
	allowancePrefix = []byte("token/allowance:")
)

func balanceKey(symbol string, addr [20]byte) []byte {
	return storageKey(balancePrefix, []byte(symbol), []byte{':'}, addr[:])
}

func allowanceKey(symbol string, owner, spender [20]byte) []byte {
	return storageKey(allowancePrefix, []byte(symbol), []byte{':'}, owner[:], spender[:])
}

// TokenBalance returns the ledger balance of addr for the given symbol.
func (m *Manager) TokenBalance(symbol string, addr [20]byte) (*big.Int, error) {
	return m.loadBigInt(balanceKey(symbol, addr))
}

// TokenSetBalance overwrites the ledger balance of addr. Negative
// balances are rejected by the underlying codec.
func (m *Manager) TokenSetBalance(symbol string, addr [20]byte, amount *big.Int) error {
	return m.writeBigInt(balanceKey(symbol, addr), amount)
}

// TokenAllowance returns the amount spender may move out of owner's
// balance for the given symbol.
func (m *Manager) TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	return m.loadBigInt(allowanceKey(symbol, owner, spender))
}

// TokenSetAllowance overwrites the (owner, spender) allowance.
func (m *Manager) TokenSetAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error {
	return m.writeBigInt(allowanceKey(symbol, owner, spender), amount)
}
