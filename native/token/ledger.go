package token

import (
	"fmt"
	"math/big"
)

type ledgerState interface {
	TokenBalance(symbol string, addr [20]byte) (*big.Int, error)
	TokenSetBalance(symbol string, addr [20]byte, amount *big.Int) error
	TokenAllowance(symbol string, owner, spender [20]byte) (*big.Int, error)
	TokenSetAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error
}

// Token is the standard ledger-backed asset contract: a balance map and
// an (owner, spender) allowance map persisted through the state
// manager. It participates in the engine's transactions because every
// write goes through the same transactional state backend.
type Token struct {
	symbol string
	state  ledgerState
}

// NewToken constructs a ledger token for the given symbol.
func NewToken(symbol string, state ledgerState) (*Token, error) {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("token: state not configured")
	}
	return &Token{symbol: normalized, state: state}, nil
}

// Symbol returns the canonical asset symbol.
func (t *Token) Symbol() string { return t.symbol }

// Mint credits newly issued units to an account. It exists for genesis
// funding and tests; there is no burn.
func (t *Token) Mint(to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := t.state.TokenBalance(t.symbol, to)
	if err != nil {
		return err
	}
	return t.state.TokenSetBalance(t.symbol, to, new(big.Int).Add(balance, amount))
}

// Approve sets the amount spender may move out of the caller's balance.
func (t *Token) Approve(caller [20]byte, amount *big.Int, spender [20]byte) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return t.state.TokenSetAllowance(t.symbol, caller, spender, amount)
}

// Allowance returns the remaining (owner, spender) allowance.
func (t *Token) Allowance(owner, spender [20]byte) (*big.Int, error) {
	return t.state.TokenAllowance(t.symbol, owner, spender)
}

// BalanceOf implements the Contract interface.
func (t *Token) BalanceOf(addr [20]byte) (*big.Int, error) {
	return t.state.TokenBalance(t.symbol, addr)
}

// Transfer implements the Contract interface, moving amount from the
// caller to the recipient.
func (t *Token) Transfer(caller [20]byte, amount *big.Int, to [20]byte) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return t.move(caller, to, amount)
}

// TransferFrom implements the Contract interface, moving amount from
// mainAccount to the recipient against the caller's allowance.
func (t *Token) TransferFrom(caller [20]byte, amount *big.Int, to [20]byte, mainAccount [20]byte) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	allowance, err := t.state.TokenAllowance(t.symbol, mainAccount, caller)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: approved %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := t.move(mainAccount, to, amount); err != nil {
		return err
	}
	return t.state.TokenSetAllowance(t.symbol, mainAccount, caller, new(big.Int).Sub(allowance, amount))
}

func (t *Token) move(from, to [20]byte, amount *big.Int) error {
	fromBalance, err := t.state.TokenBalance(t.symbol, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBalance, amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := t.state.TokenBalance(t.symbol, to)
	if err != nil {
		return err
	}
	if err := t.state.TokenSetBalance(t.symbol, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return t.state.TokenSetBalance(t.symbol, to, new(big.Int).Add(toBalance, amount))
}
