package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

var (
	// ErrInvalidAmount rejects non-positive transfer amounts.
	ErrInvalidAmount = errors.New("token: amount must be positive")

	// ErrInsufficientBalance rejects transfers exceeding the sender's
	// balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")

	// ErrInsufficientAllowance rejects delegated transfers exceeding
	// the approved allowance.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")

	// ErrNotRegistered is returned when a symbol does not resolve to a
	// contract.
	ErrNotRegistered = errors.New("token: asset not registered")
)

// Contract is the minimal fungible-asset capability the settlement
// engine consumes. The caller identity is explicit on every method; a
// delegated transfer moves funds from the main account using the
// caller's allowance. Implementations may run arbitrary code, including
// calling back into the engine, which is exactly the hostile case the
// engine's reentrancy discipline defends against.
type Contract interface {
	Transfer(caller [20]byte, amount *big.Int, to [20]byte) error
	TransferFrom(caller [20]byte, amount *big.Int, to [20]byte, mainAccount [20]byte) error
	BalanceOf(addr [20]byte) (*big.Int, error)
}

// NormalizeSymbol canonicalises an asset symbol to trimmed uppercase.
func NormalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("token: empty symbol")
	}
	return trimmed, nil
}

// Registry resolves asset symbols to their contract implementations. It
// replaces dynamic cross-contract imports: the engine's listing-time
// capability check is a successful lookup here.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]Contract
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[string]Contract)}
}

// Register binds a contract to a symbol, replacing any prior binding.
func (r *Registry) Register(symbol string, contract Contract) error {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if contract == nil {
		return fmt.Errorf("token: nil contract for %s", normalized)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[normalized] = contract
	return nil
}

// Resolve returns the contract registered under the symbol.
func (r *Registry) Resolve(symbol string) (Contract, error) {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	contract, ok := r.contracts[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, normalized)
	}
	return contract, nil
}
