package token_test

import (
	"errors"
	"math/big"
	"testing"

	"otcd/core/state"
	"otcd/native/token"
	"otcd/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func newLedger(t *testing.T) (*token.Token, *state.Manager) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	ledger, err := token.NewToken("apl", mgr)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	return ledger, mgr
}

func balance(t *testing.T, ledger *token.Token, a [20]byte) int64 {
	t.Helper()
	b, err := ledger.BalanceOf(a)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b.Int64()
}

func TestSymbolNormalised(t *testing.T) {
	ledger, _ := newLedger(t)
	if ledger.Symbol() != "APL" {
		t.Fatalf("symbol = %q, want APL", ledger.Symbol())
	}
	if _, err := token.NewToken("  ", nil); err == nil {
		t.Fatalf("empty symbol accepted")
	}
}

func TestMintAndTransfer(t *testing.T) {
	ledger, _ := newLedger(t)
	alice, bob := addr(0x01), addr(0x02)

	if err := ledger.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(alice, big.NewInt(30), bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := balance(t, ledger, alice); got != 70 {
		t.Fatalf("alice = %d, want 70", got)
	}
	if got := balance(t, ledger, bob); got != 30 {
		t.Fatalf("bob = %d, want 30", got)
	}

	if err := ledger.Transfer(alice, big.NewInt(71), bob); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("overdraft err = %v, want ErrInsufficientBalance", err)
	}
	if err := ledger.Transfer(alice, big.NewInt(0), bob); !errors.Is(err, token.ErrInvalidAmount) {
		t.Fatalf("zero err = %v, want ErrInvalidAmount", err)
	}
	if err := ledger.Transfer(alice, big.NewInt(-5), bob); !errors.Is(err, token.ErrInvalidAmount) {
		t.Fatalf("negative err = %v, want ErrInvalidAmount", err)
	}
}

func TestSelfTransferKeepsBalance(t *testing.T) {
	ledger, _ := newLedger(t)
	alice := addr(0x01)
	if err := ledger.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(alice, big.NewInt(40), alice); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if got := balance(t, ledger, alice); got != 100 {
		t.Fatalf("alice = %d, want 100", got)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger, _ := newLedger(t)
	alice, spender, sink := addr(0x01), addr(0x02), addr(0x03)

	if err := ledger.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.TransferFrom(spender, big.NewInt(10), sink, alice); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("no approval err = %v, want ErrInsufficientAllowance", err)
	}

	if err := ledger.Approve(alice, big.NewInt(60), spender); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(spender, big.NewInt(40), sink, alice); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := balance(t, ledger, sink); got != 40 {
		t.Fatalf("sink = %d, want 40", got)
	}
	remaining, err := ledger.Allowance(alice, spender)
	if err != nil || remaining.Int64() != 20 {
		t.Fatalf("allowance = %v/%v, want 20", remaining, err)
	}
	if err := ledger.TransferFrom(spender, big.NewInt(21), sink, alice); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("exceeding allowance err = %v, want ErrInsufficientAllowance", err)
	}
}

func TestRegistryResolvesNormalisedSymbols(t *testing.T) {
	ledger, _ := newLedger(t)
	reg := token.NewRegistry()
	if err := reg.Register("apl", ledger); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Resolve(" APL "); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := reg.Resolve("BAN"); !errors.Is(err, token.ErrNotRegistered) {
		t.Fatalf("err = %v, want ErrNotRegistered", err)
	}
	if err := reg.Register("BAN", nil); err == nil {
		t.Fatalf("nil contract accepted")
	}
}
