package state

import (
	"errors"
	"math/big"
	"testing"

	"otcd/native/otc"
	"otcd/storage"
)

func testOffer(id byte) *otc.Offer {
	return &otc.Offer{
		ID:          [32]byte{id},
		Maker:       [20]byte{0x01},
		OfferToken:  "APL",
		OfferAmount: big.NewInt(100),
		TakeToken:   "BAN",
		TakeAmount:  big.NewInt(50),
		FeeBps:      50,
		ListedAt:    1_700_000_000,
		Status:      otc.OfferOpen,
	}
}

// brokenBatchDB refuses batch writes, standing in for a storage layer
// that fails at commit time.
type brokenBatchDB struct {
	*storage.MemDB
}

func (db brokenBatchDB) WriteBatch(map[string][]byte) error {
	return errors.New("disk full")
}

func TestTransactCommitsOnSuccess(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	err := mgr.Transact(func() error {
		if err := mgr.OfferPut(testOffer(0x01)); err != nil {
			return err
		}
		return mgr.SetFeeRate(75)
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if _, ok := mgr.OfferGet([32]byte{0x01}); !ok {
		t.Fatalf("offer not committed")
	}
	rate, err := mgr.FeeRate()
	if err != nil || rate != 75 {
		t.Fatalf("rate = %d/%v, want 75", rate, err)
	}
}

func TestTransactCommitIsAllOrNothing(t *testing.T) {
	backing := storage.NewMemDB()
	mgr := NewManager(brokenBatchDB{MemDB: backing})

	err := mgr.Transact(func() error {
		if err := mgr.OfferPut(testOffer(0x01)); err != nil {
			return err
		}
		return mgr.SetFeeRate(75)
	})
	if err == nil {
		t.Fatalf("expected commit failure")
	}
	// The failed commit must not have leaked any individual writes to
	// the backing store.
	if _, ok := mgr.OfferGet([32]byte{0x01}); ok {
		t.Fatalf("offer visible after failed commit")
	}
	rate, err := mgr.FeeRate()
	if err != nil || rate != 0 {
		t.Fatalf("rate = %d/%v, want 0 after failed commit", rate, err)
	}
}

func TestTransactDiscardsOnError(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	boom := errors.New("boom")

	err := mgr.Transact(func() error {
		if err := mgr.OfferPut(testOffer(0x01)); err != nil {
			return err
		}
		if err := mgr.SetGuard(true); err != nil {
			return err
		}
		if err := mgr.FeeAccrue("APL", big.NewInt(10)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, ok := mgr.OfferGet([32]byte{0x01}); ok {
		t.Fatalf("offer survived rollback")
	}
	if active, _ := mgr.GuardActive(); active {
		t.Fatalf("guard survived rollback")
	}
	accrued, err := mgr.FeeAccrued("APL")
	if err != nil || accrued.Sign() != 0 {
		t.Fatalf("accrual survived rollback: %v/%v", accrued, err)
	}
}

func TestTransactNestedJoinsOuter(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	boom := errors.New("boom")

	// The inner transaction's writes belong to the outer one: when the
	// outer call fails, both are discarded together.
	err := mgr.Transact(func() error {
		if err := mgr.SetFeeRate(10); err != nil {
			return err
		}
		if err := mgr.Transact(func() error {
			return mgr.SetFeeRate(20)
		}); err != nil {
			return err
		}
		rate, err := mgr.FeeRate()
		if err != nil {
			return err
		}
		if rate != 20 {
			t.Fatalf("inner write not visible to outer: rate = %d", rate)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	rate, err := mgr.FeeRate()
	if err != nil || rate != 0 {
		t.Fatalf("rate = %d/%v, want 0 after rollback", rate, err)
	}
}

func TestTransactOverlayReadsThrough(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if err := mgr.SetOwner([20]byte{0x07}); err != nil {
		t.Fatalf("set owner: %v", err)
	}

	err := mgr.Transact(func() error {
		owner, err := mgr.Owner()
		if err != nil {
			return err
		}
		if owner != ([20]byte{0x07}) {
			t.Fatalf("committed value not visible inside transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestOfferRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	original := testOffer(0x02)
	original.Taker = [20]byte{0x09}
	original.Status = otc.OfferExecuted

	if err := mgr.OfferPut(original); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok := mgr.OfferGet(original.ID)
	if !ok {
		t.Fatalf("offer missing")
	}
	if loaded.Maker != original.Maker || loaded.Taker != original.Taker {
		t.Fatalf("parties mismatch")
	}
	if loaded.OfferAmount.Cmp(original.OfferAmount) != 0 || loaded.TakeAmount.Cmp(original.TakeAmount) != 0 {
		t.Fatalf("amounts mismatch")
	}
	if loaded.FeeBps != original.FeeBps || loaded.ListedAt != original.ListedAt || loaded.Status != original.Status {
		t.Fatalf("metadata mismatch: %+v", loaded)
	}
}

func TestOfferPutRejectsInvalid(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	bad := testOffer(0x03)
	bad.OfferAmount = big.NewInt(0)
	if err := mgr.OfferPut(bad); !errors.Is(err, otc.ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestFeeAccrualArithmetic(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	if err := mgr.FeeAccrue("APL", big.NewInt(10)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if err := mgr.FeeAccrue("APL", big.NewInt(15)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if err := mgr.FeeAccrue("APL", nil); err != nil {
		t.Fatalf("nil accrue should be a no-op: %v", err)
	}
	if err := mgr.FeeAccrue("APL", big.NewInt(-1)); err == nil {
		t.Fatalf("negative accrue accepted")
	}
	total, err := mgr.FeeAccrued("APL")
	if err != nil || total.Int64() != 25 {
		t.Fatalf("total = %v/%v, want 25", total, err)
	}
	if err := mgr.FeeReset("APL"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	total, err = mgr.FeeAccrued("APL")
	if err != nil || total.Sign() != 0 {
		t.Fatalf("total after reset = %v/%v, want 0", total, err)
	}
}

func TestGuardFlagLifecycle(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	active, err := mgr.GuardActive()
	if err != nil || active {
		t.Fatalf("fresh guard = %v/%v, want inactive", active, err)
	}
	if err := mgr.SetGuard(true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if active, _ = mgr.GuardActive(); !active {
		t.Fatalf("guard not active after set")
	}
	if err := mgr.SetGuard(false); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if active, _ = mgr.GuardActive(); active {
		t.Fatalf("guard active after clear")
	}
}

func TestFeeRateBounds(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if err := mgr.SetFeeRate(otc.MaxFeeBps + 1); !errors.Is(err, otc.ErrFeeOutOfRange) {
		t.Fatalf("err = %v, want ErrFeeOutOfRange", err)
	}
	if err := mgr.SetFeeRate(otc.MaxFeeBps); err != nil {
		t.Fatalf("max rate rejected: %v", err)
	}
}

func TestOwnerRequiresInitialisation(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if _, err := mgr.Owner(); err == nil {
		t.Fatalf("expected error before initialisation")
	}
}
