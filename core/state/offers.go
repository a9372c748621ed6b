package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"otcd/native/otc"
)

var (
	offerPrefix      = []byte("otc/offer:")
	feeAccrualPrefix = []byte("otc/fees:")
	feeRateKeyRaw    = []byte("otc/fee-rate")
	ownerKeyRaw      = []byte("otc/owner")
	guardKeyRaw      = []byte("otc/guard")
)

type storedOffer struct {
	ID          [32]byte
	Maker       [20]byte
	Taker       [20]byte
	OfferToken  string
	OfferAmount *big.Int
	TakeToken   string
	TakeAmount  *big.Int
	FeeBps      uint32
	ListedAt    *big.Int
	Status      uint8
}

func newStoredOffer(o *otc.Offer) *storedOffer {
	return &storedOffer{
		ID:          o.ID,
		Maker:       o.Maker,
		Taker:       o.Taker,
		OfferToken:  o.OfferToken,
		OfferAmount: new(big.Int).Set(o.OfferAmount),
		TakeToken:   o.TakeToken,
		TakeAmount:  new(big.Int).Set(o.TakeAmount),
		FeeBps:      o.FeeBps,
		ListedAt:    big.NewInt(o.ListedAt),
		Status:      uint8(o.Status),
	}
}

func (s *storedOffer) toOffer() (*otc.Offer, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil offer record")
	}
	out := &otc.Offer{
		ID:          s.ID,
		Maker:       s.Maker,
		Taker:       s.Taker,
		OfferToken:  s.OfferToken,
		OfferAmount: big.NewInt(0),
		TakeToken:   s.TakeToken,
		TakeAmount:  big.NewInt(0),
		FeeBps:      s.FeeBps,
		Status:      otc.OfferStatus(s.Status),
	}
	if s.OfferAmount != nil {
		out.OfferAmount = new(big.Int).Set(s.OfferAmount)
	}
	if s.TakeAmount != nil {
		out.TakeAmount = new(big.Int).Set(s.TakeAmount)
	}
	if s.ListedAt != nil {
		out.ListedAt = s.ListedAt.Int64()
	}
	return otc.SanitizeOffer(out)
}

// OfferPut validates and persists an offer record.
func (m *Manager) OfferPut(o *otc.Offer) error {
	sanitized, err := otc.SanitizeOffer(o)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredOffer(sanitized))
	if err != nil {
		return err
	}
	return m.kvPut(storageKey(offerPrefix, sanitized.ID[:]), encoded)
}

// OfferGet loads the offer stored under the identifier, if any.
func (m *Manager) OfferGet(id [32]byte) (*otc.Offer, bool) {
	data, ok := m.kvGet(storageKey(offerPrefix, id[:]))
	if !ok {
		return nil, false
	}
	stored := new(storedOffer)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	offer, err := stored.toOffer()
	if err != nil {
		return nil, false
	}
	return offer, true
}

// FeeAccrued returns the accrued, unwithdrawn fee balance for an asset.
func (m *Manager) FeeAccrued(asset string) (*big.Int, error) {
	return m.loadBigInt(storageKey(feeAccrualPrefix, []byte(asset)))
}

// FeeAccrue increases the accrued fee balance for an asset. Zero and
// nil amounts are no-ops; negative amounts are rejected.
func (m *Manager) FeeAccrue(asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative fee accrual")
	}
	key := storageKey(feeAccrualPrefix, []byte(asset))
	current, err := m.loadBigInt(key)
	if err != nil {
		return err
	}
	return m.writeBigInt(key, new(big.Int).Add(current, amount))
}

// FeeReset zeroes the accrued fee balance for an asset.
func (m *Manager) FeeReset(asset string) error {
	return m.writeBigInt(storageKey(feeAccrualPrefix, []byte(asset)), big.NewInt(0))
}

// FeeRate returns the current global fee rate in basis points.
func (m *Manager) FeeRate() (uint32, error) {
	value, err := m.loadBigInt(storageKey(feeRateKeyRaw))
	if err != nil {
		return 0, err
	}
	if !value.IsUint64() || value.Uint64() > uint64(otc.MaxFeeBps) {
		return 0, fmt.Errorf("state: stored fee rate out of range")
	}
	return uint32(value.Uint64()), nil
}

// SetFeeRate persists the global fee rate in basis points.
func (m *Manager) SetFeeRate(bps uint32) error {
	if bps > otc.MaxFeeBps {
		return otc.ErrFeeOutOfRange
	}
	return m.writeBigInt(storageKey(feeRateKeyRaw), new(big.Int).SetUint64(uint64(bps)))
}

// Owner returns the configured engine owner address.
func (m *Manager) Owner() ([20]byte, error) {
	var owner [20]byte
	data, ok := m.kvGet(storageKey(ownerKeyRaw))
	if !ok {
		return owner, fmt.Errorf("state: owner not configured")
	}
	if len(data) != len(owner) {
		return owner, fmt.Errorf("state: malformed owner record")
	}
	copy(owner[:], data)
	return owner, nil
}

// SetOwner persists the engine owner address.
func (m *Manager) SetOwner(owner [20]byte) error {
	return m.kvPut(storageKey(ownerKeyRaw), owner[:])
}

// GuardActive reports whether the reentrancy guard is currently locked.
func (m *Manager) GuardActive() (bool, error) {
	data, ok := m.kvGet(storageKey(guardKeyRaw))
	if !ok {
		return false, nil
	}
	return len(data) == 1 && data[0] == 1, nil
}

// SetGuard writes the reentrancy guard flag. The flag lives in
// transactional state on purpose: an aborted call chain rolls the lock
// back together with every other effect, so no explicit cleanup path
// is needed.
func (m *Manager) SetGuard(active bool) error {
	value := []byte{0}
	if active {
		value = []byte{1}
	}
	return m.kvPut(storageKey(guardKeyRaw), value)
}
