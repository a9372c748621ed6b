package otc

import (
	"fmt"
	"math/big"
	"strings"
)

// OfferStatus represents the lifecycle states of a swap offer. The only
// legal transitions are Open to Executed and Open to Cancelled; both
// are terminal.
type OfferStatus uint8

const (
	OfferOpen OfferStatus = iota
	OfferExecuted
	OfferCancelled
)

// MaxFeeBps bounds the global fee rate to 10 percent.
const MaxFeeBps uint32 = 1_000

const feeDenominator = 10_000

// Offer captures one bilateral swap proposal. The maker has escrowed
// OfferAmount plus the maker fee of OfferToken with the engine; the
// taker supplies TakeAmount plus the taker fee of TakeToken. FeeBps is
// the rate captured at listing time and is immutable for the life of
// the offer regardless of later global rate changes.
type Offer struct {
	ID          [32]byte
	Maker       [20]byte
	Taker       [20]byte
	OfferToken  string
	OfferAmount *big.Int
	TakeToken   string
	TakeAmount  *big.Int
	FeeBps      uint32
	ListedAt    int64
	Status      OfferStatus
}

// Clone returns a deep copy of the offer so callers can safely mutate
// the copy without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.OfferAmount != nil {
		clone.OfferAmount = new(big.Int).Set(o.OfferAmount)
	} else {
		clone.OfferAmount = big.NewInt(0)
	}
	if o.TakeAmount != nil {
		clone.TakeAmount = new(big.Int).Set(o.TakeAmount)
	} else {
		clone.TakeAmount = big.NewInt(0)
	}
	return &clone
}

// Valid reports whether the status value is within the supported range.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferOpen, OfferExecuted, OfferCancelled:
		return true
	default:
		return false
	}
}

// String returns the canonical wire label for the status.
func (s OfferStatus) String() string {
	switch s {
	case OfferOpen:
		return "OPEN"
	case OfferExecuted:
		return "EXECUTED"
	case OfferCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// NormalizeAsset canonicalises an asset symbol to its trimmed uppercase
// form. Empty symbols are rejected.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", ErrUnknownAsset
	}
	return trimmed, nil
}

// SanitizeOffer validates and normalises the supplied offer, returning
// a cloned instance with canonical asset casing and non-nil amounts.
// The function does not mutate the original value.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("otc: nil offer")
	}
	clone := o.Clone()
	offerToken, err := NormalizeAsset(clone.OfferToken)
	if err != nil {
		return nil, err
	}
	takeToken, err := NormalizeAsset(clone.TakeToken)
	if err != nil {
		return nil, err
	}
	clone.OfferToken = offerToken
	clone.TakeToken = takeToken
	if clone.OfferAmount.Sign() <= 0 || clone.TakeAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if clone.FeeBps > MaxFeeBps {
		return nil, ErrFeeOutOfRange
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("otc: invalid offer status: %d", clone.Status)
	}
	return clone, nil
}

// FeeAmount computes the fee owed on amount at the supplied basis-point
// rate, truncating toward zero.
func FeeAmount(amount *big.Int, feeBps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || feeBps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(feeBps)))
	return fee.Div(fee, big.NewInt(feeDenominator))
}
