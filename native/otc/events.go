package otc

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"otcd/core/types"
)

const (
	EventTypeOfferCreated   = "otc.offer.created"
	EventTypeOfferTaken     = "otc.offer.taken"
	EventTypeOfferCancelled = "otc.offer.cancelled"
	EventTypeFeeAdjusted    = "otc.fee.adjusted"
	EventTypeFeeWithdrawn   = "otc.fee.withdrawn"
)

type engineEvent struct {
	evt *types.Event
}

func (e engineEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e engineEvent) Event() *types.Event { return e.evt }

// NewOfferCreatedEvent returns the canonical payload for a freshly
// listed offer.
func NewOfferCreatedEvent(o *Offer) *types.Event { return newOfferEvent(EventTypeOfferCreated, o) }

// NewOfferTakenEvent returns the canonical payload emitted when an
// offer is executed by a taker.
func NewOfferTakenEvent(o *Offer) *types.Event { return newOfferEvent(EventTypeOfferTaken, o) }

// NewOfferCancelledEvent returns the canonical payload emitted when the
// maker cancels an open offer.
func NewOfferCancelledEvent(o *Offer) *types.Event { return newOfferEvent(EventTypeOfferCancelled, o) }

// NewFeeAdjustedEvent returns the payload emitted when the owner moves
// the global fee rate.
func NewFeeAdjustedEvent(bps uint32) *types.Event {
	return &types.Event{
		Type: EventTypeFeeAdjusted,
		Attributes: map[string]string{
			"newFeeBps": strconv.FormatUint(uint64(bps), 10),
		},
	}
}

// NewFeeWithdrawnEvent returns the payload emitted for each asset whose
// accrued fees were paid out to the owner.
func NewFeeWithdrawnEvent(asset string, amount *big.Int, owner [20]byte) *types.Event {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return &types.Event{
		Type: EventTypeFeeWithdrawn,
		Attributes: map[string]string{
			"asset":  asset,
			"amount": amount.String(),
			"owner":  hex.EncodeToString(owner[:]),
		},
	}
}

func newOfferEvent(eventType string, o *Offer) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeOffer(o)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(sanitized.ID[:])
	attrs["maker"] = hex.EncodeToString(sanitized.Maker[:])
	attrs["offerAsset"] = sanitized.OfferToken
	attrs["offerAmount"] = sanitized.OfferAmount.String()
	attrs["takeAsset"] = sanitized.TakeToken
	attrs["takeAmount"] = sanitized.TakeAmount.String()
	attrs["feeBps"] = strconv.FormatUint(uint64(sanitized.FeeBps), 10)
	attrs["listedAt"] = strconv.FormatInt(sanitized.ListedAt, 10)
	attrs["status"] = sanitized.Status.String()
	if sanitized.Taker != ([20]byte{}) {
		attrs["taker"] = hex.EncodeToString(sanitized.Taker[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
