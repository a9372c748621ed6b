package otc

import (
	"math/big"
	"time"

	"otcd/core/events"
	"otcd/core/types"
	"otcd/native/token"
)

// UnguardedEngine is the vulnerable counterpart of Engine, kept to
// demonstrate the attack the guarded engine defends against. It has no
// reentrancy guard and Take performs its external transfers before
// flipping the offer status, so a malicious counter-asset can re-enter
// Take while the offer still reads OPEN and drain custody beyond the
// escrowed amount. It is test and demonstration surface only and is
// never mounted on the RPC server.
type UnguardedEngine struct {
	state   engineState
	tokens  *token.Registry
	emitter events.Emitter
	custody [20]byte
	nowFn   func() int64
	nonceFn func() ([16]byte, error)
}

// NewUnguardedEngine creates the vulnerable engine variant.
func NewUnguardedEngine(custody [20]byte, tokens *token.Registry) *UnguardedEngine {
	return &UnguardedEngine{
		tokens:  tokens,
		emitter: events.NoopEmitter{},
		custody: custody,
		nowFn:   func() int64 { return time.Now().Unix() },
		nonceFn: defaultNonce,
	}
}

// SetState configures the state backend used by the engine.
func (e *UnguardedEngine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *UnguardedEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *UnguardedEngine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetNonceFunc overrides the listing-nonce entropy source.
func (e *UnguardedEngine) SetNonceFunc(nonce func() ([16]byte, error)) {
	if nonce == nil {
		e.nonceFn = defaultNonce
		return
	}
	e.nonceFn = nonce
}

// Custody returns the engine's address on the asset ledgers.
func (e *UnguardedEngine) Custody() [20]byte { return e.custody }

func (e *UnguardedEngine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(engineEvent{evt: evt})
}

func (e *UnguardedEngine) resolveAsset(symbol string) (token.Contract, error) {
	if e.tokens == nil {
		return nil, ErrUnknownAsset
	}
	contract, err := e.tokens.Resolve(symbol)
	if err != nil {
		return nil, ErrUnknownAsset
	}
	return contract, nil
}

// Initialize seeds the owner identity and the starting global fee rate.
func (e *UnguardedEngine) Initialize(owner [20]byte, feeBps uint32) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if feeBps > MaxFeeBps {
		return ErrFeeOutOfRange
	}
	return e.state.Transact(func() error {
		if err := e.state.SetOwner(owner); err != nil {
			return err
		}
		return e.state.SetFeeRate(feeBps)
	})
}

// List escrows the offered amount and records an open offer.
func (e *UnguardedEngine) List(caller [20]byte, offerToken string, offerAmount *big.Int, takeToken string, takeAmount *big.Int) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, ErrNilState
	}
	var id [32]byte
	var listed *Offer
	err := e.state.Transact(func() error {
		if offerAmount == nil || offerAmount.Sign() <= 0 || takeAmount == nil || takeAmount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		normalizedOffer, err := NormalizeAsset(offerToken)
		if err != nil {
			return err
		}
		normalizedTake, err := NormalizeAsset(takeToken)
		if err != nil {
			return err
		}
		offerContract, err := e.resolveAsset(normalizedOffer)
		if err != nil {
			return err
		}
		if _, err := e.resolveAsset(normalizedTake); err != nil {
			return err
		}
		rate, err := e.state.FeeRate()
		if err != nil {
			return err
		}
		makerFee := FeeAmount(offerAmount, rate)
		listedAt := e.nowFn()
		nonce, err := e.nonceFn()
		if err != nil {
			return err
		}
		id = listingID(e.custody, caller, normalizedOffer, offerAmount, normalizedTake, takeAmount, listedAt, nonce)
		if _, exists := e.state.OfferGet(id); exists {
			return ErrIDCollision
		}
		escrowAmount := new(big.Int).Add(offerAmount, makerFee)
		if err := offerContract.TransferFrom(e.custody, escrowAmount, e.custody, caller); err != nil {
			return err
		}
		offer := &Offer{
			ID:          id,
			Maker:       caller,
			OfferToken:  normalizedOffer,
			OfferAmount: new(big.Int).Set(offerAmount),
			TakeToken:   normalizedTake,
			TakeAmount:  new(big.Int).Set(takeAmount),
			FeeBps:      rate,
			ListedAt:    listedAt,
			Status:      OfferOpen,
		}
		if err := e.state.OfferPut(offer); err != nil {
			return err
		}
		listed = offer
		return nil
	})
	if err != nil {
		return [32]byte{}, err
	}
	e.emit(NewOfferCreatedEvent(listed))
	return id, nil
}

// Take executes an open offer. The external transfers run before the
// status flip: this ordering is the vulnerability.
func (e *UnguardedEngine) Take(caller [20]byte, id [32]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	var taken *Offer
	err := e.state.Transact(func() error {
		offer, ok := e.state.OfferGet(id)
		if !ok {
			return ErrNotFound
		}
		if offer.Status != OfferOpen {
			return ErrNotOpen
		}
		takerFee := FeeAmount(offer.TakeAmount, offer.FeeBps)
		makerFee := FeeAmount(offer.OfferAmount, offer.FeeBps)
		takeContract, err := e.resolveAsset(offer.TakeToken)
		if err != nil {
			return err
		}
		offerContract, err := e.resolveAsset(offer.OfferToken)
		if err != nil {
			return err
		}
		if err := takeContract.TransferFrom(e.custody, new(big.Int).Add(offer.TakeAmount, takerFee), e.custody, caller); err != nil {
			return err
		}
		if err := e.state.FeeAccrue(offer.OfferToken, makerFee); err != nil {
			return err
		}
		if err := e.state.FeeAccrue(offer.TakeToken, takerFee); err != nil {
			return err
		}
		if err := takeContract.Transfer(e.custody, offer.TakeAmount, offer.Maker); err != nil {
			return err
		}
		if err := offerContract.Transfer(e.custody, offer.OfferAmount, caller); err != nil {
			return err
		}
		offer.Status = OfferExecuted
		offer.Taker = caller
		if err := e.state.OfferPut(offer); err != nil {
			return err
		}
		taken = offer
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewOfferTakenEvent(taken))
	return nil
}

// Cancel refunds the maker. The refund transfer runs before the status
// flip, mirroring the original vulnerable ordering.
func (e *UnguardedEngine) Cancel(caller [20]byte, id [32]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	var cancelled *Offer
	err := e.state.Transact(func() error {
		offer, ok := e.state.OfferGet(id)
		if !ok {
			return ErrNotFound
		}
		if offer.Status != OfferOpen {
			return ErrNotOpen
		}
		if offer.Maker != caller {
			return ErrUnauthorized
		}
		refund := new(big.Int).Add(offer.OfferAmount, FeeAmount(offer.OfferAmount, offer.FeeBps))
		offerContract, err := e.resolveAsset(offer.OfferToken)
		if err != nil {
			return err
		}
		if err := offerContract.Transfer(e.custody, refund, offer.Maker); err != nil {
			return err
		}
		offer.Status = OfferCancelled
		if err := e.state.OfferPut(offer); err != nil {
			return err
		}
		cancelled = offer
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(NewOfferCancelledEvent(cancelled))
	return nil
}

// Withdraw pays accrued fees to the owner, zeroing each accrual only
// after its transfer. Events are recorded once the transaction commits.
func (e *UnguardedEngine) Withdraw(caller [20]byte, assets []string) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	var payouts []feePayout
	var owner [20]byte
	err := e.state.Transact(func() error {
		var err error
		owner, err = e.state.Owner()
		if err != nil {
			return err
		}
		if caller != owner {
			return ErrUnauthorized
		}
		for _, asset := range assets {
			normalized, err := NormalizeAsset(asset)
			if err != nil {
				return err
			}
			accrued, err := e.state.FeeAccrued(normalized)
			if err != nil {
				return err
			}
			if accrued.Sign() <= 0 {
				continue
			}
			contract, err := e.resolveAsset(normalized)
			if err != nil {
				return err
			}
			if err := contract.Transfer(e.custody, accrued, owner); err != nil {
				return err
			}
			if err := e.state.FeeReset(normalized); err != nil {
				return err
			}
			payouts = append(payouts, feePayout{asset: normalized, amount: accrued})
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, payout := range payouts {
		e.emit(NewFeeWithdrawnEvent(payout.asset, payout.amount, owner))
	}
	return nil
}

// GetOffer returns a snapshot of the stored offer.
func (e *UnguardedEngine) GetOffer(id [32]byte) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	offer, ok := e.state.OfferGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return offer, nil
}

// ViewEarnedFees returns the accrued fee balance for an asset.
func (e *UnguardedEngine) ViewEarnedFees(asset string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	return e.state.FeeAccrued(normalized)
}
