package otc

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"otcd/core/events"
	"otcd/core/types"
	"otcd/native/token"
	"otcd/observability/metrics"
)

type engineState interface {
	Transact(fn func() error) error
	OfferPut(*Offer) error
	OfferGet(id [32]byte) (*Offer, bool)
	FeeAccrued(asset string) (*big.Int, error)
	FeeAccrue(asset string, amount *big.Int) error
	FeeReset(asset string) error
	FeeRate() (uint32, error)
	SetFeeRate(bps uint32) error
	Owner() ([20]byte, error)
	SetOwner(owner [20]byte) error
	GuardActive() (bool, error)
	SetGuard(active bool) error
}

// Engine is the guarded settlement engine. Every mutating entry point
// runs as one state transaction, acquires the reentrancy guard before
// any other check, and commits its effects before making any external
// token call that could re-enter. An abort anywhere inside the call
// chain discards the whole overlay, guard flag included, so a failed
// call is indistinguishable from one that never started.
type Engine struct {
	state   engineState
	tokens  *token.Registry
	emitter events.Emitter
	metrics *metrics.OTCMetrics
	custody [20]byte
	nowFn   func() int64
	nonceFn func() ([16]byte, error)
}

// NewEngine creates a settlement engine with a no-op emitter. The
// custody address is the engine's own identity on the asset ledgers:
// escrowed funds are held there and it acts as the spender for
// delegated pulls.
func NewEngine(custody [20]byte, tokens *token.Registry) *Engine {
	return &Engine{
		tokens:  tokens,
		emitter: events.NoopEmitter{},
		custody: custody,
		nowFn:   func() int64 { return time.Now().Unix() },
		nonceFn: defaultNonce,
	}
}

func defaultNonce() ([16]byte, error) {
	var nonce [16]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nonce, fmt.Errorf("otc: nonce entropy: %w", err)
	}
	return nonce, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing
// nil resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetMetrics configures the metrics sink. A nil sink disables metrics.
func (e *Engine) SetMetrics(m *metrics.OTCMetrics) { e.metrics = m }

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetNonceFunc overrides the listing-nonce entropy source, primarily
// used in tests to force deterministic identifiers.
func (e *Engine) SetNonceFunc(nonce func() ([16]byte, error)) {
	if nonce == nil {
		e.nonceFn = defaultNonce
		return
	}
	e.nonceFn = nonce
}

// Custody returns the engine's address on the asset ledgers.
func (e *Engine) Custody() [20]byte { return e.custody }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(engineEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Initialize seeds the owner identity and the starting global fee rate.
func (e *Engine) Initialize(owner [20]byte, feeBps uint32) error {
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

func (e *Engine) acquireGuard(entry string) error {
	active, err := e.state.GuardActive()
	if err != nil {
		return err
	}
	if active {
		e.metrics.ObserveBusyRejection(entry)
		return ErrBusy
	}
	return e.state.SetGuard(true)
}

func (e *Engine) releaseGuard() error {
	return e.state.SetGuard(false)
}

func (e *Engine) resolveAsset(symbol string) (token.Contract, error) {
	if e.tokens == nil {
		return nil, fmt.Errorf("%w: registry not configured", ErrUnknownAsset)
	}
	contract, err := e.tokens.Resolve(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return contract, nil
}

func listingID(custody, maker [20]byte, offerToken string, offerAmount *big.Int, takeToken string, takeAmount *big.Int, listedAt int64, nonce [16]byte) [32]byte {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(listedAt))
	return ethcrypto.Keccak256Hash(
		custody[:],
		maker[:],
		[]byte(offerToken),
		offerAmount.Bytes(),
		[]byte(takeToken),
		takeAmount.Bytes(),
		ts[:],
		nonce[:],
	)
}

func (e *Engine) newListingID(maker [20]byte, offerToken string, offerAmount *big.Int, takeToken string, takeAmount *big.Int, listedAt int64) ([32]byte, error) {
	nonce, err := e.nonceFn()
	if err != nil {
		return [32]byte{}, err
	}
	return listingID(e.custody, maker, offerToken, offerAmount, takeToken, takeAmount, listedAt, nonce), nil
}

// List escrows offerAmount plus the maker fee of offerToken from the
// caller and records an open offer. The custody pull happens before the
// record is finalised; if it fails the whole transaction, guard
// acquisition included, rolls back with no observable state change.
// Funds are in custody if and only if the offer record exists as OPEN.
func (e *Engine) List(caller [20]byte, offerToken string, offerAmount *big.Int, takeToken string, takeAmount *big.Int) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, ErrNilState
	}
	var id [32]byte
	var listed *Offer
	err := e.state.Transact(func() error {
		if err := e.acquireGuard("list"); err != nil {
			return err
		}
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
		listedAt := e.now()
		id, err = e.newListingID(caller, normalizedOffer, offerAmount, normalizedTake, takeAmount, listedAt)
		if err != nil {
			return err
		}
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
		return e.releaseGuard()
	})
	if err != nil {
		return [32]byte{}, err
	}
	e.emit(NewOfferCreatedEvent(listed))
	e.metrics.ObserveOfferListed()
	return id, nil
}

// Take executes an open offer on behalf of the caller. The status flip
// and fee accrual are committed before any external transfer so a
// re-entrant call observes EXECUTED even if it somehow got past the
// guard. Fees are computed from the rate pinned on the offer, never the
// current global rate.
func (e *Engine) Take(caller [20]byte, id [32]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	var taken *Offer
	err := e.state.Transact(func() error {
		if err := e.acquireGuard("take"); err != nil {
			return err
		}
		offer, ok := e.state.OfferGet(id)
		if !ok {
			return ErrNotFound
		}
		if offer.Status != OfferOpen {
			return ErrNotOpen
		}
		offer.Status = OfferExecuted
		offer.Taker = caller
		if err := e.state.OfferPut(offer); err != nil {
			return err
		}
		takerFee := FeeAmount(offer.TakeAmount, offer.FeeBps)
		makerFee := FeeAmount(offer.OfferAmount, offer.FeeBps)
		if err := e.state.FeeAccrue(offer.OfferToken, makerFee); err != nil {
			return err
		}
		if err := e.state.FeeAccrue(offer.TakeToken, takerFee); err != nil {
			return err
		}
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
		if err := takeContract.Transfer(e.custody, offer.TakeAmount, offer.Maker); err != nil {
			return err
		}
		if err := offerContract.Transfer(e.custody, offer.OfferAmount, caller); err != nil {
			return err
		}
		taken = offer
		return e.releaseGuard()
	})
	if err != nil {
		return err
	}
	e.emit(NewOfferTakenEvent(taken))
	e.metrics.ObserveOfferTaken()
	return nil
}

// Cancel returns the escrowed amount plus the pinned maker fee to the
// maker and closes the offer. The status flip is committed before the
// refund transfer, so a malicious offer asset re-entering cancel sees
// CANCELLED and is rejected.
func (e *Engine) Cancel(caller [20]byte, id [32]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	var cancelled *Offer
	err := e.state.Transact(func() error {
		if err := e.acquireGuard("cancel"); err != nil {
			return err
		}
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
		offer.Status = OfferCancelled
		if err := e.state.OfferPut(offer); err != nil {
			return err
		}
		refund := new(big.Int).Add(offer.OfferAmount, FeeAmount(offer.OfferAmount, offer.FeeBps))
		offerContract, err := e.resolveAsset(offer.OfferToken)
		if err != nil {
			return err
		}
		if err := offerContract.Transfer(e.custody, refund, offer.Maker); err != nil {
			return err
		}
		cancelled = offer
		return e.releaseGuard()
	})
	if err != nil {
		return err
	}
	e.emit(NewOfferCancelledEvent(cancelled))
	e.metrics.ObserveOfferCancelled()
	return nil
}

// AdjustFee moves the global fee rate. Only the owner may call it and
// only while the guard is clear; the rate never touches already-open
// offers. The guard is checked but not locked because the entry point
// makes no external call.
func (e *Engine) AdjustFee(caller [20]byte, bps uint32) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	err := e.state.Transact(func() error {
		active, err := e.state.GuardActive()
		if err != nil {
			return err
		}
		if active {
			e.metrics.ObserveBusyRejection("adjustFee")
			return ErrBusy
		}
		owner, err := e.state.Owner()
		if err != nil {
			return err
		}
		if caller != owner {
			return ErrUnauthorized
		}
		if bps > MaxFeeBps {
			return ErrFeeOutOfRange
		}
		return e.state.SetFeeRate(bps)
	})
	if err != nil {
		return err
	}
	e.emit(NewFeeAdjustedEvent(bps))
	return nil
}

type feePayout struct {
	asset  string
	amount *big.Int
}

// Withdraw pays accrued fees for each listed asset to the owner. Each
// accrual is zeroed before its transfer, so a re-entrant withdrawal of
// the same asset reads zero and is a no-op rather than a double spend.
// Assets with nothing accrued are skipped without touching the ledger.
// Events and metrics are recorded only once the whole transaction has
// committed; an abort on a later asset leaves no trace of the earlier
// payouts anywhere, the replay log included.
func (e *Engine) Withdraw(caller [20]byte, assets []string) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	var payouts []feePayout
	var owner [20]byte
	err := e.state.Transact(func() error {
		if err := e.acquireGuard("withdraw"); err != nil {
			return err
		}
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
			if err := e.state.FeeReset(normalized); err != nil {
				return err
			}
			contract, err := e.resolveAsset(normalized)
			if err != nil {
				return err
			}
			if err := contract.Transfer(e.custody, accrued, owner); err != nil {
				return err
			}
			payouts = append(payouts, feePayout{asset: normalized, amount: accrued})
		}
		return e.releaseGuard()
	})
	if err != nil {
		return err
	}
	for _, payout := range payouts {
		e.emit(NewFeeWithdrawnEvent(payout.asset, payout.amount, owner))
		e.metrics.ObserveFeeWithdrawal(payout.asset)
	}
	return nil
}

// GetOffer returns a snapshot of the stored offer.
func (e *Engine) GetOffer(id [32]byte) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	offer, ok := e.state.OfferGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return offer, nil
}

// ViewEarnedFees returns the accrued, unwithdrawn fee balance for an
// asset.
func (e *Engine) ViewEarnedFees(asset string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	return e.state.FeeAccrued(normalized)
}

// ViewContractBalance queries the asset ledger for the engine's custody
// balance.
func (e *Engine) ViewContractBalance(asset string) (*big.Int, error) {
	if e == nil {
		return nil, ErrNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	contract, err := e.resolveAsset(normalized)
	if err != nil {
		return nil, err
	}
	return contract.BalanceOf(e.custody)
}

// FeeRate returns the current global fee rate in basis points.
func (e *Engine) FeeRate() (uint32, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return e.state.FeeRate()
}

// Owner returns the configured engine owner.
func (e *Engine) Owner() ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, ErrNilState
	}
	return e.state.Owner()
}
