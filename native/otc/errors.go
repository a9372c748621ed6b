package otc

import "errors"

var (
	// ErrBusy rejects any mutating entry point invoked while another
	// guarded call is in flight. It is checked before all other
	// validation so a re-entrant call can never observe partial state.
	ErrBusy = errors.New("otc engine: busy")

	// ErrNilState flags an engine used before its state backend was
	// configured.
	ErrNilState = errors.New("otc engine: state not configured")

	// ErrNotFound is returned when no offer exists for the identifier.
	ErrNotFound = errors.New("otc engine: offer not found")

	// ErrNotOpen rejects take or cancel against an offer that has
	// already reached a terminal status.
	ErrNotOpen = errors.New("otc engine: offer not open")

	// ErrUnauthorized rejects owner-only calls from non-owners and
	// cancellation by anyone but the maker.
	ErrUnauthorized = errors.New("otc engine: unauthorized caller")

	// ErrInvalidAmount rejects non-positive offer or take amounts.
	ErrInvalidAmount = errors.New("otc engine: amount must be positive")

	// ErrFeeOutOfRange rejects fee rates outside [0, MaxFeeBps].
	ErrFeeOutOfRange = errors.New("otc engine: fee rate out of range")

	// ErrUnknownAsset rejects asset symbols that do not resolve to a
	// registered token contract.
	ErrUnknownAsset = errors.New("otc engine: unknown asset")

	// ErrIDCollision aborts listing when the generated identifier is
	// already present. The identifier space is sampled, not allocated,
	// so a collision is fatal rather than retried.
	ErrIDCollision = errors.New("otc engine: listing id collision")
)
