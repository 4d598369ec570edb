package envelope

import "errors"

var (
	// ErrUnknownTier is returned when an authority tier name does not match
	// one of the known tiers.
	ErrUnknownTier = errors.New("envelope: unknown authority tier")

	// ErrMalformedReferenceCode is returned when a reference code string does
	// not match the canonical CTX-YYYY-MMDD-NNN form.
	ErrMalformedReferenceCode = errors.New("envelope: malformed reference code")

	// ErrSequenceExhausted is returned by the reference code generator when a
	// day's sequence counter would overflow its fixed width.
	ErrSequenceExhausted = errors.New("envelope: reference code sequence exhausted for day")
)
