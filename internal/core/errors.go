package core

import "errors"

// Sentinel errors returned by the ledger and the workflows.
//
// Callers match them with errors.Is. Every returned error wraps exactly one of
// these with context, e.g. fmt.Errorf("%w: request %s ...", ErrInvalidTransition, code).
var (
	// ErrInvalidTransition is returned when an operation is not valid from the
	// entity's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInsufficientStock is returned when a reservation exceeds the available quantity.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidQuantity is returned for approved, received or counted quantities
	// outside their allowed range, and for non-positive ledger quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrMissingReason is returned when a mandatory justification is blank.
	ErrMissingReason = errors.New("missing reason")

	// ErrInvalidAdjustment is returned when a count-driven correction would make
	// the quantity negative or push it below the reserved quantity.
	ErrInvalidAdjustment = errors.New("invalid adjustment")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a release or commit-out exceeds the
	// reserved quantity of a balance.
	ErrInvalidState = errors.New("invalid ledger state")

	// ErrValidation is returned for malformed input that is not a quantity problem.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when an operation collides with existing state,
	// e.g. a duplicate code or a second open count at one location.
	ErrConflict = errors.New("conflict")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidTransition, "INVALID_TRANSITION"},
	{ErrInsufficientStock, "INSUFFICIENT_STOCK"},
	{ErrInvalidQuantity, "INVALID_QUANTITY"},
	{ErrMissingReason, "MISSING_REASON"},
	{ErrInvalidAdjustment, "INVALID_ADJUSTMENT"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrInvalidState, "INVALID_STATE"},
	{ErrValidation, "VALIDATION_FAILED"},
	{ErrConflict, "CONFLICT"},
}

// ErrorKind returns the stable machine-readable code of err's sentinel,
// "OK" for nil, or "INTERNAL" when err wraps none of them.
func ErrorKind(err error) string {
	if err == nil {
		return "OK"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "INTERNAL"
}
