package exchange

import "errors"

// Validation failures reported synchronously to the caller. Each leaves the
// requested operation with no effect.
var (
	ErrPairNotFound       = errors.New("pair not found")
	ErrPairInactive       = errors.New("pair is not active")
	ErrBelowMinimumVolume = errors.New("below minimum volume")
	ErrBelowMinimumRatio  = errors.New("below minimum ratio")
	ErrInsufficientAmount = errors.New("insufficient amount")
	ErrNotOrderCreator    = errors.New("not order creator")
)
