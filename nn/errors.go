package nn

import "errors"

var (
	// ErrInvalidRs reports a representation list with negative entries or bad syntax.
	ErrInvalidRs = errors.New("invalid representation list")

	// ErrShape reports an input that is not a [batch, channel, x, y, z] field.
	ErrShape = errors.New("field tensor must be [batch, channel, x, y, z]")

	// ErrChannelMismatch reports a channel axis that does not match the representation list.
	ErrChannelMismatch = errors.New("channel count does not match representation list")

	// ErrEpsilon reports a negative epsilon.
	ErrEpsilon = errors.New("epsilon must not be negative")

	// ErrParamCount reports parameter vectors whose lengths disagree with the blocks consumed.
	ErrParamCount = errors.New("parameter count does not match representation list")
)
