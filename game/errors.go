package game

import "errors"

var (
	// ErrConfiguration marks a malformed market. Nothing can be displayed or
	// bet on until the configuration is fixed.
	ErrConfiguration = errors.New("invalid market configuration")

	// ErrInvalidCoordinate marks a price bucket, column or time bucket that
	// does not address a usable cell.
	ErrInvalidCoordinate = errors.New("invalid grid coordinate")

	// ErrStakeOutOfRange marks a stake outside [MinBetSize, MaxBetSize].
	ErrStakeOutOfRange = errors.New("stake out of range")
)
