package features

import "errors"

var (
	// ErrNoEncoding is returned when a vector is built without a fitted target-encoding table.
	ErrNoEncoding = errors.New("features: target encoding table is required")
	// ErrWidth is returned when a vector does not match the fixed feature order.
	ErrWidth = errors.New("features: vector width does not match feature names")
)
