package artifact

import "errors"

var (
	// ErrNoBundle is returned when the store holds no bundle yet.
	ErrNoBundle = errors.New("artifact: no bundle stored")
	// ErrInvalidBundle is returned for bundles that fail validation.
	ErrInvalidBundle = errors.New("artifact: invalid bundle")
)
