package api

import (
	"errors"
	"fmt"
)

// ErrBadRequest marks a request the API could not decode or accept.
var ErrBadRequest = errors.New("bad request")

// WrapKind tags err with an operation name and a sentinel kind so callers
// can match the kind with errors.Is.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// NewKind returns a bare kind error for op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}
