package nn

import "errors"

// Sentinel kinds for graph and model errors.
var (
	ErrUnknownNode    = errors.New("nn: unknown node")
	ErrDuplicateNode  = errors.New("nn: duplicate node name")
	ErrShape          = errors.New("nn: shape mismatch")
	ErrMissingWeight  = errors.New("nn: missing weight")
	ErrUnexpectedName = errors.New("nn: unexpected weight name")
	ErrNonFinite      = errors.New("nn: non-finite value")
	ErrEmptyBatch     = errors.New("nn: empty batch")
)
