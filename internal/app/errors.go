package service

import (
	"fmt"

	"github.com/okian/paycast/internal/domain/model"
)

// ErrNotStarted is returned by operations called before Start or after
// Stop. It matches model.ErrNotReady.
var ErrNotStarted = fmt.Errorf("service not started: %w", model.ErrNotReady)

// stageCorpus marks a training failure that happened before the trainer ran.
const stageCorpus = "corpus"
