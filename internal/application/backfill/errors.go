package backfill

import (
	"errors"
	"fmt"
)

// Stage names the part of a run that failed.
type Stage string

const (
	StageSetup    Stage = "setup"
	StageFetch    Stage = "fetch"
	StageEncode   Stage = "encode"
	StageCanceled Stage = "canceled"
)

// ErrEncodeShape is wrapped when a provider returns a different number of
// embeddings than it was given texts.
var ErrEncodeShape = errors.New("provider returned wrong number of embeddings")

// StageError is the fatal error returned by a failed run.
type StageError struct {
	Stage Stage
	Err   error
}

// NewStageError wraps err with its stage.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("backfill %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of the first StageError in err's chain, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
