package pipeline

import (
	"errors"
	"fmt"

	"github.com/L0G1H/deepfakery/pkg/engine"
)

// Kind says whether a failed job leaves the process usable.
type Kind int

const (
	// KindRecoverable failures end the job; the next job may still succeed.
	KindRecoverable Kind = iota
	// KindFatal failures leave the process unusable.
	KindFatal
)

func (k Kind) String() string {
	if k == KindFatal {
		return "fatal"
	}
	return "recoverable"
}

var (
	ErrInputMissing       = errors.New("input file does not exist")
	ErrInputUnreadable    = errors.New("input file could not be decoded")
	ErrNoMainFaces        = errors.New("no faces detected in the main image")
	ErrNoReferenceFace    = errors.New("no face detected in the deepfake image")
	ErrAmbiguousReference = errors.New("ambiguous reference face: more than one face in the deepfake image")
	ErrOutputWrite        = errors.New("output could not be written")
)

// Error is a job failure tagged with its kind and the pipeline stage that
// produced it.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable tags err as a recoverable failure of stage.
func Recoverable(stage string, err error) error {
	return &Error{Kind: KindRecoverable, Stage: stage, Err: err}
}

// Fatal tags err as a fatal failure of stage.
func Fatal(stage string, err error) error {
	return &Error{Kind: KindFatal, Stage: stage, Err: err}
}

// KindOf returns the kind of err. Untagged errors are recoverable, except a
// crashed engine worker, which is always fatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, engine.ErrWorkerCrashed) || errors.Is(err, engine.ErrClosed) {
		return KindFatal
	}
	return KindRecoverable
}

// IsFatal reports whether err leaves the process unusable.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) == KindFatal
}

// classify tags an inference failure: fatal if the worker is gone,
// recoverable otherwise.
func classify(stage string, err error) error {
	if errors.Is(err, engine.ErrWorkerCrashed) || errors.Is(err, engine.ErrClosed) {
		return Fatal(stage, err)
	}
	return Recoverable(stage, err)
}
