// Package export turns an audio track and a still image into an MP4 by
// staging both into a transcoding engine and running a fixed encode recipe.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Engine is a transcoding engine with its own addressable file namespace.
type Engine interface {
	// Load prepares the engine. It is called before first use and again
	// after a failed load.
	Load(ctx context.Context) error

	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error

	// Exec runs the engine with args, reporting progress as it goes.
	Exec(ctx context.Context, args []string, onProgress func(Progress)) error
}

// Progress is a single progress event from the engine.
type Progress struct {
	// Time is how much output has been produced
	Time time.Duration
	// Ratio is Time over the expected total when the engine knows it, else 0
	Ratio float64
	// Done is set on the final event of a successful run
	Done bool
}

var (
	ErrEngineLoad   = errors.New("transcoding engine failed to load")
	ErrInputStaging = errors.New("failed to stage inputs")
	ErrEncode       = errors.New("encode failed")
	ErrEmptyOutput  = errors.New("encode produced an empty file")
	ErrDownload     = errors.New("download failed")
	ErrBusy         = errors.New("an export is already running")
)

// State is the pipeline's position in an export.
type State int

const (
	StateIdle State = iota
	StateLoadingEngine
	StateStagingInputs
	StateEncoding
	StateExtracting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingEngine:
		return "loading-engine"
	case StateStagingInputs:
		return "staging-inputs"
	case StateEncoding:
		return "encoding"
	case StateExtracting:
		return "extracting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StageError records which pipeline stage failed. It matches both its
// category sentinel and the underlying cause with errors.Is.
type StageError struct {
	Stage State
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageError(stage State, kind, err error) error {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}
