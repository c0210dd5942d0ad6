package render

import (
	"context"
	"errors"
	"fmt"

	"framecast/internal/frame"
	apperr "framecast/internal/pkg/errors"
)

// Stage names the part of a render that failed.
type Stage string

const (
	StageConfig   Stage = "config"
	StageProbe    Stage = "probe"
	StageCapture  Stage = "capture"
	StageOrdering Stage = "ordering"
	StageEncode   Stage = "encode"
)

// Error is the single failure returned by Render.
type Error struct {
	Stage Stage
	// Missing are the frames never delivered to the encoder.
	Missing []frame.Range
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("render failed at %s stage", e.Stage)
	if len(e.Missing) > 0 {
		msg += fmt.Sprintf(" (frames never produced: %s)", frame.FormatRanges(e.Missing))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Code maps the stage onto the shared error categories.
func (e *Error) Code() apperr.Code {
	switch e.Stage {
	case StageConfig:
		return apperr.CodeConfig
	case StageProbe, StageCapture:
		if apperr.IsConfig(e.Err) {
			return apperr.CodeConfig
		}
		return apperr.CodeSurface
	case StageOrdering:
		return apperr.CodeOrdering
	case StageEncode:
		return apperr.CodeEncode
	}
	return apperr.CodeInternal
}

// AsAppError converts err into the shared error type so callers such as the
// HTTP layer and the job processor see the right category.
func AsAppError(err error) error {
	var re *Error
	if !errors.As(err, &re) {
		return err
	}
	out := apperr.WrapWithCode(err, re.Code(), "render", "render failed")
	out.WithField("stage", string(re.Stage))
	if len(re.Missing) > 0 {
		out.WithField("missing", frame.FormatRanges(re.Missing))
	}
	return out
}

// workerError ties a failure to the worker and the frames it still owed.
type workerError struct {
	worker int
	r      frame.Range
	// produced is how many frames of r were sent before the failure.
	produced uint32
	err      error
}

func (e *workerError) Error() string {
	return fmt.Sprintf("worker %d %s: %v", e.worker, e.r, e.err)
}

func (e *workerError) Unwrap() error { return e.err }

// rootCauses drops errors that are only the echo of a sibling's failure,
// keeping them when nothing else explains the abort.
func rootCauses(errs []error) []error {
	var roots []error
	for _, err := range errs {
		if !isCancellation(err) {
			roots = append(roots, err)
		}
	}
	if len(roots) == 0 {
		return errs
	}
	return roots
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
