package domain

import (
	"errors"
	"fmt"
)

var (
	ErrReferenceNotFound  = errors.New("referenced entity not found")
	ErrRemoteAnalysis     = errors.New("remote analysis failed")
	ErrInvalidTransition  = errors.New("invalid photo status transition")
	ErrAlreadyFinalized   = errors.New("diagnosis already finalized")
	ErrForbidden          = errors.New("beehive does not belong to member")
	ErrInvalidUploadSlots = errors.New("invalid upload slot request")
)

// ReferenceNotFoundError is returned when an id or object key names nothing.
type ReferenceNotFoundError struct {
	Kind string
	Ref  any
}

func NotFound(kind string, ref any) *ReferenceNotFoundError {
	return &ReferenceNotFoundError{Kind: kind, Ref: ref}
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.Ref)
}

func (e *ReferenceNotFoundError) Is(target error) bool {
	return target == ErrReferenceNotFound
}

type AnalysisErrorKind string

const (
	AnalysisRemote    AnalysisErrorKind = "remote"
	AnalysisMalformed AnalysisErrorKind = "malformed"
	AnalysisTimeout   AnalysisErrorKind = "timeout"
)

// AnalysisError covers every way a remote analysis call can fail.
type AnalysisError struct {
	Kind       AnalysisErrorKind
	StatusCode int
	Err        error
}

func (e *AnalysisError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("analysis %s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("analysis %s error: %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func (e *AnalysisError) Is(target error) bool {
	return target == ErrRemoteAnalysis
}

// PersistenceError wraps a failed read or write of pipeline state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PhotoProcessingError is the outcome of a failed analysis unit.
type PhotoProcessingError struct {
	PhotoID     int64
	DiagnosisID int64
	Err         error
}

func (e *PhotoProcessingError) Error() string {
	return fmt.Sprintf("photo %d of diagnosis %d: %v", e.PhotoID, e.DiagnosisID, e.Err)
}

func (e *PhotoProcessingError) Unwrap() error { return e.Err }
