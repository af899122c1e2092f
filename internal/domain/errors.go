package domain

import (
	"errors"
	"fmt"
)

// ErrorKind tags a failure with the component boundary it crossed.
type ErrorKind string

const (
	KindResolution  ErrorKind = "resolution"
	KindDownload    ErrorKind = "download"
	KindDecode      ErrorKind = "decode"
	KindInference   ErrorKind = "inference"
	KindPersistence ErrorKind = "persistence"
)

// ProcessingFailure reports whether the kind ends a scan as failed.
// Persistence is the only kind that does not.
func (k ErrorKind) ProcessingFailure() bool {
	switch k {
	case KindResolution, KindDownload, KindDecode, KindInference:
		return true
	default:
		return false
	}
}

var (
	ErrNoSignedURL        = errors.New("no valid signed url in response")
	ErrScanNotPending     = errors.New("scan is not pending or does not exist")
	ErrShapeMismatch      = errors.New("tensor shape does not match model input")
	ErrClassCountMismatch = errors.New("output length does not match class count")
	ErrInvalidProbability = errors.New("probability outside [0, 1]")
)

// Error is the tagged error returned across component boundaries.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError tags err with kind. A nil err stays nil.
func NewError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the tag of the outermost *Error in the chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// EnsureKind tags err with kind unless it already carries a tag.
func EnsureKind(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := KindOf(err); ok {
		return err
	}
	return NewError(kind, op, err)
}
