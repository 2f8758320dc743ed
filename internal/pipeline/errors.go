package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the user is told about
type Kind int

const (
	KindPermissionDenied Kind = iota + 1
	KindGeometryUnavailable
	KindTransform
	KindUpload
	KindAnalysis
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission denied"
	case KindGeometryUnavailable:
		return "geometry unavailable"
	case KindTransform:
		return "transform"
	case KindUpload:
		return "upload"
	case KindAnalysis:
		return "analysis"
	case KindParse:
		return "parse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a classified pipeline or session failure
type Error struct {
	Kind Kind
	Err  error
}

// NewError wraps err with kind
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Notice is the message shown to the user
func (e *Error) Notice() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Camera access is needed to scan receipts. Enable it to continue."
	case KindGeometryUnavailable:
		return "The scan guide is not ready yet. Hold still and try again."
	case KindTransform:
		return "We couldn't process that photo. Please try again."
	case KindUpload:
		return "Uploading the receipt failed. Check your connection and try again."
	case KindAnalysis, KindParse:
		return "We couldn't read that receipt. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// Persistent reports whether the notice stays until the user acts on it
func (e *Error) Persistent() bool {
	return e.Kind == KindPermissionDenied
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}
