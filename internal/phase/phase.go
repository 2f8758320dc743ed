package phase

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an event is not legal in the current phase
var ErrInvalidTransition = errors.New("invalid phase transition")

// Phase is one state of the capture lifecycle
type Phase int

const (
	// Hello is idle, awaiting user intent
	Hello Phase = iota
	// Scanning has the camera live and the guide displayed
	Scanning
	// Processing has crop, upload and analysis in flight
	Processing
	// Result has the reconciliation model populated and editable
	Result
)

func (p Phase) String() string {
	switch p {
	case Hello:
		return "HELLO"
	case Scanning:
		return "SCANNING"
	case Processing:
		return "PROCESSING"
	case Result:
		return "RESULT"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// EventKind identifies what happened
type EventKind int

const (
	ScanRequested EventKind = iota
	ShutterCompleted
	Refocused
	Back
	AnalysisSucceeded
	PipelineFailed
	Cancelled
	Retake
	Confirm
)

func (k EventKind) String() string {
	switch k {
	case ScanRequested:
		return "scan_requested"
	case ShutterCompleted:
		return "shutter_completed"
	case Refocused:
		return "refocused"
	case Back:
		return "back"
	case AnalysisSucceeded:
		return "analysis_succeeded"
	case PipelineFailed:
		return "pipeline_failed"
	case Cancelled:
		return "cancelled"
	case Retake:
		return "retake"
	case Confirm:
		return "confirm"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is an input to the state machine. Guards are carried as plain facts
// so the transition function never performs I/O.
type Event struct {
	Kind              EventKind
	PermissionGranted bool
	FrameMeasured     bool
}

// Effect is a side effect the session runs after a transition
type Effect int

const (
	RequestPermission Effect = iota
	NotifyPermissionDenied
	NotifyGeometryUnavailable
	ResetCapture
	ResetSession
	StartPipeline
	CancelPipeline
	PopulateResult
	NotifyFailure
	DiscardReceipt
	PersistReceipt
)

func (e Effect) String() string {
	switch e {
	case RequestPermission:
		return "request_permission"
	case NotifyPermissionDenied:
		return "notify_permission_denied"
	case NotifyGeometryUnavailable:
		return "notify_geometry_unavailable"
	case ResetCapture:
		return "reset_capture"
	case ResetSession:
		return "reset_session"
	case StartPipeline:
		return "start_pipeline"
	case CancelPipeline:
		return "cancel_pipeline"
	case PopulateResult:
		return "populate_result"
	case NotifyFailure:
		return "notify_failure"
	case DiscardReceipt:
		return "discard_receipt"
	case PersistReceipt:
		return "persist_receipt"
	}
	return fmt.Sprintf("Effect(%d)", int(e))
}

// Outcome is the result of a transition
type Outcome struct {
	Next    Phase
	Effects []Effect
}

func to(p Phase, effects ...Effect) Outcome {
	return Outcome{Next: p, Effects: effects}
}

// Transition computes the next phase and the effects to run for an event.
// Every entry into Scanning resets the capture and every return to Hello
// from a later phase resets the session.
func Transition(current Phase, event Event) (Outcome, error) {
	switch current {
	case Hello:
		if event.Kind == ScanRequested {
			if !event.PermissionGranted {
				return to(Hello, RequestPermission, NotifyPermissionDenied), nil
			}
			return to(Scanning, ResetCapture), nil
		}

	case Scanning:
		switch event.Kind {
		case ShutterCompleted:
			if !event.FrameMeasured {
				return to(Scanning, NotifyGeometryUnavailable), nil
			}
			return to(Processing, StartPipeline), nil
		case Refocused:
			return to(Scanning, ResetCapture), nil
		case Back:
			return to(Hello, ResetSession), nil
		}

	case Processing:
		switch event.Kind {
		case AnalysisSucceeded:
			return to(Result, PopulateResult), nil
		case PipelineFailed:
			return to(Scanning, NotifyFailure, ResetCapture), nil
		case Cancelled:
			return to(Hello, CancelPipeline, ResetSession), nil
		}

	case Result:
		switch event.Kind {
		case Retake:
			return to(Scanning, DiscardReceipt, ResetCapture), nil
		case Confirm:
			return to(Hello, PersistReceipt, ResetSession), nil
		}
	}

	return to(current), fmt.Errorf("%w: %s in %s", ErrInvalidTransition, event.Kind, current)
}
