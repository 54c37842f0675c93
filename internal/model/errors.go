package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure class of the upload flow.
// Every *FlowError unwraps to exactly one of these, so callers can use
// errors.Is without knowing which step failed.
var (
	// ErrValidation is returned when the upload is not an accepted input kind.
	ErrValidation = errors.New("invalid input")

	// ErrDecode is returned when the preview bytes are not valid UTF-8.
	ErrDecode = errors.New("preview is not valid UTF-8")

	// ErrIntegration is returned when the external anonymizer cannot be set up.
	ErrIntegration = errors.New("external anonymizer unavailable")

	// ErrAnonymization is returned when the external anonymize call fails.
	ErrAnonymization = errors.New("anonymization failed")

	// ErrArtifactMissing is returned when anonymize reported success but the
	// expected output files are not on disk.
	ErrArtifactMissing = errors.New("expected artifacts were not produced")
)

// ErrorKind classifies a FlowError.
type ErrorKind string

const (
	// KindValidation is the kind of ErrValidation.
	KindValidation ErrorKind = "validation"
	// KindDecode is the kind of ErrDecode.
	KindDecode ErrorKind = "decode"
	// KindIntegration is the kind of ErrIntegration.
	KindIntegration ErrorKind = "integration"
	// KindAnonymization is the kind of ErrAnonymization.
	KindAnonymization ErrorKind = "anonymization"
	// KindArtifactMissing is the kind of ErrArtifactMissing.
	KindArtifactMissing ErrorKind = "artifact_missing"
)

// sentinel returns the sentinel error associated with the kind.
func (k ErrorKind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindDecode:
		return ErrDecode
	case KindIntegration:
		return ErrIntegration
	case KindAnonymization:
		return ErrAnonymization
	case KindArtifactMissing:
		return ErrArtifactMissing
	default:
		return nil
	}
}

// UserMessage returns the short message shown to the user for this kind.
// detail is only used by KindAnonymization, where the message of the
// external library is passed through verbatim.
func (k ErrorKind) UserMessage(detail string) string {
	switch k {
	case KindValidation:
		return "Error: Please upload a CSV file."
	case KindDecode:
		return "Error: The uploaded file could not be previewed as UTF-8 text."
	case KindIntegration:
		return "Error: 'gdpr-helpers' library not found. Please install it."
	case KindAnonymization:
		return "An error occurred during anonymization: " + detail
	case KindArtifactMissing:
		return "Error: Synthetic data or anonymization report files were not created. Please check the anonymization process."
	default:
		return "Error: " + detail
	}
}

// FlowError is the error type returned by every step of the upload flow.
type FlowError struct {
	// Op is the name of the step that failed (e.g. "validate").
	Op string

	// Kind is the failure class.
	Kind ErrorKind

	// Path is an optional file path relevant to the failure.
	Path string

	// Err is the underlying cause. It may be nil.
	Err error

	// Retryable reports whether the external collaborator flagged the
	// failure as transient. The flow never retries on its own.
	Retryable bool
}

// NewFlowError creates a FlowError.
func NewFlowError(op string, kind ErrorKind, err error) *FlowError {
	return &FlowError{Op: op, Kind: kind, Err: err}
}

// Error implements error.
func (e *FlowError) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Path != "" {
		base += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

// Unwrap returns both the cause and the sentinel for the kind, so that
// errors.Is matches either.
func (e *FlowError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Detail returns the message of the underlying cause, or an empty string.
func (e *FlowError) Detail() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// UserMessage returns the message shown to the user for this error.
func (e *FlowError) UserMessage() string {
	return e.Kind.UserMessage(e.Detail())
}

// IsKind reports whether err is a *FlowError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or an empty kind when err is not a *FlowError.
func KindOf(err error) ErrorKind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// UserMessage returns the user-visible message for any error.
// Non-flow errors are reported with their own message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.UserMessage()
	}
	return "Error: " + err.Error()
}
