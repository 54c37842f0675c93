package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Run is the record of one pass through the upload flow.
// It is created when the upload is received and is complete once State
// is terminal.
type Run struct {
	// ID uniquely identifies the run. It also names the run-scoped
	// temporary directory.
	ID string `json:"id"`

	// FileName is the original name of the uploaded file.
	FileName string `json:"file_name"`

	// Size is the number of uploaded bytes.
	Size int64 `json:"size"`

	// State is the last state reached.
	State RunState `json:"state"`

	// Preview is the decoded start of the uploaded file.
	Preview string `json:"preview,omitempty"`

	// Upload is the received file. Its content is released once the
	// flow has returned.
	Upload UploadedFile `json:"-"`

	// Dataset is the temporary copy handed to the anonymizer.
	// It no longer exists on disk once the flow has returned.
	Dataset TempDatasetFile `json:"-"`

	// Artifacts holds the verified output files. It is only set when
	// State is StateDone.
	Artifacts ArtifactPair `json:"artifacts"`

	// Err is the error that terminated the run, if any.
	Err error `json:"-"`

	// ErrorKind is the kind of Err, kept for serialization.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// ErrorMessage is the user-visible message for Err.
	ErrorMessage string `json:"error,omitempty"`

	// Retryable mirrors FlowError.Retryable for failed anonymize calls.
	Retryable bool `json:"retryable,omitempty"`

	// PerformedSteps lists the steps that completed successfully, in order.
	PerformedSteps []string `json:"performed_steps"`

	// StartedAt is when the upload was received.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run reached a terminal state.
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// cleanups are executed by Cleanup in reverse order.
	cleanups []func() error
}

// NewRun creates a Run for an upload with a fresh random ID.
func NewRun(upload UploadedFile) *Run {
	return &Run{
		ID:             uuid.NewString(),
		FileName:       upload.Name,
		Upload:         upload,
		Size:           upload.Size(),
		State:          StateReceivingUpload,
		PerformedSteps: make([]string, 0),
		StartedAt:      time.Now(),
	}
}

// Advance moves the run to the given state unless it is already terminal.
func (r *Run) Advance(state RunState) {
	if r.State.IsTerminal() {
		return
	}
	r.State = state
}

// Fail moves the run to StateFailed and records err.
func (r *Run) Fail(err error) {
	r.State = StateFailed
	r.Err = err
	r.ErrorKind = KindOf(err)
	r.ErrorMessage = UserMessage(err)

	var fe *FlowError
	if errors.As(err, &fe) {
		r.Retryable = fe.Retryable
	}
	r.FinishedAt = time.Now()
}

// Stem returns the stem of the uploaded file name, which names the artifacts.
func (r *Run) Stem() string {
	return UploadedFile{Name: r.FileName}.Stem()
}

// Complete moves the run to StateDone.
func (r *Run) Complete() {
	r.State = StateDone
	r.FinishedAt = time.Now()
}

// Succeeded reports whether the run finished with both artifacts.
func (r *Run) Succeeded() bool {
	return r.State == StateDone
}

// Duration returns how long the run took, or the time elapsed so far.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AddCleanup registers fn to be called by Cleanup.
func (r *Run) AddCleanup(fn func() error) {
	r.cleanups = append(r.cleanups, fn)
}

// Cleanup runs the registered cleanup functions in reverse registration
// order and clears them. All functions run even if one fails; the errors
// are joined.
func (r *Run) Cleanup() error {
	var errs []error
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		if err := r.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.cleanups = nil
	return errors.Join(errs...)
}
