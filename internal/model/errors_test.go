package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestFlowError(t *testing.T) {
	t.Parallel()

	t.Run("matches its sentinel and cause with errors.Is", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("boom")
		err := fmt.Errorf("wrapped: %w", NewFlowError("anonymize", KindAnonymization, cause))

		if !errors.Is(err, ErrAnonymization) {
			t.Error("expected errors.Is to match ErrAnonymization")
		}
		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to match the cause")
		}
		if errors.Is(err, ErrValidation) {
			t.Error("did not expect errors.Is to match ErrValidation")
		}
	})

	t.Run("formats op kind path and cause", func(t *testing.T) {
		t.Parallel()

		err := &FlowError{Op: "check_artifacts", Kind: KindArtifactMissing, Path: "artifacts", Err: errors.New("x")}
		want := "check_artifacts: artifact_missing (path=artifacts): x"
		if err.Error() != want {
			t.Errorf("expected %q, got %q", want, err.Error())
		}
	})

	t.Run("nil receiver", func(t *testing.T) {
		t.Parallel()

		var err *FlowError
		if err.Error() != "<nil>" {
			t.Errorf("expected <nil>, got %q", err.Error())
		}
		if err.Unwrap() != nil {
			t.Error("expected nil unwrap")
		}
	})
}

func TestIsKindAndKindOf(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w", NewFlowError("validate", KindValidation, nil))

	if !IsKind(err, KindValidation) {
		t.Error("expected IsKind to match validation")
	}
	if IsKind(err, KindDecode) {
		t.Error("did not expect IsKind to match decode")
	}
	if KindOf(err) != KindValidation {
		t.Errorf("expected validation, got %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("expected empty kind for a plain error")
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil",
			err:  nil,
			want: "",
		},
		{
			name: "validation",
			err:  NewFlowError("validate", KindValidation, nil),
			want: "Error: Please upload a CSV file.",
		},
		{
			name: "anonymization passes the cause through",
			err:  NewFlowError("anonymize", KindAnonymization, errors.New("quota exceeded")),
			want: "An error occurred during anonymization: quota exceeded",
		},
		{
			name: "integration",
			err:  NewFlowError("configure_client", KindIntegration, errors.New("no module")),
			want: "Error: 'gdpr-helpers' library not found. Please install it.",
		},
		{
			name: "plain error",
			err:  errors.New("disk full"),
			want: "Error: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if !strings.Contains(KindArtifactMissing.UserMessage(""), "were not created") {
		t.Error("expected artifact missing message to mention missing files")
	}
}
