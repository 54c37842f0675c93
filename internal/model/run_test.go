package model

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestUploadedFile(t *testing.T) {
	t.Parallel()

	u := NewUploadedFile("data.csv", []byte("a,b\n1,2\n"))

	if u.TempName() != "temp_data.csv" {
		t.Errorf("expected temp_data.csv, got %q", u.TempName())
	}
	if u.Stem() != "data" {
		t.Errorf("expected stem data, got %q", u.Stem())
	}
	if u.Size() != 8 {
		t.Errorf("expected size 8, got %d", u.Size())
	}

	if got := NewUploadedFile("archive.tar.csv", nil).Stem(); got != "archive.tar" {
		t.Errorf("expected archive.tar, got %q", got)
	}
}

func TestNewArtifactPair(t *testing.T) {
	t.Parallel()

	pair := NewArtifactPair("artifacts", "data")

	if pair.SyntheticData != filepath.Join("artifacts", "data-synthetic_data.csv") {
		t.Errorf("unexpected synthetic data path %q", pair.SyntheticData)
	}
	if pair.Report != filepath.Join("artifacts", "data-anonymization_report.html") {
		t.Errorf("unexpected report path %q", pair.Report)
	}
	if pair.SyntheticDataName() != "data-synthetic_data.csv" {
		t.Errorf("unexpected synthetic data name %q", pair.SyntheticDataName())
	}
	if pair.ReportName() != "data-anonymization_report.html" {
		t.Errorf("unexpected report name %q", pair.ReportName())
	}
	if pair.IsZero() {
		t.Error("expected non-zero pair")
	}
	if !(ArtifactPair{}).IsZero() {
		t.Error("expected zero pair")
	}
}

func TestArtifactPairMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pair := NewArtifactPair(dir, "data")

	missing, err := pair.Missing()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(missing, pair.Paths()) {
		t.Errorf("expected both paths missing, got %v", missing)
	}

	if err := os.WriteFile(pair.SyntheticData, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	missing, err = pair.Missing()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(missing) != 1 || missing[0] != pair.Report {
		t.Errorf("expected only the report missing, got %v", missing)
	}

	// A directory with the artifact's name does not count.
	if err := os.Mkdir(pair.Report, 0750); err != nil {
		t.Fatal(err)
	}
	missing, err = pair.Missing()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(missing) != 1 {
		t.Errorf("expected directory to be reported missing, got %v", missing)
	}
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("complete", func(t *testing.T) {
		t.Parallel()

		run := NewRun(NewUploadedFile("data.csv", []byte("a")))
		if run.ID == "" {
			t.Fatal("expected run ID")
		}
		if run.State != StateReceivingUpload {
			t.Errorf("expected receiving_upload, got %s", run.State)
		}

		run.Advance(StateValidating)
		run.Complete()
		if !run.Succeeded() {
			t.Error("expected run to succeed")
		}

		run.Advance(StateAnonymizing)
		if run.State != StateDone {
			t.Errorf("terminal state must not change, got %s", run.State)
		}
	})

	t.Run("fail records kind and message", func(t *testing.T) {
		t.Parallel()

		run := NewRun(NewUploadedFile("data.csv", nil))
		fe := NewFlowError("anonymize", KindAnonymization, errors.New("timeout"))
		fe.Retryable = true
		run.Fail(fe)

		if run.State != StateFailed {
			t.Errorf("expected failed, got %s", run.State)
		}
		if run.ErrorKind != KindAnonymization {
			t.Errorf("expected anonymization kind, got %q", run.ErrorKind)
		}
		if run.ErrorMessage != "An error occurred during anonymization: timeout" {
			t.Errorf("unexpected message %q", run.ErrorMessage)
		}
		if !run.Retryable {
			t.Error("expected retryable flag")
		}
		if run.FinishedAt.IsZero() {
			t.Error("expected FinishedAt to be set")
		}
	})

	t.Run("cleanup runs in reverse order and joins errors", func(t *testing.T) {
		t.Parallel()

		run := NewRun(NewUploadedFile("data.csv", nil))
		var order []int
		errFirst := errors.New("first")
		run.AddCleanup(func() error { order = append(order, 1); return errFirst })
		run.AddCleanup(func() error { order = append(order, 2); return nil })

		err := run.Cleanup()
		if !errors.Is(err, errFirst) {
			t.Errorf("expected joined error to contain errFirst, got %v", err)
		}
		if !reflect.DeepEqual(order, []int{2, 1}) {
			t.Errorf("expected reverse order, got %v", order)
		}
		if err := run.Cleanup(); err != nil {
			t.Errorf("second cleanup should be a no-op, got %v", err)
		}
	})
}

func TestRunStateText(t *testing.T) {
	t.Parallel()

	for s := StateReceivingUpload; s <= StateFailed; s++ {
		parsed, ok := ParseRunState(s.String())
		if !ok || parsed != s {
			t.Errorf("state %d did not round trip through %q", s, s.String())
		}
	}

	if RunState(99).String() != "unknown" {
		t.Error("expected unknown for out of range state")
	}

	data, err := json.Marshal(struct {
		State RunState `json:"state"`
	}{StateCheckingArtifacts})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"state":"checking_artifacts"}` {
		t.Errorf("unexpected JSON %s", data)
	}
}
