package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/csvanon/internal/anonymizer"
	"github.com/nao1215/csvanon/internal/model"
)

func TestValidateStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		size    int
		limit   int64
		wantErr bool
	}{
		{name: "csv file", file: "data.csv", size: 10},
		{name: "csv file with spaces", file: "my data.csv", size: 10},
		{name: "text file", file: "data.txt", size: 10, wantErr: true},
		{name: "upper case extension", file: "DATA.CSV", size: 10, wantErr: true},
		{name: "no extension", file: "data", size: 10, wantErr: true},
		{name: "empty name", file: "", size: 10, wantErr: true},
		{name: "path traversal", file: "../data.csv", size: 10, wantErr: true},
		{name: "windows path", file: `dir\data.csv`, size: 10, wantErr: true},
		{name: "extension only", file: ".csv", size: 10, wantErr: true},
		{name: "hidden file", file: ".data.csv", size: 10, wantErr: true},
		{name: "dot before extension", file: "..csv", size: 10, wantErr: true},
		{name: "at size limit", file: "data.csv", size: 8, limit: 8},
		{name: "over size limit", file: "data.csv", size: 9, limit: 8, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			run := model.NewRun(model.NewUploadedFile(tt.file, make([]byte, tt.size)))
			err := NewValidateStep(tt.limit).Do(t.Context(), run)

			if tt.wantErr {
				if !model.IsKind(err, model.KindValidation) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPersistStep(t *testing.T) {
	t.Parallel()

	t.Run("writes bytes unchanged into run directory", func(t *testing.T) {
		t.Parallel()

		tempDir := t.TempDir()
		content := []byte("name,email\nAlice,alice@example.com\n\xff\x00")
		run := model.NewRun(model.NewUploadedFile("data.csv", content))

		if err := NewPersistStep(tempDir, false, nil).Do(t.Context(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantPath := filepath.Join(tempDir, run.ID, "temp_data.csv")
		if run.Dataset.Path != wantPath {
			t.Errorf("expected path %q, got %q", wantPath, run.Dataset.Path)
		}
		got, err := os.ReadFile(run.Dataset.Path)
		if err != nil {
			t.Fatalf("failed to read dataset: %v", err)
		}
		if string(got) != string(content) {
			t.Error("persisted content differs from upload")
		}

		if err := run.Cleanup(); err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}
		if _, err := os.Stat(run.Dataset.Dir); !os.IsNotExist(err) {
			t.Errorf("expected run directory to be removed, got %v", err)
		}
	})

	t.Run("relative temp dir yields absolute dataset path", func(t *testing.T) {
		t.Parallel()

		wd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		tempDir := t.TempDir()
		rel, err := filepath.Rel(wd, tempDir)
		if err != nil {
			t.Fatal(err)
		}

		run := model.NewRun(model.NewUploadedFile("data.csv", []byte("a\n")))
		if err := NewPersistStep(rel, false, nil).Do(t.Context(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		t.Cleanup(func() { _ = run.Cleanup() })

		if !filepath.IsAbs(run.Dataset.Path) {
			t.Fatalf("expected absolute path, got %q", run.Dataset.Path)
		}
		if want := filepath.Join(tempDir, run.ID, "temp_data.csv"); run.Dataset.Path != want {
			t.Errorf("expected path %q, got %q", want, run.Dataset.Path)
		}
	})

	t.Run("keeps files when configured", func(t *testing.T) {
		t.Parallel()

		run := model.NewRun(model.NewUploadedFile("data.csv", []byte("a\n")))
		if err := NewPersistStep(t.TempDir(), true, nil).Do(t.Context(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := run.Cleanup(); err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}
		if _, err := os.Stat(run.Dataset.Path); err != nil {
			t.Errorf("expected dataset to be kept, got %v", err)
		}
	})

	t.Run("same name in concurrent runs does not collide", func(t *testing.T) {
		t.Parallel()

		tempDir := t.TempDir()
		a := model.NewRun(model.NewUploadedFile("data.csv", []byte("first")))
		b := model.NewRun(model.NewUploadedFile("data.csv", []byte("second")))
		step := NewPersistStep(tempDir, false, nil)

		for _, run := range []*model.Run{a, b} {
			if err := step.Do(t.Context(), run); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if a.Dataset.Path == b.Dataset.Path {
			t.Fatal("expected distinct paths")
		}
		got, err := os.ReadFile(a.Dataset.Path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "first" {
			t.Errorf("first run content was overwritten: %q", got)
		}
	})
}

func TestDecodePreview(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     []byte
		truncated bool
		want      string
		wantErr   bool
	}{
		{name: "ascii", input: []byte("a,b\n1,2"), want: "a,b\n1,2"},
		{name: "multi-byte", input: []byte("名前,年齢"), want: "名前,年齢"},
		{name: "empty", input: nil, want: ""},
		{name: "cut rune at boundary", input: []byte("ab\xe5\x90"), truncated: true, want: "ab"},
		{name: "cut rune without truncation", input: []byte("ab\xe5\x90"), wantErr: true},
		{name: "invalid byte in the middle", input: []byte("a\xffb"), truncated: true, wantErr: true},
		{name: "latin-1 text", input: []byte("caf\xe9,1"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := decodePreview(tt.input, tt.truncated)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPreviewStep(t *testing.T) {
	t.Parallel()

	// persisted returns a run whose upload has been written to disk.
	persisted := func(t *testing.T, content []byte) *model.Run {
		t.Helper()
		run := model.NewRun(model.NewUploadedFile("data.csv", content))
		if err := NewPersistStep(t.TempDir(), true, nil).Do(t.Context(), run); err != nil {
			t.Fatal(err)
		}
		return run
	}

	t.Run("previews first bytes", func(t *testing.T) {
		t.Parallel()

		content := []byte(strings.Repeat("0123456789", 20))
		run := persisted(t, content)

		if err := NewPreviewStep(100).Do(t.Context(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.Preview != string(content[:100]) {
			t.Errorf("unexpected preview %q", run.Preview)
		}
	})

	t.Run("short file previews in full", func(t *testing.T) {
		t.Parallel()

		run := persisted(t, []byte("a,b\n"))
		if err := NewPreviewStep(100).Do(t.Context(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.Preview != "a,b\n" {
			t.Errorf("unexpected preview %q", run.Preview)
		}
	})

	t.Run("rune split at boundary is dropped", func(t *testing.T) {
		t.Parallel()

		// 99 ASCII bytes followed by a 3-byte character.
		content := []byte(strings.Repeat("a", 99) + "名,x")
		run := persisted(t, content)

		if err := NewPreviewStep(100).Do(t.Context(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.Preview != strings.Repeat("a", 99) {
			t.Errorf("unexpected preview %q", run.Preview)
		}
	})

	t.Run("invalid utf-8 is a decode error", func(t *testing.T) {
		t.Parallel()

		run := persisted(t, []byte("id,name\n1,caf\xe9\n"))
		err := NewPreviewStep(100).Do(t.Context(), run)

		if !errors.Is(err, model.ErrDecode) {
			t.Errorf("expected decode error, got %v", err)
		}
	})
}

func TestClientSteps(t *testing.T) {
	t.Parallel()

	t.Run("factory failure is an integration error", func(t *testing.T) {
		t.Parallel()

		factory := func(context.Context, anonymizer.Settings) (anonymizer.Client, error) {
			return nil, anonymizer.ErrLibraryUnavailable
		}
		configure, _ := NewClientSteps(factory, anonymizer.Settings{}, 0)

		err := configure.Do(t.Context(), newTestRun())
		if !model.IsKind(err, model.KindIntegration) {
			t.Errorf("expected integration error, got %v", err)
		}
		if !errors.Is(err, anonymizer.ErrLibraryUnavailable) {
			t.Errorf("expected cause to be kept, got %v", err)
		}
	})

	t.Run("nil client is an integration error", func(t *testing.T) {
		t.Parallel()

		factory := func(context.Context, anonymizer.Settings) (anonymizer.Client, error) {
			return nil, nil
		}
		configure, _ := NewClientSteps(factory, anonymizer.Settings{}, 0)

		if err := configure.Do(t.Context(), newTestRun()); !model.IsKind(err, model.KindIntegration) {
			t.Errorf("expected integration error, got %v", err)
		}
	})

	t.Run("anonymize passes settings and dataset", func(t *testing.T) {
		t.Parallel()

		var gotSettings anonymizer.Settings
		var gotDataset anonymizer.Dataset
		factory := func(_ context.Context, s anonymizer.Settings) (anonymizer.Client, error) {
			gotSettings = s
			return anonymizer.ClientFunc(func(_ context.Context, ds anonymizer.Dataset) anonymizer.Result {
				gotDataset = ds
				return anonymizer.Success()
			}), nil
		}
		configure, anonymize := NewClientSteps(factory, anonymizer.Settings{ProjectName: "project"}, 0)

		run := newTestRun()
		run.Dataset = model.TempDatasetFile{Path: "/tmp/run/temp_data.csv", Dir: "/tmp/run"}

		if err := configure.Do(t.Context(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := anonymize.Do(t.Context(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotSettings.ProjectName != "project" {
			t.Errorf("expected settings to be passed, got %+v", gotSettings)
		}
		if gotDataset.Path != run.Dataset.Path || gotDataset.Name != "data" {
			t.Errorf("unexpected dataset %+v", gotDataset)
		}
	})

	t.Run("failure message is kept verbatim", func(t *testing.T) {
		t.Parallel()

		factory := func(context.Context, anonymizer.Settings) (anonymizer.Client, error) {
			return anonymizer.ClientFunc(func(context.Context, anonymizer.Dataset) anonymizer.Result {
				return anonymizer.Failure("Project quota exceeded", true)
			}), nil
		}
		configure, anonymize := NewClientSteps(factory, anonymizer.Settings{}, 0)
		run := newTestRun()
		if err := configure.Do(t.Context(), run); err != nil {
			t.Fatal(err)
		}

		err := anonymize.Do(t.Context(), run)
		var fe *model.FlowError
		if !errors.As(err, &fe) {
			t.Fatalf("expected FlowError, got %v", err)
		}
		if fe.Kind != model.KindAnonymization || !fe.Retryable {
			t.Errorf("unexpected error %+v", fe)
		}
		if fe.UserMessage() != "An error occurred during anonymization: Project quota exceeded" {
			t.Errorf("unexpected message %q", fe.UserMessage())
		}
	})

	t.Run("anonymize is bounded by timeout", func(t *testing.T) {
		t.Parallel()

		factory := func(context.Context, anonymizer.Settings) (anonymizer.Client, error) {
			return anonymizer.ClientFunc(func(ctx context.Context, _ anonymizer.Dataset) anonymizer.Result {
				<-ctx.Done()
				return anonymizer.Failure("anonymization timed out", true)
			}), nil
		}
		configure, anonymize := NewClientSteps(factory, anonymizer.Settings{}, 10*time.Millisecond)
		run := newTestRun()
		if err := configure.Do(t.Context(), run); err != nil {
			t.Fatal(err)
		}

		if err := anonymize.Do(t.Context(), run); !errors.Is(err, model.ErrAnonymization) {
			t.Errorf("expected anonymization error, got %v", err)
		}
	})
}

func TestCheckArtifactsStep(t *testing.T) {
	t.Parallel()

	write := func(t *testing.T, path string) {
		t.Helper()
		if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name        string
		synthetic   bool
		report      bool
		wantMissing []string
	}{
		{name: "both present", synthetic: true, report: true},
		{name: "report missing", synthetic: true, wantMissing: []string{"data-anonymization_report.html"}},
		{name: "synthetic missing", report: true, wantMissing: []string{"data-synthetic_data.csv"}},
		{name: "both missing", wantMissing: []string{"data-synthetic_data.csv", "data-anonymization_report.html"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tt.synthetic {
				write(t, filepath.Join(dir, "data-synthetic_data.csv"))
			}
			if tt.report {
				write(t, filepath.Join(dir, "data-anonymization_report.html"))
			}

			run := newTestRun()
			err := NewCheckArtifactsStep(dir).Do(t.Context(), run)

			if len(tt.wantMissing) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if run.Artifacts.ReportName() != "data-anonymization_report.html" {
					t.Errorf("unexpected artifacts %+v", run.Artifacts)
				}
				return
			}

			if !errors.Is(err, model.ErrArtifactMissing) {
				t.Fatalf("expected artifact missing error, got %v", err)
			}
			for _, name := range tt.wantMissing {
				if !strings.Contains(err.Error(), name) {
					t.Errorf("expected %s to be named in %v", name, err)
				}
			}
			if !run.Artifacts.IsZero() {
				t.Error("artifacts must not be set on failure")
			}
		})
	}
}
