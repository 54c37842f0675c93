package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nao1215/csvanon/internal/anonymizer"
	"github.com/nao1215/csvanon/internal/model"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// Step names, as recorded in model.Run.PerformedSteps.
const (
	StepValidate        = "validate"
	StepPersist         = "persist"
	StepPreview         = "preview"
	StepConfigureClient = "configure_client"
	StepAnonymize       = "anonymize"
	StepCheckArtifacts  = "check_artifacts"
)

// ValidateStep rejects uploads that are not CSV files.
// It runs before anything is written to disk.
type ValidateStep struct {
	maxUploadSize int64
}

// NewValidateStep creates a ValidateStep. A maxUploadSize of zero or less
// disables the size check.
func NewValidateStep(maxUploadSize int64) *ValidateStep {
	return &ValidateStep{maxUploadSize: maxUploadSize}
}

// Name returns the step name.
func (s *ValidateStep) Name() string { return StepValidate }

// State returns the run state of the step.
func (s *ValidateStep) State() model.RunState { return model.StateValidating }

// Do checks the upload name and size.
func (s *ValidateStep) Do(_ context.Context, run *model.Run) error {
	name := run.Upload.Name

	switch {
	case name == "":
		return model.NewFlowError(StepValidate, model.KindValidation, errors.New("file name is empty"))
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return model.NewFlowError(StepValidate, model.KindValidation,
			fmt.Errorf("file name %q must not contain a path", name))
	case !strings.HasSuffix(run.Upload.TempName(), model.CSVExtension):
		return model.NewFlowError(StepValidate, model.KindValidation,
			fmt.Errorf("file name %q does not end in %s", name, model.CSVExtension))
	case run.Stem() == "" || strings.HasPrefix(run.Stem(), "."):
		// Artifacts are named after the stem and must be downloadable.
		return model.NewFlowError(StepValidate, model.KindValidation,
			fmt.Errorf("file name %q has no usable name before %s", name, model.CSVExtension))
	case s.maxUploadSize > 0 && run.Upload.Size() > s.maxUploadSize:
		return model.NewFlowError(StepValidate, model.KindValidation,
			fmt.Errorf("file is %d bytes, the limit is %d", run.Upload.Size(), s.maxUploadSize))
	}
	return nil
}

// PersistStep writes the upload to "<tempDir>/<run id>/temp_<name>".
// The run directory is private to the run, so concurrent uploads with the
// same name never share a file.
type PersistStep struct {
	tempDir string
	keep    bool
	logger  *slog.Logger
}

// NewPersistStep creates a PersistStep. When keep is true the run
// directory is left on disk after the run.
func NewPersistStep(tempDir string, keep bool, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{tempDir: tempDir, keep: keep, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string { return StepPersist }

// State returns the run state of the step.
func (s *PersistStep) State() model.RunState { return model.StatePersisting }

// Do writes the upload bytes unchanged and registers the removal of the
// run directory on the run.
func (s *PersistStep) Do(_ context.Context, run *model.Run) error {
	// The anonymizer runs in another working directory.
	tempDir, err := filepath.Abs(s.tempDir)
	if err != nil {
		return fmt.Errorf("failed to resolve temporary directory: %w", err)
	}
	dir := filepath.Join(tempDir, run.ID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	if !s.keep {
		run.AddCleanup(func() error {
			return os.RemoveAll(dir)
		})
	}

	path := filepath.Join(dir, run.Upload.TempName())
	if err := os.WriteFile(path, run.Upload.Content, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	run.Dataset = model.TempDatasetFile{Path: path, Dir: dir}
	s.logger.Debug("upload persisted", "run_id", run.ID, "path", path, "bytes", run.Size)
	return nil
}

// PreviewStep decodes the first bytes of the persisted file.
type PreviewStep struct {
	length int
}

// NewPreviewStep creates a PreviewStep reading up to length bytes.
func NewPreviewStep(length int) *PreviewStep {
	return &PreviewStep{length: length}
}

// Name returns the step name.
func (s *PreviewStep) Name() string { return StepPreview }

// State returns the run state of the step.
func (s *PreviewStep) State() model.RunState { return model.StatePreviewing }

// Do reads the preview from the temporary file, so that it shows exactly
// what the anonymizer receives.
func (s *PreviewStep) Do(_ context.Context, run *model.Run) error {
	f, err := os.Open(run.Dataset.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", run.Dataset.Path, err)
	}
	defer f.Close()

	buf := make([]byte, s.length)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("failed to read %s: %w", run.Dataset.Path, err)
	}

	preview, err := decodePreview(buf[:n], int64(n) < run.Size)
	if err != nil {
		fe := model.NewFlowError(StepPreview, model.KindDecode, err)
		fe.Path = run.Dataset.Path
		return fe
	}
	run.Preview = preview
	return nil
}

// decodePreview validates b as UTF-8. When truncated is set, a multi-byte
// character cut by the preview boundary is dropped instead of being
// reported as invalid.
func decodePreview(b []byte, truncated bool) (string, error) {
	if truncated {
		b = trimPartialRune(b)
	}
	out, _, err := transform.Bytes(encoding.UTF8Validator, b)
	if err != nil {
		return "", fmt.Errorf("invalid UTF-8: %w", err)
	}
	return string(out), nil
}

// trimPartialRune removes an incomplete UTF-8 sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i]
		}
		return b
	}
	return b
}

// clientHolder passes the client built by ConfigureClientStep to
// AnonymizeStep within one pipeline.
type clientHolder struct {
	client anonymizer.Client
}

// NewClientSteps creates the ConfigureClientStep and the AnonymizeStep
// that uses the client it builds. A timeout of zero or less leaves the
// anonymize call bounded only by its context.
func NewClientSteps(factory anonymizer.Factory, settings anonymizer.Settings, timeout time.Duration) (*ConfigureClientStep, *AnonymizeStep) {
	holder := &clientHolder{}
	return &ConfigureClientStep{factory: factory, settings: settings, holder: holder},
		&AnonymizeStep{holder: holder, timeout: timeout}
}

// ConfigureClientStep builds the external anonymizer client.
type ConfigureClientStep struct {
	factory  anonymizer.Factory
	settings anonymizer.Settings
	holder   *clientHolder
}

// Name returns the step name.
func (s *ConfigureClientStep) Name() string { return StepConfigureClient }

// State returns the run state of the step.
func (s *ConfigureClientStep) State() model.RunState { return model.StateConfiguringClient }

// Do calls the factory. Any failure means the library cannot be used.
func (s *ConfigureClientStep) Do(ctx context.Context, _ *model.Run) error {
	client, err := s.factory(ctx, s.settings)
	if err != nil {
		return model.NewFlowError(StepConfigureClient, model.KindIntegration, err)
	}
	if client == nil {
		return model.NewFlowError(StepConfigureClient, model.KindIntegration,
			errors.New("factory returned no client"))
	}
	s.holder.client = client
	return nil
}

// AnonymizeStep runs the external anonymization on the temporary file.
type AnonymizeStep struct {
	holder  *clientHolder
	timeout time.Duration
}

// Name returns the step name.
func (s *AnonymizeStep) Name() string { return StepAnonymize }

// State returns the run state of the step.
func (s *AnonymizeStep) State() model.RunState { return model.StateAnonymizing }

// Do blocks until the anonymizer returns or the timeout expires.
// The library message of a failure is kept verbatim.
func (s *AnonymizeStep) Do(ctx context.Context, run *model.Run) error {
	if s.holder.client == nil {
		return model.NewFlowError(StepAnonymize, model.KindIntegration, errors.New("client is not configured"))
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res := s.holder.client.Anonymize(ctx, anonymizer.Dataset{
		Path: run.Dataset.Path,
		Name: run.Stem(),
	})
	if res.Succeeded {
		return nil
	}

	fe := model.NewFlowError(StepAnonymize, model.KindAnonymization, res.Err())
	fe.Retryable = res.Retryable
	return fe
}

// CheckArtifactsStep verifies that both artifacts of the run exist.
type CheckArtifactsStep struct {
	artifactsDir string
}

// NewCheckArtifactsStep creates a CheckArtifactsStep.
func NewCheckArtifactsStep(artifactsDir string) *CheckArtifactsStep {
	return &CheckArtifactsStep{artifactsDir: artifactsDir}
}

// Name returns the step name.
func (s *CheckArtifactsStep) Name() string { return StepCheckArtifacts }

// State returns the run state of the step.
func (s *CheckArtifactsStep) State() model.RunState { return model.StateCheckingArtifacts }

// Do records the artifact pair on the run, or names every missing file.
func (s *CheckArtifactsStep) Do(_ context.Context, run *model.Run) error {
	pair := model.NewArtifactPair(s.artifactsDir, run.Stem())

	missing, err := pair.Missing()
	if err != nil {
		return model.NewFlowError(StepCheckArtifacts, model.KindArtifactMissing, err)
	}
	if len(missing) > 0 {
		fe := model.NewFlowError(StepCheckArtifacts, model.KindArtifactMissing,
			fmt.Errorf("not found: %s", strings.Join(missing, ", ")))
		fe.Path = s.artifactsDir
		return fe
	}

	run.Artifacts = pair
	return nil
}
