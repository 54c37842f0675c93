package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/csvanon/internal/anonymizer"
	"github.com/nao1215/csvanon/internal/config"
	"github.com/nao1215/csvanon/internal/model"
)

// Observer is notified of every finished run.
// Observers must not keep references to the upload content.
type Observer interface {
	ObserveRun(ctx context.Context, run *model.Run)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, run *model.Run)

// ObserveRun calls f.
func (f ObserverFunc) ObserveRun(ctx context.Context, run *model.Run) {
	f(ctx, run)
}

// Executor runs one upload through the flow.
type Executor interface {
	Execute(ctx context.Context, upload model.UploadedFile) (*model.Run, error)
}

// Flow is the upload-and-anonymize flow. It holds no per-request state and
// is safe for concurrent use.
type Flow struct {
	cfg       *config.Config
	factory   anonymizer.Factory
	logger    *slog.Logger
	observers []Observer
}

var _ Executor = (*Flow)(nil)

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithFlowLogger sets the logger used by the flow and its steps.
func WithFlowLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithObserver adds an observer that is called after each run.
func WithObserver(o Observer) FlowOption {
	return func(f *Flow) {
		f.observers = append(f.observers, o)
	}
}

// NewFlow creates a Flow. factory builds the anonymizer client for each
// run from the settings derived from cfg.
func NewFlow(cfg *config.Config, factory anonymizer.Factory, opts ...FlowOption) *Flow {
	f := &Flow{
		cfg:     cfg,
		factory: factory,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// newPipeline builds a fresh pipeline for one run.
func (f *Flow) newPipeline() *Pipeline {
	configure, anonymize := NewClientSteps(f.factory, anonymizer.NewSettings(f.cfg), f.cfg.AnonymizeTimeout)

	p := New(WithLogger(f.logger))
	p.AddSteps(
		NewValidateStep(f.cfg.MaxUploadSize),
		NewPersistStep(f.cfg.TempDir, f.cfg.KeepTempFiles, f.logger),
		NewPreviewStep(f.cfg.PreviewLength),
		configure,
		anonymize,
		NewCheckArtifactsStep(f.cfg.ArtifactsDir),
	)
	f.logger.Debug("pipeline built", "steps", p.StepNames())
	return p
}

// Execute runs the upload through every step and returns the run record.
// On failure the returned error is the same error recorded on the run.
// The temporary dataset is removed before Execute returns, whatever the
// outcome.
func (f *Flow) Execute(ctx context.Context, upload model.UploadedFile) (*model.Run, error) {
	run := model.NewRun(upload)
	logger := f.logger.With("run_id", run.ID)

	logger.Info("upload received", "file", upload.Name, "bytes", upload.Size())

	err := f.newPipeline().Execute(ctx, run)
	if cerr := run.Cleanup(); cerr != nil {
		logger.Warn("failed to remove temporary files", "dir", run.Dataset.Dir, "error", cerr)
	}
	run.Upload.Content = nil

	if err == nil {
		run.Complete()
		logger.Info("anonymization complete",
			"synthetic_data", run.Artifacts.SyntheticData,
			"report", run.Artifacts.Report,
			"duration", run.Duration(),
		)
	} else {
		logger.Warn("run failed", "kind", run.ErrorKind, "error", err)
	}

	for _, o := range f.observers {
		o.ObserveRun(ctx, run)
	}
	return run, err
}
