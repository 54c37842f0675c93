package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/csvanon/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of uploads processed at once when no
// concurrency is configured.
const DefaultConcurrency = 4

// BatchProcessor runs several uploads through an Executor concurrently.
// Each upload gets its own run, and one failing upload does not stop the
// others.
type BatchProcessor struct {
	executor    Executor
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
// Values below one are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(executor Executor, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		executor:    executor,
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch runs every upload and returns the runs in input order.
// Runs that could not start because ctx was cancelled are returned as
// failed runs. The error is non-nil only when ctx was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, uploads []model.UploadedFile) ([]*model.Run, error) {
	results := make([]*model.Run, len(uploads))
	var mu sync.Mutex

	err := bp.ProcessBatchWithCallback(ctx, uploads, func(run *model.Run, index int) {
		mu.Lock()
		results[index] = run
		mu.Unlock()
	})

	for i, run := range results {
		if run == nil {
			run = model.NewRun(uploads[i])
			run.Upload.Content = nil
			run.Fail(ctx.Err())
			results[i] = run
		}
	}
	return results, err
}

// ProcessBatchWithCallback runs every upload and calls callback with each
// finished run and its index in uploads. The callback is called from the
// goroutine that ran the upload, so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	uploads []model.UploadedFile,
	callback func(run *model.Run, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_files", len(uploads),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, upload := range uploads {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			run, err := bp.executor.Execute(ctx, upload)
			if err != nil {
				// The error is recorded on the run; keep going with the others.
				bp.logger.Warn("file failed",
					"file", upload.Name,
					"index", i+1,
					"total", len(uploads),
					"error", err,
				)
			}
			callback(run, i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch processing complete",
		"total_files", len(uploads),
		"elapsed", time.Since(startTime),
	)
	return err
}
