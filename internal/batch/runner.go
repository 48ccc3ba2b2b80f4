package batch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gwlsn/rawray/internal/logger"
)

// Decoder turns a RAW file into an RGB raster. Implemented by
// internal/raw.Decoder; tests substitute stubs.
type Decoder interface {
	Decode(ctx context.Context, path string) (image.Image, error)
}

// Encoder writes a raster as a compressed bitstream at a quality level.
// Implemented by internal/encode.
type Encoder interface {
	Encode(w io.Writer, img image.Image, quality int) error
	Ext() string
}

// EncoderResolver maps an output format name to its encoder.
type EncoderResolver func(format string) (Encoder, error)

// Runner executes queued runs on a single background worker. Items are
// processed strictly sequentially: a decoded raster can be tens of
// megabytes, and one at a time bounds peak memory.
type Runner struct {
	queue      *Queue
	decoder    Decoder
	encoderFor EncoderResolver

	// pollInterval is how often the worker checks for pending runs.
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner draining the given queue.
func NewRunner(queue *Queue, decoder Decoder, encoderFor EncoderResolver) *Runner {
	return &Runner{
		queue:        queue,
		decoder:      decoder,
		encoderFor:   encoderFor,
		pollInterval: 500 * time.Millisecond,
		ctx:          context.Background(),
		cancel:       func() {},
	}
}

// Start launches the background worker.
func (r *Runner) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)

	go r.loop()
}

// Stop shuts the worker down and waits for it. An in-flight decode is
// killed; the run is left running in the store and marked interrupted on
// the next startup.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

// loop is the main worker loop
func (r *Runner) loop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			run := r.queue.GetNext()
			if run == nil {
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(r.pollInterval):
				}
				continue
			}

			r.Execute(run)
		}
	}
}

// Execute processes one run to completion or cancellation. Every item
// yields exactly one terminal event followed by a progress event, and the
// run-finished event is emitted strictly last. The only run-fatal error
// is an unusable fixed output directory.
func (r *Runner) Execute(run *Run) {
	if err := r.queue.StartRun(run.ID); err != nil {
		return
	}

	logger.Info("Run started",
		"run_id", run.ID,
		"items", run.TotalCount(),
		"format", run.Format,
		"quality", run.Quality)

	enc, err := r.encoderFor(run.Format)
	if err != nil {
		logger.Error("Run failed", "run_id", run.ID, "error", err)
		r.queue.FinishRun(run.ID, StatusFailed, err.Error())
		return
	}

	if run.Destination.Mode == DestFixed {
		if err := os.MkdirAll(run.Destination.Dir, 0755); err != nil {
			ferr := fmt.Errorf("%w: %v", ErrOutputDirUnavailable, err)
			logger.Error("Run failed", "run_id", run.ID, "error", ferr)
			r.queue.FinishRun(run.ID, StatusFailed, ferr.Error())
			return
		}
	}

	total := run.TotalCount()
	done := 0
	cancelled := false

	for idx, item := range run.Items {
		// Shutdown is not cancellation: leave the run as-is for the
		// next startup's interrupted sweep.
		if r.ctx.Err() != nil {
			logger.Info("Run interrupted by shutdown", "run_id", run.ID)
			return
		}

		// Cancellation is cooperative and only observed here, between
		// items. Once seen, every remaining item is skipped untouched.
		if !cancelled && run.CancelRequested() {
			cancelled = true
			logger.Info("Run cancelled", "run_id", run.ID, "remaining", total-done)
		}

		if cancelled {
			r.queue.SkipItem(run.ID, idx)
		} else if interrupted := r.convertItem(run, idx, item, enc); interrupted {
			return
		}

		done++
		r.queue.Progress(run.ID, done*100/total)
	}

	status := StatusComplete
	if cancelled {
		status = StatusCancelled
	}
	r.queue.FinishRun(run.ID, status, "")

	logger.Info("Run finished",
		"run_id", run.ID,
		"status", status,
		"succeeded", run.SuccessCount,
		"total", total)
}

// convertItem runs the decode -> encode -> write -> delete pipeline for a
// single item. Each stage failure terminates only this item. Returns true
// if the worker is shutting down and the item outcome must not be recorded.
func (r *Runner) convertItem(run *Run, idx int, item *Item, enc Encoder) bool {
	r.queue.StartItem(run.ID, idx)

	img, err := r.decoder.Decode(r.ctx, item.InputPath)
	if err != nil {
		if r.ctx.Err() != nil {
			return true
		}
		logger.Error("Decode failed", "run_id", run.ID, "file", item.InputPath, "error", err)
		r.queue.FailItem(run.ID, idx, FailDecode, err.Error())
		return false
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, img, run.Quality); err != nil {
		logger.Error("Encode failed", "run_id", run.ID, "file", item.InputPath, "error", err)
		r.queue.FailItem(run.ID, idx, FailEncode, err.Error())
		return false
	}

	outPath := run.Destination.OutputPath(item.InputPath, enc.Ext())
	if err := os.WriteFile(outPath, buf.Bytes(), 0644); err != nil {
		logger.Error("Write failed", "run_id", run.ID, "file", outPath, "error", err)
		r.queue.FailItem(run.ID, idx, FailWrite, err.Error())
		return false
	}

	// Delete the original only after the output is safely on disk. A
	// failed delete is a warning; the conversion itself succeeded.
	deleted := false
	if run.DeleteOriginals {
		if err := os.Remove(item.InputPath); err != nil {
			logger.Warn("Could not delete original", "file", item.InputPath, "error", err)
			r.queue.WarnDelete(run.ID, idx, err.Error())
		} else {
			deleted = true
			logger.Info("Deleted original", "file", item.InputPath)
		}
	}

	logger.Info("Converted",
		"file", item.InputPath,
		"output", outPath,
		"size", humanize.Bytes(uint64(buf.Len())))

	r.queue.CompleteItem(run.ID, idx, outPath, int64(buf.Len()), deleted)
	return false
}
