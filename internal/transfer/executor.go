package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mediavault/mediavault/internal/bufpool"
	"github.com/mediavault/mediavault/internal/progress"
	"github.com/mediavault/mediavault/internal/scheduler"
)

// Sentinel errors distinguishing where a transfer failed. The underlying
// cause is carried in the wrapped message.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSourceRead        = errors.New("source read failed")
	ErrSinkUpload        = errors.New("sink upload failed")
)

const progressMinInterval = 250 * time.Millisecond

// Options configures the executor.
type Options struct {
	// StagingDir is where in-flight objects are spooled (default os.TempDir()).
	StagingDir string

	// Params tunes the adaptive chunk sizing.
	Params AdaptiveParams

	// BulkLimiter, when set, caps the read bandwidth of Bulk tasks.
	// Its burst must be at least Params.MaxChunk.
	BulkLimiter *rate.Limiter

	// OnProgress, when set, receives throttled progress callbacks.
	OnProgress func(task scheduler.TransferTask, snap progress.Stats, chunkSize int)

	Logger *slog.Logger
}

// Executor performs one object transfer end-to-end: source chunks into a
// staging file with throughput-adaptive chunk sizing, then a single sink
// upload, then unconditional staging cleanup.
type Executor struct {
	source Source
	sink   Sink
	opts   Options
	pool   *bufpool.Pool
	now    func() time.Time // injectable for tests
}

// New creates an executor over the given source and sink.
func New(source Source, sink Sink, opts Options) *Executor {
	opts.Params = NormalizeParams(opts.Params)
	if opts.StagingDir == "" {
		opts.StagingDir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{
		source: source,
		sink:   sink,
		opts:   opts,
		pool:   bufpool.New(opts.Params.MaxChunk),
		now:    time.Now,
	}
}

// Run executes one transfer. The staging file is removed on every path
// out of this function; partial uploads to the sink are never performed.
func (e *Executor) Run(ctx context.Context, task scheduler.TransferTask, meter *progress.Meter) (string, error) {
	handle, err := e.source.Resolve(ctx, task.Locator)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s/%d: %v", ErrSourceUnavailable, task.Locator.Channel, task.Locator.MessageID, err)
	}

	if meter != nil {
		if handle.SizeBytes > 0 {
			meter.Start(handle.SizeBytes)
		} else {
			meter.Start(0)
		}
	}

	stagingPath := filepath.Join(e.opts.StagingDir, "staging-"+uuid.NewString()+filepath.Ext(task.DisplayName))
	out, err := os.Create(stagingPath)
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = out.Close()
		}
		_ = os.Remove(stagingPath)
	}()

	if err := e.stage(ctx, task, handle, out, meter); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close staging file: %w", err)
	}
	closed = true

	remoteID, err := e.sink.Upload(ctx, stagingPath, task.DisplayName)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("upload aborted: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %s: %v", ErrSinkUpload, task.DisplayName, err)
	}
	return remoteID, nil
}

// stage runs the adaptive read loop until the object is fully spooled.
func (e *Executor) stage(ctx context.Context, task scheduler.TransferTask, handle ObjectHandle, out *os.File, meter *progress.Meter) error {
	reader, err := e.source.Open(ctx, handle)
	if err != nil {
		return fmt.Errorf("%w: open %s/%d: %v", ErrSourceUnavailable, task.Locator.Channel, task.Locator.MessageID, err)
	}
	defer reader.Close()

	params := e.opts.Params
	chunk := params.InitialChunk
	buf := e.pool.Get()
	defer e.pool.Put(buf)

	var staged int64
	var windowBytes int64
	windowStart := e.now()
	var lastProgress int64

	for {
		// Cancellation is cooperative, checked at every chunk boundary.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("transfer cancelled: %w", err)
		}

		n, rerr := reader.ReadChunk(ctx, buf[:chunk])
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write staging file: %w", werr)
			}
			staged += int64(n)
			windowBytes += int64(n)
			if meter != nil {
				meter.Add(n)
			}
			if e.opts.BulkLimiter != nil && task.Priority == scheduler.Bulk {
				if werr := e.opts.BulkLimiter.WaitN(ctx, n); werr != nil {
					return fmt.Errorf("transfer cancelled: %w", ctx.Err())
				}
			}
			e.reportProgress(task, meter, chunk, &lastProgress)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return fmt.Errorf("transfer cancelled: %w", ctx.Err())
			}
			return fmt.Errorf("%w: %s at %d bytes: %v", ErrSourceRead, task.DisplayName, staged, rerr)
		}
		if handle.SizeBytes > 0 && staged >= handle.SizeBytes {
			break
		}

		// Only a full sampling window triggers an adjustment; a partial
		// final window carries no signal worth acting on.
		if elapsed := e.now().Sub(windowStart); elapsed >= params.SampleWindow {
			bps := float64(windowBytes) / elapsed.Seconds()
			next := adjustChunk(chunk, bps, params)
			if next != chunk {
				e.opts.Logger.Debug("chunk size adjusted",
					"id", task.ID,
					"throughput", classifyThroughput(bps, params),
					"bps", int64(bps),
					"old_chunk", chunk,
					"new_chunk", next)
				chunk = next
			}
			windowStart = e.now()
			windowBytes = 0
		}
	}
	return nil
}

func (e *Executor) reportProgress(task scheduler.TransferTask, meter *progress.Meter, chunk int, last *int64) {
	if e.opts.OnProgress == nil || meter == nil {
		return
	}
	now := e.now().UnixNano()
	prev := atomic.LoadInt64(last)
	if now-prev < int64(progressMinInterval) {
		return
	}
	if !atomic.CompareAndSwapInt64(last, prev, now) {
		return
	}
	e.opts.OnProgress(task, meter.Snapshot(), chunk)
}
