package transfer

import "time"

// Default chunk sizing bounds and throughput thresholds. The bounds keep
// one chunk well inside the per-transfer memory budget; the thresholds
// match the link speeds the gateway is known to throttle around.
const (
	DefaultMinChunk     = 2 * 1024 * 1024
	DefaultInitialChunk = 5 * 1024 * 1024
	DefaultMaxChunk     = 50 * 1024 * 1024

	DefaultSampleWindow = 5 * time.Second

	DefaultLowBps    = 2 * 1024 * 1024
	DefaultMediumBps = 5 * 1024 * 1024
	DefaultHighBps   = 10 * 1024 * 1024
)

// AdaptiveParams tunes the chunk-resizing behavior of the executor.
type AdaptiveParams struct {
	MinChunk     int
	InitialChunk int
	MaxChunk     int
	SampleWindow time.Duration
	LowBps       int64
	MediumBps    int64
	HighBps      int64
}

// NormalizeParams applies defaults and clamps adaptive parameters.
func NormalizeParams(p AdaptiveParams) AdaptiveParams {
	out := p
	if out.MinChunk <= 0 {
		out.MinChunk = DefaultMinChunk
	}
	if out.MaxChunk <= 0 {
		out.MaxChunk = DefaultMaxChunk
	}
	if out.MaxChunk < out.MinChunk {
		out.MaxChunk = out.MinChunk
	}
	if out.InitialChunk <= 0 {
		out.InitialChunk = DefaultInitialChunk
	}
	if out.InitialChunk < out.MinChunk {
		out.InitialChunk = out.MinChunk
	}
	if out.InitialChunk > out.MaxChunk {
		out.InitialChunk = out.MaxChunk
	}
	if out.SampleWindow <= 0 {
		out.SampleWindow = DefaultSampleWindow
	}
	if out.LowBps <= 0 {
		out.LowBps = DefaultLowBps
	}
	if out.MediumBps <= 0 {
		out.MediumBps = DefaultMediumBps
	}
	if out.HighBps <= 0 {
		out.HighBps = DefaultHighBps
	}
	return out
}

// adjustChunk doubles the chunk above the high threshold and halves it
// below the low threshold, clamped to [MinChunk, MaxChunk]. Between the
// thresholds the current size is kept.
func adjustChunk(current int, bps float64, p AdaptiveParams) int {
	switch {
	case bps > float64(p.HighBps) && current < p.MaxChunk:
		next := current * 2
		if next > p.MaxChunk {
			next = p.MaxChunk
		}
		return next
	case bps < float64(p.LowBps) && current > p.MinChunk:
		next := current / 2
		if next < p.MinChunk {
			next = p.MinChunk
		}
		return next
	default:
		return current
	}
}

// classifyThroughput labels a measured rate for logging and status.
func classifyThroughput(bps float64, p AdaptiveParams) string {
	switch {
	case bps < float64(p.LowBps):
		return "low"
	case bps > float64(p.HighBps):
		return "high"
	default:
		return "medium"
	}
}
