package progress

import (
	"strings"
	"testing"
	"time"

	"github.com/mediavault/mediavault/pkg/api"
)

func TestRenderBarBounds(t *testing.T) {
	if got := RenderBar(-5, 10); got != "["+strings.Repeat("░", 10)+"]" {
		t.Fatalf("negative percent should render empty bar, got %q", got)
	}
	if got := RenderBar(250, 10); got != "["+strings.Repeat("█", 10)+"]" {
		t.Fatalf("overflow percent should render full bar, got %q", got)
	}
	half := RenderBar(50, 10)
	if strings.Count(half, "█") != 5 {
		t.Fatalf("expected half-full bar, got %q", half)
	}
}

func TestTransferETA(t *testing.T) {
	row := api.ActiveTransfer{BytesDone: 512, TotalBytes: 1024, RateBps: 256}
	if got := transferETA(row); got != 2*time.Second {
		t.Fatalf("expected 2s ETA, got %v", got)
	}
	row.RateBps = 0
	if got := transferETA(row); got != 0 {
		t.Fatalf("idle rate should yield zero ETA, got %v", got)
	}
	row.RateBps = 256
	row.TotalBytes = 0
	if got := transferETA(row); got != 0 {
		t.Fatalf("unknown size should yield zero ETA, got %v", got)
	}
}

func TestFormatWatchLine(t *testing.T) {
	v := WatchView{
		Status: api.StatusResponse{
			Active:            []api.ActiveTransfer{{Slot: 0}},
			TotalSlots:        4,
			QueuedInteractive: 1,
			QueuedBulk:        3,
			TotalCompleted:    12,
			TotalFailed:       1,
		},
	}
	got := formatWatchLine(v)
	want := "active=1/4 queued=1+3 done=12 failed=1"
	if got != want {
		t.Fatalf("watch line mismatch: got %q want %q", got, want)
	}

	v.Err = "connection refused"
	if got := formatWatchLine(v); got != "error: connection refused" {
		t.Fatalf("error line mismatch: got %q", got)
	}
}

func TestRenderWatchTTYShowsActiveAndPending(t *testing.T) {
	now := time.Now()
	v := WatchView{
		Server: "http://localhost:8080",
		At:     now,
		Status: api.StatusResponse{
			Active: []api.ActiveTransfer{
				{Slot: 1, ID: "films-10", Priority: api.PriorityInteractive, DisplayName: "pilot.mkv", Percent: 40, RateBps: 2 << 20, BytesDone: 4 << 20, TotalBytes: 10 << 20},
			},
			Pending: []api.QueuedTransfer{
				{ID: "films-11", Priority: api.PriorityBulk, DisplayName: "e02.mkv", EnqueuedAt: now.Add(-30 * time.Second).Unix()},
			},
			TotalSlots:     4,
			AvailableSlots: 3,
		},
	}
	out := renderWatchTTY(v, false)
	for _, want := range []string{"pilot.mkv", "e02.mkv", "slots 1/4 busy", "40.0", "2.0 MB/s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered view missing %q:\n%s", want, out)
		}
	}
}

func TestTruncateName(t *testing.T) {
	if got := truncateName("short", 10); got != "short" {
		t.Fatalf("short names should pass through, got %q", got)
	}
	got := truncateName("a-very-long-episode-name.mkv", 10)
	if len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("expected 10-rune truncation with ellipsis, got %q", got)
	}
}
