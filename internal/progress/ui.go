package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediavault/mediavault/pkg/api"
)

// WatchView is the data rendered by the live status dashboard.
type WatchView struct {
	Server string
	Status api.StatusResponse
	Err    string
	At     time.Time
}

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
)

func colorize(s string, color string, enabled bool) string {
	if !enabled || color == "" {
		return s
	}
	return color + s + colorReset
}

func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// RenderWatch periodically renders the watch view until the returned stop
// function is called or ctx is done. On a TTY it redraws in place; on a
// pipe it emits one summary line per second.
func RenderWatch(ctx context.Context, w io.Writer, view func() WatchView) func() {
	ticker := time.NewTicker(250 * time.Millisecond)
	stop := make(chan struct{})
	isTTY := IsTTY(w)
	lastLines := 0
	var renderMu sync.Mutex
	if !isTTY {
		ticker.Stop()
		ticker = time.NewTicker(1 * time.Second)
	} else {
		fmt.Fprint(w, "\033[?25l")
	}

	renderOnce := func() {
		renderMu.Lock()
		defer renderMu.Unlock()
		v := view()
		if isTTY {
			if lastLines > 0 {
				fmt.Fprintf(w, "\033[%dA", lastLines)
				fmt.Fprint(w, "\033[J")
			}
			out := renderWatchTTY(v, true)
			fmt.Fprintln(w, out)
			lastLines = strings.Count(out, "\n") + 1
		} else {
			fmt.Fprintln(w, formatWatchLine(v))
		}
	}

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				renderOnce()
			}
		}
	}()

	return func() {
		close(stop)
		renderOnce()
		if isTTY {
			fmt.Fprint(w, "\033[?25h")
		}
	}
}

func renderWatchTTY(v WatchView, isTTY bool) string {
	var b strings.Builder
	st := v.Status
	fmt.Fprintf(&b, "%s\n", colorize(fmt.Sprintf("mediavault %s", v.Server), colorCyan, isTTY))
	if v.Err != "" {
		fmt.Fprintf(&b, "%s\n", colorize("error: "+v.Err, colorRed, isTTY))
		return strings.TrimSuffix(b.String(), "\n")
	}
	fmt.Fprintf(&b, "%s\n", colorize(formatSlotLine(st), colorGreen, isTTY))

	if len(st.Active) > 0 {
		headers := []string{"slot", "class", "name", "progress", "%", "rate", "ETA"}
		widths := []int{4, 11, 26, 12, 6, 10, 9}
		rows := make([][]string, 0, len(st.Active))
		active := append([]api.ActiveTransfer(nil), st.Active...)
		sort.Slice(active, func(i, j int) bool { return active[i].Slot < active[j].Slot })
		for _, row := range active {
			rows = append(rows, []string{
				fmt.Sprintf("%d", row.Slot),
				row.Priority,
				truncateName(displayOrID(row.DisplayName, row.ID), 26),
				RenderBar(row.Percent, 10),
				fmt.Sprintf("%.1f", row.Percent),
				formatRate(row.RateBps),
				formatETA(transferETA(row)),
			})
		}
		_ = renderTable(&b, headers, rows, widths)
	}

	if len(st.Pending) > 0 {
		headers := []string{"class", "name", "waited"}
		widths := []int{11, 34, 8}
		rows := make([][]string, 0, len(st.Pending))
		for _, row := range st.Pending {
			rows = append(rows, []string{
				row.Priority,
				truncateName(displayOrID(row.DisplayName, row.ID), 34),
				formatAge(v.At.Sub(time.Unix(row.EnqueuedAt, 0))),
			})
		}
		_ = renderTable(&b, headers, rows, widths)
	}

	fmt.Fprintf(&b, "lifetime: queued=%s done=%s failed=%s (interactive=%s bulk=%s)\n",
		formatCount(st.TotalQueued),
		formatCount(st.TotalCompleted),
		formatCount(st.TotalFailed),
		formatCount(st.InteractiveCompleted),
		formatCount(st.BulkCompleted),
	)
	return strings.TrimSuffix(b.String(), "\n")
}

func formatWatchLine(v WatchView) string {
	if v.Err != "" {
		return "error: " + v.Err
	}
	st := v.Status
	return fmt.Sprintf("active=%d/%d queued=%d+%d done=%s failed=%s",
		len(st.Active),
		st.TotalSlots,
		st.QueuedInteractive,
		st.QueuedBulk,
		formatCount(st.TotalCompleted),
		formatCount(st.TotalFailed),
	)
}

func formatSlotLine(st api.StatusResponse) string {
	return fmt.Sprintf("slots %d/%d busy  queued interactive=%d bulk=%d  stored=%d",
		st.TotalSlots-st.AvailableSlots,
		st.TotalSlots,
		st.QueuedInteractive,
		st.QueuedBulk,
		st.RegistryEntries,
	)
}

func displayOrID(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

func truncateName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}

// RenderBar draws a fixed-width percent bar.
func RenderBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int((percent / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func renderTable(w io.Writer, headers []string, rows [][]string, widths []int) int {
	lines := 0
	border := buildBorder(widths)
	fmt.Fprintln(w, border)
	lines++
	fmt.Fprintln(w, buildRow(headers, widths))
	lines++
	fmt.Fprintln(w, border)
	lines++
	for _, row := range rows {
		fmt.Fprintln(w, buildRow(row, widths))
		lines++
	}
	fmt.Fprintln(w, border)
	lines++
	return lines
}

func buildBorder(widths []int) string {
	var b strings.Builder
	b.WriteString("+")
	for _, width := range widths {
		b.WriteString(strings.Repeat("-", width+2))
		b.WriteString("+")
	}
	return b.String()
}

func buildRow(values []string, widths []int) string {
	var b strings.Builder
	b.WriteString("|")
	for i, width := range widths {
		cell := ""
		if i < len(values) {
			cell = values[i]
		}
		b.WriteString(" ")
		b.WriteString(padRight(cell, width))
		b.WriteString(" |")
	}
	return b.String()
}

func padRight(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func formatRate(bps float64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	if bps >= g {
		return fmt.Sprintf("%.2f GB/s", bps/float64(g))
	}
	if bps >= m {
		return fmt.Sprintf("%.1f MB/s", bps/float64(m))
	}
	if bps >= k {
		return fmt.Sprintf("%.0f KB/s", bps/float64(k))
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

// transferETA estimates time remaining from the current rate. Zero when
// the rate is idle or the object size is unknown.
func transferETA(row api.ActiveTransfer) time.Duration {
	if row.RateBps <= 0 || row.TotalBytes <= 0 {
		return 0
	}
	remaining := row.TotalBytes - row.BytesDone
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / row.RateBps * float64(time.Second))
}

func formatETA(d time.Duration) string {
	if d <= 0 {
		return "--:--:--"
	}
	secs := int(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatCount(n int64) string {
	if n < 0 {
		n = 0
	}
	const (
		k = 1000
		m = 1000 * k
	)
	switch {
	case n >= m:
		return fmt.Sprintf("%.1fM", float64(n)/float64(m))
	case n >= k:
		return fmt.Sprintf("%.1fk", float64(n)/float64(k))
	default:
		return fmt.Sprintf("%d", n)
	}
}

func formatAge(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return "0s"
	}
	if d < time.Minute {
		secs := d.Seconds()
		if secs >= 10 {
			return fmt.Sprintf("%.0fs", secs)
		}
		return fmt.Sprintf("%.1fs", secs)
	}
	if d < time.Hour {
		mins := d.Minutes()
		if mins >= 10 {
			return fmt.Sprintf("%.0fm", mins)
		}
		return fmt.Sprintf("%.1fm", mins)
	}
	hours := d.Hours()
	if hours >= 10 {
		return fmt.Sprintf("%.0fh", hours)
	}
	return fmt.Sprintf("%.1fh", hours)
}
