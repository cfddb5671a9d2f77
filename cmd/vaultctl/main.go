package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mediavault/mediavault/internal/clienthttp"
	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/logging"
	"github.com/mediavault/mediavault/internal/progress"
	"github.com/mediavault/mediavault/internal/termio"
	"github.com/mediavault/mediavault/internal/wsclient"
	"github.com/mediavault/mediavault/pkg/api"
)

const version = "v0.1.0"

func main() {
	termio.Init()
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	if hasVersionFlag(args) {
		fmt.Fprintln(termio.Stdout(), version)
		return
	}

	cmdName := args[0]
	switch cmdName {
	case "enqueue":
		os.Exit(runEnqueue(args[1:]))
	case "batch":
		os.Exit(runBatch(args[1:]))
	case "cancel":
		os.Exit(runCancel(args[1:]))
	case "status":
		os.Exit(runStatus(args[1:]))
	case "watch":
		os.Exit(runWatch(args[1:]))
	case "events":
		os.Exit(runEvents(args[1:]))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(termio.Stderr(), "unknown command: %s\n", cmdName)
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintln(termio.Stderr(), "usage: vaultctl <command> [flags]")
	fmt.Fprintln(termio.Stderr(), "commands:")
	fmt.Fprintln(termio.Stderr(), "  enqueue <url>              queue one transfer at interactive priority")
	fmt.Fprintln(termio.Stderr(), "  batch [flags] <url>...     queue a season batch at bulk priority")
	fmt.Fprintln(termio.Stderr(), "  cancel <id>                withdraw a queued or running transfer")
	fmt.Fprintln(termio.Stderr(), "  status                     print scheduler status once")
	fmt.Fprintln(termio.Stderr(), "  watch                      live status dashboard")
	fmt.Fprintln(termio.Stderr(), "  events                     tail the server event feed")
	fmt.Fprintln(termio.Stderr(), "common flags: --server-url URL (or VAULT_SERVER_URL)")
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

func newClient(fs *flag.FlagSet, args []string) (*clienthttp.Client, []string, error) {
	cfg, err := config.ParseClientConfigWith(fs, args)
	if err != nil {
		return nil, nil, err
	}
	return clienthttp.New(cfg.ServerURL), fs.Args(), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runEnqueue(args []string) int {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	client, rest, err := newClient(fs, args)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 2
	}
	if len(rest) != 1 {
		fmt.Fprintln(termio.Stderr(), "usage: vaultctl enqueue <url>")
		return 2
	}

	ctx, cancel := signalContext()
	defer cancel()
	resp, err := client.Enqueue(ctx, rest[0])
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 1
	}
	switch resp.Status {
	case api.StatusQueued:
		fmt.Fprintf(termio.Stdout(), "queued id=%s position=%d\n", resp.ID, resp.Position)
	case api.StatusAlreadyUploaded:
		fmt.Fprintf(termio.Stdout(), "already uploaded id=%s remote=%s\n", resp.ID, resp.RemoteID)
	default:
		fmt.Fprintf(termio.Stdout(), "%s id=%s\n", resp.Status, resp.ID)
	}
	return 0
}

func runBatch(args []string) int {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	series := fs.String("series", "", "series name for grouping")
	season := fs.String("season", "", "season label for grouping")
	client, rest, err := newClient(fs, args)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprintln(termio.Stderr(), "usage: vaultctl batch [--series S] [--season N] <url>...")
		return 2
	}

	req := api.BatchRequest{Series: *series, Season: *season}
	for _, u := range rest {
		req.Episodes = append(req.Episodes, api.EpisodeRequest{URL: u})
	}

	ctx, cancel := signalContext()
	defer cancel()
	resp, err := client.EnqueueBatch(ctx, req)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(termio.Stdout(), "batch queued=%d skipped=%d failed=%d\n", resp.Queued, resp.Skipped, resp.Failed)
	for _, r := range resp.Results {
		if r.Error != "" {
			fmt.Fprintf(termio.Stdout(), "  %s: %s\n", r.Status, r.Error)
			continue
		}
		fmt.Fprintf(termio.Stdout(), "  %s id=%s\n", r.Status, r.ID)
	}
	if resp.Failed > 0 {
		return 1
	}
	return 0
}

func runCancel(args []string) int {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	client, rest, err := newClient(fs, args)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 2
	}
	if len(rest) != 1 {
		fmt.Fprintln(termio.Stderr(), "usage: vaultctl cancel <id>")
		return 2
	}

	ctx, cancel := signalContext()
	defer cancel()
	if err := client.Cancel(ctx, rest[0]); err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(termio.Stdout(), "cancelling id=%s\n", rest[0])
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	client, _, err := newClient(fs, args)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 2
	}

	ctx, cancel := signalContext()
	defer cancel()
	st, err := client.Status(ctx)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(termio.Stdout(), "slots: %d busy / %d total\n", st.TotalSlots-st.AvailableSlots, st.TotalSlots)
	fmt.Fprintf(termio.Stdout(), "queued: interactive=%d bulk=%d\n", st.QueuedInteractive, st.QueuedBulk)
	fmt.Fprintf(termio.Stdout(), "lifetime: queued=%d completed=%d failed=%d (interactive=%d bulk=%d)\n",
		st.TotalQueued, st.TotalCompleted, st.TotalFailed, st.InteractiveCompleted, st.BulkCompleted)
	fmt.Fprintf(termio.Stdout(), "stored uploads: %d\n", st.RegistryEntries)
	for _, a := range st.Active {
		fmt.Fprintf(termio.Stdout(), "  slot %d [%s] %s %.1f%% (%d/%d bytes)\n",
			a.Slot, a.Priority, a.DisplayName, a.Percent, a.BytesDone, a.TotalBytes)
	}
	for _, p := range st.Pending {
		fmt.Fprintf(termio.Stdout(), "  pending [%s] %s\n", p.Priority, p.DisplayName)
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	altScreen := fs.Bool("alt-screen", false, "render in a full-screen terminal UI")
	client, _, err := newClient(fs, args)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 2
	}

	ctx, cancel := signalContext()
	defer cancel()

	var mu sync.Mutex
	current := progress.WatchView{Server: client.BaseURL(), At: time.Now()}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			st, err := client.Status(ctx)
			mu.Lock()
			current.At = time.Now()
			if err != nil {
				current.Err = err.Error()
			} else {
				current.Err = ""
				current.Status = st
			}
			mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	view := func() progress.WatchView {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	var stopRender func()
	if *altScreen && progress.IsTTY(termio.StdoutFile()) {
		stopRender = progress.RenderWatchTea(ctx, termio.StdoutFile(), view)
	} else {
		stopRender = progress.RenderWatch(ctx, termio.Stdout(), view)
	}
	<-ctx.Done()
	stopRender()
	return 0
}

func runEvents(args []string) int {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	client, _, err := newClient(fs, args)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 2
	}
	logger := logging.New("vaultctl", "error")

	ctx, cancel := signalContext()
	defer cancel()
	conn, err := wsclient.Dial(ctx, client.EventsURL(), logger)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "error: %v\n", err)
		return 1
	}
	defer conn.Close()

	err = conn.ReadLoop(ctx, func(ev api.Event) {
		fmt.Fprintln(termio.Stdout(), formatEvent(ev))
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(termio.Stderr(), "feed closed: %v\n", err)
		return 1
	}
	return 0
}

func formatEvent(ev api.Event) string {
	ts := ev.At.Local().Format("15:04:05")
	switch ev.Type {
	case api.EventTaskProgress:
		var p api.ProgressPayload
		if err := ev.DecodePayload(&p); err == nil {
			return fmt.Sprintf("%s %-14s %s %.1f%% %.1f MB/s chunk=%dMB",
				ts, ev.Type, ev.TaskID, p.Percent, p.RateBps/(1024*1024), p.ChunkSize/(1024*1024))
		}
	case api.EventTaskCompleted:
		var p api.CompletedPayload
		if err := ev.DecodePayload(&p); err == nil {
			return fmt.Sprintf("%s %-14s %s remote=%s", ts, ev.Type, ev.TaskID, p.RemoteID)
		}
	case api.EventTaskFailed:
		var p api.FailedPayload
		if err := ev.DecodePayload(&p); err == nil {
			return fmt.Sprintf("%s %-14s %s reason=%s", ts, ev.Type, ev.TaskID, p.Reason)
		}
	case api.EventTaskStarted:
		var p api.StartedPayload
		if err := ev.DecodePayload(&p); err == nil {
			return fmt.Sprintf("%s %-14s %s slot=%d [%s]", ts, ev.Type, ev.TaskID, p.Slot, p.Priority)
		}
	}
	return fmt.Sprintf("%s %-14s %s", ts, ev.Type, ev.TaskID)
}
