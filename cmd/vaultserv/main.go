package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mediavault/mediavault/internal/blobsink"
	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/events"
	"github.com/mediavault/mediavault/internal/logging"
	"github.com/mediavault/mediavault/internal/msgsource"
	"github.com/mediavault/mediavault/internal/registry"
	"github.com/mediavault/mediavault/internal/scheduler"
	"github.com/mediavault/mediavault/internal/termio"
	"github.com/mediavault/mediavault/internal/transfer"
	"github.com/mediavault/mediavault/pkg/api"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // feed is read-only, origin checks add nothing here
	},
}

const serverVersion = "v0.1.0"

func main() {
	if hasHelpFlag(os.Args[1:]) {
		printServerUsage()
		return
	}
	if hasVersionFlag(os.Args[1:]) {
		fmt.Fprintln(termio.Stdout(), serverVersion)
		return
	}
	cfg, err := config.ParseServerConfig()
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "config error: %v\n", err)
		os.Exit(2)
	}
	logger := logging.New("vaultserv", cfg.LogLevel)
	if cfg.LogJSON {
		logger = logging.NewJSON("vaultserv", cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := blobsink.Open(ctx, cfg.BucketURL, cfg.BucketPrefix, cfg.SignedURLTTL, logger)
	if err != nil {
		logger.Error("sink open failed", "bucket", cfg.BucketURL, "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	source := msgsource.New(cfg.GatewayURL, logger)

	store := registry.NewStore(cfg.RegistryPath, 0, logger)
	if err := store.Load(); err != nil {
		logger.Error("registry load failed", "path", cfg.RegistryPath, "error", err)
		os.Exit(1)
	}

	hub := events.NewHub()
	notifier := events.NewNotifier(hub, logger)

	var limiter *rate.Limiter
	if cfg.BulkRateBps > 0 {
		burst := cfg.MaxChunkBytes
		if int64(burst) < cfg.BulkRateBps {
			burst = int(cfg.BulkRateBps)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.BulkRateBps), burst)
	}

	exec := transfer.New(source, sink, transfer.Options{
		StagingDir: cfg.StagingDir,
		Params: transfer.AdaptiveParams{
			MinChunk:     cfg.MinChunkBytes,
			InitialChunk: cfg.DefaultChunkBytes,
			MaxChunk:     cfg.MaxChunkBytes,
			SampleWindow: cfg.SampleWindow,
			LowBps:       cfg.LowBps,
			MediumBps:    cfg.MediumBps,
			HighBps:      cfg.HighBps,
		},
		BulkLimiter: limiter,
		OnProgress:  notifier.Progress,
		Logger:      logger,
	})

	notify := &recordingNotifier{next: notifier, store: store}
	sched, err := scheduler.New(scheduler.Config{
		BulkSlots:        cfg.BulkSlots,
		InteractiveSlots: cfg.InteractiveSlots,
	}, exec, store, notify, logger)
	if err != nil {
		logger.Error("scheduler init failed", "error", err)
		os.Exit(1)
	}
	go sched.Run(ctx)
	go runSweeper(ctx, store, sink, cfg.SweepInterval, logger)

	srv := &server{
		cfg:    cfg,
		sched:  sched,
		source: source,
		sink:   sink,
		store:  store,
		hub:    hub,
		logger: logger,
	}
	srv.routes()

	fmt.Fprintf(termio.Stdout(), "starting server addr=%s bucket=%s\n", cfg.Addr, cfg.BucketURL)
	httpServer := &http.Server{Addr: cfg.Addr}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// recordingNotifier persists successful uploads before fanning the event
// out, so a dedup lookup right after task_completed always hits.
type recordingNotifier struct {
	next  *events.Notifier
	store *registry.Store
}

func (n *recordingNotifier) TaskQueued(task scheduler.TransferTask) {
	n.next.TaskQueued(task)
}

func (n *recordingNotifier) TaskStarted(task scheduler.TransferTask, slot int) {
	n.next.TaskStarted(task, slot)
}

func (n *recordingNotifier) TaskFinished(task scheduler.TransferTask, slot int, outcome scheduler.Outcome, remoteID string, err error) {
	if outcome == scheduler.OutcomeSuccess {
		n.store.Put(registry.Entry{
			ID:          task.ID,
			RemoteID:    remoteID,
			DisplayName: task.DisplayName,
		})
	}
	n.next.TaskFinished(task, slot, outcome, remoteID, err)
}

func runSweeper(ctx context.Context, store *registry.Store, sink *blobsink.Sink, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := store.Sweep(ctx, time.Now(), sink)
			logger.Debug("registry sweep finished", "removed", removed)
		}
	}
}

type server struct {
	cfg    config.ServerConfig
	sched  *scheduler.Scheduler
	source *msgsource.Client
	sink   *blobsink.Sink
	store  *registry.Store
	hub    *events.Hub
	logger *slog.Logger
}

func (s *server) routes() {
	http.HandleFunc("/health", s.handleHealth)
	http.HandleFunc("/transfers", s.handleTransfers)
	http.HandleFunc("/transfers/", s.handleTransferByID)
	http.HandleFunc("/batches", s.handleBatches)
	http.HandleFunc("/status", s.handleStatus)
	http.HandleFunc("/stream/", s.handleStream)
	http.HandleFunc("/events", s.handleEvents)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// buildTask resolves a message link into a transfer task. The display
// name comes from the gateway when it exposes one.
func (s *server) buildTask(ctx context.Context, msgURL, title, group string, priority scheduler.PriorityClass) (scheduler.TransferTask, error) {
	loc, err := msgsource.ParseMessageURL(msgURL)
	if err != nil {
		return scheduler.TransferTask{}, err
	}
	name := title
	if name == "" {
		nameCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		name, _ = s.source.FileName(nameCtx, loc)
		cancel()
	}
	if name == "" {
		name = loc.Key() + ".mkv"
	}
	return scheduler.TransferTask{
		ID:          loc.Key(),
		Locator:     loc,
		DisplayName: name,
		Priority:    priority,
		Group:       group,
	}, nil
}

func enqueueResponse(task scheduler.TransferTask, res scheduler.EnqueueResult) (int, api.EnqueueResponse) {
	switch res.Status {
	case scheduler.Accepted:
		return http.StatusAccepted, api.EnqueueResponse{Status: api.StatusQueued, ID: task.ID, Position: res.Position}
	case scheduler.AlreadyQueued:
		// A duplicate enqueue is a no-op success: the object is already on
		// its way.
		return http.StatusOK, api.EnqueueResponse{Status: api.StatusAlreadyQueued, ID: task.ID}
	case scheduler.AlreadyComplete:
		return http.StatusOK, api.EnqueueResponse{Status: api.StatusAlreadyUploaded, ID: task.ID, RemoteID: res.RemoteID}
	default:
		return http.StatusInternalServerError, api.EnqueueResponse{Status: api.StatusRejected, ID: task.ID}
	}
}

func (s *server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req api.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	task, err := s.buildTask(r.Context(), req.URL, "", "", scheduler.Interactive)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, resp := enqueueResponse(task, s.sched.Enqueue(r.Context(), task))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func (s *server) handleBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req api.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Episodes) == 0 {
		sendError(w, http.StatusBadRequest, "batch has no episodes")
		return
	}
	group := strings.TrimSpace(strings.TrimSuffix(req.Series+"/"+req.Season, "/"))

	var out api.BatchResponse
	for _, ep := range req.Episodes {
		task, err := s.buildTask(r.Context(), ep.URL, ep.Title, group, scheduler.Bulk)
		if err != nil {
			out.Failed++
			out.Results = append(out.Results, api.EnqueueResponse{Status: api.StatusRejected, Error: err.Error()})
			continue
		}
		_, resp := enqueueResponse(task, s.sched.Enqueue(r.Context(), task))
		switch resp.Status {
		case api.StatusQueued:
			out.Queued++
		default:
			out.Skipped++
		}
		out.Results = append(out.Results, resp)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(out)
}

func (s *server) handleTransferByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/transfers/")
	if id == "" || strings.Contains(id, "/") {
		sendError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.sched.Cancel(id) {
		sendError(w, http.StatusNotFound, "unknown transfer id")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": id, "status": "cancelling"})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := s.sched.Status()
	resp.RegistryEntries = s.store.Len()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleStream redirects to a signed object URL when the bucket driver
// supports signing, and proxies the bytes itself otherwise.
func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/stream/")
	entry, ok := s.store.Get(id)
	if !ok {
		sendError(w, http.StatusNotFound, "no stored upload for this id")
		return
	}

	if signed, err := s.sink.SignedURL(r.Context(), entry.RemoteID); err == nil {
		http.Redirect(w, r, signed, http.StatusFound)
		return
	}

	size, contentType, err := s.sink.Attributes(r.Context(), entry.RemoteID)
	if err != nil {
		sendError(w, http.StatusBadGateway, "stored object is unavailable")
		return
	}
	reader, err := s.sink.Stream(r.Context(), entry.RemoteID)
	if err != nil {
		sendError(w, http.StatusBadGateway, "stored object is unavailable")
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", entry.DisplayName))
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Warn("stream aborted", "id", id, "error", err)
	}
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	var writeMu sync.Mutex
	remove := s.hub.Add(r.RemoteAddr+"-"+api.NewEventID(), func(ev api.Event) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(ev)
	})

	// The feed never expects client frames; the read loop only notices
	// disconnects and answers pings.
	go func() {
		defer remove()
		defer conn.Close()
		conn.SetPingHandler(func(appData string) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			return conn.WriteMessage(websocket.PongMessage, []byte(appData))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func printServerUsage() {
	fmt.Fprintln(termio.Stderr(), "usage: vaultserv [flags]")
	fmt.Fprintln(termio.Stderr(), "  --addr HOST:PORT        listen address (default :8080)")
	fmt.Fprintln(termio.Stderr(), "  --bucket-url URL        gocloud bucket URL (file://, s3://, mem://)")
	fmt.Fprintln(termio.Stderr(), "  --bucket-prefix P       key prefix inside the bucket")
	fmt.Fprintln(termio.Stderr(), "  --gateway-url URL       media gateway base URL")
	fmt.Fprintln(termio.Stderr(), "  --staging-dir DIR       local staging directory")
	fmt.Fprintln(termio.Stderr(), "  --bulk-slots N          slots reserved for bulk transfers (default 3)")
	fmt.Fprintln(termio.Stderr(), "  --interactive-slots N   slots reserved for interactive transfers (default 1)")
	fmt.Fprintln(termio.Stderr(), "  --bulk-rate-bps N       bulk bandwidth cap in bytes/sec (0 disables)")
	fmt.Fprintln(termio.Stderr(), "  --registry-path FILE    completed-upload registry file (default uploads.json)")
	fmt.Fprintln(termio.Stderr(), "  --sweep-interval D      registry sweep interval (default 10m)")
	fmt.Fprintln(termio.Stderr(), "  --config FILE           YAML config file (flags and env win)")
	fmt.Fprintln(termio.Stderr(), "  --log-level LEVEL       debug, info, warn, error (default info)")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}
