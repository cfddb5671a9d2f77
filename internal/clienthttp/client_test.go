package clienthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mediavault/mediavault/pkg/api"
)

func TestEnqueueSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transfers" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req api.EnqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.URL != "https://t.me/films/77" {
			t.Errorf("unexpected url %q", req.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.EnqueueResponse{Status: api.StatusQueued, ID: "films-77", Position: 1})
	}))
	defer server.Close()

	client := New(server.URL)
	resp, err := client.Enqueue(context.Background(), "https://t.me/films/77")
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if resp.Status != api.StatusQueued || resp.ID != "films-77" || resp.Position != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestEnqueueServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"not a recognized message link"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.Enqueue(context.Background(), "nonsense")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "server returned 400") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestCancelUsesDeleteRoute(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL)
	if err := client.Cancel(context.Background(), "films-77"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/transfers/films-77" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}

func TestStatusDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(api.StatusResponse{
			QueuedBulk:     7,
			TotalSlots:     4,
			AvailableSlots: 1,
			TotalCompleted: 42,
		})
	}))
	defer server.Close()

	client := New(server.URL)
	st, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if st.QueuedBulk != 7 || st.TotalSlots != 4 || st.TotalCompleted != 42 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSchemeNormalizationAndEventsURL(t *testing.T) {
	client := New("127.0.0.1:9400")
	if client.BaseURL() != "http://127.0.0.1:9400" {
		t.Fatalf("unexpected base url %q", client.BaseURL())
	}
	if client.EventsURL() != "ws://127.0.0.1:9400/events" {
		t.Fatalf("unexpected events url %q", client.EventsURL())
	}
}
