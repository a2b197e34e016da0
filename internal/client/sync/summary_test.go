package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"collabhub/platform/internal/client"
	"collabhub/platform/internal/models"
)

type summaryBackend struct {
	mu       sync.Mutex
	rpcOK    bool
	rpcCalls int
}

func (b *summaryBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/rpc/v1/"):
		b.mu.Lock()
		b.rpcCalls++
		ok := b.rpcOK
		b.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "rpc_not_found"})
			return
		}
		json.NewEncoder(w).Encode(models.ProjectSummary{ProjectID: "p1", TaskCount: 7})
	case strings.HasPrefix(r.URL.Path, "/rest/v1/tasks"):
		json.NewEncoder(w).Encode([]models.Task{
			{ID: "t1", ProjectID: "p1", Status: models.TaskDone},
			{ID: "t2", ProjectID: "p1", Status: models.TaskTodo},
		})
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		json.NewEncoder(w).Encode([]json.RawMessage{json.RawMessage(`{"id":"x"}`)})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestSummarizerPrefersServerFunction(t *testing.T) {
	backend := &summaryBackend{rpcOK: true}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	s := NewSummarizer(client.New(srv.URL, nil))
	summary, source, err := s.Summarize(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if source != SourcePrimary {
		t.Fatalf("source = %s, want primary", source)
	}
	if summary.TaskCount != 7 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestSummarizerCachesUnavailability(t *testing.T) {
	backend := &summaryBackend{rpcOK: false}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	s := NewSummarizer(client.New(srv.URL, nil))

	for i := 0; i < 3; i++ {
		summary, source, err := s.Summarize(context.Background(), "p1")
		if err != nil {
			t.Fatal(err)
		}
		if source != SourceFallback {
			t.Fatalf("source = %s, want fallback", source)
		}
		if summary.TaskCount != 2 || summary.DoneTaskCount != 1 {
			t.Fatalf("fallback summary = %+v", summary)
		}
		if summary.NoteCount != 1 || summary.MessageCount != 1 || summary.FileCount != 1 {
			t.Fatalf("fallback summary = %+v", summary)
		}
	}

	// Only the first call probes the server function.
	if backend.rpcCalls != 1 {
		t.Fatalf("rpc probed %d times, want 1", backend.rpcCalls)
	}
}
