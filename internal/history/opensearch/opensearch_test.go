package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/personaplex/warden/internal/history"
)

func TestSendPostsDocument(t *testing.T) {
	var gotPath string
	var gotDoc map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotDoc)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := New(srv.URL+"/", "session-history")
	e := history.Event{
		Type:       history.EventRestart,
		OccurredAt: time.Now(),
		SessionID:  "s1",
		PID:        42,
		Port:       8998,
		Detail:     "health check failed",
	}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/session-history/_doc" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotDoc["session_id"] != "s1" || gotDoc["detail"] != "health check failed" {
		t.Fatalf("unexpected document: %v", gotDoc)
	}
}

func TestSendReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := New(srv.URL, "idx")
	if err := sink.Send(context.Background(), history.Event{Type: history.EventStop}); err == nil {
		t.Fatalf("expected error on 400")
	}
}
