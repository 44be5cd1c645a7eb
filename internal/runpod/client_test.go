package runpod

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestJobSessionID(t *testing.T) {
	j := &Job{ID: "job-1", Input: json.RawMessage(`{"session_id":"custom"}`)}
	if got := j.SessionID(); got != "custom" {
		t.Fatalf("SessionID = %q, want custom", got)
	}
	j = &Job{ID: "job-2", Input: json.RawMessage(`{}`)}
	if got := j.SessionID(); got != "job-2" {
		t.Fatalf("SessionID = %q, want job id fallback", got)
	}
	j = &Job{ID: "job-3", Input: json.RawMessage(`not json`)}
	if got := j.SessionID(); got != "job-3" {
		t.Fatalf("SessionID = %q, want job id fallback on bad input", got)
	}
}

func TestTakeJob(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"id":"job-9","input":{"session_id":"s9"}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "key123", JobTakeURL: srv.URL})
	job, err := c.TakeJob(context.Background())
	if err != nil {
		t.Fatalf("TakeJob: %v", err)
	}
	if job == nil || job.ID != "job-9" || job.SessionID() != "s9" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if gotAuth != "Bearer key123" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestTakeJobNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{JobTakeURL: srv.URL})
	job, err := c.TakeJob(context.Background())
	if err != nil {
		t.Fatalf("TakeJob: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job on 204, got %+v", job)
	}
}

func TestTakeJobServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{JobTakeURL: srv.URL})
	if _, err := c.TakeJob(context.Background()); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestSendProgressAndOutput(t *testing.T) {
	type captured struct {
		path string
		body map[string]any
	}
	var calls []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, captured{path: r.URL.Path, body: body})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		PodID:        "pod-7",
		JobStreamURL: srv.URL + "/stream/$ID/$RUNPOD_POD_ID",
		JobDoneURL:   srv.URL + "/done/$ID",
	})

	if err := c.SendProgress(context.Background(), "job-1", map[string]string{"status": "running"}); err != nil {
		t.Fatalf("SendProgress: %v", err)
	}
	if err := c.SendOutput(context.Background(), "job-1", map[string]string{"status": "stopped"}); err != nil {
		t.Fatalf("SendOutput: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 webhook calls, got %d", len(calls))
	}
	if calls[0].path != "/stream/job-1/pod-7" {
		t.Fatalf("stream path = %q, placeholders not expanded", calls[0].path)
	}
	if calls[0].body["status"] != "IN_PROGRESS" {
		t.Fatalf("progress body missing IN_PROGRESS: %v", calls[0].body)
	}
	if calls[1].path != "/done/job-1" {
		t.Fatalf("done path = %q", calls[1].path)
	}
	out, ok := calls[1].body["output"].(map[string]any)
	if !ok || out["status"] != "stopped" {
		t.Fatalf("done body missing output: %v", calls[1].body)
	}
}

func TestWorkerRunsJobAndPostsOutput(t *testing.T) {
	var mu sync.Mutex
	var streamed, done []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/take":
			_, _ = w.Write([]byte(`{"id":"job-1","input":{}}`))
		case r.URL.Path == "/stream/job-1":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			streamed = append(streamed, body)
			mu.Unlock()
		case r.URL.Path == "/done/job-1":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			done = append(done, body)
			mu.Unlock()
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		JobTakeURL:   srv.URL + "/take",
		JobStreamURL: srv.URL + "/stream/$ID",
		JobDoneURL:   srv.URL + "/done/$ID",
	})

	handled := make(chan string, 1)
	handler := func(ctx context.Context, job *Job, progress ProgressFunc) any {
		progress(map[string]string{"status": "running"})
		select {
		case handled <- job.ID:
		default:
		}
		return map[string]string{"status": "stopped"}
	}

	w := NewWorker(c, handler, 50*time.Millisecond, nil)
	if w.Concurrency() != 1 {
		t.Fatalf("concurrency must be pinned to 1, got %d", w.Concurrency())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case id := <-handled:
		if id != "job-1" {
			t.Fatalf("handled unexpected job %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("worker never ran the job")
	}
	// Give the loop a moment to post the terminal output.
	waitFor := time.Now().Add(3 * time.Second)
	for time.Now().Before(waitFor) {
		mu.Lock()
		n := len(done)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	select {
	case <-errc:
	case <-time.After(3 * time.Second):
		t.Fatalf("worker did not stop after cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(streamed) == 0 || streamed[0]["status"] != "IN_PROGRESS" {
		t.Fatalf("progress never streamed: %v", streamed)
	}
	if len(done) == 0 {
		t.Fatalf("terminal output never posted")
	}
	out, ok := done[0]["output"].(map[string]any)
	if !ok || out["status"] != "stopped" {
		t.Fatalf("unexpected terminal output: %v", done[0])
	}
}
