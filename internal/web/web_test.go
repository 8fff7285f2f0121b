package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/local/hlextract/internal/queue"
	"github.com/local/hlextract/internal/statuscheck"
	"github.com/local/hlextract/internal/store"
)

type fakeQueue struct {
	jobs      []queue.Job
	cancelled []string
	err       error
}

func (q *fakeQueue) Enqueue(_ context.Context, job queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) CancelJob(_ context.Context, id string) error {
	q.cancelled = append(q.cancelled, id)
	return nil
}

type memStatus struct {
	mu sync.Mutex
	m  map[string]store.Status
}

func (s *memStatus) Set(_ context.Context, id string, st store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]store.Status{}
	}
	s.m[id] = st
	return nil
}

func (s *memStatus) Get(_ context.Context, id string) (store.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[id]
	return st, ok, nil
}

type fixedChecker statuscheck.Summary

func (c fixedChecker) Summary(context.Context) statuscheck.Summary { return statuscheck.Summary(c) }

func newServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	New(opts).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateAndGetJob(t *testing.T) {
	q, st := &fakeQueue{}, &memStatus{}
	srv := newServer(t, Options{Queue: q, Status: st, Bucket: "papers"})

	resp := do(t, http.MethodPost, srv.URL+"/jobs", `{"input":"2024/notes.pdf","two_columns":true,"format":"docx"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var cr createResp
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		t.Fatal(err)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("jobs = %v", q.jobs)
	}
	job := q.jobs[0]
	if job.ID != cr.JobID || job.Input != "s3://papers/2024/notes.pdf" || !job.Options.TwoColumns || job.Options.Format != "docx" {
		t.Errorf("job = %+v", job)
	}

	resp = do(t, http.MethodGet, srv.URL+"/jobs/"+cr.JobID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got store.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusQueued {
		t.Errorf("status = %+v", got)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/jobs/nope", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job status = %d", resp.StatusCode)
	}
}

func TestCreateJob_BadRequests(t *testing.T) {
	srv := newServer(t, Options{Queue: &fakeQueue{}, Status: &memStatus{}})
	for _, body := range []string{`{`, `{"input":""}`, `{"input":"a.pdf","format":"rtf"}`, `{"input":"a.pdf","quality":-1}`} {
		if resp := do(t, http.MethodPost, srv.URL+"/jobs", body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d", body, resp.StatusCode)
		}
	}
}

func TestCreateJob_QueueDown(t *testing.T) {
	srv := newServer(t, Options{Queue: &fakeQueue{err: errors.New("dial tcp: refused")}, Status: &memStatus{}})
	if resp := do(t, http.MethodPost, srv.URL+"/jobs", `{"input":"/data/a.pdf"}`); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCancelJob(t *testing.T) {
	q, st := &fakeQueue{}, &memStatus{}
	_ = st.Set(context.Background(), "running", store.Status{Status: store.StatusProcessing})
	_ = st.Set(context.Background(), "done", store.Status{Status: store.StatusSuccess})
	srv := newServer(t, Options{Queue: q, Status: st})

	if resp := do(t, http.MethodDelete, srv.URL+"/jobs/running", ""); resp.StatusCode != http.StatusAccepted {
		t.Errorf("running: status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, srv.URL+"/jobs/done", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("done: status = %d", resp.StatusCode)
	}
	if len(q.cancelled) != 1 || q.cancelled[0] != "running" {
		t.Errorf("cancelled = %v", q.cancelled)
	}
}

func TestBasicAuth(t *testing.T) {
	srv := newServer(t, Options{Queue: &fakeQueue{}, Status: &memStatus{}, Username: "ops", Password: "secret"})
	if resp := do(t, http.MethodGet, srv.URL+"/jobs/x", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no credentials: status = %d", resp.StatusCode)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/jobs/x", nil)
	req.SetBasicAuth("ops", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("with credentials: status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodGet, srv.URL+"/health", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("health: status = %d", resp.StatusCode)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	down := fixedChecker{Redis: statuscheck.Status{Message: "timeout"}, S3: statuscheck.Status{OK: true}, LibreOffice: statuscheck.Status{OK: true}}
	srv := newServer(t, Options{Queue: &fakeQueue{}, Status: &memStatus{}, Checker: down})
	if resp := do(t, http.MethodGet, srv.URL+"/status", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status code = %d", resp.StatusCode)
	}
	resp := do(t, http.MethodGet, srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics code = %d", resp.StatusCode)
	}
}
