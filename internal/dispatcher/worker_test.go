package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/local/hlextract/internal/orchestrator"
	"github.com/local/hlextract/internal/output"
	"github.com/local/hlextract/internal/queue"
	"github.com/local/hlextract/internal/store"
)

type message struct {
	id      string
	job     queue.Job
	payload []byte
	err     error
}

type fakeQueue struct {
	mu        sync.Mutex
	msgs      chan message
	acked     []string
	delayed   []queue.Job
	dlq       []string
	cancelled map[string]bool
}

func newFakeQueue(msgs ...message) *fakeQueue {
	q := &fakeQueue{msgs: make(chan message, len(msgs)+1), cancelled: map[string]bool{}}
	for _, m := range msgs {
		q.msgs <- m
	}
	return q
}

func (q *fakeQueue) Dequeue(ctx context.Context, _ string, timeout time.Duration) (string, queue.Job, []byte, error) {
	select {
	case m := <-q.msgs:
		return m.id, m.job, m.payload, m.err
	case <-ctx.Done():
		return "", queue.Job{}, nil, ctx.Err()
	case <-time.After(timeout):
		return "", queue.Job{}, nil, nil
	}
}

func (q *fakeQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, id)
	return nil
}

func (q *fakeQueue) IsCancelled(_ context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[id], nil
}

func (q *fakeQueue) EnqueueDelayed(_ context.Context, job queue.Job, _ time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, job)
	return nil
}

func (q *fakeQueue) AddDLQ(_ context.Context, _ []byte, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dlq = append(q.dlq, reason)
	return nil
}

type fakeStatus struct {
	mu   sync.Mutex
	last map[string]store.Status
}

func (s *fakeStatus) Set(_ context.Context, id string, st store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		s.last = map[string]store.Status{}
	}
	s.last[id] = st
	return nil
}

func (s *fakeStatus) get(id string) store.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[id]
}

func newTestWorker(q Queue, st StatusStore, fn processFunc) *Worker {
	w := New(Config{Concurrency: 1, PollTimeout: 10 * time.Millisecond, BaseBackoff: time.Second, MaxAttempts: 3}, q, st, orchestrator.DefaultOptions())
	w.process = fn
	return w
}

func TestHandle_Success(t *testing.T) {
	q, st := newFakeQueue(), &fakeStatus{}
	var got orchestrator.Options
	w := newTestWorker(q, st, func(_ context.Context, in string, opts orchestrator.Options) (orchestrator.Outcome, error) {
		got = opts
		return orchestrator.Outcome{Input: in, Output: "/out/a.docx", Texts: 2}, nil
	})
	job := queue.Job{ID: "j1", Input: "a.pdf", Options: queue.JobOptions{TwoColumns: true, Quality: 150, Format: "docx"}}
	w.handle(context.Background(), "1-0", job, nil)

	if !got.TwoColumns || got.Classify.Quality != 150 || got.Format != output.DOCX {
		t.Errorf("options = %+v", got)
	}
	s := st.get("j1")
	if s.Status != store.StatusSuccess || s.Metadata["output"] != "/out/a.docx" {
		t.Errorf("status = %+v", s)
	}
	if len(q.acked) != 1 || len(q.dlq) != 0 {
		t.Errorf("acked = %v, dlq = %v", q.acked, q.dlq)
	}
}

func TestHandle_FatalGoesToDLQ(t *testing.T) {
	q, st := newFakeQueue(), &fakeStatus{}
	w := newTestWorker(q, st, func(context.Context, string, orchestrator.Options) (orchestrator.Outcome, error) {
		return orchestrator.Outcome{}, fmt.Errorf("%w: a.txt", orchestrator.ErrNotAPDF)
	})
	w.handle(context.Background(), "1-0", queue.Job{ID: "j2", Input: "a.txt"}, []byte("{}"))

	if len(q.dlq) != 1 || len(q.delayed) != 0 {
		t.Errorf("dlq = %v, delayed = %v", q.dlq, q.delayed)
	}
	if st.get("j2").Status != store.StatusFailed {
		t.Errorf("status = %+v", st.get("j2"))
	}
}

func TestHandle_TransientRetries(t *testing.T) {
	q, st := newFakeQueue(), &fakeStatus{}
	w := newTestWorker(q, st, func(context.Context, string, orchestrator.Options) (orchestrator.Outcome, error) {
		return orchestrator.Outcome{}, errors.New("failed to download from S3: connection reset")
	})
	w.handle(context.Background(), "1-0", queue.Job{ID: "j3", Input: "s3://b/a.pdf", Attempt: 1}, nil)
	if len(q.delayed) != 1 || q.delayed[0].Attempt != 2 {
		t.Fatalf("delayed = %+v", q.delayed)
	}
	if st.get("j3").Status != store.StatusQueued {
		t.Errorf("status = %+v", st.get("j3"))
	}

	// Out of attempts.
	w.handle(context.Background(), "1-1", queue.Job{ID: "j3", Input: "s3://b/a.pdf", Attempt: 3}, nil)
	if len(q.dlq) != 1 || len(q.delayed) != 1 {
		t.Errorf("dlq = %v, delayed = %v", q.dlq, q.delayed)
	}
}

func TestHandle_Cancelled(t *testing.T) {
	q, st := newFakeQueue(), &fakeStatus{}
	q.cancelled["j4"] = true
	called := false
	w := newTestWorker(q, st, func(context.Context, string, orchestrator.Options) (orchestrator.Outcome, error) {
		called = true
		return orchestrator.Outcome{}, nil
	})
	w.handle(context.Background(), "1-0", queue.Job{ID: "j4", Input: "a.pdf"}, nil)
	if called || st.get("j4").Status != store.StatusCancelled || len(q.acked) != 1 {
		t.Errorf("called = %v, status = %+v", called, st.get("j4"))
	}
}

func TestHandle_InvalidOptions(t *testing.T) {
	q, st := newFakeQueue(), &fakeStatus{}
	w := newTestWorker(q, st, func(context.Context, string, orchestrator.Options) (orchestrator.Outcome, error) {
		t.Error("process should not run")
		return orchestrator.Outcome{}, nil
	})
	w.handle(context.Background(), "1-0", queue.Job{ID: "j5", Input: "a.pdf", Options: queue.JobOptions{Format: "rtf"}}, nil)
	if len(q.dlq) != 1 {
		t.Errorf("dlq = %v", q.dlq)
	}
}

func TestWorker_StartStop(t *testing.T) {
	done := make(chan string, 2)
	q := newFakeQueue(
		message{id: "1-0", job: queue.Job{ID: "a", Input: "a.pdf"}},
		message{id: "1-1", payload: []byte("{"), err: queue.ErrMalformed},
	)
	w := newTestWorker(q, &fakeStatus{}, func(_ context.Context, in string, _ orchestrator.Options) (orchestrator.Outcome, error) {
		done <- in
		return orchestrator.Outcome{Input: in}, nil
	})
	w.Start(context.Background())

	select {
	case in := <-done:
		if in != "a.pdf" {
			t.Errorf("processed %q", in)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job not processed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	deadline := time.Now().Add(time.Second)
	for {
		q.mu.Lock()
		n := len(q.acked)
		q.mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(q.acked) != 2 || len(q.dlq) != 1 {
		t.Errorf("acked = %v, dlq = %v", q.acked, q.dlq)
	}
}

func TestClassifier(t *testing.T) {
	tests := []struct {
		err              error
		fatal, transient bool
	}{
		{fmt.Errorf("%w: x", orchestrator.ErrInputNotFound), true, false},
		{&ValidationError{Message: "bad"}, true, false},
		{context.DeadlineExceeded, false, true},
		{errors.New("convert to pdf: conversion timeout after 2m0s"), false, true},
		{errors.New("http 503"), false, true},
		{errors.New("mask a.pdf: read pdf: corrupt xref"), false, false},
	}
	for _, tt := range tests {
		if got := isFatalError(tt.err); got != tt.fatal {
			t.Errorf("isFatalError(%v) = %v", tt.err, got)
		}
		if got := isTransientError(tt.err); got != tt.transient {
			t.Errorf("isTransientError(%v) = %v", tt.err, got)
		}
	}
}

func TestRetryBackoff(t *testing.T) {
	base, max := 30*time.Second, 5*time.Minute
	want := []time.Duration{30 * time.Second, time.Minute, 2 * time.Minute, 4 * time.Minute, 5 * time.Minute}
	for i, w := range want {
		if got := retryBackoff(i+1, base, max); got != w {
			t.Errorf("attempt %d: %v, want %v", i+1, got, w)
		}
	}
}

func TestJobError(t *testing.T) {
	err := &JobError{JobID: "j", Input: "a.pdf", Attempt: 2, Err: orchestrator.ErrNotAPDF}
	if !errors.Is(err, orchestrator.ErrNotAPDF) {
		t.Error("JobError should unwrap")
	}
}
