package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ticketer-io/ticketer/internal/api"
	"github.com/ticketer-io/ticketer/internal/session"
	"github.com/ticketer-io/ticketer/pkg/protocol"
)

// fakeService serves the submit and poll endpoints for one file, returning
// empty ticket lists until readyAfter polls have happened.
type fakeService struct {
	readyAfter int32
	polls      atomic.Int32
	busy       func() bool // session busy flag, checked on every request
	idleSeen   atomic.Bool
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.busy != nil && !f.busy() {
			f.idleSeen.Store(true)
		}
		switch r.Method {
		case http.MethodPost:
			json.NewEncoder(w).Encode(protocol.GenerationReceipt{Datetime: "202403"})
		case http.MethodGet:
			if got := r.URL.Query().Get("generation_datetime"); got != "202403" {
				t.Errorf("generation_datetime = %q", got)
			}
			n := f.polls.Add(1)
			list := protocol.TicketList{Tickets: []protocol.Ticket{}}
			if f.readyAfter > 0 && n >= f.readyAfter {
				list.Tickets = []protocol.Ticket{
					{ID: "t-1", Subject: "a", EstimationPoints: 3},
					{ID: "t-2", Subject: "b", EstimationPoints: 1},
				}
			}
			json.NewEncoder(w).Encode(list)
		}
	})
}

func TestRun_SucceedsAfterFourPolls(t *testing.T) {
	state := session.NewState()
	svc := &fakeService{readyAfter: 4, busy: state.Busy}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := &Controller{
		Client:      api.New(srv.URL, "tok"),
		State:       state,
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	}

	tickets, err := c.Run(context.Background(), "f.txt", 20)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := svc.polls.Load(); got != 4 {
		t.Errorf("poll calls = %d, want 4", got)
	}
	if len(tickets) != 2 {
		t.Errorf("tickets = %d", len(tickets))
	}
	if svc.idleSeen.Load() {
		t.Error("busy flag not held during a request")
	}
	if state.Busy() {
		t.Error("busy flag not cleared after success")
	}
	if got := state.Tickets(); len(got) != 2 || got[0].ID != "t-1" {
		t.Errorf("collection not replaced: %+v", got)
	}
}

func TestRun_TimesOutAfterBudget(t *testing.T) {
	state := session.NewState()
	svc := &fakeService{} // never ready
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := &Controller{
		Client:      api.New(srv.URL, "tok"),
		State:       state,
		Interval:    time.Millisecond,
		MaxAttempts: 3,
	}

	_, err := c.Run(context.Background(), "f.txt", 20)
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeout.Attempts != 3 {
		t.Errorf("attempts = %d", timeout.Attempts)
	}
	if got := svc.polls.Load(); got != 3 {
		t.Errorf("poll calls = %d, want 3", got)
	}
	if state.Busy() {
		t.Error("busy flag not cleared after timeout")
	}
	if len(state.Tickets()) != 0 {
		t.Error("collection should be untouched on timeout")
	}
}

func TestRun_SubmitFailureIsImmediate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("permission denied"))
	}))
	defer srv.Close()

	state := session.NewState()
	c := &Controller{Client: api.New(srv.URL, "tok"), State: state, Interval: time.Millisecond}

	_, err := c.Run(context.Background(), "f.txt", 20)
	var reqErr *api.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Detail != "permission denied" {
		t.Errorf("detail = %q", reqErr.Detail)
	}
	if state.Busy() {
		t.Error("busy flag not cleared after submit failure")
	}
}

func TestRun_RejectsOverlappingJob(t *testing.T) {
	state := session.NewState()
	if !state.TryBeginJob() {
		t.Fatal("claim failed")
	}
	defer state.EndJob()

	c := &Controller{Client: api.New("http://127.0.0.1:0", "tok"), State: state}
	if _, err := c.Run(context.Background(), "f.txt", 20); !errors.Is(err, session.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestRun_CancelStopsPolling(t *testing.T) {
	state := session.NewState()
	svc := &fakeService{} // never ready
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Client:      api.New(srv.URL, "tok"),
		State:       state,
		Interval:    time.Hour, // cancellation must interrupt the wait
		MaxAttempts: 5,
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx, "f.txt", 20)
		done <- err
	}()

	// Let the first poll happen, then cancel during the wait.
	for svc.polls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	if state.Busy() {
		t.Error("busy flag not cleared after cancellation")
	}
}
