package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ticketer-io/ticketer/internal/api"
	"github.com/ticketer-io/ticketer/internal/session"
	"github.com/ticketer-io/ticketer/pkg/protocol"
)

type fakeArchive struct {
	marked map[string]protocol.Platform
}

func (a *fakeArchive) MarkUploaded(id string, p protocol.Platform) error {
	if a.marked == nil {
		a.marked = make(map[string]protocol.Platform)
	}
	a.marked[id] = p
	return nil
}

func oneTicketState() *session.State {
	s := session.NewState()
	s.Replace([]protocol.Ticket{{ID: "t-1", Subject: "s", Body: "b", EstimationPoints: 3}})
	return s
}

func TestRun_Success(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/ticket" || r.URL.Query().Get("platform") != "ASANA" {
			t.Errorf("unexpected request: %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		var fields protocol.TicketFields
		json.NewDecoder(r.Body).Decode(&fields)
		if fields.Name != "s" || fields.Description != "b" || fields.Estimate != 3 {
			t.Errorf("fields = %+v", fields)
		}
	}))
	defer srv.Close()

	state := oneTicketState()
	archive := &fakeArchive{}
	c := &Controller{Client: api.New(srv.URL, "tok"), State: state, Archive: archive}

	if err := c.Run(context.Background(), "t-1", protocol.PlatformAsana); err != nil {
		t.Fatalf("run: %v", err)
	}
	p, ok := state.UploadedTo("t-1")
	if !ok || p != protocol.PlatformAsana {
		t.Errorf("UploadedTo = %q, %v", p, ok)
	}
	if archive.marked["t-1"] != protocol.PlatformAsana {
		t.Errorf("archive marker = %v", archive.marked)
	}

	// A second push of the same ticket is rejected client-side.
	if err := c.Run(context.Background(), "t-1", protocol.PlatformAsana); !errors.Is(err, ErrAlreadyUploaded) {
		t.Errorf("expected ErrAlreadyUploaded, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("network calls = %d, want 1", calls.Load())
	}
}

func TestRun_PushesEditedFields(t *testing.T) {
	var got protocol.TicketFields
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	state := oneTicketState()
	state.Edit("t-1", protocol.TicketFields{Name: "edited", Description: "b", Estimate: 3})

	c := &Controller{Client: api.New(srv.URL, "tok"), State: state}
	if err := c.Run(context.Background(), "t-1", protocol.PlatformJira); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Name != "edited" {
		t.Errorf("pushed name = %q, want the edited value", got.Name)
	}
}

func TestRun_FailureLeavesMarkerUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("missing project key"))
	}))
	defer srv.Close()

	state := oneTicketState()
	c := &Controller{Client: api.New(srv.URL, "tok"), State: state}

	err := c.Run(context.Background(), "t-1", protocol.PlatformJira)
	var reqErr *api.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Detail != "missing project key" {
		t.Errorf("detail = %q", reqErr.Detail)
	}
	if _, ok := state.UploadedTo("t-1"); ok {
		t.Error("marker set after failure")
	}
	// Still retryable: fix the server and push again.
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer ok.Close()
	c.Client = api.New(ok.URL, "tok")
	if err := c.Run(context.Background(), "t-1", protocol.PlatformJira); err != nil {
		t.Errorf("retry failed: %v", err)
	}
}

func TestRun_InputValidation(t *testing.T) {
	c := &Controller{Client: api.New("http://127.0.0.1:0", "tok"), State: oneTicketState()}

	if err := c.Run(context.Background(), "t-1", ""); !errors.Is(err, ErrNoPlatform) {
		t.Errorf("expected ErrNoPlatform, got %v", err)
	}
	if err := c.Run(context.Background(), "t-1", protocol.Platform("TRELLO")); err == nil {
		t.Error("expected error for unknown platform")
	}
	if err := c.Run(context.Background(), "ghost", protocol.PlatformJira); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
