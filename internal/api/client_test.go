package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ticketer-io/ticketer/pkg/protocol"
)

func TestCheckFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer credential, got %q", r.Header.Get("Authorization"))
		}
		switch r.URL.Path {
		case "/file/standup.txt":
			w.WriteHeader(http.StatusOK)
		case "/file/missing.txt":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token")

	exists, err := c.CheckFile(context.Background(), "standup.txt")
	if err != nil || !exists {
		t.Errorf("existing file: exists=%v err=%v", exists, err)
	}
	exists, err = c.CheckFile(context.Background(), "missing.txt")
	if err != nil || exists {
		t.Errorf("missing file: exists=%v err=%v", exists, err)
	}
	if _, err := c.CheckFile(context.Background(), "broken.txt"); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestUploadTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "standup.txt" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		json.NewEncoder(w).Encode(protocol.UploadBatch{
			Bucket: "transcriptions",
			Files:  []protocol.FileInfo{{Name: "standup.txt", URL: "s3://x", Size: 1.2}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	batch, err := c.UploadTranscript(context.Background(), "standup.txt", strings.NewReader("we talked about things"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if batch.Bucket != "transcriptions" {
		t.Errorf("bucket = %q", batch.Bucket)
	}
	name, ok := batch.FileName()
	if !ok || name != "standup.txt" {
		t.Errorf("file name = %q, %v", name, ok)
	}
}

func TestSubmitGeneration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/file/standup.txt/tickets" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("number_of_tickets"); got != "20" {
			t.Errorf("number_of_tickets = %q", got)
		}
		json.NewEncoder(w).Encode(protocol.GenerationReceipt{Datetime: "20240320175756"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	token, err := c.SubmitGeneration(context.Background(), "standup.txt", 20)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if token != "20240320175756" {
		t.Errorf("token = %q", token)
	}
}

func TestSubmitGeneration_EmptyReceipt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "tok").SubmitGeneration(context.Background(), "f.txt", 20); err == nil {
		t.Error("expected error for receipt without token")
	}
}

func TestPollTickets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("generation_datetime"); got != "202403" {
			t.Errorf("generation_datetime = %q", got)
		}
		json.NewEncoder(w).Encode(protocol.TicketList{Tickets: []protocol.Ticket{
			{ID: "t-1", Subject: "a", EstimationPoints: 3},
		}})
	}))
	defer srv.Close()

	tickets, err := New(srv.URL, "tok").PollTickets(context.Background(), "f.txt", "202403")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(tickets) != 1 || tickets[0].ID != "t-1" {
		t.Errorf("tickets = %+v", tickets)
	}
}

func TestSubmitExpansion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/f.txt/tickets/expand" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var fields protocol.TicketFields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if fields.Name != "big" || fields.Estimate != 5 {
			t.Errorf("fields = %+v", fields)
		}
		json.NewEncoder(w).Encode(protocol.ExpansionReceipt{SubTicketID: "sub-9"})
	}))
	defer srv.Close()

	id, err := New(srv.URL, "tok").SubmitExpansion(context.Background(), "f.txt", "202403",
		protocol.TicketFields{Name: "big", Description: "d", Estimate: 5})
	if err != nil {
		t.Fatalf("submit expansion: %v", err)
	}
	if id != "sub-9" {
		t.Errorf("sub ticket id = %q", id)
	}
}

func TestCreateTicket_ErrorBodySurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("platform"); got != "JIRA" {
			t.Errorf("platform = %q", got)
		}
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("jira rejected the issue"))
	}))
	defer srv.Close()

	err := New(srv.URL, "tok").CreateTicket(context.Background(), protocol.PlatformJira,
		protocol.TicketFields{Name: "n"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", reqErr.StatusCode)
	}
	if reqErr.Detail != "jira rejected the issue" {
		t.Errorf("detail = %q", reqErr.Detail)
	}
}

func TestRequestError_EmptyBodyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").PollTickets(context.Background(), "f.txt", "x")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Detail != "Service Unavailable" {
		t.Errorf("detail = %q", reqErr.Detail)
	}
}
