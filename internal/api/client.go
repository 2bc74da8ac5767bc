package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ticketer-io/ticketer/pkg/protocol"
)

// RequestError is a non-success response from the ticket service. Detail
// carries the response body text verbatim so callers can surface the
// server's own message; when the body is empty it falls back to the
// standard status text.
type RequestError struct {
	StatusCode int
	Detail     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Detail)
}

func newRequestError(status int, body []byte) *RequestError {
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &RequestError{StatusCode: status, Detail: detail}
}

// Client talks to the ticket service. Every request carries the bearer
// credential and resolves its path against the configured base URL.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// New creates a ticket service client rooted at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckFile reports whether a transcript with the given name already
// exists on the service.
func (c *Client) CheckFile(ctx context.Context, name string) (bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/file/"+url.PathEscape(name), "", nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, newRequestError(status, body)
}

// UploadTranscript uploads a transcript as a multipart form and returns
// the resulting batch descriptor.
func (c *Client) UploadTranscript(ctx context.Context, name string, r io.Reader) (*protocol.UploadBatch, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("api: upload form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("api: upload copy: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("api: upload form: %w", err)
	}

	status, body, err := c.do(ctx, http.MethodPost, "/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, newRequestError(status, body)
	}

	var batch protocol.UploadBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("api: decode upload response: %w", err)
	}
	return &batch, nil
}

// SubmitGeneration starts a generation job for the named transcript and
// returns the correlation token for polling.
func (c *Client) SubmitGeneration(ctx context.Context, fileName string, numberOfTickets int) (string, error) {
	path := fmt.Sprintf("/file/%s/tickets?number_of_tickets=%d", url.PathEscape(fileName), numberOfTickets)
	status, body, err := c.do(ctx, http.MethodPost, path, "", nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", newRequestError(status, body)
	}

	var receipt protocol.GenerationReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return "", fmt.Errorf("api: decode generation receipt: %w", err)
	}
	if receipt.Datetime == "" {
		return "", fmt.Errorf("api: generation receipt has no ticket_generation_datetime")
	}
	return receipt.Datetime, nil
}

// PollTickets asks whether the generation job identified by token has
// produced tickets yet. An empty slice with a nil error means not ready.
func (c *Client) PollTickets(ctx context.Context, fileName, token string) ([]protocol.Ticket, error) {
	path := fmt.Sprintf("/file/%s/tickets?generation_datetime=%s", url.PathEscape(fileName), url.QueryEscape(token))
	status, body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, newRequestError(status, body)
	}

	var list protocol.TicketList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("api: decode ticket list: %w", err)
	}
	return list.Tickets, nil
}

// SubmitExpansion asks the service to split one ticket into sub-tickets
// and returns the identifier of the resulting sub-ticket set.
func (c *Client) SubmitExpansion(ctx context.Context, fileName, token string, fields protocol.TicketFields) (string, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("api: marshal expansion: %w", err)
	}
	path := fmt.Sprintf("/file/%s/tickets/expand?generation_datetime=%s", url.PathEscape(fileName), url.QueryEscape(token))
	status, body, err := c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", newRequestError(status, body)
	}

	var receipt protocol.ExpansionReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return "", fmt.Errorf("api: decode expansion receipt: %w", err)
	}
	if receipt.SubTicketID == "" {
		return "", fmt.Errorf("api: expansion receipt has no sub_ticket_id")
	}
	return receipt.SubTicketID, nil
}

// FetchSubTickets retrieves the sub-tickets produced by an expansion.
func (c *Client) FetchSubTickets(ctx context.Context, subTicketID string) ([]protocol.Ticket, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/ticket/sub/"+url.PathEscape(subTicketID), "", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, newRequestError(status, body)
	}

	var list protocol.TicketList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("api: decode sub-ticket list: %w", err)
	}
	return list.Tickets, nil
}

// CreateTicket creates the ticket on the chosen tracking platform.
func (c *Client) CreateTicket(ctx context.Context, platform protocol.Platform, fields protocol.TicketFields) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("api: marshal ticket: %w", err)
	}
	path := "/ticket?platform=" + url.QueryEscape(string(platform))
	status, body, err := c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return newRequestError(status, body)
	}
	return nil
}

// do issues one request with the bearer credential attached and returns
// the status code and the full response body.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("api: read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
