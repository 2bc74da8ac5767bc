// Package fetch pulls a meeting transcript from a URL so it can be
// uploaded like a local file.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
)

const (
	maxSize      = 1 << 20 // 1MB of extracted text
	fetchTimeout = 30 * time.Second
)

// Transcript is a fetched transcript ready for upload.
type Transcript struct {
	Name string // derived file name, always .txt
	Text string
}

// Fetcher downloads transcripts over HTTP.
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher with a default HTTP client.
func New() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: fetchTimeout}}
}

// NewWithClient creates a Fetcher using the given HTTP client.
func NewWithClient(c *http.Client) *Fetcher {
	return &Fetcher{client: c}
}

// Fetch downloads rawURL and extracts its readable text. HTML pages go
// through readability; anything else is taken as plain text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Transcript, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("fetch: unsupported scheme %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	req.Header.Set("User-Agent", "ticketer/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")

	if !strings.Contains(contentType, "text/html") {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize))
		if err != nil {
			return nil, fmt.Errorf("fetch: read body: %w", err)
		}
		return &Transcript{Name: deriveName(parsed, ""), Text: string(body)}, nil
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse: %w", err)
	}

	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return nil, fmt.Errorf("fetch: render: %w", err)
	}

	text := buf.String()
	if len(text) > maxSize {
		text = text[:maxSize]
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("fetch: no readable text at %s", rawURL)
	}

	return &Transcript{Name: deriveName(parsed, article.Title()), Text: text}, nil
}

// deriveName builds a .txt file name from the page title, falling back
// to the URL path and then the host.
func deriveName(u *url.URL, title string) string {
	base := slugify(title)
	if base == "" {
		base = strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
		base = slugify(base)
	}
	if base == "" || base == "/" || base == "." {
		base = slugify(u.Host)
	}
	if base == "" {
		base = "transcript"
	}
	return base + ".txt"
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
