package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Document names a snapshot file published by the mail server exporter.
type Document string

const (
	MessageTracking  Document = "MessageTracking.json"
	SMTPSessions     Document = "SmtpSessions.json"
	QueueStats       Document = "QueueStats.json"
	QueueMessages    Document = "QueueMessages.json"
	ErrorLogs        Document = "ErrorLogs.json"
	ExchangeServices Document = "ExchangeServices.json"
	MailStats        Document = "MailStats.json"
	QueueStatsChart  Document = "QueueStatsChart.json"
	MailStatsChart   Document = "MailStatsChart.json"
)

// Source fetches the raw bytes of one snapshot document.
type Source interface {
	Fetch(ctx context.Context, doc Document) ([]byte, error)
	String() string
}

// StatusError is returned by HTTPSource for non-2xx responses.
type StatusError struct {
	Document   Document
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("snapshot %s: HTTP %d: %s", e.Document, e.StatusCode, e.Body)
}

const maxErrorBody = 512

// HTTPSource reads documents from {base}/{document}.
type HTTPSource struct {
	base   string
	client *http.Client
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// NewHTTPSource creates a source rooted at base with a per-request timeout.
func NewHTTPSource(base string, timeout time.Duration, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		base:   strings.TrimRight(strings.TrimSpace(base), "/"),
		client: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSource) String() string { return s.base }

// Fetch performs one GET. Failures are not retried; the next refresh is the retry.
func (s *HTTPSource) Fetch(ctx context.Context, doc Document) ([]byte, error) {
	u := s.base + "/" + url.PathEscape(string(doc))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", doc, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		blob, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Document: doc, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(blob))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", doc, err)
	}
	return body, nil
}

// DirSource reads documents from a local directory the exporter writes into.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: filepath.Clean(dir)}
}

func (s *DirSource) String() string { return s.dir }

// Dir returns the watched directory.
func (s *DirSource) Dir() string { return s.dir }

func (s *DirSource) Fetch(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.dir, string(doc)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", doc, err)
	}
	return b, nil
}

// NewSource picks a DirSource for filesystem paths and an HTTPSource for
// http(s) URLs.
func NewSource(location string, timeout time.Duration) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("snapshot location required")
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPSource(location, timeout), nil
	}
	location = strings.TrimPrefix(location, "file://")
	info, err := os.Stat(location)
	if err != nil {
		return nil, fmt.Errorf("snapshot dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot dir: %s is not a directory", location)
	}
	return NewDirSource(location), nil
}
