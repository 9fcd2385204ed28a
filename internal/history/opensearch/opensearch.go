// Package opensearch indexes watch history documents over the OpenSearch
// (or Elasticsearch) REST API.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/sasswatch/internal/history"
)

type Options struct {
	BaseURL  string
	Index    string
	Username string
	Password string
	Timeout  time.Duration
}

// Sink POSTs one document per event to <BaseURL>/<Index>/_doc.
type Sink struct {
	client *http.Client
	opts   Options
	docURL string
}

// document is the indexed shape; flat so every field can be mapped.
type document struct {
	Timestamp time.Time  `json:"@timestamp"`
	Event     string     `json:"event"`
	Dir       string     `json:"dir"`
	PID       int        `json:"pid,omitempty"`
	Target    string     `json:"target,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func New(opts Options) *Sink {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Sink{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		docURL: fmt.Sprintf("%s/%s/_doc", opts.BaseURL, opts.Index),
	}
}

func newDocument(e history.Event) document {
	d := document{
		Timestamp: e.OccurredAt.UTC(),
		Event:     string(e.Type),
		Dir:       e.Record.Dir,
		PID:       e.Record.PID,
		Target:    e.Record.Target,
		Error:     e.Error,
	}
	if !e.Record.StartedAt.IsZero() {
		t := e.Record.StartedAt.UTC()
		d.StartedAt = &t
	}
	return d
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(newDocument(e))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.docURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.opts.Username != "" {
		req.SetBasicAuth(s.opts.Username, s.opts.Password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
