package kardex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sink ships movement batches to the inventory ingestion endpoint. The
// consumer is expected to be idempotent on the batch dedup key, so retrying
// a delivery is always safe.
type Sink struct {
	baseURL    string
	httpClient *http.Client
}

// NewSink constructs a sink client.
func NewSink(baseURL string) *Sink {
	return &Sink{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Ping checks whether the ingestion endpoint is reachable.
func (s *Sink) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", s.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("kardex sink returned status %d", resp.StatusCode)
	}
	return nil
}

// Send posts one batch. It is only ever called after the posting
// transaction committed; a failure here degrades the document to a pending
// kardex status instead of rolling anything back.
func (s *Sink) Send(ctx context.Context, batch *Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("kardex: marshal batch %s: %w", batch.DedupKey, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/kardex", s.baseURL), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kardex: send batch %s: %w", batch.DedupKey, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("kardex: sink rejected batch %s with status %d", batch.DedupKey, resp.StatusCode)
	}
	return nil
}
