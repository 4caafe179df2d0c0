package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/speedwagon-io/sensorsim/internal/config"
	"github.com/speedwagon-io/sensorsim/internal/lib/logger/sl"
	"github.com/speedwagon-io/sensorsim/internal/model"
)

// HTTPSink POSTs every batch to a collector endpoint.
type HTTPSink struct {
	log      *slog.Logger
	url      string
	token    string
	encoding string
	client   *http.Client
	retry    backoff
}

func NewHTTPSink(log *slog.Logger, cfg *config.HTTPSinkConfig) (*HTTPSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http sink: url is required")
	}
	if cfg.Encoding != "" && cfg.Encoding != model.EncodingJSON && cfg.Encoding != model.EncodingMsgpack {
		return nil, fmt.Errorf("http sink: unsupported encoding %q", cfg.Encoding)
	}

	return &HTTPSink{
		log:      log,
		url:      cfg.URL,
		token:    cfg.Token,
		encoding: cfg.Encoding,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry: newBackoff(cfg.Retry),
	}, nil
}

func (s *HTTPSink) Name() string {
	return "http"
}

func (s *HTTPSink) Write(ctx context.Context, batch *model.Batch) error {
	data, err := batch.Encode(s.encoding)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.retry.attempts; attempt++ {
		err := s.post(ctx, data)
		if err == nil {
			return nil
		}

		lastErr = err
		s.log.Warn("batch delivery failed",
			slog.Int("step", batch.Step),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.retry.attempts),
			sl.Err(err),
		)

		if attempt < s.retry.attempts {
			if err := s.retry.wait(ctx, attempt); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", s.retry.attempts, lastErr)
}

func (s *HTTPSink) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", model.ContentType(s.encoding))
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

func (s *HTTPSink) Commit(ctx context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSink) Abort() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSink) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("collector unhealthy: status %d", resp.StatusCode)
	}

	return nil
}
