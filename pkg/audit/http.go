package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSinkConfig configures an HTTPSink.
type HTTPSinkConfig struct {
	// URL is the endpoint records are POSTed to.
	URL string

	// Headers are added to every request. Content-Type is always
	// application/json.
	Headers map[string]string

	// Timeout bounds each POST. Default: 5 seconds.
	Timeout time.Duration
}

// HTTPSink POSTs each record as a JSON body. A non-2xx response is a
// sink failure.
type HTTPSink struct {
	config HTTPSinkConfig
	client *http.Client
}

// NewHTTPSink creates an HTTP sink for the given configuration.
func NewHTTPSink(config HTTPSinkConfig) *HTTPSink {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &HTTPSink{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Log POSTs the record to the configured endpoint.
func (s *HTTPSink) Log(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return &SinkError{Sink: "http", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return &SinkError{Sink: "http", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &SinkError{Sink: "http", Cause: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SinkError{Sink: "http", Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}
