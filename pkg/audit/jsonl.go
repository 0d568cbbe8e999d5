package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONLSink appends one JSON object per line to a file.
//
// Writes are serialized under a mutex so concurrent decisions never
// interleave within a line.
type JSONLSink struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLSink opens (creating if necessary) the file at path for
// appending.
func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	return &JSONLSink{path: path, file: f}, nil
}

// Log appends the record as a single JSON line.
func (s *JSONLSink) Log(_ context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &SinkError{Sink: "jsonl", Cause: err}
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(data); err != nil {
		return &SinkError{Sink: "jsonl", Cause: err}
	}
	return nil
}

// Close closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
