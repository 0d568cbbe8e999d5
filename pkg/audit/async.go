package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AsyncSink decouples a slow or flaky sink from the request path.
//
// Log enqueues the record and returns immediately; a background worker
// drains the queue into the wrapped sink. When the queue is full the
// record is dropped and counted, never blocking the caller.
type AsyncSink struct {
	next    Sink
	records chan *Record
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu      sync.Mutex
	dropped int64
}

// NewAsyncSink wraps next with a buffered queue of the given size.
// A size of zero or less defaults to 1000.
func NewAsyncSink(next Sink, size int) *AsyncSink {
	if size <= 0 {
		size = 1000
	}
	s := &AsyncSink{
		next:    next,
		records: make(chan *Record, size),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "audit.async"),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Log enqueues a copy of the record for background delivery.
func (s *AsyncSink) Log(_ context.Context, rec *Record) error {
	cp := *rec
	select {
	case s.records <- &cp:
		return nil
	default:
		s.mu.Lock()
		s.dropped++
		n := s.dropped
		s.mu.Unlock()
		s.logger.Warn("audit queue full, dropping record",
			"correlation_id", rec.CorrelationID,
			"dropped_total", n,
		)
		return &SinkError{Sink: "async", Cause: context.DeadlineExceeded}
	}
}

// Dropped returns the number of records dropped due to a full queue.
func (s *AsyncSink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close drains the queue into the wrapped sink and stops the worker.
func (s *AsyncSink) Close() error {
	close(s.done)
	s.wg.Wait()
	return nil
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()

	for {
		select {
		case rec := <-s.records:
			s.deliver(rec)
		case <-s.done:
			for {
				select {
				case rec := <-s.records:
					s.deliver(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) deliver(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.next.Log(ctx, rec); err != nil {
		s.logger.Error("async audit delivery failed",
			"correlation_id", rec.CorrelationID,
			"error", err,
		)
	}
}
