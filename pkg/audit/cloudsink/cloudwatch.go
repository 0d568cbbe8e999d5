// Package cloudsink streams audit records to an AWS CloudWatch Logs
// stream.
//
// Records are batched and flushed either when the batch fills or on a
// background interval. The sink follows the PutLogEvents sequence-token
// discipline and creates the log stream (and optionally the group) on
// first write.
package cloudsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"enacthq/enact/pkg/audit"
)

// api is the subset of the CloudWatch Logs client the sink uses.
// Narrowing it keeps the sink testable without AWS credentials.
type api interface {
	CreateLogGroup(ctx context.Context, in *cloudwatchlogs.CreateLogGroupInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, in *cloudwatchlogs.CreateLogStreamInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// Config contains configuration for the CloudWatch sink.
type Config struct {
	// Group is the log group name.
	Group string

	// Stream is the log stream name.
	Stream string

	// Region overrides the default AWS region resolution.
	Region string

	// CreateGroup also creates the log group on first write.
	CreateGroup bool

	// BatchSize flushes when this many records are buffered.
	// Default: 100.
	BatchSize int

	// FlushInterval flushes partial batches in the background.
	// Default: 5 seconds.
	FlushInterval time.Duration
}

// Sink is a batched CloudWatch Logs audit sink.
type Sink struct {
	client api
	config Config
	logger *slog.Logger

	mu            sync.Mutex
	batch         []types.InputLogEvent
	sequenceToken *string
	streamReady   bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New resolves AWS configuration from the environment and returns the
// sink.
func New(ctx context.Context, config Config) (*Sink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewFromClient(cloudwatchlogs.NewFromConfig(cfg), config), nil
}

// NewFromClient creates the sink over an existing client. Tests pass a
// fake implementing the same methods.
func NewFromClient(client api, config Config) *Sink {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}

	s := &Sink{
		client: client,
		config: config,
		logger: slog.Default().With("component", "audit.cloudwatch", "group", config.Group, "stream", config.Stream),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.flushLoop()
	return s
}

// Log buffers the record and flushes when the batch is full.
func (s *Sink) Log(ctx context.Context, rec *audit.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return &audit.SinkError{Sink: "cloudwatch", Cause: err}
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch = append(s.batch, types.InputLogEvent{
		Message:   aws.String(string(payload)),
		Timestamp: aws.Int64(ts.UnixMilli()),
	})

	if len(s.batch) >= s.config.BatchSize {
		return s.flushLocked(ctx)
	}
	return nil
}

// Flush writes any buffered records immediately.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// Close stops the background flusher and writes any remaining records.
func (s *Sink) Close() error {
	close(s.done)
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Flush(ctx)
}

func (s *Sink) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Flush(ctx); err != nil {
				s.logger.Error("background flush failed", "error", err)
			}
			cancel()
		case <-s.done:
			return
		}
	}
}

// flushLocked ships the current batch. Caller must hold the lock.
func (s *Sink) flushLocked(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}

	if !s.streamReady {
		if err := s.ensureStreamLocked(ctx); err != nil {
			return &audit.SinkError{Sink: "cloudwatch", Cause: err}
		}
	}

	events := s.batch
	s.batch = nil

	out, err := s.putEvents(ctx, events, s.sequenceToken)
	if err != nil {
		// Recover once from a stale sequence token: the exception
		// carries the expected one.
		var seqErr *types.InvalidSequenceTokenException
		if errors.As(err, &seqErr) {
			out, err = s.putEvents(ctx, events, seqErr.ExpectedSequenceToken)
		}
	}
	if err != nil {
		// The batch is lost; sinks are best-effort.
		s.logger.Error("put log events failed", "events", len(events), "error", err)
		return &audit.SinkError{Sink: "cloudwatch", Cause: err}
	}

	s.sequenceToken = out.NextSequenceToken
	return nil
}

func (s *Sink) putEvents(ctx context.Context, events []types.InputLogEvent, token *string) (*cloudwatchlogs.PutLogEventsOutput, error) {
	return s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(s.config.Group),
		LogStreamName: aws.String(s.config.Stream),
		LogEvents:     events,
		SequenceToken: token,
	})
}

// ensureStreamLocked creates the stream (and optionally the group) on
// first use. An already-existing stream is not an error.
func (s *Sink) ensureStreamLocked(ctx context.Context) error {
	if s.config.CreateGroup {
		_, err := s.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
			LogGroupName: aws.String(s.config.Group),
		})
		if err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("create log group: %w", err)
		}
	}

	_, err := s.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(s.config.Group),
		LogStreamName: aws.String(s.config.Stream),
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create log stream: %w", err)
	}

	s.streamReady = true
	return nil
}

func isAlreadyExists(err error) bool {
	var exists *types.ResourceAlreadyExistsException
	return errors.As(err, &exists)
}
