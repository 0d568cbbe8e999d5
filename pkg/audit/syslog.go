package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// SyslogConfig configures a SyslogSink.
type SyslogConfig struct {
	// Network is "udp" or "tcp". Default: "udp".
	Network string

	// Addr is the collector address, host:port.
	Addr string

	// Facility is the syslog facility code. Default: 13 (log audit).
	Facility int

	// AppName appears in the RFC 5424 header. Default: "enact".
	AppName string

	// Hostname appears in the RFC 5424 header. Defaults to os.Hostname.
	Hostname string
}

// SyslogSink emits one RFC 5424 message per record. Over UDP each message
// is a single datagram; over TCP messages use octet-counting framing.
type SyslogSink struct {
	config SyslogConfig

	mu   sync.Mutex
	conn net.Conn
}

// NewSyslogSink dials the collector and returns the sink.
func NewSyslogSink(config SyslogConfig) (*SyslogSink, error) {
	if config.Network == "" {
		config.Network = "udp"
	}
	if config.Facility == 0 {
		config.Facility = 13
	}
	if config.AppName == "" {
		config.AppName = "enact"
	}
	if config.Hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			h = "-"
		}
		config.Hostname = h
	}

	conn, err := net.Dial(config.Network, config.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial syslog %s %s: %w", config.Network, config.Addr, err)
	}
	return &SyslogSink{config: config, conn: conn}, nil
}

// Log frames the record as RFC 5424 and writes it to the collector.
// A failed write triggers a single redial before giving up.
func (s *SyslogSink) Log(_ context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return &SinkError{Sink: "syslog", Cause: err}
	}
	msg := s.frame(rec.Timestamp, payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Write(msg); err != nil {
		if rerr := s.redialLocked(); rerr != nil {
			return &SinkError{Sink: "syslog", Cause: err}
		}
		if _, err := s.conn.Write(msg); err != nil {
			return &SinkError{Sink: "syslog", Cause: err}
		}
	}
	return nil
}

// frame builds the RFC 5424 wire form:
//
//	<PRI>1 TIMESTAMP HOSTNAME APP-NAME PROCID MSGID SD MSG
//
// Severity is informational (6). TCP transports prepend the octet count.
func (s *SyslogSink) frame(ts time.Time, payload []byte) []byte {
	pri := s.config.Facility*8 + 6
	if ts.IsZero() {
		ts = time.Now()
	}
	header := fmt.Sprintf("<%d>1 %s %s %s %d - - ",
		pri,
		ts.Format(time.RFC3339),
		s.config.Hostname,
		s.config.AppName,
		os.Getpid(),
	)
	msg := append([]byte(header), payload...)

	if s.config.Network == "tcp" {
		framed := append([]byte(strconv.Itoa(len(msg))), ' ')
		return append(framed, msg...)
	}
	return msg
}

func (s *SyslogSink) redialLocked() error {
	s.conn.Close()
	conn, err := net.Dial(s.config.Network, s.config.Addr)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Close closes the connection to the collector.
func (s *SyslogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
