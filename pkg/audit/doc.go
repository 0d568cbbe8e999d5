// Package audit defines the audit record produced for every governance
// decision and the sinks that durably record it.
//
// # Sinks
//
// Each sink implements the Sink interface. The engine fans out to all
// configured sinks in configuration order; a failure in one sink never
// prevents subsequent sinks from receiving the record. Built-in sinks:
//
//   - JSONLSink: one JSON object per line appended to a file
//   - HTTPSink: POST JSON body with configurable headers and timeout
//   - SyslogSink: RFC 5424 framed datagram or stream
//   - cloudsink.Sink: batched cloud log-stream writes (sub-package)
//   - sqlitesink.Store: queryable SQLite store (sub-package)
//
// Sinks are best-effort. The engine does not buffer or retry on sink
// failure; wrap a slow or flaky sink in AsyncSink to decouple it from
// the request path.
package audit
