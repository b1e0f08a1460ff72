package storage

import "time"

// EventWriter is the interface for writing operation events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *OperationEvent)
	Close()
}

// OperationEvent records one dispatched operation call.
type OperationEvent struct {
	RequestID    string
	Timestamp    time.Time
	Operation    string
	ClientID     string
	Transport    string // "mcp", "grpc", "http", "cli"
	Mutating     bool
	PolicyMode   string // "read_only" or "read_write"
	Outcome      string // "ok" or an error kind such as "validation_error"
	Detail       string
	RowsAffected int64
	RowsReturned int32
	LatencyMs    float32
}
