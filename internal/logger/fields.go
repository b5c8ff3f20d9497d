package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the Nexus Controller,
// the Control Plane API, and the Backing Device Registry. Use these keys
// consistently across all log statements so aggregation and querying stay
// uniform.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Nexus Controller Operations
	// ========================================================================
	KeyOperation = "operation" // Controller operation name: add_child, offline_child, etc.
	KeyNexusName = "nexus"     // Nexus name the operation targets
	KeyChildName = "child"     // Child URI the operation targets, if any
	KeyState     = "state"     // Nexus/child lifecycle state

	// ========================================================================
	// Backing Device Registry
	// ========================================================================
	KeyBackend    = "backend"     // Registry backend: aio, nvmf, s3
	KeyURI        = "uri"         // Child URI (scheme://...)
	KeyBlockLen   = "block_len"   // Block size in bytes
	KeyNumBlocks  = "num_blocks"  // Number of blocks reported by a child
	KeyAlignment  = "alignment"   // Required I/O alignment in bytes
	KeyLabelEpoch = "label_epoch" // GPT label generation/epoch counter

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // nexus.ErrorCode string
	KeyAttempt    = "attempt"     // Retry attempt number
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for the Controller operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// NexusName returns a slog.Attr for the Nexus name an operation targets.
func NexusName(name string) slog.Attr {
	return slog.String(KeyNexusName, name)
}

// ChildName returns a slog.Attr for the child URI an operation targets.
func ChildName(uri string) slog.Attr {
	return slog.String(KeyChildName, uri)
}

// State returns a slog.Attr for a Nexus or child lifecycle state.
func State(state string) slog.Attr {
	return slog.String(KeyState, state)
}

// Backend returns a slog.Attr for the registry backend name.
func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}

// URI returns a slog.Attr for a child URI.
func URI(uri string) slog.Attr {
	return slog.String(KeyURI, uri)
}

// BlockLen returns a slog.Attr for a block size in bytes.
func BlockLen(n uint32) slog.Attr {
	return slog.Uint64(KeyBlockLen, uint64(n))
}

// NumBlocks returns a slog.Attr for a child's reported block count.
func NumBlocks(n uint64) slog.Attr {
	return slog.Uint64(KeyNumBlocks, n)
}

// Alignment returns a slog.Attr for a required I/O alignment in bytes.
func Alignment(n uint32) slog.Attr {
	return slog.Uint64(KeyAlignment, uint64(n))
}

// LabelEpoch returns a slog.Attr for a GPT label generation counter.
func LabelEpoch(n uint64) slog.Attr {
	return slog.Uint64(KeyLabelEpoch, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a nexus.ErrorCode string.
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}
