package ports

import (
	"context"
	"time"
)

// UploadSink receives the full normalized message corpus for remote
// aggregation. The wire format and retry policy belong to the implementation;
// the core only debounces and serializes calls (never two uploads in flight).
type UploadSink interface {
	// Upload pushes the complete corpus. A cancelled context aborts the
	// attempt; the core's aggregates are unaffected either way.
	Upload(ctx context.Context, msgs []NormalizedMessage) error
}

// UploadState describes where the background upload currently stands.
type UploadState int

const (
	UploadIdle UploadState = iota
	UploadWaiting
	UploadInFlight
	UploadFailed
)

// String returns the upload state name.
func (s UploadState) String() string {
	switch s {
	case UploadIdle:
		return "idle"
	case UploadWaiting:
		return "waiting"
	case UploadInFlight:
		return "in_flight"
	case UploadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// UploadStatus is surfaced to presentation layers on every snapshot.
// Failures are status values, not errors — the core never retries.
type UploadStatus struct {
	State     UploadState
	LastOK    time.Time
	LastError string
	Uploads   int
	Failures  int
}
