package timesync

import (
	"errors"
	"fmt"

	"github.com/maximewewer/ntp-sync/internal/ntp"
)

var (
	// ErrSyncInProgress is returned by GetDelta when another attempt is in flight
	ErrSyncInProgress = errors.New("sync attempt already in progress")

	// ErrOffline is returned by Sync while the engine is offline
	ErrOffline = errors.New("engine is offline")

	// ErrNoServers is returned by New for an empty server list
	ErrNoServers = errors.New("at least one server is required")

	// ErrInvalidCapacity is returned by New for a non-positive history capacity
	ErrInvalidCapacity = errors.New("history capacity must be positive")
)

// SyncError wraps a failed exchange with the server that was attempted
type SyncError struct {
	Cause  error
	Server ntp.Server
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync with %s failed: %v", e.Server, e.Cause)
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Kind classifies the underlying cause
func (e *SyncError) Kind() string {
	return ntp.ErrorKind(e.Cause)
}
