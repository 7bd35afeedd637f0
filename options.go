package entropy

import (
	"time"

	"github.com/intellect4all/entropy/common"
)

// DatabaseOptions configure Open.
type DatabaseOptions struct {
	// BufferPoolSize is the number of page frames held in memory.
	BufferPoolSize int
	// PageSize is the on-disk page size in bytes.
	PageSize int
	// EnableWAL turns on write-ahead logging and recovery.
	EnableWAL bool
	// EnableCompression compresses pages on disk when they shrink.
	EnableCompression bool
	// CreateIfMissing creates the database file when absent.
	CreateIfMissing bool
	// ErrorIfExists fails Open when the file already exists.
	ErrorIfExists bool
	// StrictMode is accepted but not read by the engine. An INSERT value
	// that cannot be coerced to its column type is always rejected with
	// InvalidArgument.
	StrictMode bool
	// LockTimeout bounds lock waits.
	LockTimeout time.Duration
	// DeadlockDetection enables wait-for-graph cycle checks.
	DeadlockDetection bool
}

// DefaultOptions returns the standard configuration.
func DefaultOptions() DatabaseOptions {
	return DatabaseOptions{
		BufferPoolSize:    common.DefaultBufferPoolSize,
		PageSize:          common.DefaultPageSize,
		EnableWAL:         true,
		CreateIfMissing:   true,
		LockTimeout:       common.DefaultLockTimeoutMs * time.Millisecond,
		DeadlockDetection: true,
	}
}
