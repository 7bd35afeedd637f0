package common

const (
	// DefaultPageSize is the size of every page in the database file.
	DefaultPageSize = 4096

	MinPageSize = 1024
	MaxPageSize = 65536

	// PageHeaderSize is the generic header at the start of every page.
	PageHeaderSize = 32

	// DefaultBufferPoolSize is the default number of frames (4MB at the
	// default page size).
	DefaultBufferPoolSize = 1024

	MinBufferPoolSize = 16

	// DefaultLockTimeoutMs bounds how long a lock request may wait.
	DefaultLockTimeoutMs = 5000

	// WALBufferSize is the in-memory log buffer; records larger than this
	// bypass the buffer and go straight to disk.
	WALBufferSize = 64 * 1024

	MaxTableNameLength = 128
	MaxColumnNameLength = 64
	MaxColumnsPerTable = 256

	// MaxTupleSize caps a serialized tuple; larger inserts are rejected.
	MaxTupleSize = 8192

	// DefaultVarcharLength applies when VARCHAR is declared without a length.
	DefaultVarcharLength = 255

	MaxVarcharLength = 4096

	DatabaseFileExtension = ".entropy"
	WALFileExtension      = ".wal"
)
