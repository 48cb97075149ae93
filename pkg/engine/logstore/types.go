package logstore

import (
	"time"

	"github.com/ssargent/pinkv/pkg/logging"
	"github.com/ssargent/pinkv/pkg/pinned"
)

// BackendName identifies this backend in config and errors.
const BackendName = "logstore"

const (
	activeFileName    = "active.data"
	defaultBufferSize = 64 * 1024
)

// Options configures a log store. Fields tagged with mapstructure can be set
// from the engine.options block of the config file.
type Options struct {
	DataDir string `mapstructure:"-"`

	// FsyncInterval batches fsyncs. Zero syncs on every write.
	FsyncInterval time.Duration `mapstructure:"fsync_interval"`
	// WriteBufferSize is the size of the append buffer.
	WriteBufferSize int `mapstructure:"write_buffer_size"`
	// VerifyChecksums checks the CRC of every record read, not only of
	// reads that ask for it.
	VerifyChecksums bool `mapstructure:"verify_checksums"`
	// MaxPooledBuffer is the largest read buffer returned to the pool.
	MaxPooledBuffer int `mapstructure:"max_pooled_buffer"`

	Families []string        `mapstructure:"-"`
	Logger   *logging.Logger `mapstructure:"-"`
	Observer pinned.Observer `mapstructure:"-"`
}

// LogWriterConfig holds configuration for the log writer
type LogWriterConfig struct {
	FilePath      string        // Path to the active data file
	FsyncInterval time.Duration // How often to fsync (0 = every write)
	BufferSize    int           // Write buffer size
}

// RecoveryResult describes what Open found in the data file.
type RecoveryResult struct {
	RecordsValidated int64
	RecordsTruncated int64
	FileSizeBefore   int64
	FileSizeAfter    int64
	RecoveryTime     time.Duration
}

// Stats holds statistics about the store
type Stats struct {
	Dir         string
	DataFile    string
	Keys        int
	FamilyKeys  map[string]int
	LiveBytes   int64
	DataSize    int64
	Outstanding int
	Families    []string
}

// indexEntry locates the latest live record of a key.
type indexEntry struct {
	key    string
	offset int64
	size   int64
}
