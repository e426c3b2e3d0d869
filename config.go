package locketdb

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config configures the database instance. Only Paths[0] is used at the
// moment.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string
	// MinimumFreeGB is the free space the first path needs on open.
	MinimumFreeGB int
	// GarbageCollectionInterval between value log garbage collections.
	// Zero disables the background collection.
	GarbageCollectionInterval time.Duration
	// Logger is an optional logger. If nil, logrus.New() is used.
	Logger *logrus.Logger
	// Compress stores lockets lzma compressed.
	Compress bool
	// WorkerCount of the pool running field merges, 0 picks a default.
	WorkerCount int
}
