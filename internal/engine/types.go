// Package engine orchestrates the capture and recall write/read paths:
// validate → store → enrich → link (enrich and link async) for capture, and delegates to
// the retriever for recall. It owns the worker pool that runs enrichment
// and linking off the capture's hot path.
package engine

import (
	"fmt"
	"time"
)

// EnrichmentJob queues a stored memory for asynchronous enrichment and
// linking. Jobs are created by Capture and drained by worker goroutines.
type EnrichmentJob struct {
	MemoryID  string
	Content   string
	Timestamp time.Time
	Attempt   int
}

// Config holds the worker pool's tuning knobs.
type Config struct {
	// NumWorkers is the number of enrichment/linking worker goroutines.
	NumWorkers int

	// QueueSize is the buffered capacity of the enrichment job queue.
	QueueSize int

	// ShutdownTimeout bounds how long Shutdown waits for workers to drain.
	ShutdownTimeout time.Duration

	// MaxRetries is checked by Validate (must be >= 0) but is not used by
	// the worker pool: a job whose enrichment or linking fails is not
	// requeued. The memory itself stays stored either way.
	MaxRetries int
}

// DefaultConfig returns sensible defaults for interactive development use.
func DefaultConfig() Config {
	return Config{
		NumWorkers:      4,
		QueueSize:       1000,
		ShutdownTimeout: 30 * time.Second,
		MaxRetries:      3,
	}
}

// Validate checks that the config's numeric fields are usable.
func (c *Config) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("NumWorkers must be >= 1, got %d", c.NumWorkers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QueueSize must be >= 1, got %d", c.QueueSize)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("ShutdownTimeout must be >= 0, got %v", c.ShutdownTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}
