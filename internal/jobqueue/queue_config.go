/*
Package jobqueue configuration - tunable parameters for the maintenance
job queue.

## Quick Configuration Reference:

### Performance Tuning:
- Increase MaxWorkers if sweeps lag behind upload volume
- Lower SweepInterval for tighter retention enforcement

### Reliability Tuning:
- Increase MaxRetries when the database or blob store flap
- Failed jobs retain error information in the River jobs table

## Database Requirements:
- PostgreSQL with River schema migrations applied
- Connection pool configured for concurrent workers
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"

	"github.com/agentrelay/internal/config"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Number of concurrent workers processing jobs (default: 4)

	// Retry Configuration
	MaxRetries int           // Maximum retry attempts per job (default: 10)
	JobTimeout time.Duration // Maximum time a single sweep can run (default: 5 minutes)

	// Maintenance Configuration
	AttachmentRetention time.Duration // How long an unlinked attachment survives (default: 24 hours)
	SweepInterval       time.Duration // How often periodic sweeps run (default: 30 minutes)
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		// Sweeps are cheap; a handful of workers is plenty even on
		// busy instances.
		MaxWorkers: 4,

		MaxRetries: 10,
		JobTimeout: 5 * time.Minute,

		AttachmentRetention: 24 * time.Hour,
		SweepInterval:       30 * time.Minute,
	}
}

// QueueConfigFromApp derives queue settings from the application
// configuration, falling back to defaults for anything unset.
func QueueConfigFromApp(cfg *config.Config) *QueueConfig {
	qc := DefaultQueueConfig()
	if cfg.Maintenance.AttachmentRetentionHours > 0 {
		qc.AttachmentRetention = time.Duration(cfg.Maintenance.AttachmentRetentionHours) * time.Hour
	}
	if cfg.Maintenance.IntervalMinutes > 0 {
		qc.SweepInterval = time.Duration(cfg.Maintenance.IntervalMinutes) * time.Minute
	}
	return qc
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
