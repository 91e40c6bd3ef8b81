/*
Package jobqueue provides a River-based job queue running the relay's
background maintenance: purging expired unlinked attachments and
sweeping expired session tokens.

For tuning parameters see queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/agentrelay/internal/attachments"
)

// AttachmentPurgeArgs triggers one sweep over unlinked attachments.
type AttachmentPurgeArgs struct{}

// Kind returns the job kind for River
func (AttachmentPurgeArgs) Kind() string { return "attachment_purge" }

// AttachmentPurgeWorker removes attachments that were uploaded but
// never linked to a message within the retention window, blob first so
// a crash leaves a re-deletable row rather than an orphan blob.
type AttachmentPurgeWorker struct {
	river.WorkerDefaults[AttachmentPurgeArgs]
	pool   *pgxpool.Pool
	blobs  attachments.BlobStore
	config *QueueConfig
}

// Work performs one purge sweep.
func (w *AttachmentPurgeWorker) Work(ctx context.Context, job *river.Job[AttachmentPurgeArgs]) error {
	cutoff := time.Now().Add(-w.config.AttachmentRetention)

	rows, err := w.pool.Query(ctx, `
		SELECT a.id, a.blob_key
		FROM attachments a
		LEFT JOIN attachment_links l ON l.attachment_id = a.id
		WHERE l.id IS NULL AND a.created_at < $1
	`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to query expired attachments: %w", err)
	}

	type candidate struct {
		id  int64
		key string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.key); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan expired attachment: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating expired attachments: %w", err)
	}

	purged := 0
	for _, c := range candidates {
		if err := w.blobs.Delete(ctx, c.key); err != nil {
			log.Error().Err(err).Str("blob_key", c.key).Msg("blob delete failed, keeping row for next sweep")
			continue
		}
		// The link check repeats here: an upload linked between the
		// sweep query and now must survive.
		tag, err := w.pool.Exec(ctx, `
			DELETE FROM attachments a
			WHERE a.id = $1
			AND NOT EXISTS (SELECT 1 FROM attachment_links l WHERE l.attachment_id = a.id)
		`, c.id)
		if err != nil {
			return fmt.Errorf("failed to delete attachment %d: %w", c.id, err)
		}
		purged += int(tag.RowsAffected())
	}

	if purged > 0 {
		log.Info().Int("purged", purged).Msg("expired attachments removed")
	}
	return nil
}

// TokenSweepArgs triggers one sweep over expired session tokens.
type TokenSweepArgs struct{}

// Kind returns the job kind for River
func (TokenSweepArgs) Kind() string { return "token_sweep" }

// TokenSweepWorker deletes session token rows past their expiry so the
// auth_tokens table does not grow without bound.
type TokenSweepWorker struct {
	river.WorkerDefaults[TokenSweepArgs]
	pool *pgxpool.Pool
}

// Work performs one token sweep.
func (w *TokenSweepWorker) Work(ctx context.Context, job *river.Job[TokenSweepArgs]) error {
	tag, err := w.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return fmt.Errorf("failed to sweep expired tokens: %w", err)
	}
	if tag.RowsAffected() > 0 {
		log.Info().Int64("swept", tag.RowsAffected()).Msg("expired session tokens removed")
	}
	return nil
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance with both maintenance
// jobs scheduled periodically.
func NewJobQueue(databaseURL string, config *QueueConfig, blobs attachments.BlobStore) (*JobQueue, error) {
	// Create a pgx connection pool
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Create River client
	workers := river.NewWorkers()
	river.AddWorker(workers, &AttachmentPurgeWorker{pool: pool, blobs: blobs, config: config})
	river.AddWorker(workers, &TokenSweepWorker{pool: pool})

	periodic := []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(config.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return AttachmentPurgeArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(config.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return TokenSweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:       config.RiverQueueConfig(),
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers
func (jq *JobQueue) Stop(ctx context.Context) error {
	defer jq.pool.Close()
	return jq.client.Stop(ctx)
}

// QueuePurgeNow queues an immediate attachment purge, outside the
// periodic schedule.
func (jq *JobQueue) QueuePurgeNow(ctx context.Context) error {
	_, err := jq.client.Insert(ctx, AttachmentPurgeArgs{}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue attachment purge: %w", err)
	}
	return nil
}
