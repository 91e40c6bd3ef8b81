// Package archive implements the read-side overlay that hides archived
// agents and messages, and the archive/unarchive write paths. Readers
// go through QueryWithFallback so a schema that predates the archive
// migration still serves the live feed.
package archive

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/agentrelay/internal/errkind"
)

// Querier is the subset of *sql.DB / *sql.Tx the overlay needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// QueryWithFallback runs the archive-aware statement and, if the store
// reports a missing archive relation, substitutes the structurally
// identical fallback. The substitution is logged, never surfaced: both
// statements must return the same row shape.
func QueryWithFallback(ctx context.Context, q Querier, aware, fallback string, args ...interface{}) (*sql.Rows, error) {
	rows, err := q.QueryContext(ctx, aware, args...)
	if err == nil {
		return rows, nil
	}
	if !errkind.IsUndefinedTable(err) {
		return nil, err
	}

	log.Warn().Err(err).Msg("archive tables missing, serving non-archive-aware query")
	return q.QueryContext(ctx, fallback, args...)
}

// QueryRowWithFallback is QueryWithFallback for single-row statements.
// sql.Row defers errors to Scan, so the caller passes a scan func and
// we retry on the undefined-table error it reports.
func QueryRowWithFallback(ctx context.Context, q Querier, aware, fallback string, scan func(*sql.Row) error, args ...interface{}) error {
	err := scan(q.QueryRowContext(ctx, aware, args...))
	if err == nil {
		return nil
	}
	if !errkind.IsUndefinedTable(err) {
		return err
	}

	log.Warn().Err(err).Msg("archive tables missing, serving non-archive-aware query")
	return scan(q.QueryRowContext(ctx, fallback, args...))
}
