package archive

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertRan(t *testing.T, q *stubQuerier, want []string) {
	t.Helper()
	if diff := cmp.Diff(want, q.ran); diff != "" {
		t.Errorf("executed queries mismatch (-want +got):\n%s", diff)
	}
}

type stubQuerier struct {
	ran     []string
	errs    map[string]error
	rowErrs []error
}

func (s *stubQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	s.ran = append(s.ran, query)
	return nil, s.errs[query]
}

func (s *stubQuerier) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	s.ran = append(s.ran, query)
	return nil
}

func TestQueryWithFallbackPrefersAwareQuery(t *testing.T) {
	q := &stubQuerier{errs: map[string]error{}}

	_, err := QueryWithFallback(context.Background(), q, "AWARE", "FALLBACK")
	require.NoError(t, err)
	assertRan(t, q, []string{"AWARE"})
}

func TestQueryWithFallbackRetriesOnMissingTable(t *testing.T) {
	q := &stubQuerier{errs: map[string]error{
		"AWARE": &pq.Error{Code: "42P01"},
	}}

	_, err := QueryWithFallback(context.Background(), q, "AWARE", "FALLBACK")
	require.NoError(t, err)
	assertRan(t, q, []string{"AWARE", "FALLBACK"})
}

func TestQueryWithFallbackPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("connection reset")
	q := &stubQuerier{errs: map[string]error{"AWARE": boom}}

	_, err := QueryWithFallback(context.Background(), q, "AWARE", "FALLBACK")
	assert.ErrorIs(t, err, boom)
	assertRan(t, q, []string{"AWARE"})
}

func TestQueryRowWithFallbackRetriesOnScanError(t *testing.T) {
	q := &stubQuerier{}

	// Scan reports the missing relation on the first pass only.
	calls := 0
	scan := func(*sql.Row) error {
		calls++
		if calls == 1 {
			return &pq.Error{Code: "42P01"}
		}
		return nil
	}

	err := QueryRowWithFallback(context.Background(), q, "AWARE", "FALLBACK", scan)
	require.NoError(t, err)
	assertRan(t, q, []string{"AWARE", "FALLBACK"})
	assert.Equal(t, 2, calls)
}

func TestQueryRowWithFallbackPropagatesScanErrors(t *testing.T) {
	q := &stubQuerier{}

	scan := func(*sql.Row) error { return sql.ErrNoRows }
	err := QueryRowWithFallback(context.Background(), q, "AWARE", "FALLBACK", scan)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assertRan(t, q, []string{"AWARE"})
}
