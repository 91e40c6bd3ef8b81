package feed

import (
	"strconv"
	"time"

	"github.com/agentrelay/internal/errkind"
	"github.com/agentrelay/pkg/models"
)

// Cursor values are microsecond-precision creation times shifted one
// decimal digit left, with the low digit identifying the stream
// (agent=0, user=1). That keeps the metric monotonic at sub-second
// resolution and guarantees two streams of one conversation never
// produce the same cursor, so timestamp ties still order stably.
const (
	cursorStreamAgent int64 = 0
	cursorStreamUser  int64 = 1
)

// EncodeCursor computes the cursor for an event at t on the given stream.
func EncodeCursor(t time.Time, stream models.Stream) int64 {
	c := t.UnixMicro() * 10
	if stream == models.StreamUser {
		c += cursorStreamUser
	}
	return c
}

// ParseCursor parses a caller-echoed cursor string.
func ParseCursor(raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errkind.Validation("invalid cursor %q: must be a non-negative integer", raw)
	}
	return v, nil
}

// FormatCursor renders a cursor value the way callers echo it back.
func FormatCursor(v int64) string {
	return strconv.FormatInt(v, 10)
}

// cursorSQLExpr is the SQL equivalent of EncodeCursor for a stream's
// created_at column; the stream digit is added per UNION branch.
const cursorSQLExpr = "(EXTRACT(EPOCH FROM %s.created_at) * 1000000)::BIGINT * 10"
