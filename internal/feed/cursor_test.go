package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentrelay/pkg/models"
)

func TestEncodeCursorOrdersByTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	earlier := EncodeCursor(base, models.StreamAgent)
	later := EncodeCursor(base.Add(time.Microsecond), models.StreamAgent)
	assert.Less(t, earlier, later)

	// Sub-second spacing still orders.
	a := EncodeCursor(base.Add(250*time.Millisecond), models.StreamUser)
	b := EncodeCursor(base.Add(300*time.Millisecond), models.StreamUser)
	assert.Less(t, a, b)
}

func TestEncodeCursorDisjointStreams(t *testing.T) {
	// The same instant on both streams must never collide, otherwise a
	// timestamp tie across streams would order unstably.
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)

	agent := EncodeCursor(at, models.StreamAgent)
	user := EncodeCursor(at, models.StreamUser)

	assert.NotEqual(t, agent, user)
	assert.Equal(t, agent+1, user)
}

func TestParseCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 987654000, time.UTC)
	encoded := EncodeCursor(at, models.StreamUser)

	parsed, err := ParseCursor(FormatCursor(encoded))
	assert.NoError(t, err)
	assert.Equal(t, encoded, parsed)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "abc", "-5", "1.5", "1e9"} {
		_, err := ParseCursor(raw)
		assert.Error(t, err, "cursor %q should be rejected", raw)
	}
}
