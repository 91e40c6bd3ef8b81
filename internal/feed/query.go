package feed

import (
	"fmt"
	"strings"
	"time"
)

// StreamFilter selects which side(s) of the conversation a query reads.
type StreamFilter int

const (
	StreamsBoth StreamFilter = iota
	StreamsAgentOnly
	StreamsUserOnly
)

// Query describes one feed fetch. Fields compose into a fixed
// parameterized statement; no caller-supplied text ever reaches the
// SQL string.
type Query struct {
	AgentID int64

	// Window: AfterCursor wins when both are set. Since is the legacy
	// whole-timestamp filter kept for old agent clients.
	AfterCursor *int64
	Since       *time.Time

	Streams StreamFilter

	// VisibleToAgent excludes rows hidden from the agent; set on every
	// agent-side read.
	VisibleToAgent bool

	// UnreadOnly restricts to rows not yet marked read. The agent
	// response poll uses this when no window is supplied, so a second
	// poll after read-marking comes back empty.
	UnreadOnly bool

	// Descending flips the sort for newest-first reads (latest-message
	// lookups). Poll windows always use ascending order.
	Descending bool

	Limit int
}

const feedColumns = "stream, id, kind, content, priority, allow_free_response, read_at, hidden_from_agent, created_at, cursor"

// SQL renders the query. archiveAware controls whether the statement
// joins archived_messages; the fallback variant must keep an identical
// row shape so the caller never knows which one ran.
func (q Query) SQL(archiveAware bool) (string, []interface{}) {
	args := []interface{}{q.AgentID}

	branchWhere := "WHERE %[1]s.agent_id = $1"
	if q.VisibleToAgent {
		branchWhere += " AND %[1]s.hidden_from_agent = FALSE"
	}
	if q.UnreadOnly {
		branchWhere += " AND %[1]s.read_at IS NULL"
	}

	agentJoin := ""
	userJoin := ""
	if archiveAware {
		agentJoin = "\n\tLEFT JOIN archived_messages ax ON ax.stream = 'agent' AND ax.message_id = m.id"
		userJoin = "\n\tLEFT JOIN archived_messages ux ON ux.stream = 'user' AND ux.message_id = u.id"
	}

	agentBranch := fmt.Sprintf(`SELECT 'agent' AS stream, m.id, m.kind, m.content, m.priority, m.allow_free_response,
		m.read_at, m.hidden_from_agent, m.created_at,
		`+fmt.Sprintf(cursorSQLExpr, "m")+` + %d AS cursor
	FROM agent_messages m%s
	`+fmt.Sprintf(branchWhere, "m"), cursorStreamAgent, agentJoin)
	if archiveAware {
		agentBranch += " AND ax.id IS NULL"
	}

	userBranch := fmt.Sprintf(`SELECT 'user' AS stream, u.id, 'plain' AS kind, u.content, 0 AS priority, FALSE AS allow_free_response,
		u.read_at, u.hidden_from_agent, u.created_at,
		`+fmt.Sprintf(cursorSQLExpr, "u")+` + %d AS cursor
	FROM user_messages u%s
	`+fmt.Sprintf(branchWhere, "u"), cursorStreamUser, userJoin)
	if archiveAware {
		userBranch += " AND ux.id IS NULL"
	}

	var branches []string
	switch q.Streams {
	case StreamsAgentOnly:
		branches = []string{agentBranch}
	case StreamsUserOnly:
		branches = []string{userBranch}
	default:
		branches = []string{agentBranch, userBranch}
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + feedColumns + "\nFROM (\n")
	sb.WriteString(strings.Join(branches, "\nUNION ALL\n"))
	sb.WriteString("\n) events")

	switch {
	case q.AfterCursor != nil:
		args = append(args, *q.AfterCursor)
		sb.WriteString(fmt.Sprintf("\nWHERE cursor > $%d", len(args)))
	case q.Since != nil:
		args = append(args, *q.Since)
		sb.WriteString(fmt.Sprintf("\nWHERE created_at > $%d", len(args)))
	}

	if q.Descending {
		sb.WriteString("\nORDER BY created_at DESC, cursor DESC")
	} else {
		sb.WriteString("\nORDER BY created_at ASC, cursor ASC")
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(fmt.Sprintf("\nLIMIT $%d", len(args)))
	}

	return sb.String(), args
}
