package models

import (
	"time"
)

// Account represents the human operator owning a set of agents
type Account struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// AgentType distinguishes interactive agents from one-way news feeds
type AgentType string

const (
	AgentTypeStandard AgentType = "standard"
	AgentTypeNewsFeed AgentType = "news-feed"
)

// Agent represents one conversation partner, unique by name per account
type Agent struct {
	ID         int64      `json:"id" db:"id"`
	AccountID  int64      `json:"account_id" db:"account_id"`
	Name       string     `json:"name" db:"name"`
	Type       AgentType  `json:"type" db:"agent_type"`
	Position   int        `json:"position" db:"position"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// MessageKind distinguishes plain messages from structured questions
type MessageKind string

const (
	MessageKindPlain    MessageKind = "plain"
	MessageKindQuestion MessageKind = "question"
)

// Message priorities. Urgent is derived, never stored separately.
const (
	PriorityNormal    = 0
	PriorityAttention = 1
	PriorityUrgent    = 2
)

// AgentMessage is an agent-authored event in a conversation
type AgentMessage struct {
	ID                int64       `json:"id" db:"id"`
	AgentID           int64       `json:"agent_id" db:"agent_id"`
	Kind              MessageKind `json:"kind" db:"kind"`
	Content           *string     `json:"content" db:"content"`
	Priority          int         `json:"priority" db:"priority"`
	AllowFreeResponse bool        `json:"allow_free_response" db:"allow_free_response"`
	ReadAt            *time.Time  `json:"read_at,omitempty" db:"read_at"`
	HiddenFromAgent   bool        `json:"hidden_from_agent" db:"hidden_from_agent"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
}

// IsUrgent reports whether the message carries the highest priority
func (m *AgentMessage) IsUrgent() bool {
	return m.Priority >= PriorityUrgent
}

// QuestionOption is one selectable answer of a question message
type QuestionOption struct {
	ID        int64   `json:"id" db:"id"`
	MessageID int64   `json:"message_id" db:"message_id"`
	Text      string  `json:"text" db:"option_text"`
	Benefits  *string `json:"benefits,omitempty" db:"benefits"`
	Downsides *string `json:"downsides,omitempty" db:"downsides"`
	IsDefault bool    `json:"is_default" db:"is_default"`
	Position  int     `json:"position" db:"position"`
}

// UserMessage is a human-authored event, symmetric to AgentMessage
type UserMessage struct {
	ID              int64      `json:"id" db:"id"`
	AgentID         int64      `json:"agent_id" db:"agent_id"`
	Content         *string    `json:"content" db:"content"`
	ReadAt          *time.Time `json:"read_at,omitempty" db:"read_at"`
	HiddenFromAgent bool       `json:"hidden_from_agent" db:"hidden_from_agent"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// UserResponse binds exactly one answer to a question message. The
// at-most-one guarantee lives in the unique constraint on message_id.
type UserResponse struct {
	ID           int64     `json:"id" db:"id"`
	MessageID    int64     `json:"message_id" db:"message_id"`
	OptionID     *int64    `json:"option_id,omitempty" db:"option_id"`
	FreeResponse *string   `json:"free_response,omitempty" db:"free_response"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Attachment is metadata for one encrypted blob. Bytes live in the blob
// store under BlobKey; this row only carries what the feed needs.
type Attachment struct {
	ID            int64     `json:"id" db:"id"`
	AccountID     int64     `json:"-" db:"account_id"`
	AgentID       int64     `json:"agent_id" db:"agent_id"`
	BlobKey       string    `json:"-" db:"blob_key"`
	ContentType   string    `json:"content_type" db:"content_type"`
	SizeBytes     int64     `json:"size_bytes" db:"size_bytes"`
	Width         *int      `json:"width,omitempty" db:"width"`
	Height        *int      `json:"height,omitempty" db:"height"`
	EncryptionIV  string    `json:"encryption_iv" db:"encryption_iv"`
	EncryptionTag string    `json:"encryption_tag" db:"encryption_tag"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// AttachmentLink binds an attachment to exactly one message or response.
// Exactly one of the three target ids is set; Position preserves the
// caller-supplied array order.
type AttachmentLink struct {
	ID             int64  `json:"id" db:"id"`
	AttachmentID   int64  `json:"attachment_id" db:"attachment_id"`
	AgentMessageID *int64 `json:"agent_message_id,omitempty" db:"agent_message_id"`
	UserMessageID  *int64 `json:"user_message_id,omitempty" db:"user_message_id"`
	ResponseID     *int64 `json:"response_id,omitempty" db:"response_id"`
	Position       int    `json:"position" db:"position"`
}

// Stream identifies which side of a conversation authored an event
type Stream string

const (
	StreamAgent Stream = "agent"
	StreamUser  Stream = "user"
)

