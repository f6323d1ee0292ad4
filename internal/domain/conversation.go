package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationStatus is the closed lifecycle of a conversation. Transitions
// are one-directional: in_progress -> completed or in_progress -> abandoned.
type ConversationStatus string

const (
	ConversationInProgress ConversationStatus = "in_progress"
	ConversationCompleted  ConversationStatus = "completed"
	ConversationAbandoned  ConversationStatus = "abandoned"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationInProgress, ConversationCompleted, ConversationAbandoned:
		return true
	default:
		return false
	}
}

func (s ConversationStatus) Terminal() bool {
	return s == ConversationCompleted || s == ConversationAbandoned
}

func (s ConversationStatus) CanTransitionTo(next ConversationStatus) bool {
	return s == ConversationInProgress && next.Terminal()
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Conversation is one respondent's dialogue session against a form. It owns
// its FormResponse (1:1, cascade) and an append-only message history.
type Conversation struct {
	ID        uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	Status    ConversationStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	StartedAt time.Time          `gorm:"not null;index" json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
	Summary   *string            `gorm:"type:text" json:"summary,omitempty"`

	FormResponseID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"form_response_id"`
	FormResponse   *FormResponse `gorm:"foreignKey:FormResponseID;constraint:OnDelete:CASCADE" json:"form_response,omitempty"`

	Messages []*ConversationMessage `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

func (Conversation) TableName() string { return "conversation" }

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now().UTC()
	}
	return nil
}

// ConversationMessage is one turn in the dialogue. Rows are never edited or
// reordered after creation; ordering by (timestamp, seq) reconstructs true
// dialogue order even when two writes land in the same clock tick.
type ConversationMessage struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID   `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Role           MessageRole `gorm:"type:varchar(20);not null" json:"role"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time   `gorm:"not null;index" json:"timestamp"`
	Seq            int64       `gorm:"not null;index" json:"seq"`
	QuestionID     *uuid.UUID  `gorm:"type:uuid" json:"question_id,omitempty"`

	Conversation *Conversation `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ConversationMessage) TableName() string { return "conversation_message" }

func (m *ConversationMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return nil
}
