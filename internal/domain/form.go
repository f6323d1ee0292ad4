package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type FormSettings struct {
	WelcomeMessage    string `json:"welcomeMessage,omitempty"`
	CompletionMessage string `json:"completionMessage,omitempty"`
	RetryMessage      string `json:"retryMessage,omitempty"`
	Theme             string `json:"theme,omitempty"`
}

// Form is an authoring-side entity; the conversation engine only reads it.
type Form struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Tone        string    `gorm:"type:varchar(30);not null;default:'neutral'" json:"tone"`
	IsPublished bool      `gorm:"not null;default:false" json:"is_published"`
	MaxRetries  int       `gorm:"not null;default:3" json:"max_retries"`

	Settings datatypes.JSONType[FormSettings] `gorm:"type:jsonb" json:"settings"`
	Summary  *string                          `gorm:"type:text" json:"summary,omitempty"`

	Questions []*Question `gorm:"foreignKey:FormID" json:"questions,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Form) TableName() string { return "form" }

func (f *Form) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

type ValidationRules struct {
	Required   bool     `json:"required,omitempty"`
	MaxRetries int      `json:"maxRetries,omitempty"`
	Options    []string `json:"options,omitempty"`
}

type QuestionMetadata struct {
	Description     string `json:"description,omitempty"`
	HelpText        string `json:"helpText,omitempty"`
	PlaceholderText string `json:"placeholderText,omitempty"`
}

type Question struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FormID uuid.UUID `gorm:"type:uuid;not null;index" json:"form_id"`
	Text   string    `gorm:"type:text;not null" json:"text"`
	Type   string    `gorm:"type:varchar(30);not null;default:'text'" json:"type"`
	Order  int       `gorm:"column:position;not null;default:0" json:"order"`

	ValidationRules datatypes.JSONType[ValidationRules]  `gorm:"type:jsonb" json:"validation_rules"`
	Metadata        datatypes.JSONType[QuestionMetadata] `gorm:"type:jsonb" json:"metadata"`

	Form *Form `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Question) TableName() string { return "question" }

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}
