package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FormResponse is one respondent's submission against a form. CompletedAt is
// set iff the owning conversation reached completed.
type FormResponse struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FormID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"form_id"`
	RespondentEmail *string    `json:"respondent_email,omitempty"`
	RespondentName  *string    `json:"respondent_name,omitempty"`
	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	Form              *Form               `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE" json:"-"`
	QuestionResponses []*QuestionResponse `gorm:"foreignKey:FormResponseID" json:"question_responses,omitempty"`
}

func (FormResponse) TableName() string { return "form_response" }

func (fr *FormResponse) BeforeCreate(tx *gorm.DB) error {
	if fr.ID == uuid.Nil {
		fr.ID = uuid.New()
	}
	if fr.StartedAt.IsZero() {
		fr.StartedAt = time.Now().UTC()
	}
	return nil
}

// QuestionResponse holds one validated answer. At most one row exists per
// (question_id, form_response_id); a later valid answer overwrites in place.
type QuestionResponse struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_question_response_pair,priority:1" json:"question_id"`
	FormResponseID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_question_response_pair,priority:2" json:"form_response_id"`
	Response       string    `gorm:"type:text;not null" json:"response"`
	RetryCount     int       `gorm:"not null;default:0" json:"retry_count"`

	Question     *Question     `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
	FormResponse *FormResponse `gorm:"foreignKey:FormResponseID;constraint:OnDelete:CASCADE" json:"-"`
}

func (QuestionResponse) TableName() string { return "question_response" }

func (qr *QuestionResponse) BeforeCreate(tx *gorm.DB) error {
	if qr.ID == uuid.Nil {
		qr.ID = uuid.New()
	}
	return nil
}
