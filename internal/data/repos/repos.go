package repos

import (
	"gorm.io/gorm"

	"github.com/talkform/talkform-backend/internal/pkg/logger"
)

// Set bundles the repositories the services are wired with.
type Set struct {
	Forms             FormRepo
	Users             UserRepo
	Conversations     ConversationRepo
	Messages          ConversationMessageRepo
	FormResponses     FormResponseRepo
	QuestionResponses QuestionResponseRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Forms:             NewFormRepo(db, log),
		Users:             NewUserRepo(db, log),
		Conversations:     NewConversationRepo(db, log),
		Messages:          NewConversationMessageRepo(db, log),
		FormResponses:     NewFormResponseRepo(db, log),
		QuestionResponses: NewQuestionResponseRepo(db, log),
	}
}
