package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/talkform/talkform-backend/internal/domain"
)

const streamSystemPrompt = "You are a helpful assistant guiding users through a form. " +
	"Keep your responses concise, friendly, and natural-sounding."

const toolSystemPrompt = "You are a helpful, conversational assistant reviewing the user's " +
	"responses for forms and executing the available tools."

const conversationSummarySystemPrompt = "You are a helpful assistant going through conversation " +
	"messages and generating a summary of the conversation."

const formSummarySystemPrompt = "You are a helpful assistant analyzing conversation summaries " +
	"to generate a summary of a form's responses."

// chatPromptInput is everything one turn's prompt is assembled from. The same
// prompt feeds both model passes so they reason over identical context.
type chatPromptInput struct {
	Form           *domain.Form
	ConversationID uuid.UUID
	FormResponseID uuid.UUID
	// CurrentQuestion is the question most recently presented, when known.
	// On a restored session it is empty and the model works from history.
	CurrentQuestion string
	Answer          string
	Messages        []*domain.ConversationMessage
}

// buildChatPrompt renders the per-turn prompt: form definition with ordered
// questions and validation rules, the identifiers tool calls must echo back,
// the outstanding question, the user's latest answer, and the full history.
func buildChatPrompt(in chatPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are conducting a conversational form titled %q.\n", in.Form.Title)
	if in.Form.Description != "" {
		fmt.Fprintf(&b, "Form purpose: %s\n", in.Form.Description)
	}
	if in.Form.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", in.Form.Tone)
	}

	settings := in.Form.Settings.Data()
	if settings.WelcomeMessage != "" {
		fmt.Fprintf(&b, "Welcome message: %s\n", settings.WelcomeMessage)
	}
	if settings.CompletionMessage != "" {
		fmt.Fprintf(&b, "Completion message: %s\n", settings.CompletionMessage)
	}
	if settings.RetryMessage != "" {
		fmt.Fprintf(&b, "Retry message: %s\n", settings.RetryMessage)
	}

	b.WriteString("\nQuestions, in order:\n")
	for i, q := range in.Form.Questions {
		rules := q.ValidationRules.Data()
		fmt.Fprintf(&b, "%d. [id=%s] (%s) %s", i+1, q.ID, q.Type, q.Text)
		var constraints []string
		if rules.Required {
			constraints = append(constraints, "required")
		}
		if len(rules.Options) > 0 {
			constraints = append(constraints, "options: "+strings.Join(rules.Options, ", "))
		}
		if rules.MaxRetries > 0 {
			constraints = append(constraints, fmt.Sprintf("max retries: %d", rules.MaxRetries))
		}
		if len(constraints) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(constraints, "; "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nConversation id: %s\n", in.ConversationID)
	fmt.Fprintf(&b, "Form response id: %s\n", in.FormResponseID)
	fmt.Fprintf(&b, "Form owner user id: %s\n", in.Form.UserID)

	if len(in.Messages) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range in.Messages {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}

	if in.CurrentQuestion != "" {
		fmt.Fprintf(&b, "\nCurrent question: %s\n", in.CurrentQuestion)
	}
	if in.Answer != "" {
		fmt.Fprintf(&b, "User's latest answer: %s\n", in.Answer)
	}

	b.WriteString("\nDetermine which question is outstanding, validate the latest answer " +
		"against that question's rules, and either advance to the next question or " +
		"re-ask the current one. If every question has a valid answer, thank the " +
		"respondent and close the form.\n")

	return b.String()
}

func buildConversationSummaryPrompt(conversationID uuid.UUID, messages []*domain.ConversationMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following form-filling conversation (%s) in a short paragraph. ", conversationID)
	b.WriteString("Capture the respondent's answers and overall sentiment; skip pleasantries.\n\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

func buildFormSummaryPrompt(title string, summaries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The form %q has collected the following conversation summaries:\n\n", title)
	for i, s := range summaries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("\nWrite a concise summary of the responses this form has received, " +
		"highlighting recurring themes.\n")
	return b.String()
}
