package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/talkform/talkform-backend/internal/data/repos"
	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/apierr"
	"github.com/talkform/talkform-backend/internal/pkg/dbctx"
)

func newConversationService(t *testing.T) (ConversationService, *fakeAI, repos.Set, *gorm.DB) {
	t.Helper()
	gdb := openTestDB(t)
	log := testLogger(t)
	set := repos.NewSet(gdb, log)
	ai := &fakeAI{}
	return NewConversationService(gdb, set.Conversations, set.Messages, set.FormResponses, ai, log), ai, set, gdb
}

func TestCreateCascadesFormResponse(t *testing.T) {
	svc, _, set, gdb := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, seedOwnedForm(t, gdb).ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.Status != domain.ConversationInProgress {
		t.Fatalf("unexpected status: got=%q want=%q", conv.Status, domain.ConversationInProgress)
	}

	fr, err := set.FormResponses.GetByID(dbctx.Context{Ctx: ctx}, conv.FormResponseID)
	if err != nil {
		t.Fatalf("form response not created: %v", err)
	}
	if fr.CompletedAt != nil {
		t.Fatalf("new form response should not be completed")
	}

	got, err := svc.GetByFormResponse(ctx, fr.ID)
	if err != nil {
		t.Fatalf("inverse lookup: %v", err)
	}
	if got.ID != conv.ID {
		t.Fatalf("inverse lookup mismatch: got=%s want=%s", got.ID, conv.ID)
	}
}

func TestAppendMessageOrdering(t *testing.T) {
	svc, _, _, gdb := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, seedOwnedForm(t, gdb).ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	contents := []string{"hello", "what's your name?", "Jane", "thanks Jane"}
	roles := []domain.MessageRole{domain.RoleAssistant, domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant}
	for i := range contents {
		if _, err := svc.AppendMessage(ctx, conv.ID, roles[i], contents[i], nil); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := svc.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != len(contents) {
		t.Fatalf("unexpected message count: got=%d want=%d", len(got.Messages), len(contents))
	}
	var lastSeq int64
	for i, m := range got.Messages {
		if m.Content != contents[i] {
			t.Fatalf("message %d out of order: got=%q want=%q", i, m.Content, contents[i])
		}
		if m.Seq <= lastSeq {
			t.Fatalf("seq not strictly increasing at %d: %d after %d", i, m.Seq, lastSeq)
		}
		lastSeq = m.Seq
	}
}

func TestTransitionMonotonic(t *testing.T) {
	svc, _, _, gdb := newConversationService(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	conv, err := svc.Create(ctx, seedOwnedForm(t, gdb).ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Transition(dbc, conv.ID, domain.ConversationCompleted); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	got, err := svc.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.ConversationCompleted {
		t.Fatalf("unexpected status: got=%q", got.Status)
	}
	if got.EndedAt == nil {
		t.Fatalf("endedAt not stamped on terminal transition")
	}

	for _, next := range []domain.ConversationStatus{
		domain.ConversationAbandoned,
		domain.ConversationCompleted,
		domain.ConversationInProgress,
	} {
		err := svc.Transition(dbc, conv.ID, next)
		if !errors.Is(err, apierr.ErrInvalidTransition) {
			t.Fatalf("transition to %q after terminal: got err=%v want ErrInvalidTransition", next, err)
		}
	}
}

func TestListStaleFiltersByThreshold(t *testing.T) {
	svc, _, _, gdb := newConversationService(t)
	ctx := context.Background()

	formID := seedOwnedForm(t, gdb).ID
	old, err := svc.Create(ctx, formID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fresh, err := svc.Create(ctx, formID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cutoff := time.Now().UTC().Add(time.Minute)
	stale, err := svc.ListStale(ctx, cutoff)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected both conversations stale: got=%d", len(stale))
	}

	cutoff = time.Now().UTC().Add(-time.Hour)
	stale, err = svc.ListStale(ctx, cutoff)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected no stale conversations: got=%d", len(stale))
	}
	_ = old
	_ = fresh
}

func TestGenerateSummaryStoresText(t *testing.T) {
	svc, ai, _, gdb := newConversationService(t)
	ai.Text = "the respondent liked the product"
	ctx := context.Background()

	conv, err := svc.Create(ctx, seedOwnedForm(t, gdb).ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.AppendMessage(ctx, conv.ID, domain.RoleUser, "I liked it a lot", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := svc.GenerateSummary(ctx, conv.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got.Summary == nil || *got.Summary != ai.Text {
		t.Fatalf("summary not stored: got=%v", got.Summary)
	}
}
