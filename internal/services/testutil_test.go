package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/talkform/talkform-backend/internal/db"
	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/dbctx"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
	"github.com/talkform/talkform-backend/internal/platform/grok"
	"github.com/talkform/talkform-backend/internal/platform/openai"
)

var dbSeq int
var dbSeqMu sync.Mutex

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbSeqMu.Lock()
	dbSeq++
	name := fmt.Sprintf("svc_test_%d", dbSeq)
	dbSeqMu.Unlock()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func seedUser(t *testing.T, gdb *gorm.DB, quota int) *domain.User {
	t.Helper()
	u := &domain.User{
		Email:             fmt.Sprintf("owner-%s@example.com", uuid.NewString()[:8]),
		ConversationCount: quota,
	}
	if err := gdb.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedForm(t *testing.T, gdb *gorm.DB, userID uuid.UUID, published bool, questions ...string) *domain.Form {
	t.Helper()
	f := &domain.Form{
		UserID:      userID,
		Title:       "Customer Feedback",
		Tone:        "friendly",
		IsPublished: published,
	}
	if err := gdb.Create(f).Error; err != nil {
		t.Fatalf("seed form: %v", err)
	}
	for i, text := range questions {
		q := &domain.Question{
			FormID: f.ID,
			Text:   text,
			Type:   "text",
			Order:  i + 1,
		}
		if err := gdb.Create(q).Error; err != nil {
			t.Fatalf("seed question: %v", err)
		}
		f.Questions = append(f.Questions, q)
	}
	return f
}

func seedOwnedForm(t *testing.T, gdb *gorm.DB) *domain.Form {
	t.Helper()
	owner := seedUser(t, gdb, 20)
	return seedForm(t, gdb, owner.ID, true,
		"What is your name?",
		"How did you hear about us?")
}

// fakeAI scripts the tool-calling model. Each ToolCall in Calls is handed to
// the tool handler in order; GenerateText returns Text.
type fakeAI struct {
	mu        sync.Mutex
	Text      string
	Calls     []openai.ToolCall
	Err       error
	toolRuns  int
	textRuns  int
	lastUser  string
	lastTools []openai.ToolDefinition
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.textRuns++
	f.lastUser = user
	f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if f.Text == "" {
		return "a generated summary", nil
	}
	return f.Text, nil
}

func (f *fakeAI) GenerateWithTools(ctx context.Context, system, user string, tools []openai.ToolDefinition, handle openai.ToolHandler) (string, error) {
	f.mu.Lock()
	f.toolRuns++
	f.lastUser = user
	f.lastTools = tools
	calls := f.Calls
	f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	for _, call := range calls {
		if _, err := handle(ctx, call); err != nil {
			return "", err
		}
	}
	return "done", nil
}

func (f *fakeAI) ToolRuns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toolRuns
}

func dbCtx(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx}
}

func metadataConversationID(t *testing.T, rec *recordStream) uuid.UUID {
	t.Helper()
	for _, e := range rec.Events {
		if e.Event != "metadata" {
			continue
		}
		m, ok := e.Data.(map[string]any)
		if !ok {
			t.Fatalf("metadata payload has unexpected type: %T", e.Data)
		}
		id, ok := m["conversationId"].(uuid.UUID)
		if !ok {
			t.Fatalf("metadata conversationId has unexpected type: %T", m["conversationId"])
		}
		return id
	}
	t.Fatalf("no metadata event recorded")
	return uuid.Nil
}

func toolCall(name string, args []byte) openai.ToolCall {
	return openai.ToolCall{ID: "call_1", Name: name, Arguments: args}
}

// fakeStreamModel emits scripted deltas, then either succeeds with their
// concatenation or fails after emitting them.
type fakeStreamModel struct {
	Deltas []string
	Err    error
}

func (f *fakeStreamModel) StreamChat(ctx context.Context, messages []grok.Message, onDelta func(delta string)) (string, error) {
	var full string
	for _, d := range f.Deltas {
		onDelta(d)
		full += d
	}
	if f.Err != nil {
		return "", f.Err
	}
	return full, nil
}

// fakeCache is a map-backed stand-in for the Redis form cache.
type fakeCache struct {
	mu    sync.Mutex
	forms map[uuid.UUID]*domain.Form
	hits  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{forms: make(map[uuid.UUID]*domain.Form)}
}

func (c *fakeCache) Get(ctx context.Context, formID uuid.UUID) (*domain.Form, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.forms[formID]
	if ok {
		c.hits++
	}
	return f, ok
}

func (c *fakeCache) Set(ctx context.Context, form *domain.Form) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forms[form.ID] = form
}

func (c *fakeCache) Invalidate(ctx context.Context, formID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.forms, formID)
	return nil
}

func (c *fakeCache) Close() error { return nil }

// eventRecord is one frame captured by recordStream.
type eventRecord struct {
	Event string
	Data  any
}

// recordStream captures the SSE frames a turn produces.
type recordStream struct {
	mu     sync.Mutex
	Events []eventRecord
	Deltas []string
}

func (r *recordStream) SendEvent(event string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, eventRecord{Event: event, Data: data})
	return nil
}

func (r *recordStream) SendDelta(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deltas = append(r.Deltas, text)
	return nil
}

func (r *recordStream) eventNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.Events))
	for i, e := range r.Events {
		names[i] = e.Event
	}
	return names
}
