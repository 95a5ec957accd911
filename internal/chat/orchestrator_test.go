package chat

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/momotalk/internal/completion"
	"github.com/zulandar/momotalk/internal/config"
	"github.com/zulandar/momotalk/internal/db"
	"github.com/zulandar/momotalk/internal/models"
	"github.com/zulandar/momotalk/internal/store"
)

// fakeCompleter records every call and answers with reply or err.
type fakeCompleter struct {
	mu    sync.Mutex
	calls [][]models.Turn
	model string
	reply models.Turn
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, turns []models.Turn, model string) (models.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]models.Turn, len(turns))
	copy(cp, turns)
	f.calls = append(f.calls, cp)
	f.model = model
	if f.err != nil {
		return models.Turn{}, f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) lastCall() []models.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type fixture struct {
	store *store.Store
	fake  *fakeCompleter
	orch  *Orchestrator
	conv  *models.Conversation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	if err := gdb.Create(&models.Student{Name: "Arona", Avatars: "[]", Prompt: "You are Arona."}).Error; err != nil {
		t.Fatal(err)
	}
	s := store.New(gdb)
	conv, err := s.CreateConversation(context.Background(), store.ConversationData{StudentName: "Arona"})
	if err != nil {
		t.Fatal(err)
	}

	fake := &fakeCompleter{reply: models.Turn{Role: models.RoleAssistant, Content: "Hello, Sensei!"}}
	orch := NewOrchestrator(OrchestratorOpts{Store: s, Completer: fake, Model: "deepseek-reasoner"})
	return &fixture{store: s, fake: fake, orch: orch, conv: conv}
}

func (f *fixture) messages(t *testing.T) []models.Message {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), f.conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	return msgs
}

func (f *fixture) add(t *testing.T, role models.Role, content string) {
	t.Helper()
	if _, err := f.store.InsertMessage(context.Background(), store.MessageData{
		ConversationID: f.conv.ID, Role: role, Content: content,
	}); err != nil {
		t.Fatal(err)
	}
}

func summary(msgs []models.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = fmt.Sprintf("%d:%s:%s", m.Index, m.Role, m.Content)
	}
	return strings.Join(parts, " | ")
}

// ---------------------------------------------------------------------------
// Exchange
// ---------------------------------------------------------------------------

func TestExchange_FirstMessageBootstrapsSystem(t *testing.T) {
	f := newFixture(t)

	reply, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "Hi"}, f.conv.ID)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if reply.Role != models.RoleAssistant || reply.Content != "Hello, Sensei!" {
		t.Errorf("reply = %+v", reply)
	}

	want := []models.Turn{
		{Role: models.RoleSystem, Content: "You are Arona."},
		{Role: models.RoleUser, Content: "Hi"},
	}
	if got := f.fake.lastCall(); !reflect.DeepEqual(got, want) {
		t.Errorf("sent = %+v, want %+v", got, want)
	}
	if f.fake.model != "deepseek-reasoner" {
		t.Errorf("model = %q", f.fake.model)
	}

	got := summary(f.messages(t))
	if got != "0:system:You are Arona. | 1:user:Hi | 2:assistant:Hello, Sensei!" {
		t.Errorf("stored = %s", got)
	}
}

func TestExchange_SystemBootstrapExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two"} {
		if _, err := f.orch.Exchange(ctx, models.Turn{Role: models.RoleUser, Content: text}, f.conv.ID); err != nil {
			t.Fatalf("Exchange(%q): %v", text, err)
		}
	}

	systems := 0
	for _, m := range f.messages(t) {
		if m.Role == models.RoleSystem {
			systems++
			if m.Index != 0 {
				t.Errorf("system message at index %d, want 0", m.Index)
			}
		}
	}
	if systems != 1 {
		t.Errorf("system messages = %d, want 1", systems)
	}
	if n := len(f.messages(t)); n != 5 {
		t.Errorf("stored = %d messages, want 5", n)
	}
}

func TestExchange_BootstrapPlacedBeforeExistingHistory(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.RoleUser, "Hi")
	f.add(t, models.RoleAssistant, "Hello")

	if _, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "again"}, f.conv.ID); err != nil {
		t.Fatal(err)
	}

	got := summary(f.messages(t))
	want := "0:system:You are Arona. | 1:user:Hi | 2:assistant:Hello | 3:user:again | 4:assistant:Hello, Sensei!"
	if got != want {
		t.Errorf("stored =\n  %s\nwant\n  %s", got, want)
	}
	if first := f.fake.lastCall()[0]; first.Role != models.RoleSystem {
		t.Errorf("first sent turn = %+v, want system", first)
	}
}

func TestExchange_TrailingUserTurnsMerged_RawTurnStored(t *testing.T) {
	f := newFixture(t)
	f.add(t, models.RoleSystem, "persona")
	f.add(t, models.RoleUser, "Hi")
	f.add(t, models.RoleAssistant, "Hello")
	f.add(t, models.RoleUser, "How are")
	f.add(t, models.RoleUser, "you?")

	if _, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "today?"}, f.conv.ID); err != nil {
		t.Fatal(err)
	}

	sent := f.fake.lastCall()
	last := sent[len(sent)-1]
	if last.Role != models.RoleUser || last.Content != "How are\nyou?\ntoday?" {
		t.Errorf("last sent = %+v", last)
	}
	if len(sent) != 4 {
		t.Errorf("sent %d turns, want 4", len(sent))
	}

	msgs := f.messages(t)
	if msgs[5].Content != "today?" || msgs[5].Index != 5 {
		t.Errorf("stored user turn = %+v, want raw %q at 5", msgs[5], "today?")
	}
}

func TestExchange_CompletionFailureKeepsUserTurn(t *testing.T) {
	f := newFixture(t)
	f.fake.err = &completion.StatusError{StatusCode: 503, Body: "overloaded"}

	_, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "Hi"}, f.conv.ID)
	if err == nil {
		t.Fatal("expected error")
	}
	var se *completion.StatusError
	if !errors.As(err, &se) || se.StatusCode != 503 {
		t.Errorf("err = %v, want wrapped *StatusError", err)
	}

	got := summary(f.messages(t))
	if got != "0:system:You are Arona. | 1:user:Hi" {
		t.Errorf("stored = %s", got)
	}

	// Retry sees the unanswered user turn merged with the new one.
	f.fake.err = nil
	if _, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "Hi?"}, f.conv.ID); err != nil {
		t.Fatal(err)
	}
	sent := f.fake.lastCall()
	if last := sent[len(sent)-1]; last.Content != "Hi\nHi?" {
		t.Errorf("retry sent %q, want merged", last.Content)
	}
}

func TestExchange_ConversationNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "Hi"}, "00000000-0000-4000-8000-000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(f.fake.calls) != 0 {
		t.Error("completer called for missing conversation")
	}
}

func TestExchange_PersonaNotFound(t *testing.T) {
	f := newFixture(t)
	// Drop the FK so the student can be removed out from under the conversation.
	f.store.DB().Exec("PRAGMA foreign_keys = OFF")
	if err := f.store.DB().Where("name = ?", "Arona").Delete(&models.Student{}).Error; err != nil {
		t.Fatal(err)
	}

	_, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "Hi"}, f.conv.ID)
	if !errors.Is(err, ErrPersonaNotFound) {
		t.Fatalf("err = %v, want ErrPersonaNotFound", err)
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Error("ErrPersonaNotFound should match store.ErrNotFound")
	}
	if n := len(f.messages(t)); n != 0 {
		t.Errorf("stored %d messages, want 0", n)
	}
}

func TestExchange_InvalidRole(t *testing.T) {
	f := newFixture(t)
	for _, role := range []models.Role{"", "robot"} {
		_, err := f.orch.Exchange(context.Background(), models.Turn{Role: role, Content: "x"}, f.conv.ID)
		if !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("role %q: err = %v, want ErrInvalidMessage", role, err)
		}
	}
	if n := len(f.messages(t)); n != 0 {
		t.Errorf("stored %d messages, want 0", n)
	}
}

func TestExchange_ConcurrentSameConversation(t *testing.T) {
	f := newFixture(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: fmt.Sprint(i)}, f.conv.ID)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Exchange: %v", err)
		}
	}

	msgs := f.messages(t)
	if len(msgs) != 1+2*n {
		t.Fatalf("stored %d, want %d", len(msgs), 1+2*n)
	}
	for i, m := range msgs {
		if m.Index != i {
			t.Fatalf("msgs[%d].Index = %d", i, m.Index)
		}
	}
	// Serialized exchanges alternate strictly after the system prompt.
	for i := 1; i < len(msgs); i++ {
		want := models.RoleUser
		if i%2 == 0 {
			want = models.RoleAssistant
		}
		if msgs[i].Role != want {
			t.Fatalf("msgs[%d].Role = %s, want %s (%s)", i, msgs[i].Role, want, summary(msgs))
		}
	}
}

// failingStore wraps a real store and fails selected calls.
type failingStore struct {
	*store.Store
	listErr   error
	insertErr func(store.MessageData) error
}

func (f *failingStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListMessages(ctx, conversationID)
}

func (f *failingStore) InsertMessage(ctx context.Context, data store.MessageData) (*models.Message, error) {
	if f.insertErr != nil {
		if err := f.insertErr(data); err != nil {
			return nil, err
		}
	}
	return f.Store.InsertMessage(ctx, data)
}

func failOnRole(role models.Role) func(store.MessageData) error {
	return func(data store.MessageData) error {
		if data.Role == role {
			return &store.StorageError{Op: "insert message", Err: errors.New("disk full")}
		}
		return nil
	}
}

func (f *fixture) withStore(fs *failingStore) {
	fs.Store = f.store
	f.orch = NewOrchestrator(OrchestratorOpts{Store: fs, Completer: f.fake, Model: "deepseek-reasoner"})
}

func TestExchange_UserInsertFailureSkipsCompletion(t *testing.T) {
	f := newFixture(t)
	f.withStore(&failingStore{insertErr: failOnRole(models.RoleUser)})

	_, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "Hi"}, f.conv.ID)
	if Classify(err) != ClassStorage {
		t.Fatalf("err = %v (class %q), want storage", err, Classify(err))
	}
	if len(f.fake.calls) != 0 {
		t.Errorf("completer called %d times, want 0", len(f.fake.calls))
	}
	if got := summary(f.messages(t)); got != "0:system:You are Arona." {
		t.Errorf("stored = %s", got)
	}
}

func TestExchange_ListFailureSkipsEverything(t *testing.T) {
	f := newFixture(t)
	f.withStore(&failingStore{listErr: &store.StorageError{Op: "list messages", Err: errors.New("locked")}})

	_, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "Hi"}, f.conv.ID)
	if Classify(err) != ClassStorage {
		t.Fatalf("err = %v, want storage", err)
	}
	if len(f.fake.calls) != 0 {
		t.Errorf("completer called %d times, want 0", len(f.fake.calls))
	}
	if n := len(f.messages(t)); n != 0 {
		t.Errorf("stored %d messages, want 0", n)
	}
}

func TestExchange_ReplyInsertFailureKeepsEarlierWrites(t *testing.T) {
	f := newFixture(t)
	f.withStore(&failingStore{insertErr: failOnRole(models.RoleAssistant)})

	_, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "Hi"}, f.conv.ID)
	if Classify(err) != ClassStorage {
		t.Fatalf("err = %v, want storage", err)
	}
	if len(f.fake.calls) != 1 {
		t.Errorf("completer called %d times, want 1", len(f.fake.calls))
	}
	if got := summary(f.messages(t)); got != "0:system:You are Arona. | 1:user:Hi" {
		t.Errorf("stored = %s", got)
	}
}

// gateCompleter signals when a completion starts and holds it until
// release is closed.
type gateCompleter struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateCompleter) Complete(ctx context.Context, _ []models.Turn, _ string) (models.Turn, error) {
	close(g.started)
	select {
	case <-g.release:
	case <-ctx.Done():
		return models.Turn{}, ctx.Err()
	}
	return models.Turn{Role: models.RoleAssistant, Content: "done"}, nil
}

func TestAppendMessage_WaitsForRunningExchange(t *testing.T) {
	f := newFixture(t)
	gate := &gateCompleter{started: make(chan struct{}), release: make(chan struct{})}
	f.orch = NewOrchestrator(OrchestratorOpts{Store: f.store, Completer: gate})
	ctx := context.Background()

	exchanged := make(chan error, 1)
	go func() {
		_, err := f.orch.Exchange(ctx, models.Turn{Role: models.RoleUser, Content: "Hi"}, f.conv.ID)
		exchanged <- err
	}()
	<-gate.started

	appended := make(chan error, 1)
	go func() {
		_, err := f.orch.AppendMessage(ctx, store.MessageData{ConversationID: f.conv.ID, Role: models.RoleUser, Content: "manual"})
		appended <- err
	}()

	select {
	case err := <-appended:
		t.Fatalf("AppendMessage returned %v during exchange", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate.release)
	if err := <-exchanged; err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if err := <-appended; err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	want := "0:system:You are Arona. | 1:user:Hi | 2:assistant:done | 3:user:manual"
	if got := summary(f.messages(t)); got != want {
		t.Errorf("stored =\n  %s\nwant\n  %s", got, want)
	}
}

func TestExchange_CancelledWhileWaitingForConversation(t *testing.T) {
	f := newFixture(t)
	gate := &gateCompleter{started: make(chan struct{}), release: make(chan struct{})}
	f.orch = NewOrchestrator(OrchestratorOpts{Store: f.store, Completer: gate})

	exchanged := make(chan error, 1)
	go func() {
		_, err := f.orch.Exchange(context.Background(), models.Turn{Role: models.RoleUser, Content: "Hi"}, f.conv.ID)
		exchanged <- err
	}()
	<-gate.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.orch.Exchange(ctx, models.Turn{Role: models.RoleUser, Content: "later"}, f.conv.ID)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}

	close(gate.release)
	if err := <-exchanged; err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if n := len(f.messages(t)); n != 3 {
		t.Errorf("stored %d messages, want 3", n)
	}
}

// ---------------------------------------------------------------------------
// Classify / Describe
// ---------------------------------------------------------------------------

func TestClassifyAndDescribe(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		class      Class
		descPrefix string
	}{
		{"nil", nil, ClassNone, ""},
		{"invalid", fmt.Errorf("%w: role", ErrInvalidMessage), ClassInvalid, "chat: invalid message"},
		{"store invalid", fmt.Errorf("%w: page", store.ErrInvalid), ClassInvalid, "store: invalid argument"},
		{"not found", fmt.Errorf("%w: conversation", store.ErrNotFound), ClassNotFound, "store: not found"},
		{"persona", ErrPersonaNotFound, ClassNotFound, "chat: persona not found"},
		{"auth", fmt.Errorf("chat: complete: %w", &completion.AuthError{}), ClassCompletionAuth, "LLM chat failed: completion: no API key"},
		{"transport", fmt.Errorf("chat: complete: %w", &completion.TransportError{Err: errors.New("refused")}), ClassCompletionTransport, "LLM chat failed: completion: transport"},
		{"status", fmt.Errorf("chat: complete: %w", &completion.StatusError{StatusCode: 500, Body: "x"}), ClassCompletionStatus, "LLM chat failed: completion: request failed"},
		{"response", fmt.Errorf("chat: complete: %w", &completion.ResponseError{Err: completion.ErrNoChoices}), ClassCompletionResponse, "LLM chat failed: completion: response contained no choices"},
		{"storage", &store.StorageError{Op: "insert message", Err: errors.New("disk full")}, ClassStorage, "store: insert message: disk full"},
		{"other", errors.New("boom"), ClassInternal, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.class {
				t.Errorf("Classify() = %q, want %q", got, tt.class)
			}
			if got := Describe(tt.err); !strings.HasPrefix(got, tt.descPrefix) {
				t.Errorf("Describe() = %q, want prefix %q", got, tt.descPrefix)
			}
		})
	}
}
