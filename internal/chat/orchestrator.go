// Package chat runs one user exchange against a conversation: it makes sure
// the persona prompt is recorded, normalizes the transcript, calls the
// completion endpoint, and records both sides.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/zulandar/momotalk/internal/completion"
	"github.com/zulandar/momotalk/internal/keylock"
	"github.com/zulandar/momotalk/internal/models"
	"github.com/zulandar/momotalk/internal/store"
)

var (
	// ErrInvalidMessage is returned before any I/O when the incoming turn
	// has no usable role.
	ErrInvalidMessage = errors.New("chat: invalid message")

	// ErrPersonaNotFound is returned when a conversation's student cannot
	// be found while bootstrapping the system prompt. It matches
	// store.ErrNotFound.
	ErrPersonaNotFound = fmt.Errorf("chat: persona not found: %w", store.ErrNotFound)
)

// Store is the subset of the transcript store an exchange needs.
type Store interface {
	FindConversation(ctx context.Context, id string) (*models.Conversation, error)
	FindStudent(ctx context.Context, name string) (*models.Student, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	InsertMessage(ctx context.Context, data store.MessageData) (*models.Message, error)
}

// OrchestratorOpts configures an Orchestrator.
type OrchestratorOpts struct {
	Store     Store
	Completer completion.Completer
	Model     string
}

// Orchestrator runs exchanges. Exchanges on the same conversation are
// serialized; different conversations proceed independently.
type Orchestrator struct {
	store     Store
	completer completion.Completer
	model     string
	locks     *keylock.Map
}

// NewOrchestrator creates an Orchestrator from opts.
func NewOrchestrator(opts OrchestratorOpts) *Orchestrator {
	return &Orchestrator{
		store:     opts.Store,
		completer: opts.Completer,
		model:     opts.Model,
		locks:     keylock.New(),
	}
}

// Exchange records incoming in the conversation, asks the completion
// endpoint for a reply, records the reply, and returns it.
//
// Writes are never rolled back. If the completion call fails the incoming
// turn stays stored and no reply is added.
func (o *Orchestrator) Exchange(ctx context.Context, incoming models.Turn, conversationID string) (models.Turn, error) {
	if !incoming.Role.Valid() {
		return models.Turn{}, fmt.Errorf("%w: role %q", ErrInvalidMessage, incoming.Role)
	}
	if conversationID == "" {
		return models.Turn{}, fmt.Errorf("%w: conversation id is required", ErrInvalidMessage)
	}

	unlock, err := o.locks.Lock(ctx, conversationID)
	if err != nil {
		return models.Turn{}, err
	}
	defer unlock()

	logger := log.With().Str("conversation", conversationID).Logger()

	conv, err := o.store.FindConversation(ctx, conversationID)
	if err != nil {
		return models.Turn{}, err
	}
	history, err := o.store.ListMessages(ctx, conversationID)
	if err != nil {
		return models.Turn{}, err
	}

	if !hasSystem(history) {
		sys, err := o.bootstrap(ctx, conv)
		if err != nil {
			return models.Turn{}, err
		}
		logger.Info().Str("student", conv.StudentName).Msg("system prompt bootstrapped")
		history = append([]models.Message{*sys}, history...)
	}

	turns := Normalize(history, incoming)
	logger.Debug().
		Int("raw", len(history)+1).
		Int("normalized", len(turns)).
		Msg("transcript normalized")

	if _, err := o.store.InsertMessage(ctx, store.MessageData{
		ConversationID: conversationID,
		Role:           incoming.Role,
		Content:        incoming.Content,
	}); err != nil {
		return models.Turn{}, err
	}

	reply, err := o.completer.Complete(ctx, turns, o.model)
	if err != nil {
		logger.Warn().Err(err).Bool("retryable", completion.Retryable(err)).Msg("completion failed")
		return models.Turn{}, fmt.Errorf("chat: complete: %w", err)
	}

	if _, err := o.store.InsertMessage(ctx, store.MessageData{
		ConversationID: conversationID,
		Role:           reply.Role,
		Content:        reply.Content,
	}); err != nil {
		return models.Turn{}, err
	}

	logger.Info().Int("reply_len", len(reply.Content)).Msg("exchange complete")
	return reply, nil
}

// AppendMessage stores a message outside an exchange. It waits for any
// exchange running on the same conversation, so the turn never lands
// between that exchange's history read and its writes.
func (o *Orchestrator) AppendMessage(ctx context.Context, data store.MessageData) (*models.Message, error) {
	unlock, err := o.locks.Lock(ctx, data.ConversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return o.store.InsertMessage(ctx, data)
}

// bootstrap stores the student's prompt as the system message at index 0.
func (o *Orchestrator) bootstrap(ctx context.Context, conv *models.Conversation) (*models.Message, error) {
	st, err := o.store.FindStudent(ctx, conv.StudentName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: conversation %s references student %q", ErrPersonaNotFound, conv.ID, conv.StudentName)
	}
	if err != nil {
		return nil, err
	}

	zero := 0
	return o.store.InsertMessage(ctx, store.MessageData{
		ConversationID: conv.ID,
		Role:           models.RoleSystem,
		Content:        st.Prompt,
		Index:          &zero,
	})
}

func hasSystem(history []models.Message) bool {
	for _, m := range history {
		if m.Role == models.RoleSystem {
			return true
		}
	}
	return false
}
