package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mferraz/profai/internal/api"
	"github.com/mferraz/profai/internal/observability"
)

var (
	ErrEmptyTitle           = errors.New("conversation title must not be empty")
	ErrUnknownSubject       = errors.New("subject is not in the catalog")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidRequestType   = errors.New("invalid request type")
)

// Backend is the slice of the ProfAI API the controller needs.
type Backend interface {
	ListConversations(ctx context.Context) ([]api.Conversation, error)
	CreateConversation(ctx context.Context, title, subject string) (api.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]api.Message, error)
	Exchange(ctx context.Context, req api.ExchangeRequest) (api.Message, error)
}

// EventKind identifies controller state-change notifications.
type EventKind string

const (
	EventMessageAppended      EventKind = "message_appended"
	EventConversationSelected EventKind = "conversation_selected"
	EventConversationCreated  EventKind = "conversation_created"
	EventPendingText          EventKind = "pending_text"
	EventExchangeFailed       EventKind = "exchange_failed"
)

// Event is delivered to the event hook after the state change is committed.
type Event struct {
	Kind           EventKind
	ConversationID string
	Message        *api.Message
	Text           string
}

// Controller owns the conversation list, the active conversation and its
// ordered message history. History is append-only and every producer (typed
// text, staged transcripts, file ingestion) reaches it through Send; nothing
// else mutates it except a wholesale replace on Select.
type Controller struct {
	backend  Backend
	metrics  *observability.Metrics
	subjects []string

	mu            sync.Mutex
	conversations []api.Conversation
	activeID      string
	messages      []api.Message
	pendingText   string
	hook          func(Event)
}

func NewController(backend Backend, subjects []string, metrics *observability.Metrics) *Controller {
	if len(subjects) == 0 {
		subjects = api.DefaultSubjects
	}
	return &Controller{
		backend:  backend,
		metrics:  metrics,
		subjects: subjects,
	}
}

// SetEventHook registers the single observer for state-change events. Events
// fire after the mutation is visible.
func (c *Controller) SetEventHook(hook func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = hook
}

// Subjects returns the catalog of valid conversation subjects.
func (c *Controller) Subjects() []string {
	out := make([]string, len(c.subjects))
	copy(out, c.subjects)
	return out
}

// LoadConversations fetches the conversation list, most recent first. On the
// first successful load, if nothing is selected yet, the most recent
// conversation is auto-selected and its history loaded.
func (c *Controller) LoadConversations(ctx context.Context) error {
	convs, err := c.backend.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	c.mu.Lock()
	c.conversations = convs
	autoSelect := c.activeID == "" && len(convs) > 0
	var first string
	if autoSelect {
		first = convs[0].ID
	}
	c.mu.Unlock()

	if autoSelect {
		return c.Select(ctx, first)
	}
	return nil
}

// Conversations returns a copy of the known conversation list.
func (c *Controller) Conversations() []api.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// Active returns the selected conversation, if any.
func (c *Controller) Active() (api.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *Controller) activeLocked() (api.Conversation, bool) {
	if c.activeID == "" {
		return api.Conversation{}, false
	}
	for _, conv := range c.conversations {
		if conv.ID == c.activeID {
			return conv, true
		}
	}
	return api.Conversation{}, false
}

// Select makes the conversation active and replaces the loaded history with
// its full ordered message list. In-flight work targeting other conversations
// is not cancelled; completions for deselected conversations are discarded
// when they arrive.
func (c *Controller) Select(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	found := false
	for _, conv := range c.conversations {
		if conv.ID == conversationID {
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return ErrConversationNotFound
	}
	c.activeID = conversationID
	hook := c.hook
	c.mu.Unlock()

	if hook != nil {
		hook(Event{Kind: EventConversationSelected, ConversationID: conversationID})
	}

	msgs, err := c.backend.ListMessages(ctx, conversationID)
	if err != nil {
		// The selection stands; the previously rendered history is kept.
		return fmt.Errorf("load messages: %w", err)
	}

	c.mu.Lock()
	if c.activeID == conversationID {
		c.messages = msgs
	}
	c.mu.Unlock()
	return nil
}

// Create registers a new conversation, prepends it to the list and selects it.
func (c *Controller) Create(ctx context.Context, title, subject string) (api.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return api.Conversation{}, ErrEmptyTitle
	}
	if !c.subjectValid(subject) {
		return api.Conversation{}, ErrUnknownSubject
	}

	conv, err := c.backend.CreateConversation(ctx, title, subject)
	if err != nil {
		return api.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	c.mu.Lock()
	c.conversations = append([]api.Conversation{conv}, c.conversations...)
	c.activeID = conv.ID
	c.messages = nil
	hook := c.hook
	c.mu.Unlock()

	if hook != nil {
		hook(Event{Kind: EventConversationCreated, ConversationID: conv.ID})
		hook(Event{Kind: EventConversationSelected, ConversationID: conv.ID})
	}
	return conv, nil
}

func (c *Controller) subjectValid(subject string) bool {
	for _, s := range c.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// Messages returns a copy of the loaded history of the active conversation.
func (c *Controller) Messages() []api.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Send is the single entry point for appending to history. It rejects unknown
// request types, trims the text, silently suppresses the call when the text is
// empty or no conversation is selected, appends the user message
// optimistically, then performs the exchange. On success the tutor reply is appended only if its conversation is
// still the selected one; stale replies are counted and dropped. On failure
// the optimistic user message stays and no tutor message appears.
//
// Concurrent sends are not serialized: when two exchanges overlap, history
// order follows reply completion order, not issuance order.
func (c *Controller) Send(ctx context.Context, reqType api.RequestType, text string) (bool, error) {
	if !reqType.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidRequestType, reqType)
	}
	text = strings.TrimSpace(text)

	c.mu.Lock()
	conv, ok := c.activeLocked()
	if text == "" || !ok {
		c.mu.Unlock()
		return false, nil
	}
	user := api.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Content:        text,
		Role:           api.RoleUser,
		RequestType:    reqType,
		CreatedAt:      time.Now().UTC(),
	}
	c.messages = append(c.messages, user)
	hook := c.hook
	c.mu.Unlock()

	if hook != nil {
		hook(Event{Kind: EventMessageAppended, ConversationID: conv.ID, Message: &user})
	}

	start := time.Now()
	reply, err := c.backend.Exchange(ctx, api.ExchangeRequest{
		ConversationID: conv.ID,
		Message:        text,
		RequestType:    reqType,
		Subject:        conv.Subject,
	})
	if err != nil {
		c.metrics.Exchanges.WithLabelValues(string(reqType), "error").Inc()
		log.Printf("exchange failed for conversation %s: %v", conv.ID, err)
		if hook != nil {
			hook(Event{Kind: EventExchangeFailed, ConversationID: conv.ID, Text: err.Error()})
		}
		return true, err
	}
	c.metrics.Exchanges.WithLabelValues(string(reqType), "ok").Inc()
	c.metrics.ObserveExchangeLatency(time.Since(start))

	c.mu.Lock()
	if c.activeID != conv.ID {
		c.mu.Unlock()
		c.metrics.StaleReplies.Inc()
		log.Printf("dropping tutor reply for deselected conversation %s", conv.ID)
		return true, nil
	}
	c.messages = append(c.messages, reply)
	hook = c.hook
	c.mu.Unlock()

	if hook != nil {
		hook(Event{Kind: EventMessageAppended, ConversationID: conv.ID, Message: &reply})
	}
	return true, nil
}

// StageText places transcribed text in the pending outbound field for the
// user to review and edit. It never sends.
func (c *Controller) StageText(text string) {
	c.mu.Lock()
	c.pendingText = text
	hook := c.hook
	c.mu.Unlock()

	if hook != nil {
		hook(Event{Kind: EventPendingText, Text: text})
	}
}

// PendingText returns the staged outbound text.
func (c *Controller) PendingText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingText
}

// ClearPendingText empties the staged outbound text.
func (c *Controller) ClearPendingText() {
	c.mu.Lock()
	c.pendingText = ""
	c.mu.Unlock()
}
