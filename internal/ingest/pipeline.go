package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mferraz/profai/internal/api"
	"github.com/mferraz/profai/internal/observability"
)

var (
	ErrNoActiveConversation = errors.New("no conversation is selected")
	ErrEmptyExtraction      = errors.New("no text could be extracted from the file")
	ErrFileTooLarge         = errors.New("file exceeds the configured size limit")
)

// TaskState tracks one upload through the pipeline.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	// TaskDiscarded means the upload finished but its target conversation
	// was deselected mid-flight, so the result was dropped.
	TaskDiscarded TaskState = "discarded"
)

// Task is the record of a single upload attempt.
type Task struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Filename       string    `json:"filename"`
	State          TaskState `json:"state"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Uploader sends the file to the extraction endpoint and returns the
// extracted text.
type Uploader interface {
	UploadFile(ctx context.Context, conversationID, filename string, content io.Reader) (string, error)
}

// Chat is the slice of the conversation controller the pipeline needs.
type Chat interface {
	Active() (api.Conversation, bool)
	Send(ctx context.Context, reqType api.RequestType, text string) (bool, error)
}

// Pipeline runs file uploads end to end: upload, extract, then submit the
// extracted text as a help request in the active conversation. A failure at
// any stage leaves the conversation history untouched.
type Pipeline struct {
	uploader Uploader
	chat     Chat
	metrics  *observability.Metrics
	maxBytes int64

	mu    sync.Mutex
	tasks map[string]Task
}

func NewPipeline(uploader Uploader, chat Chat, metrics *observability.Metrics, maxBytes int64) *Pipeline {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	return &Pipeline{
		uploader: uploader,
		chat:     chat,
		metrics:  metrics,
		maxBytes: maxBytes,
		tasks:    make(map[string]Task),
	}
}

// Ingest uploads one file and auto-sends its extracted text into the
// conversation that was active when the upload began. If that conversation is
// deselected before the upload completes, the result is discarded. The
// returned task reflects the final state of the attempt.
func (p *Pipeline) Ingest(ctx context.Context, filename string, content io.Reader) (Task, error) {
	conv, ok := p.chat.Active()
	if !ok {
		return Task{}, ErrNoActiveConversation
	}

	task := Task{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Filename:       filename,
		State:          TaskPending,
		CreatedAt:      time.Now().UTC(),
	}
	p.store(task)

	limited := io.LimitReader(content, p.maxBytes+1)
	extracted, err := p.uploader.UploadFile(ctx, conv.ID, filename, &sizeGuard{r: limited, max: p.maxBytes})
	if err != nil {
		return p.fail(task, fmt.Errorf("upload %s: %w", filename, err))
	}
	if strings.TrimSpace(extracted) == "" {
		return p.fail(task, fmt.Errorf("upload %s: %w", filename, ErrEmptyExtraction))
	}

	// The conversation may have been switched while the upload was in
	// flight. A completed extraction for a deselected conversation is
	// dropped silently; it must never land in another conversation's
	// history.
	if active, ok := p.chat.Active(); !ok || active.ID != task.ConversationID {
		task.State = TaskDiscarded
		p.store(task)
		p.metrics.UploadEvents.WithLabelValues("discarded").Inc()
		log.Printf("discarding extracted text for deselected conversation %s", task.ConversationID)
		return task, nil
	}

	if _, err := p.chat.Send(ctx, api.RequestHelp, extracted); err != nil {
		return p.fail(task, fmt.Errorf("send extracted text from %s: %w", filename, err))
	}

	task.State = TaskSucceeded
	p.store(task)
	p.metrics.UploadEvents.WithLabelValues("ok").Inc()
	return task, nil
}

// Tasks returns the recorded upload attempts, newest first.
func (p *Pipeline) Tasks() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Task, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t)
	}
	sortTasks(out)
	return out
}

// Task returns one upload record by id.
func (p *Pipeline) Task(id string) (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	return t, ok
}

func (p *Pipeline) fail(task Task, err error) (Task, error) {
	task.State = TaskFailed
	task.Error = err.Error()
	p.store(task)
	p.metrics.UploadEvents.WithLabelValues("error").Inc()
	log.Printf("file ingestion failed: %v", err)
	return task, err
}

func (p *Pipeline) store(task Task) {
	p.mu.Lock()
	p.tasks[task.ID] = task
	p.mu.Unlock()
}

func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// sizeGuard fails the read once more than max bytes have been consumed, so
// oversized files are rejected instead of silently truncated.
type sizeGuard struct {
	r    io.Reader
	max  int64
	read int64
}

func (g *sizeGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	g.read += int64(n)
	if g.read > g.max {
		return n, ErrFileTooLarge
	}
	return n, err
}
