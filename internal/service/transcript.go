package service

import (
	"context"
	"sync"

	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/contract"
	"grant-assistant-be/pkg/store"
)

const (
	KeyTranscript          = "transcript:current"
	DefaultTranscriptLimit = 500
)

// Transcript keeps the conversation of the active session so drafts can
// carry it. Only the newest limit messages are kept.
type Transcript struct {
	repo   contract.KVRepository
	logger logger.ILogger
	limit  int

	mu       sync.Mutex
	messages []store.Message
}

func NewTranscript(repo contract.KVRepository, log logger.ILogger, limit int) *Transcript {
	if limit <= 0 {
		limit = DefaultTranscriptLimit
	}
	return &Transcript{repo: repo, logger: log, limit: limit}
}

// Load reads the persisted transcript. A broken document starts empty.
func (t *Transcript) Load(ctx context.Context) {
	var messages []store.Message
	if _, err := contract.LoadJSON(ctx, t.repo, KeyTranscript, &messages); err != nil {
		t.logger.Warn("Transcript", "Discarding unreadable transcript", map[string]interface{}{"error": err.Error()})
		messages = nil
	}

	t.mu.Lock()
	t.messages = t.trim(messages)
	t.mu.Unlock()
}

func (t *Transcript) Append(ctx context.Context, msg store.Message) {
	t.mu.Lock()
	t.messages = t.trim(append(t.messages, msg))
	snapshot := append([]store.Message(nil), t.messages...)
	t.mu.Unlock()

	t.save(ctx, snapshot)
}

// Replace swaps the whole transcript, e.g. when a draft is restored.
func (t *Transcript) Replace(ctx context.Context, messages []store.Message) {
	t.mu.Lock()
	t.messages = t.trim(append([]store.Message(nil), messages...))
	snapshot := append([]store.Message(nil), t.messages...)
	t.mu.Unlock()

	t.save(ctx, snapshot)
}

func (t *Transcript) Clear(ctx context.Context) {
	t.Replace(ctx, nil)
}

// All returns a copy of the kept messages, oldest first.
func (t *Transcript) All() []store.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]store.Message{}, t.messages...)
}

func (t *Transcript) trim(messages []store.Message) []store.Message {
	if len(messages) > t.limit {
		return append([]store.Message(nil), messages[len(messages)-t.limit:]...)
	}
	return messages
}

func (t *Transcript) save(ctx context.Context, messages []store.Message) {
	if messages == nil {
		messages = []store.Message{}
	}
	if err := contract.SaveJSON(ctx, t.repo, KeyTranscript, messages); err != nil {
		t.logger.Error("Transcript", "Failed to persist transcript", map[string]interface{}{"error": err.Error()})
	}
}
