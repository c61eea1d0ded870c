// Package session stores per-session question/answer history for the RAG
// system. History is an append-only, bounded exchange log rendered as plain
// text for prompt context.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Exchange is one question/answer pair.
type Exchange struct {
	Question string
	Answer   string
}

// Manager is the session-history backend contract.
type Manager interface {
	Create(ctx context.Context) (string, error)
	AddExchange(ctx context.Context, sessionID, question, answer string) error
	// History renders the most recent exchanges as "User: ...\nAssistant: ..."
	// lines, oldest first. Unknown sessions yield "".
	History(ctx context.Context, sessionID string) (string, error)
	Clear(ctx context.Context, sessionID string) error
}

// MemoryManager is the default in-process Manager.
type MemoryManager struct {
	mu         sync.Mutex
	maxHistory int
	counter    int
	sessions   map[string][]Exchange
}

// NewMemoryManager keeps at most maxHistory exchanges per session.
func NewMemoryManager(maxHistory int) *MemoryManager {
	if maxHistory <= 0 {
		maxHistory = 2
	}
	return &MemoryManager{
		maxHistory: maxHistory,
		sessions:   make(map[string][]Exchange),
	}
}

func (m *MemoryManager) Create(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	id := fmt.Sprintf("session_%d", m.counter)
	m.sessions[id] = nil
	return id, nil
}

func (m *MemoryManager) AddExchange(_ context.Context, sessionID, question, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := append(m.sessions[sessionID], Exchange{Question: question, Answer: answer})
	if len(log) > m.maxHistory {
		log = log[len(log)-m.maxHistory:]
	}
	m.sessions[sessionID] = log
	return nil
}

func (m *MemoryManager) History(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return FormatHistory(m.sessions[sessionID]), nil
}

func (m *MemoryManager) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// FormatHistory renders exchanges oldest-first for prompt context.
func FormatHistory(exchanges []Exchange) string {
	if len(exchanges) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, ex := range exchanges {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("User: ")
		sb.WriteString(ex.Question)
		sb.WriteString("\nAssistant: ")
		sb.WriteString(ex.Answer)
	}
	return sb.String()
}

var _ Manager = (*MemoryManager)(nil)
