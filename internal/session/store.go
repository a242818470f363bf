package session

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

const titleLength = 48

// Store keeps sessions in memory for the lifetime of the process.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create starts a session for workingDir.
func (s *Store) Create(workingDir string) *Session {
	now := s.now()
	sess := &Session{
		ID:         uuid.NewString(),
		WorkingDir: filepath.Clean(workingDir),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return clone(sess)
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return clone(sess), true
}

// AppendTurn records a user request and the assistant reply. The first
// request becomes the session title.
func (s *Store) AppendTurn(id, user, assistant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}

	sess.History = append(sess.History,
		engine.ChatMessage{Role: engine.RoleUser, Content: user},
		engine.ChatMessage{Role: engine.RoleAssistant, Content: assistant},
	)
	sess.Turns++
	if sess.Title == "" {
		sess.Title = titleFrom(user)
	}
	sess.UpdatedAt = s.now()
	return nil
}

// SetWorkingDir records the directory the session works in.
func (s *Store) SetWorkingDir(id, workingDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	sess.WorkingDir = filepath.Clean(workingDir)
	sess.UpdatedAt = s.now()
	return nil
}

// AddUsage adds embedding usage to the session totals.
func (s *Store) AddUsage(id string, usage engine.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	sess.EmbeddingUsage = sess.EmbeddingUsage.Add(usage)
	sess.UpdatedAt = s.now()
	return nil
}

// RecordApply adds applied and declined file counts to the totals.
func (s *Store) RecordApply(id string, applied, declined int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	sess.FilesApplied += applied
	sess.FilesDeclined += declined
	sess.UpdatedAt = s.now()
	return nil
}

// History returns the last limit messages, or all when limit <= 0.
func (s *Store) History(id string, limit int) []engine.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	h := sess.History
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]engine.ChatMessage(nil), h...)
}

// List returns all sessions sorted by UpdatedAt (newest first).
func (s *Store) List() []SessionMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metas := make([]SessionMeta, 0, len(s.sessions))
	for _, sess := range s.sessions {
		metas = append(metas, SessionMeta{
			ID:         sess.ID,
			Title:      sess.Title,
			WorkingDir: sess.WorkingDir,
			Turns:      sess.Turns,
			CreatedAt:  sess.CreatedAt,
			UpdatedAt:  sess.UpdatedAt,
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		if metas[i].UpdatedAt.Equal(metas[j].UpdatedAt) {
			return metas[i].ID < metas[j].ID
		}
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas
}

// Delete removes a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func clone(sess *Session) *Session {
	c := *sess
	c.History = append([]engine.ChatMessage(nil), sess.History...)
	return &c
}

func titleFrom(query string) string {
	title := strings.Join(strings.Fields(query), " ")
	if len(title) > titleLength {
		title = strings.TrimSpace(title[:titleLength]) + "..."
	}
	return title
}
