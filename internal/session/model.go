package session

import (
	"time"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

// Session is one conversation with the assistant about a working directory.
type Session struct {
	ID         string
	WorkingDir string
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	History    []engine.ChatMessage

	// Totals across the session.
	Turns          int
	EmbeddingUsage engine.Usage
	FilesApplied   int
	FilesDeclined  int
}

// SessionMeta is a lightweight representation for listing.
type SessionMeta struct {
	ID         string
	Title      string
	WorkingDir string
	Turns      int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
