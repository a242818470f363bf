package indexer

import (
	"crypto/sha256"
	"fmt"
)

// CodeUnit is a piece of source handed to the model as context. A unit
// is replaced wholesale when its file changes.
type CodeUnit struct {
	Path      string // slash-separated, relative to the working directory
	Symbol    string // optional, for units smaller than a file
	Lang      Language
	Text      string
	StartLine int
	EndLine   int
	Summary   string // condensed form used for embedding when set
}

// UnitID identifies the unit within a session.
func (u CodeUnit) UnitID() string {
	if u.Symbol == "" {
		return u.Path
	}
	return u.Path + "#" + u.Symbol
}

// Hash fingerprints the unit's content.
func (u CodeUnit) Hash() string {
	h := sha256.New()
	h.Write([]byte(u.Path))
	h.Write([]byte{0})
	h.Write([]byte(u.Text))
	h.Write([]byte{0})
	h.Write([]byte(u.Summary))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// EmbeddingText is what gets embedded for the unit, capped at maxChars
// when positive.
func (u CodeUnit) EmbeddingText(maxChars int) string {
	body := u.Text
	if u.Summary != "" {
		body = u.Summary
	}
	text := u.Path + "\n" + body
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return text
}
