// Package patch turns model replies into file changes and applies them
// to a working directory.
package patch

import "fmt"

// Action is what a change does to its file.
type Action int

const (
	Modify Action = iota
	Create
	Delete
)

func (a Action) String() string {
	switch a {
	case Modify:
		return "modify"
	case Create:
		return "create"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Kind reports which payload a change carries.
type Kind int

const (
	KindNone Kind = iota
	KindBody
	KindLineRanges
	KindSearchReplace
)

// Replacement swaps the original lines Start..End (0-based, inclusive)
// for Lines. With Insert set, Lines go before original line Start and
// nothing is removed; Start may then equal the line count to append.
// Original, when set, holds the lines the model expected at Start..End
// and is checked before the file is touched.
type Replacement struct {
	Start    int
	End      int
	Lines    []string
	Original []string
	Insert   bool
}

// SearchReplace replaces the first literal occurrence of Search.
type SearchReplace struct {
	Search  string
	Replace string
}

// Change is one intended mutation of one file. Exactly one payload is set
// for Modify; Create uses Body; Delete carries none.
type Change struct {
	Path          string
	Action        Action
	Body          *string
	Replacements  []Replacement
	SearchReplace *SearchReplace
}

// Kind reports which payload is set.
func (c Change) Kind() Kind {
	switch {
	case c.SearchReplace != nil:
		return KindSearchReplace
	case len(c.Replacements) > 0:
		return KindLineRanges
	case c.Body != nil:
		return KindBody
	default:
		return KindNone
	}
}

// Describe renders a one-line summary used in confirmation prompts.
func (c Change) Describe() string {
	switch c.Kind() {
	case KindLineRanges:
		return fmt.Sprintf("%s %s (%d hunk(s))", c.Action, c.Path, len(c.Replacements))
	case KindSearchReplace:
		return fmt.Sprintf("%s %s (search/replace)", c.Action, c.Path)
	case KindBody:
		return fmt.Sprintf("%s %s (full content)", c.Action, c.Path)
	default:
		return fmt.Sprintf("%s %s", c.Action, c.Path)
	}
}

// Status is the outcome of applying one change.
type Status int

const (
	Applied Status = iota
	SkippedNotFound
	SkippedUserDeclined
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case SkippedNotFound:
		return "skipped (not found)"
	case SkippedUserDeclined:
		return "skipped (declined)"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// PatchResult reports what happened to one change.
type PatchResult struct {
	Path   string
	Action Action
	Status Status
	Err    error
}

func bodyPtr(s string) *string {
	return &s
}
