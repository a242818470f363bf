package orchestrator

import (
	"log"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/indexer"
	"github.com/ChamsBouzaiene/codepair/internal/patch"
	"github.com/ChamsBouzaiene/codepair/internal/prompts"
	"github.com/ChamsBouzaiene/codepair/internal/session"
)

// Confirmer asks the user whether a change may be applied.
type Confirmer interface {
	Confirm(message string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(message string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(message string) bool { return f(message) }

// DefaultHistoryMessages is how many earlier messages are folded into a prompt.
const DefaultHistoryMessages = 6

// Options configures an Orchestrator.
type Options struct {
	Provider  engine.CompletionProvider
	Retriever *indexer.ContextRetriever
	Sessions  *session.Store  // a new store when nil
	Registry  *prompts.Registry // the built-in templates when nil
	Confirmer Confirmer       // required unless AutoApprove

	Format  patch.Format
	Command prompts.Command // CommandCode when empty

	// MaxContextRounds bounds the extra completions a turn may issue in
	// answer to a needs-files request.
	MaxContextRounds int
	AutoApprove      bool
	Budget           patch.Budget
	HistoryMessages  int
	MaxFileSize      int64

	// Rules are project conventions appended to the system prompt.
	Rules string
	// MaxOverviewPaths caps the file listing in the system prompt.
	MaxOverviewPaths int
}

// Orchestrator runs turns: retrieve, complete, parse, confirm, apply and
// re-index.
type Orchestrator struct {
	provider  engine.CompletionProvider
	retriever *indexer.ContextRetriever
	sessions  *session.Store
	sessionID string
	registry  *prompts.Registry
	parser    patch.Parser
	confirmer Confirmer
	opts      Options

	// one turn at a time
	turnMu sync.Mutex

	mu            sync.RWMutex
	state         State
	onStateChange func(from, to State)
	lastTurn      *Turn
	workDir       string
	sources       map[string]*indexer.FileSource
	pinned        []string
}

// New validates opts and creates an orchestrator with a fresh session.
func New(opts Options) (*Orchestrator, error) {
	if opts.Provider == nil {
		return nil, engine.NewConfigurationError("provider", "no completion provider")
	}
	if opts.Retriever == nil {
		return nil, engine.NewConfigurationError("retriever", "no context retriever")
	}
	if opts.Confirmer == nil && !opts.AutoApprove {
		return nil, engine.NewConfigurationError("confirmer", "a confirmer is required unless auto_approve is set")
	}
	if opts.Command == "" {
		opts.Command = prompts.CommandCode
	}
	if opts.Registry == nil {
		opts.Registry = prompts.DefaultRegistry()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewStore()
	}
	if opts.MaxContextRounds < 0 {
		opts.MaxContextRounds = 0
	}
	if opts.HistoryMessages == 0 {
		opts.HistoryMessages = DefaultHistoryMessages
	}

	parser, err := patch.NewParser(opts.Format)
	if err != nil {
		return nil, err
	}
	if _, err := opts.Registry.Get(opts.Command, opts.Format); err != nil {
		return nil, err
	}

	sess := opts.Sessions.Create(".")

	return &Orchestrator{
		provider:  opts.Provider,
		retriever: opts.Retriever,
		sessions:  opts.Sessions,
		sessionID: sess.ID,
		registry:  opts.Registry,
		parser:    parser,
		confirmer: opts.Confirmer,
		opts:      opts,
		sources:   make(map[string]*indexer.FileSource),
	}, nil
}

// SessionID returns the id of the orchestrator's session.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Session returns a snapshot of the session.
func (o *Orchestrator) Session() *session.Session {
	sess, _ := o.sessions.Get(o.sessionID)
	return sess
}

// WorkDir returns the directory set by the last LoadCodeFiles.
func (o *Orchestrator) WorkDir() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.workDir
}

// LastTurn returns a copy of the most recent turn, or nil.
func (o *Orchestrator) LastTurn() *Turn {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.lastTurn == nil {
		return nil
	}
	t := *o.lastTurn
	t.Changes = append([]patch.Change(nil), o.lastTurn.Changes...)
	t.Results = append([]patch.PatchResult(nil), o.lastTurn.Results...)
	t.ContextFiles = append([]string(nil), o.lastTurn.ContextFiles...)
	t.RequestedFiles = append([]string(nil), o.lastTurn.RequestedFiles...)
	return &t
}

// Pin adds files that are sent with every request, whatever retrieval
// finds. Unsafe paths are ignored.
func (o *Orchestrator) Pin(paths ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pinLocked(paths)
}

func (o *Orchestrator) pinLocked(paths []string) {
	for _, p := range paths {
		clean := patch.CleanPath(p)
		if err := patch.ValidatePath(clean); err != nil {
			log.Printf("⚠️  Not pinning %s: %v", p, err)
			continue
		}
		if !slices.Contains(o.pinned, clean) {
			o.pinned = append(o.pinned, clean)
		}
	}
}

// source returns the file source rooted at wd.
func (o *Orchestrator) source(wd string) *indexer.FileSource {
	root := absDir(wd)

	o.mu.Lock()
	defer o.mu.Unlock()
	src, ok := o.sources[root]
	if !ok {
		src = indexer.NewFileSource(root, o.opts.MaxFileSize)
		o.sources[root] = src
	}
	return src
}

func absDir(wd string) string {
	if wd == "" {
		wd = "."
	}
	if abs, err := filepath.Abs(wd); err == nil {
		return abs
	}
	return filepath.Clean(wd)
}
