package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/indexer"
	"github.com/ChamsBouzaiene/codepair/internal/patch"
	"github.com/ChamsBouzaiene/codepair/internal/prompts"
	"github.com/ChamsBouzaiene/codepair/internal/workspace"
)

// Turn records what happened during one query.
type Turn struct {
	Query          string
	Reply          string // the last completion
	Completions    int
	ContextFiles   []string
	RequestedFiles []string
	Changes        []patch.Change
	Results        []patch.PatchResult
	Usage          engine.Usage // embedding usage spent during the turn
	BudgetErr      error        // set when the reply was too large to apply
	Err            error
}

// Applied counts the files with at least one applied change.
func (t *Turn) Applied() int {
	return countFiles(t.Results, patch.Applied)
}

// Declined counts the files the user declined.
func (t *Turn) Declined() int {
	return countFiles(t.Results, patch.SkippedUserDeclined)
}

var needsFilesPattern = regexp.MustCompile(`(?s)<needs_files>(.*?)</needs_files>`)

// needsFiles extracts the file names requested by a reply.
func needsFiles(reply string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range needsFilesPattern.FindAllStringSubmatch(reply, -1) {
		for _, field := range strings.FieldsFunc(m[1], func(r rune) bool {
			return r == ',' || r == '\n' || r == ' ' || r == '\t' || r == '\r'
		}) {
			name := strings.Trim(field, "`'\"")
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// QueryAsync runs a turn in the background. Fragments of every completion
// are streamed on the first channel, which is closed when the turn ends.
// The error channel then yields at most one error and closes. Only
// provider failures and cancellation end a turn with an error; the full
// outcome is available from LastTurn.
func (o *Orchestrator) QueryAsync(ctx context.Context, query string) (<-chan string, <-chan error) {
	out := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		o.turnMu.Lock()
		defer o.turnMu.Unlock()

		turn := &Turn{Query: query}
		err := o.runTurn(ctx, turn, out)
		turn.Err = err
		o.setState(Idle)

		o.mu.Lock()
		o.lastTurn = turn
		o.mu.Unlock()

		close(out)
		if err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	return out, errCh
}

func (o *Orchestrator) runTurn(ctx context.Context, turn *Turn, out chan<- string) error {
	wd := o.WorkDir()
	if wd == "" {
		wd = absDir(".")
	}
	src := o.source(wd)

	system, err := o.systemPrompt(ctx, wd)
	if err != nil {
		return err
	}
	history := o.sessions.History(o.sessionID, o.opts.HistoryMessages)

	o.setState(Retrieving)
	files, err := o.contextFiles(ctx, turn, src, nil)
	if err != nil {
		return err
	}

	for round := 0; ; round++ {
		o.setState(Completing)
		user := prompts.UserMessage(turn.Query, files, history)
		reply, err := o.complete(ctx, system, user, out)
		turn.Completions++
		if err != nil {
			return err
		}
		turn.Reply = reply

		names := needsFiles(reply)
		if len(names) == 0 {
			break
		}
		if round >= o.opts.MaxContextRounds {
			log.Printf("⚠️  Model still needs files after %d extra round(s), giving up", round)
			break
		}

		o.setState(Retrieving)
		requested := o.resolveRequested(src, names)
		added := newPaths(requested, files)
		if len(added) == 0 {
			log.Printf("⚠️  None of the requested files could be added: %s", strings.Join(names, ", "))
			break
		}
		log.Printf("🔍 Model requested %s", strings.Join(added, ", "))
		turn.RequestedFiles = append(turn.RequestedFiles, added...)

		units, err := src.AddOrUpdateUnits(added)
		if err != nil {
			return err
		}
		usage, err := o.retriever.IndexUnits(ctx, units, o.sessionID)
		turn.Usage = turn.Usage.Add(usage)
		if err != nil {
			return err
		}

		files, err = o.contextFiles(ctx, turn, src, turn.RequestedFiles)
		if err != nil {
			return err
		}
		sendFragment(ctx, out, "\n")
	}

	if err := o.sessions.AppendTurn(o.sessionID, turn.Query, turn.Reply); err != nil {
		log.Printf("⚠️  Failed to record turn: %v", err)
	}

	o.setState(ParsingDiff)
	turn.Changes = o.ParseDiffResults(turn.Reply, wd)
	if len(turn.Changes) == 0 {
		o.recordUsage(turn.Usage)
		return nil
	}
	if err := patch.CheckBudget(turn.Changes, o.opts.Budget); err != nil {
		turn.BudgetErr = err
		log.Printf("⚠️  Not applying reply: %v", err)
		o.recordUsage(turn.Usage)
		return nil
	}

	results, usage, err := o.applyChanges(ctx, turn.Changes, wd)
	turn.Results = results
	turn.Usage = turn.Usage.Add(usage)
	o.recordUsage(turn.Usage)
	if err := o.sessions.RecordApply(o.sessionID, turn.Applied(), turn.Declined()); err != nil {
		log.Printf("⚠️  Failed to record apply: %v", err)
	}
	return err
}

// systemPrompt renders the template followed by the workspace overview
// and the project rules.
func (o *Orchestrator) systemPrompt(ctx context.Context, wd string) (string, error) {
	b, err := prompts.NewPromptBuilder(o.registry, o.opts.Command, o.opts.Format)
	if err != nil {
		return "", err
	}

	paths, err := o.retriever.Paths(ctx, o.sessionID)
	if err != nil {
		log.Printf("⚠️  Failed to list indexed files: %v", err)
	} else if len(paths) > 0 {
		b.AddFragment(workspace.Overview(wd, paths, o.opts.MaxOverviewPaths))
	}
	if o.opts.Rules != "" {
		b.AddFragment("<project_rules>\n" + o.opts.Rules + "\n</project_rules>")
	}
	return b.SetVariable("working_directory", wd).Build(), nil
}

// contextFiles retrieves units for the query and merges in pinned and
// requested files.
func (o *Orchestrator) contextFiles(ctx context.Context, turn *Turn, src *indexer.FileSource, requested []string) ([]prompts.File, error) {
	retrieval, err := o.retriever.Retrieve(ctx, turn.Query, o.sessionID)
	turn.Usage = turn.Usage.Add(retrieval.Usage)
	if err != nil {
		return nil, err
	}

	var files []prompts.File
	seen := make(map[string]bool)
	add := func(u indexer.CodeUnit) {
		if seen[u.UnitID()] {
			return
		}
		seen[u.UnitID()] = true
		files = append(files, prompts.File{Path: u.Path, Text: u.Text})
	}

	o.mu.RLock()
	pinned := append([]string(nil), o.pinned...)
	o.mu.RUnlock()

	extra, err := src.GetUnits(append(pinned, requested...))
	if err != nil {
		return nil, err
	}
	for _, u := range extra {
		add(u)
	}
	for _, su := range retrieval.Units {
		add(su.Unit)
	}

	turn.ContextFiles = turn.ContextFiles[:0]
	for _, f := range files {
		turn.ContextFiles = append(turn.ContextFiles, f.Path)
	}
	return files, nil
}

// resolveRequested maps requested names to paths, first through the path
// index and then by looking for the file on disk.
func (o *Orchestrator) resolveRequested(src *indexer.FileSource, names []string) []string {
	var paths []string
	for _, name := range names {
		p, ok, err := o.retriever.ResolvePath(o.sessionID, name)
		if err != nil {
			log.Printf("⚠️  Failed to resolve %s: %v", name, err)
		}
		if ok {
			paths = append(paths, p)
			continue
		}

		clean := patch.CleanPath(name)
		if patch.ValidatePath(clean) != nil || src.Walker().Ignored(clean) {
			log.Printf("⚠️  Cannot add requested file %s", name)
			continue
		}
		info, err := os.Stat(filepath.Join(src.Root(), filepath.FromSlash(clean)))
		if err != nil || info.IsDir() {
			log.Printf("⚠️  Requested file %s not found", name)
			continue
		}
		paths = append(paths, clean)
	}
	return paths
}

func newPaths(paths []string, files []prompts.File) []string {
	have := make(map[string]bool, len(files))
	for _, f := range files {
		have[f.Path] = true
	}
	var out []string
	for _, p := range paths {
		if !have[p] {
			have[p] = true
			out = append(out, p)
		}
	}
	return out
}

// complete streams one completion, forwarding fragments to out.
func (o *Orchestrator) complete(ctx context.Context, system, user string, out chan<- string) (string, error) {
	fragments, errs := o.provider.CompleteStream(ctx, system, user)

	var reply strings.Builder
	for fragments != nil {
		select {
		case <-ctx.Done():
			return reply.String(), fmt.Errorf("turn cancelled: %w", ctx.Err())
		case frag, ok := <-fragments:
			if !ok {
				fragments = nil
				continue
			}
			reply.WriteString(frag)
			if !sendFragment(ctx, out, frag) {
				return reply.String(), fmt.Errorf("turn cancelled: %w", ctx.Err())
			}
		}
	}

	if err := <-errs; err != nil {
		var pe *engine.ProviderError
		if errors.As(err, &pe) {
			return reply.String(), err
		}
		if ctx.Err() != nil {
			return reply.String(), fmt.Errorf("turn cancelled: %w", ctx.Err())
		}
		return reply.String(), engine.WrapProviderError("complete", err, 0, "")
	}
	return reply.String(), nil
}

func sendFragment(ctx context.Context, out chan<- string, frag string) bool {
	select {
	case out <- frag:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) recordUsage(usage engine.Usage) {
	if usage.Tokens == 0 {
		return
	}
	if err := o.sessions.AddUsage(o.sessionID, usage); err != nil {
		log.Printf("⚠️  Failed to record usage: %v", err)
	}
}
