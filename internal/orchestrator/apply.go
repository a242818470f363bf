package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/patch"
)

// ParseDiffResults extracts changes from a reply. Actions are corrected
// against the files in wd: full content for a missing file becomes a
// Create, and a Create of an existing file becomes a Modify.
func (o *Orchestrator) ParseDiffResults(text, wd string) []patch.Change {
	root := absDir(wd)
	changes := o.parser.Parse(text)

	for i := range changes {
		c := &changes[i]
		c.Path = patch.CleanPath(c.Path)
		exists := fileExists(filepath.Join(root, filepath.FromSlash(c.Path)))

		switch {
		case c.Action == patch.Modify && c.Kind() == patch.KindBody && !exists:
			c.Action = patch.Create
		case c.Action == patch.Create && exists:
			c.Action = patch.Modify
		}
	}
	return changes
}

// ApplyChanges asks for confirmation once per file, applies the accepted
// ones below wd and re-indexes the files they touched. Re-index failures
// are logged; the files are already written.
func (o *Orchestrator) ApplyChanges(changes []patch.Change, wd string) []patch.PatchResult {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	defer o.setState(Idle)

	results, usage, err := o.applyChanges(context.Background(), changes, wd)
	if err != nil {
		log.Printf("⚠️  Re-index after apply failed: %v", err)
	}
	o.recordUsage(usage)

	applied, declined := countFiles(results, patch.Applied), countFiles(results, patch.SkippedUserDeclined)
	if err := o.sessions.RecordApply(o.sessionID, applied, declined); err != nil {
		log.Printf("⚠️  Failed to record apply: %v", err)
	}
	return results
}

func (o *Orchestrator) applyChanges(ctx context.Context, changes []patch.Change, wd string) ([]patch.PatchResult, engine.Usage, error) {
	root := absDir(wd)
	applier := patch.NewApplier(root)
	results := make([]patch.PatchResult, 0, len(changes))

	for _, group := range groupByPath(changes) {
		if !o.opts.AutoApprove {
			o.setState(AwaitingConfirmation)
			if !o.confirmer.Confirm(confirmMessage(group)) {
				log.Printf("📝 Declined %s", group[0].Path)
				for _, c := range group {
					results = append(results, patch.PatchResult{
						Path:   c.Path,
						Action: c.Action,
						Status: patch.SkippedUserDeclined,
					})
				}
				continue
			}
		}
		o.setState(Applying)
		for _, c := range group {
			results = append(results, applier.ApplyOne(c))
		}
	}

	o.setState(ReIndexing)
	usage, err := o.reindex(ctx, root, results)
	return results, usage, err
}

// groupByPath collects the changes of each file, in order of first
// appearance. Changes within a file keep their reply order.
func groupByPath(changes []patch.Change) [][]patch.Change {
	var groups [][]patch.Change
	at := make(map[string]int)
	for _, c := range changes {
		i, ok := at[c.Path]
		if !ok {
			i = len(groups)
			at[c.Path] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], c)
	}
	return groups
}

func confirmMessage(group []patch.Change) string {
	if len(group) == 1 {
		return "Apply " + group[0].Describe() + "?"
	}
	return fmt.Sprintf("Apply %d changes to %s?", len(group), group[0].Path)
}

// countFiles counts the distinct files with at least one result in status.
func countFiles(results []patch.PatchResult, status patch.Status) int {
	seen := make(map[string]bool)
	for _, r := range results {
		if r.Status == status {
			seen[r.Path] = true
		}
	}
	return len(seen)
}

// reindex refreshes the index for applied results. Deleted files are
// forgotten.
func (o *Orchestrator) reindex(ctx context.Context, root string, results []patch.PatchResult) (engine.Usage, error) {
	src := o.source(root)

	var changed []string
	var errs []error
	for _, r := range results {
		if r.Status != patch.Applied || slices.Contains(changed, r.Path) {
			continue
		}
		if r.Action == patch.Delete {
			src.Remove(r.Path)
			if err := o.retriever.Forget(ctx, o.sessionID, r.Path); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		changed = append(changed, r.Path)
	}
	if len(changed) == 0 {
		return engine.Usage{}, errors.Join(errs...)
	}

	units, err := src.AddOrUpdateUnits(changed)
	if err != nil {
		return engine.Usage{}, errors.Join(append(errs, err)...)
	}
	usage, err := o.retriever.IndexUnits(ctx, units, o.sessionID)
	if err != nil {
		errs = append(errs, err)
	}
	return usage, errors.Join(errs...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
