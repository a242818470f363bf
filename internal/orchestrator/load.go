package orchestrator

import (
	"context"
	"log"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
	"github.com/ChamsBouzaiene/codepair/internal/indexer"
	"github.com/ChamsBouzaiene/codepair/internal/patch"
)

// LoadCodeFiles indexes the files of wd and makes it the working
// directory for later turns. With explicit paths only those files are
// indexed, and they are also pinned into every turn's context.
func (o *Orchestrator) LoadCodeFiles(ctx context.Context, wd string, explicit []string) (engine.Usage, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	root := absDir(wd)
	src := o.source(root)

	o.mu.Lock()
	o.workDir = root
	o.mu.Unlock()
	if err := o.sessions.SetWorkingDir(o.sessionID, root); err != nil {
		log.Printf("⚠️  Failed to record working directory: %v", err)
	}

	var paths []string
	if len(explicit) > 0 {
		for _, p := range explicit {
			clean := patch.CleanPath(p)
			if err := patch.ValidatePath(clean); err != nil {
				log.Printf("⚠️  Ignoring %s: %v", p, err)
				continue
			}
			paths = append(paths, clean)
		}
	} else {
		discovered, err := src.Discover(ctx)
		if err != nil {
			return engine.Usage{}, err
		}
		paths = discovered
	}

	units, err := src.GetUnits(paths)
	if err != nil {
		return engine.Usage{}, err
	}

	o.setState(Retrieving)
	defer o.setState(Idle)

	usage, err := o.retriever.IndexUnits(ctx, units, o.sessionID)
	o.recordUsage(usage)
	if err != nil {
		return usage, err
	}

	if len(explicit) > 0 {
		pinned := make([]string, 0, len(units))
		for _, u := range units {
			pinned = append(pinned, u.Path)
		}
		o.mu.Lock()
		o.pinLocked(pinned)
		o.mu.Unlock()
	}

	log.Printf("✅ Loaded %d files from %s (%d tokens)", len(units), root, usage.Tokens)
	return usage, nil
}

// Watch re-indexes files of the working directory as they change on disk
// until ctx is done. Changes are applied between turns.
func (o *Orchestrator) Watch(ctx context.Context) (*indexer.FileWatcher, error) {
	root := o.WorkDir()
	if root == "" {
		root = absDir(".")
	}
	src := o.source(root)

	fw, err := indexer.NewFileWatcher(root, src.Walker())
	if err != nil {
		return nil, err
	}
	fw.OnChange(func(changed, removed []string) {
		o.turnMu.Lock()
		defer o.turnMu.Unlock()
		o.syncFiles(ctx, src, changed, removed)
	})
	if err := fw.Start(ctx); err != nil {
		return nil, err
	}
	return fw, nil
}

func (o *Orchestrator) syncFiles(ctx context.Context, src *indexer.FileSource, changed, removed []string) {
	for _, p := range removed {
		src.Remove(p)
		if err := o.retriever.Forget(ctx, o.sessionID, p); err != nil {
			log.Printf("⚠️  Failed to forget %s: %v", p, err)
		}
	}
	if len(changed) == 0 {
		return
	}

	units, err := src.AddOrUpdateUnits(changed)
	if err != nil {
		log.Printf("⚠️  Failed to read changed files: %v", err)
		return
	}
	usage, err := o.retriever.IndexUnits(ctx, units, o.sessionID)
	o.recordUsage(usage)
	if err != nil {
		log.Printf("⚠️  Failed to re-index changed files: %v", err)
	}
}
