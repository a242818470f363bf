package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ChamsBouzaiene/codepair/internal/config"
	"github.com/ChamsBouzaiene/codepair/internal/indexer"
	"github.com/ChamsBouzaiene/codepair/internal/orchestrator"
	"github.com/ChamsBouzaiene/codepair/internal/patch"
	"github.com/ChamsBouzaiene/codepair/internal/project"
	"github.com/ChamsBouzaiene/codepair/internal/providers"
)

type runtimeEnv struct {
	Root      string
	Config    *config.Config
	Retriever *indexer.ContextRetriever
	Orch      *orchestrator.Orchestrator
}

func (r *runtimeEnv) Close() {
	if r.Retriever != nil {
		if err := r.Retriever.Close(); err != nil {
			log.Printf("⚠️  Failed to close index: %v", err)
		}
	}
}

func configManager() (*config.Manager, error) {
	if configDirFlag != "" {
		return config.NewManagerAt(configDirFlag), nil
	}
	return config.NewManager()
}

// loadConfig reads the user configuration and applies command-line
// overrides.
func loadConfig() (*config.Config, error) {
	mgr, err := configManager()
	if err != nil {
		return nil, err
	}
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}
	if mgr.Exists() {
		log.Printf("User config loaded from: %s", mgr.Dir())
	}

	if formatFlag != "" {
		if _, err := patch.ParseFormat(formatFlag); err != nil {
			return nil, err
		}
		cfg.DiffFormat = formatFlag
	}
	if yesFlag {
		cfg.AutoApprove = true
	}
	return cfg, nil
}

func resolveRoot() (string, error) {
	root := dirFlag
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", fmt.Errorf("working directory is not a valid directory: %s", abs)
	}
	return abs, nil
}

// prepareRuntimeEnv builds the retriever and orchestrator for the working
// directory. Files are not indexed yet.
func prepareRuntimeEnv(ctx context.Context, confirmer orchestrator.Confirmer) (*runtimeEnv, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}
	log.Printf("Working directory: %s", root)

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	projectCfg, err := project.LoadConfig(root)
	if err != nil {
		return nil, err
	}
	if projectCfg != nil && projectCfg.DiffFormat != "" && formatFlag == "" {
		cfg.DiffFormat = projectCfg.DiffFormat
	}
	rules, err := project.LoadRules(root)
	if err != nil {
		log.Printf("⚠️  %v (continuing without project rules)", err)
	}

	format, err := cfg.Format()
	if err != nil {
		return nil, err
	}
	maxFileSize, err := cfg.MaxFileSizeBytes()
	if err != nil {
		return nil, err
	}

	provider, model, err := providers.NewCompletionProvider(cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("🤖 Using %s (%s), %s edits", cfg.Provider, model, format)

	retriever, err := indexer.NewContextRetriever(ctx, providers.NewEmbedder(cfg), indexer.RetrieverConfig{
		Threshold:      cfg.Threshold,
		MaxResults:     cfg.MaxResults,
		Concurrency:    cfg.EmbedConcurrency,
		MaxBatchInputs: cfg.MaxBatchInputs,
		MaxBatchChars:  cfg.MaxBatchChars,
		CostPerToken:   cfg.CostPerToken,
	})
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Provider:         provider,
		Retriever:        retriever,
		Confirmer:        confirmer,
		Format:           format,
		MaxContextRounds: cfg.MaxContextRounds,
		AutoApprove:      cfg.AutoApprove,
		MaxFileSize:      maxFileSize,
		Rules:            rules,
	})
	if err != nil {
		retriever.Close()
		return nil, err
	}
	if projectCfg != nil {
		orch.Pin(projectCfg.ContextFiles...)
	}

	return &runtimeEnv{Root: root, Config: cfg, Retriever: retriever, Orch: orch}, nil
}

// load indexes the working directory, or only the --file paths.
func (r *runtimeEnv) load(ctx context.Context) error {
	usage, err := r.Orch.LoadCodeFiles(ctx, r.Root, filesFlag)
	if err != nil {
		return err
	}
	if usage.Tokens > 0 {
		log.Printf("📊 Embedded %d tokens ($%.6f)", usage.Tokens, usage.Cost)
	}
	return nil
}

func stdinConfirmer() orchestrator.Confirmer {
	return newTerminalConfirmer(bufio.NewReader(os.Stdin), os.Stderr)
}
