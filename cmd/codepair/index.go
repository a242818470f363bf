package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/codepair/internal/orchestrator"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the working directory and report what would be sent",
	Long: `Walks the working directory (honouring .gitignore and max_file_size),
embeds every file and prints the indexed paths with their token estimate
and embedding cost. Nothing is sent to the completion model.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// indexing never applies edits
	env, err := prepareRuntimeEnv(ctx, orchestrator.ConfirmFunc(func(string) bool { return false }))
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.load(ctx); err != nil {
		return err
	}

	sid := env.Orch.SessionID()
	paths, err := env.Retriever.Paths(ctx, sid)
	if err != nil {
		return err
	}
	units, tokens, err := env.Retriever.Stats(ctx, sid)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range paths {
		fmt.Fprintln(out, pathStyle.Render(p))
	}
	usage := env.Orch.Session().EmbeddingUsage
	fmt.Fprintf(out, "\n%s %d units, ~%d tokens, max file size %s, cost $%.6f\n",
		successStyle.Render("Indexed"), units, tokens, env.Config.HumanMaxFileSize(), usage.Cost)
	return nil
}
