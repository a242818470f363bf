package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/codepair/internal/orchestrator"
)

var askCmd = &cobra.Command{
	Use:   "ask <request>",
	Short: "Run a single request against the working directory",
	Long: `Indexes the working directory, streams the model's answer to the
request and offers to apply the edits it contains.

Examples:
  codepair ask "add a --verbose flag to the CLI"
  codepair ask -f main.go -f flags.go "rename parseArgs to parseFlags"
  codepair ask --format codeblock --yes "add a README"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := prepareRuntimeEnv(ctx, stdinConfirmer())
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.load(ctx); err != nil {
		return err
	}
	return runTurn(ctx, env.Orch, strings.Join(args, " "), os.Stdout)
}

// runTurn streams one turn to w and prints what was applied.
func runTurn(ctx context.Context, orch *orchestrator.Orchestrator, query string, w io.Writer) error {
	fragments, errs := orch.QueryAsync(ctx, query)
	for frag := range fragments {
		fmt.Fprint(w, frag)
	}
	fmt.Fprintln(w)
	if err := <-errs; err != nil {
		return err
	}

	turn := orch.LastTurn()
	if turn == nil {
		return nil
	}
	if turn.BudgetErr != nil {
		fmt.Fprintln(w, warnStyle.Render("Edits not applied: "+turn.BudgetErr.Error()))
	}
	printResults(w, turn.Results)
	return nil
}
