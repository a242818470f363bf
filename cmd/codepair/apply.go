package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply [reply-file]",
	Short: "Apply the edits in a saved model reply",
	Long: `Parses a model reply in the configured edit format and applies its
edits to the working directory. The reply is read from the file argument,
or from stdin when it is omitted or "-". Reading from stdin requires
--yes since stdin cannot also answer the confirmations.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	fromStdin := len(args) == 0 || args[0] == "-"
	if fromStdin && !yesFlag {
		return fmt.Errorf("reading the reply from stdin requires --yes")
	}

	var reply []byte
	var err error
	if fromStdin {
		reply, err = io.ReadAll(os.Stdin)
	} else {
		reply, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read reply: %w", err)
	}

	env, err := prepareRuntimeEnv(context.Background(), stdinConfirmer())
	if err != nil {
		return err
	}
	defer env.Close()

	changes := env.Orch.ParseDiffResults(string(reply), env.Root)
	if len(changes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("No edits found in the reply."))
		return nil
	}
	printResults(cmd.OutOrStdout(), env.Orch.ApplyChanges(changes, env.Root))
	return nil
}
