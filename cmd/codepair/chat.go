package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/codepair/internal/engine"
)

var chatWatch bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Indexes the working directory and reads requests line by line. Earlier
requests and answers are kept as conversation context. With --watch the
index follows edits made outside codepair.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatWatch, "watch", false, "Re-index files as they change on disk")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	in := bufio.NewReader(os.Stdin)
	env, err := prepareRuntimeEnv(ctx, newTerminalConfirmer(in, os.Stderr))
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.load(ctx); err != nil {
		return err
	}
	if chatWatch {
		fw, err := env.Orch.Watch(ctx)
		if err != nil {
			log.Printf("⚠️  Failed to watch %s: %v (continuing without it)", env.Root, err)
		} else {
			defer fw.Wait()
		}
	}

	log.Printf("💬 Session %s ready", env.Orch.SessionID())
	for {
		fmt.Print(headerStyle.Render("you> "))
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			break
		}

		if err := runTurn(ctx, env.Orch, line, os.Stdout); err != nil {
			if ctx.Err() != nil {
				break
			}
			if engine.IsProviderError(err) {
				log.Printf("❌ %v", err)
			} else {
				log.Printf("error: %v", err)
			}
		}
		fmt.Println()
	}

	if sess := env.Orch.Session(); sess != nil {
		log.Printf("📊 %d turns, %d files applied, %d declined, %d embedding tokens ($%.6f)",
			sess.Turns, sess.FilesApplied, sess.FilesDeclined, sess.EmbeddingUsage.Tokens, sess.EmbeddingUsage.Cost)
	}
	stop()
	return nil
}
