// Package main provides the CLI entry point for evalwatch, an LLM output
// quality watchdog.
//
// evalwatch runs golden-dataset evaluations against a set of models through
// an OpenAI-compatible gateway, scores answers with an LLM judge, evaluates
// RAG retrieval quality, and watches stored runs for performance drift.
//
// # Basic Usage
//
// Run a text evaluation:
//
//	evalwatch eval --config evalwatch.yaml
//
// Run a RAG evaluation:
//
//	evalwatch rag eval
//
// Check for drift and alert:
//
//	evalwatch drift check
//	evalwatch drift watch --listen :9090
//
// # Environment Variables
//
//   - EVALWATCH_CONFIG: Path to configuration file (default: evalwatch.yaml)
//   - OPENAI_API_KEY / ANTHROPIC_API_KEY: referenced from the config via
//     ${VAR} expansion
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "evalwatch",
		Short:         "LLM output quality watchdog",
		Long:          "evalwatch evaluates LLM outputs against golden datasets, scores RAG retrieval quality, and alerts on performance drift.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		buildEvalCmd(),
		buildRAGCmd(),
		buildDriftCmd(),
		buildRunsCmd(),
	)
	return root
}

// resolveConfigPath prefers the flag, then EVALWATCH_CONFIG, then the
// default file name.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("EVALWATCH_CONFIG"); env != "" {
		return env
	}
	return "evalwatch.yaml"
}
