// commands.go contains the cobra command definitions. Each builder creates a
// command and wires it to its handler in handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

func buildEvalCmd() *cobra.Command {
	var (
		configPath string
		models     []string
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate models against the golden dataset",
		Long: `Run every configured model over the golden dataset, score each answer
with the LLM judge, and persist the per-model summaries.`,
		Example: `  # Evaluate all configured models
  evalwatch eval

  # Evaluate one model without persisting
  evalwatch eval --model gpt-4o --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd.Context(), resolveConfigPath(configPath), models, dryRun)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringSliceVarP(&models, "model", "m", nil, "Evaluate only these models (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip persisting results")
	return cmd
}

func buildRAGCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rag",
		Short: "RAG evaluation commands",
	}
	cmd.AddCommand(buildRAGEvalCmd())
	return cmd
}

func buildRAGEvalCmd() *cobra.Command {
	var (
		configPath string
		models     []string
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate RAG retrieval and answer quality",
		Long: `Embed the knowledge base (cached per embedding model), run every
configured model over the RAG dataset, score retrieval rankings against the
ground-truth chunks, and judge generated answers for correctness and
grounding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRAGEval(cmd.Context(), resolveConfigPath(configPath), models, dryRun)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringSliceVarP(&models, "model", "m", nil, "Evaluate only these models (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip persisting results")
	return cmd
}

func buildDriftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Drift detection commands",
	}
	cmd.AddCommand(buildDriftCheckCmd(), buildDriftWatchCmd())
	return cmd
}

func buildDriftCheckCmd() *cobra.Command {
	var (
		configPath string
		useRAG     bool
		alert      bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one drift check over stored runs",
		Long: `Compare each model's latest stored run against its best recent run and
report drift. Exits non-zero when any model has drifted, so the command can
gate CI pipelines.`,
		Example: `  # Check text-evaluation accuracy
  evalwatch drift check

  # Check RAG recall and fire alerts
  evalwatch drift check --rag --alert`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriftCheck(cmd.Context(), resolveConfigPath(configPath), useRAG, alert)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&useRAG, "rag", false, "Check RAG recall instead of text accuracy")
	cmd.Flags().BoolVar(&alert, "alert", false, "Send alerts for drifted models")
	return cmd
}

func buildDriftWatchCmd() *cobra.Command {
	var (
		configPath string
		useRAG     bool
		listenAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run drift checks on the configured cron schedule",
		Long: `Run drift checks on the configured schedule, alerting on drift through
every configured channel, and serve Prometheus metrics until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriftWatch(cmd.Context(), resolveConfigPath(configPath), useRAG, listenAddr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&useRAG, "rag", false, "Watch RAG recall instead of text accuracy")
	cmd.Flags().StringVar(&listenAddr, "listen", ":9090", "Address for the /metrics endpoint")
	return cmd
}

func buildRunsCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent evaluation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd.Context(), resolveConfigPath(configPath), limit)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	return cmd
}
