package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"redline/internal/job"
	"redline/internal/llm"
	"redline/internal/pipeline"
	"redline/internal/rules"
)

var (
	amendOutlinePath  string
	amendRulesPath    string
	amendPlaybookPath string
	amendStatusPath   string
	amendPriorPath    string
	amendOutPath      string
)

var amendCmd = &cobra.Command{
	Use:   "amend",
	Short: "Generate section amendments and new sections",
	Long: `Runs the full amendment phase: maps rules when no precomputed status
file is given, then amends every mapped section bottom-up and generates
new sections for needs_new_section rules. Per-section failures are
reported in the output, never aborting the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		structure, ruleSet, err := loadInputs(amendOutlinePath, amendRulesPath, amendPlaybookPath)
		if err != nil {
			return err
		}

		req := pipeline.AmendRequest{Structure: structure, Rules: ruleSet}
		if amendStatusPath != "" {
			data, err := os.ReadFile(amendStatusPath)
			if err != nil {
				return fmt.Errorf("failed to read status file: %w", err)
			}
			var statuses []rules.RuleStatus
			if err := json.Unmarshal(data, &statuses); err != nil {
				return fmt.Errorf("failed to parse status file: %w", err)
			}
			req.RuleStatus = statuses
		}
		if amendPriorPath != "" {
			data, err := os.ReadFile(amendPriorPath)
			if err != nil {
				return fmt.Errorf("failed to read prior attempts: %w", err)
			}
			if err := json.Unmarshal(data, &req.PriorAttempts); err != nil {
				return fmt.Errorf("failed to parse prior attempts: %w", err)
			}
		}

		client, err := llm.NewClient(cmd.Context(), cfg.LLMOptions())
		if err != nil {
			return err
		}
		pipe := pipeline.New(client, logger, cfg.PipelineOptions())

		jobs := job.NewStore()
		resp, err := pipe.Amend(cmd.Context(), req, jobs.Create("amend"), jobs)
		if err != nil {
			return err
		}
		return writeOutput(amendOutPath, resp)
	},
}

func init() {
	amendCmd.Flags().StringVar(&amendOutlinePath, "outline", "", "path to outline JSON (required)")
	amendCmd.Flags().StringVar(&amendRulesPath, "rules", "", "path to rules JSON")
	amendCmd.Flags().StringVar(&amendPlaybookPath, "playbook", "", "path to playbook YAML")
	amendCmd.Flags().StringVar(&amendStatusPath, "status", "", "path to precomputed rule-status JSON")
	amendCmd.Flags().StringVar(&amendPriorPath, "prior", "", "path to prior-attempts JSON for reruns")
	amendCmd.Flags().StringVarP(&amendOutPath, "out", "o", "", "write response to file instead of stdout")
	_ = amendCmd.MarkFlagRequired("outline")
}
