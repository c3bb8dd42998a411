package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"redline/internal/job"
	"redline/internal/llm"
	"redline/internal/outline"
	"redline/internal/pipeline"
	"redline/internal/playbook"
	"redline/internal/rules"
)

var (
	mapOutlinePath  string
	mapRulesPath    string
	mapPlaybookPath string
	mapNoSecondPass bool
	mapOutPath      string
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Map playbook rules onto a document outline",
	Long: `Reads a section-tree outline (JSON) and a rule set (JSON file or YAML
playbook), classifies every rule against the outline in two passes, and
writes the mapping response: annotated outline, per-rule statuses, new
section locations, processing order, and summary counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		structure, ruleSet, err := loadInputs(mapOutlinePath, mapRulesPath, mapPlaybookPath)
		if err != nil {
			return err
		}

		client, err := llm.NewClient(cmd.Context(), cfg.LLMOptions())
		if err != nil {
			return err
		}
		pipe := pipeline.New(client, logger, cfg.PipelineOptions())

		req := pipeline.MappingRequest{Structure: structure, Rules: ruleSet}
		if mapNoSecondPass {
			off := false
			req.SecondPass = &off
		}

		jobs := job.NewStore()
		resp, err := pipe.MapRules(cmd.Context(), req, jobs.Create("map"), jobs)
		if err != nil {
			return err
		}
		return writeOutput(mapOutPath, resp)
	},
}

func init() {
	mapCmd.Flags().StringVar(&mapOutlinePath, "outline", "", "path to outline JSON (required)")
	mapCmd.Flags().StringVar(&mapRulesPath, "rules", "", "path to rules JSON")
	mapCmd.Flags().StringVar(&mapPlaybookPath, "playbook", "", "path to playbook YAML")
	mapCmd.Flags().BoolVar(&mapNoSecondPass, "no-second-pass", false, "skip the missed-section sweep")
	mapCmd.Flags().StringVarP(&mapOutPath, "out", "o", "", "write response to file instead of stdout")
	_ = mapCmd.MarkFlagRequired("outline")
}

// loadInputs reads the outline and the rule set. Rules come from exactly
// one of a JSON file or a YAML playbook.
func loadInputs(outlinePath, rulesPath, playbookPath string) ([]*outline.SectionNode, []rules.Rule, error) {
	if (rulesPath == "") == (playbookPath == "") {
		return nil, nil, fmt.Errorf("exactly one of --rules or --playbook is required")
	}

	data, err := os.ReadFile(outlinePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read outline: %w", err)
	}
	var structure []*outline.SectionNode
	if err := json.Unmarshal(data, &structure); err != nil {
		return nil, nil, fmt.Errorf("failed to parse outline: %w", err)
	}

	var ruleSet []rules.Rule
	if rulesPath != "" {
		data, err := os.ReadFile(rulesPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read rules: %w", err)
		}
		if err := json.Unmarshal(data, &ruleSet); err != nil {
			return nil, nil, fmt.Errorf("failed to parse rules: %w", err)
		}
	} else {
		pb, err := playbook.Load(afero.NewOsFs(), playbookPath)
		if err != nil {
			return nil, nil, err
		}
		ruleSet = pb.Rules
	}
	return structure, ruleSet, nil
}

func writeOutput(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
