package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dumpster/internal/stress"
	"github.com/dumpster/pkg/errors"
	"github.com/dumpster/pkg/writer"
)

var (
	scenarioList   bool
	scenarioOutput string
)

// scenarioCmd represents the scenario command
var scenarioCmd = &cobra.Command{
	Use:   "scenario [name...]",
	Short: "Replay small graphs with a known collection outcome",
	Long: `Replay built-in scenarios on a fresh collector with automatic passes off.

Without arguments every scenario runs. Use --list to see their names.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if scenarioList {
			for _, s := range stress.Scenarios() {
				fmt.Fprintf(out, "%-16s %s\n", s.Name, s.Description)
			}
			return nil
		}

		if len(args) == 0 {
			for _, s := range stress.Scenarios() {
				args = append(args, s.Name)
			}
		}

		failed := 0
		var results []*stress.ScenarioResult
		for _, name := range args {
			res, err := stress.RunScenario(cmd.Context(), name, collectorOptions()...)
			if err != nil {
				return err
			}
			results = append(results, res)
			status := "PASS"
			if !res.Passed {
				status = "FAIL"
				failed++
			}
			fmt.Fprintf(out, "%s  %-16s %s\n", status, res.Name, res.Detail)
			logger.Debug("scenario %s: candidates=%d visited=%d collected=%d finalized=%d",
				res.Name, res.Pass.Candidates, res.Pass.Visited, res.Pass.Collected, res.Finalized)
		}
		if scenarioOutput != "" {
			if err := writer.ForPath[[]*stress.ScenarioResult](scenarioOutput).WriteToFile(results, scenarioOutput); err != nil {
				return err
			}
		}
		if failed > 0 {
			return errors.Newf(errors.CodeStressFailed, "%d of %d scenarios failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	scenarioCmd.Flags().BoolVar(&scenarioList, "list", false, "List scenarios and exit")
	scenarioCmd.Flags().StringVarP(&scenarioOutput, "output", "o", "", "Write the results as JSON to this file (.gz or .zst to compress)")
	rootCmd.AddCommand(scenarioCmd)
}
