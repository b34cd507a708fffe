package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/alpkeskin/gotoon"
	"github.com/spf13/cobra"

	"github.com/ironverse/guardian/internal/config"
	"github.com/ironverse/guardian/internal/journal"
)

var (
	runsLimit int
	runsJSON  bool
	runsToon  bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent reconciliation cycles from the local journal",
	Long: `Show what the last cycles did: outcome, violated paths, restoration
target, and any alert raised. Reads only the local run journal; the
target repository and the tracker are not contacted.

Examples:
  guardian runs
  guardian runs --limit 5 --json`,
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Output as JSON")
	runsCmd.Flags().BoolVar(&runsToon, "toon", false, "Output in LLM-friendly toon format")
}

func runRuns(cmd *cobra.Command, args []string) error {
	j, err := journal.Open(config.GetJournalPath())
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	defer j.Close()

	reports, err := j.Recent(cmd.Context(), runsLimit)
	if err != nil {
		return fmt.Errorf("failed to read run journal: %w", err)
	}

	if runsJSON {
		output, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if runsToon {
		output, err := gotoon.Encode(reports)
		if err != nil {
			return fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
		return nil
	}

	if len(reports) == 0 {
		fmt.Println("No recorded runs")
		return nil
	}

	for _, r := range reports {
		fmt.Printf("%s  %-8s  %s @ %s", r.StartedAt.Format("2006-01-02 15:04:05"), r.Outcome, r.Branch, shortSHA(r.HeadSHA))
		if len(r.Violations) > 0 {
			fmt.Printf("  violated=%d", len(r.Violations))
		}
		if r.RestoredSHA != "" {
			fmt.Printf("  restored=%s", shortSHA(r.RestoredSHA))
		}
		if r.Error != "" {
			fmt.Printf("  error=%q", r.Error)
		}
		fmt.Println()
	}
	return nil
}
