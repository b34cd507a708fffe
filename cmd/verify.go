package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/alpkeskin/gotoon"
	"github.com/spf13/cobra"

	"github.com/ironverse/guardian/internal/config"
	"github.com/ironverse/guardian/internal/engine"
	"github.com/ironverse/guardian/internal/gitrepo"
	"github.com/ironverse/guardian/internal/reference"
)

var (
	verifyJSON bool
	verifyToon bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check protected paths without writing anything",
	Long: `Fetch the target repository and compare every protected path against the
reference store. Never writes to the repository or the tracker.

Exit status is 0 when everything is intact and non-zero when any
protected path diverged, so this doubles as a CI check.

Examples:
  guardian verify
  guardian verify --json`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Output verdict as JSON")
	verifyCmd.Flags().BoolVar(&verifyToon, "toon", false, "Output verdict in LLM-friendly toon format")
}

func runVerify(cmd *cobra.Command, args []string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	store, err := reference.Load(config.GetReferenceDir())
	if err != nil {
		return fmt.Errorf("failed to load reference store: %w", err)
	}

	repo := &gitrepo.Repo{
		URL:          config.GetRepoURL(),
		Branch:       config.GetRepoBranch(),
		CacheDir:     config.GetCacheDir(),
		FetchTimeout: config.GetFetchTimeout(),
	}
	if err := repo.Fetch(cmd.Context()); err != nil {
		return fmt.Errorf("failed to fetch target repository: %w", err)
	}

	snap, err := repo.Snapshot(cmd.Context(), store.Paths(), 1)
	if err != nil {
		return fmt.Errorf("failed to read repository snapshot: %w", err)
	}

	verdict := engine.Check(snap.Head.Tree, store.Entries())

	type verifyResult struct {
		Branch     string `json:"branch"`
		HeadSHA    string `json:"head_sha"`
		Intact     bool   `json:"intact"`
		Protected  int    `json:"protected"`
		Violations any    `json:"violations,omitempty"`
	}
	result := verifyResult{
		Branch:    snap.Branch,
		HeadSHA:   snap.Head.SHA,
		Intact:    verdict.Intact(),
		Protected: len(store.Entries()),
	}
	if !verdict.Intact() {
		result.Violations = verdict.Violations
	}

	switch {
	case verifyJSON:
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
	case verifyToon:
		output, err := gotoon.Encode(result)
		if err != nil {
			return fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
	default:
		fmt.Printf("Branch:    %s @ %s\n", snap.Branch, shortSHA(snap.Head.SHA))
		fmt.Printf("Protected: %d path(s)\n", len(store.Entries()))
		if verdict.Intact() {
			fmt.Println("Intact:    yes")
		} else {
			fmt.Println("Intact:    no")
			for _, v := range verdict.Violations {
				fmt.Printf("  %-14s %s\n", "("+string(v.Kind)+")", v.Path)
			}
		}
	}

	if !verdict.Intact() {
		return fmt.Errorf("%d protected path(s) violated", len(verdict.Violations))
	}
	return nil
}
