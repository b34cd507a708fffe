package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ironverse/guardian/internal/config"
	"github.com/ironverse/guardian/internal/gitrepo"
	"github.com/ironverse/guardian/internal/models"
	"github.com/ironverse/guardian/internal/reference"
)

var updateRemove []string

var updateCmd = &cobra.Command{
	Use:   "update-reference [path...]",
	Short: "Refresh reference entries from the target repository head",
	Long: `The operator-driven canonical update: replace reference store entries with
the content currently at the target branch head.

Run this only after the corresponding change has been legitimately
committed to the target repository; the reference store must always
reflect an intentionally-approved state. The reconciliation cycle never
performs this operation.

With no arguments, every registered path is refreshed. Paths given as
arguments are added (or refreshed). --remove drops paths from the
registry.

Examples:
  guardian update-reference
  guardian update-reference .github/workflows/enforce.yml
  guardian update-reference --remove docs/old-policy.md`,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringSliceVar(&updateRemove, "remove", []string{}, "Paths to remove from the registry")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	dir := config.GetReferenceDir()

	// Start from the current registry when one exists. A missing registry
	// is fine on first use as long as paths were given; any other load
	// failure means the registry exists but is unreadable or inconsistent,
	// and overwriting it would destroy the operator's evidence.
	known := make(map[string]bool)
	store, err := reference.Load(dir)
	switch {
	case err == nil:
		for _, path := range store.Paths() {
			known[path] = true
		}
	case errors.Is(err, reference.ErrNoRegistry):
		if len(args) == 0 {
			return fmt.Errorf("no existing registry to refresh and no paths given: %w", err)
		}
	default:
		return fmt.Errorf("refusing to overwrite an unreadable registry: %w", err)
	}

	for _, path := range args {
		known[path] = true
	}
	for _, path := range updateRemove {
		if !known[path] {
			return fmt.Errorf("cannot remove %s: not in the registry", path)
		}
		delete(known, path)
	}
	if len(known) == 0 {
		return fmt.Errorf("refusing to write an empty registry")
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

	paths := make([]string, 0, len(known))
	for path := range known {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	entries := make([]models.ReferenceEntry, 0, len(paths))
	for _, path := range paths {
		content, err := repo.ReadFile(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("failed to read %s from %s: %w", path, config.GetRepoBranch(), err)
		}
		entries = append(entries, models.ReferenceEntry{
			Path:    path,
			Content: content,
			Hash:    models.HashBytes(content),
		})
	}

	if err := reference.Write(dir, entries); err != nil {
		return fmt.Errorf("failed to write reference store: %w", err)
	}

	fmt.Printf("Reference store updated: %d path(s)\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  %s  %s\n", shortSHA(e.Hash), e.Path)
	}
	return nil
}
