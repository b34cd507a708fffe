package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alpkeskin/gotoon"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ironverse/guardian/internal/config"
	"github.com/ironverse/guardian/internal/engine"
	"github.com/ironverse/guardian/internal/gitrepo"
	"github.com/ironverse/guardian/internal/journal"
	"github.com/ironverse/guardian/internal/models"
	"github.com/ironverse/guardian/internal/reference"
	"github.com/ironverse/guardian/internal/tracker"
)

var (
	runJSON bool
	runToon bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one reconciliation cycle",
	Long: `Run one full detect-and-repair pass against the target repository.

The cycle fetches the repository and the reference store, checks every
protected path, and if anything diverged restores the last known-good
state (with current reference content overlaid) as a new commit, then
raises a de-duplicated alert.

Exit status is 0 for a clean or restored cycle and non-zero for a failed
one, so the scheduler can record every terminal state without reaching
the tracker.

Examples:
  guardian run
  guardian run --json
  guardian run --toon`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runJSON, "json", false, "Output report as JSON")
	runCmd.Flags().BoolVar(&runToon, "toon", false, "Output report in LLM-friendly toon format")
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	release, acquired, err := acquireLock(config.GetLockFile())
	if err != nil {
		return fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !acquired {
		slog.Warn("another cycle is still running, skipping this invocation", "lock", config.GetLockFile())
		return nil
	}
	defer release()

	cycle := &engine.Cycle{
		Repo: &gitrepo.Repo{
			URL:          config.GetRepoURL(),
			Branch:       config.GetRepoBranch(),
			CacheDir:     config.GetCacheDir(),
			AuthorName:   config.GetAuthorName(),
			AuthorEmail:  config.GetAuthorEmail(),
			FetchTimeout: config.GetFetchTimeout(),
			PushTimeout:  config.GetPushTimeout(),
		},
		Reference:   reference.Dir{Path: config.GetReferenceDir()},
		Tracker:     buildTracker(),
		MaxDepth:    config.GetMaxHistoryDepth(),
		AuthorName:  config.GetAuthorName(),
		AuthorEmail: config.GetAuthorEmail(),
		Labels:      config.GetTrackerLabels(),
		Log:         slog.Default(),
	}

	report, cycleErr := cycle.Run(cmd.Context())
	report.RunID = uuid.NewString()

	recordRun(cmd.Context(), report)

	if err := printReport(report); err != nil {
		return err
	}
	if cycleErr != nil {
		return fmt.Errorf("cycle failed: %w", cycleErr)
	}
	return nil
}

// buildTracker returns the configured issue tracker, or nil when no tracker
// repository is configured. Alerting is best-effort either way.
func buildTracker() engine.IssueTracker {
	owner, repo := config.GetTrackerOwner(), config.GetTrackerRepo()
	if owner == "" || repo == "" {
		slog.Warn("tracker.owner/tracker.repo not configured, alerts will only appear in logs")
		return nil
	}
	token := config.GetTrackerToken()
	if token == "" {
		slog.Warn("tracker token not set, tracker calls will likely be rejected")
	}
	return tracker.NewGitHub(owner, repo, token, config.GetTrackerTimeout())
}

// recordRun appends the report to the local run journal. Journal problems
// never change the cycle outcome.
func recordRun(ctx context.Context, report *models.CycleReport) {
	j, err := journal.Open(config.GetJournalPath())
	if err != nil {
		slog.Error("failed to open run journal", "path", config.GetJournalPath(), "error", err)
		return
	}
	defer j.Close()
	if err := j.Record(ctx, report); err != nil {
		slog.Error("failed to record cycle in journal", "error", err)
	}
}

func printReport(report *models.CycleReport) error {
	if runJSON {
		output, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if runToon {
		output, err := gotoon.Encode(report)
		if err != nil {
			return fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
		return nil
	}

	fmt.Printf("Outcome:  %s\n", report.Outcome)
	if report.Branch != "" {
		fmt.Printf("Branch:   %s @ %s\n", report.Branch, shortSHA(report.HeadSHA))
	}
	if len(report.Violations) > 0 {
		fmt.Println("Violated:")
		for _, v := range report.Violations {
			fmt.Printf("  %-14s %s\n", "("+string(v.Kind)+")", v.Path)
		}
	}
	if report.TargetSHA != "" {
		fmt.Printf("Target:   %s\n", shortSHA(report.TargetSHA))
	}
	if report.RestoredSHA != "" {
		fmt.Printf("Restored: %s\n", shortSHA(report.RestoredSHA))
	}
	if report.AlertURL != "" {
		fmt.Printf("Alert:    %s\n", report.AlertURL)
	}
	if report.Error != "" {
		fmt.Printf("Error:    %s\n", report.Error)
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

// acquireLock takes an exclusive lock file guarding the cycle. A lock left
// behind by a dead process is taken over; a live one makes this invocation
// skip. Returns a release func, whether the lock was acquired, and any
// filesystem error.
func acquireLock(path string) (func(), bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			f.Close()
			return func() { os.Remove(path) }, true, nil
		}
		if !os.IsExist(err) {
			return nil, false, err
		}

		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, false, nil
		}
		pid, _, _ := strings.Cut(strings.TrimSpace(string(raw)), "\n")
		if n, convErr := strconv.Atoi(pid); convErr == nil && processAlive(n) {
			return nil, false, nil
		}
		// Stale lock from a dead process. Remove and retry once.
		slog.Warn("removing stale cycle lock", "path", path, "pid", pid)
		os.Remove(path)
	}
	return nil, false, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
