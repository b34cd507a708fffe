package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GetRepoURL returns the target repository's clone URL.
func GetRepoURL() string {
	return viper.GetString("repo.url")
}

// GetRepoBranch returns the protected branch name.
func GetRepoBranch() string {
	return viper.GetString("repo.branch")
}

// GetCacheDir returns the local clone cache directory.
func GetCacheDir() string {
	if dir := viper.GetString("repo.cache_dir"); dir != "" {
		return dir
	}
	return filepath.Join(baseDir(), "repo")
}

// GetMaxHistoryDepth returns how many ancestors the history scan may walk.
func GetMaxHistoryDepth() int {
	return viper.GetInt("repo.max_history_depth")
}

// GetReferenceDir returns the reference store directory.
func GetReferenceDir() string {
	return viper.GetString("reference.dir")
}

// GetTrackerOwner returns the alert repository owner.
func GetTrackerOwner() string {
	return viper.GetString("tracker.owner")
}

// GetTrackerRepo returns the alert repository name.
func GetTrackerRepo() string {
	return viper.GetString("tracker.repo")
}

// GetTrackerToken returns the tracker API token. Normally comes from the
// GUARDIAN_TRACKER_TOKEN environment variable, never from the config file.
func GetTrackerToken() string {
	return viper.GetString("tracker.token")
}

// GetTrackerLabels returns the labels attached to alert issues.
func GetTrackerLabels() []string {
	return viper.GetStringSlice("tracker.labels")
}

// GetAuthorName returns the identity restoration commits are authored as.
func GetAuthorName() string {
	return viper.GetString("guardian.author_name")
}

// GetAuthorEmail returns the author email for restoration commits.
func GetAuthorEmail() string {
	return viper.GetString("guardian.author_email")
}

// GetLockFile returns the path of the single-cycle lock file.
func GetLockFile() string {
	if path := viper.GetString("guardian.lock_file"); path != "" {
		return path
	}
	return filepath.Join(baseDir(), "guardian.lock")
}

// GetJournalPath returns the run journal database path.
func GetJournalPath() string {
	if path := viper.GetString("journal.path"); path != "" {
		return path
	}
	return filepath.Join(baseDir(), "runs.db")
}

// GetFetchTimeout bounds clone/fetch operations.
func GetFetchTimeout() time.Duration {
	return viper.GetDuration("timeouts.fetch")
}

// GetPushTimeout bounds the restoration build-and-push.
func GetPushTimeout() time.Duration {
	return viper.GetDuration("timeouts.push")
}

// GetTrackerTimeout bounds each tracker query/create call.
func GetTrackerTimeout() time.Duration {
	return viper.GetDuration("timeouts.tracker")
}

// Validate enforces fail-closed startup: every setting a cycle needs must be
// present and sane before any repository access is attempted.
func Validate() error {
	var missing []string
	if GetRepoURL() == "" {
		missing = append(missing, "repo.url")
	}
	if GetRepoBranch() == "" {
		missing = append(missing, "repo.branch")
	}
	if GetReferenceDir() == "" {
		missing = append(missing, "reference.dir")
	}
	if GetAuthorName() == "" {
		missing = append(missing, "guardian.author_name")
	}
	if GetAuthorEmail() == "" {
		missing = append(missing, "guardian.author_email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if depth := GetMaxHistoryDepth(); depth <= 0 {
		return fmt.Errorf("repo.max_history_depth must be positive, got %d", depth)
	}
	return nil
}

func baseDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "guardian")
	}
	return filepath.Join(os.TempDir(), "guardian")
}
