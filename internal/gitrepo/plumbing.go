package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// runGit executes a git command in dir and returns trimmed stdout. Stderr is
// folded into the error for diagnostics. The context bounds the command;
// callers attach their timeout.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w%s", strings.Join(args, " "), err, stderrOf(err))
	}
	return strings.TrimSpace(string(output)), nil
}

// readBlob returns the raw bytes of path at rev, or ok=false when the path
// does not exist in that revision.
func readBlob(ctx context.Context, dir, rev, path string) ([]byte, bool, error) {
	spec := rev + ":" + path

	probe := exec.CommandContext(ctx, "git", "cat-file", "-e", spec)
	probe.Dir = dir
	if probe.Run() != nil {
		return nil, false, nil
	}

	cmd := exec.CommandContext(ctx, "git", "cat-file", "blob", spec)
	cmd.Dir = dir
	content, err := cmd.Output()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w%s", spec, err, stderrOf(err))
	}
	return content, true, nil
}

func stderrOf(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(string(exitErr.Stderr)); msg != "" {
			return ": " + msg
		}
	}
	return ""
}
