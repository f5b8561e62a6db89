package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

// GitCloner fetches repositories with the git binary. A shallow clone
// is enough; history is stripped before anything is archived.
type GitCloner struct{}

// Clone clones repoURL into dest and removes the VCS metadata so no
// history or credentials travel with the deployment archive.
func (GitCloner) Clone(ctx context.Context, repoURL, dest string, logs *job.LogSink) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}

	if err := runCommand(ctx, logs, "", "git", "clone", "--depth", "1", repoURL, dest); err != nil {
		return fmt.Errorf("repository unreachable or invalid: %w", err)
	}

	gitDir := filepath.Join(dest, ".git")
	if err := os.RemoveAll(gitDir); err != nil {
		logs.Warnf("Failed to remove .git directory: %s", err)
	} else {
		logs.Infof("Removed VCS metadata at %s", gitDir)
	}
	return nil
}
