package store

import (
	"fmt"
	"strconv"

	"prdsync.app/prdsync/core/config"
)

// FromConfig builds the configured backend. Both backends satisfy
// WorkItemStore and SnapshotStore.
func FromConfig(cfg config.Config) (WorkItemStore, error) {
	switch cfg.Store.Backend {
	case "file":
		return NewFileStore(cfg.Store.FileDir)
	case "gitlab":
		projectID, err := strconv.ParseInt(cfg.GitLab.ProjectID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing gitlab project id: %w", err)
		}
		return NewGitLabStore(GitLabConfig{
			Token:     cfg.GitLab.Token,
			BaseURL:   cfg.GitLab.BaseURL,
			ProjectID: projectID,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
