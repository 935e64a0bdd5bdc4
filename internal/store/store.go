// Package store defines the work item persistence contract and its backends.
// Two conforming implementations exist: a durable file-tree store and a
// GitLab-backed store. Snapshot support is an optional capability; callers
// must type-assert for SnapshotStore before using it.
package store

import (
	"context"
	"errors"
	"time"

	"prdsync.app/prdsync/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist. Lookups
// translate backend "not found" responses into it; mutations against an
// unknown id fail with a wrapped error instead, since silently no-op-ing a
// mutation would hide a caller bug.
var ErrNotFound = errors.New("not found")

// CreateParams holds the caller-supplied fields for a new work item. The
// store assigns the id.
type CreateParams struct {
	Title  string
	Body   string
	Labels []string
}

// Filter narrows List results. Nil/zero fields match everything.
type Filter struct {
	State        model.ItemState
	Labels       []string // all must be present
	UpdatedSince time.Time
}

// WorkItemStore is the contract every backend must satisfy. List returns
// items ordered by id descending.
type WorkItemStore interface {
	Create(ctx context.Context, params CreateParams) (int64, error)
	Update(ctx context.Context, id int64, patch model.ItemPatch) error
	List(ctx context.Context, filter Filter) ([]model.WorkItem, error)
	Get(ctx context.Context, id int64) (*model.WorkItem, error)
	AddComment(ctx context.Context, id int64, text string) error
	Close(ctx context.Context, id int64) error
}

// SnapshotStore is the optional snapshot capability. The most recently stored
// snapshot per item is canonical; history may be retained.
type SnapshotStore interface {
	StoreSnapshot(ctx context.Context, id int64, content, documentPath string) error
	GetSnapshot(ctx context.Context, id int64) (*model.DocumentSnapshot, error)
	SnapshotDiff(ctx context.Context, id int64, newContent string) (string, error)
}

// MatchesFilter reports whether an item satisfies the filter. Shared by
// backends that filter client-side.
func MatchesFilter(item *model.WorkItem, filter Filter) bool {
	if filter.State != "" && item.State != filter.State {
		return false
	}
	for _, label := range filter.Labels {
		if !item.HasLabel(label) {
			return false
		}
	}
	if !filter.UpdatedSince.IsZero() && item.UpdatedAt.Before(filter.UpdatedSince) {
		return false
	}
	return true
}
