// Package executor applies a UnifiedPlan against a work item store. Failures
// are entry-scoped: one failing entry is logged and skipped without aborting
// its siblings, and the result counts only entries whose side effects all
// succeeded.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"prdsync.app/prdsync/internal/model"
	"prdsync.app/prdsync/internal/store"
)

// Result tallies what the run actually did. Failed entries count toward none
// of the buckets.
type Result struct {
	Updated   int
	Created   int
	Unchanged int
}

type Executor struct {
	store store.WorkItemStore
}

func New(s store.WorkItemStore) *Executor {
	return &Executor{store: s}
}

// Execute runs every plan entry and feature creation. currentContent and
// documentPath feed the snapshot persisted for each touched item when the
// store supports snapshots.
func (e *Executor) Execute(ctx context.Context, plan model.UnifiedPlan, currentContent, documentPath string) Result {
	var result Result
	snapshots, _ := e.store.(store.SnapshotStore)

	for _, entry := range plan.Entries {
		switch entry.Action {
		case model.PlanActionUpdate:
			if e.applyUpdate(ctx, entry, snapshots, currentContent, documentPath) {
				result.Updated++
			}
		case model.PlanActionObsolete:
			if e.markObsolete(ctx, entry) {
				result.Updated++
			}
		default:
			result.Unchanged++
		}
	}

	for _, feature := range plan.NewFeatures {
		if e.createFeature(ctx, feature, snapshots, currentContent, documentPath) {
			result.Created++
		}
	}

	slog.InfoContext(ctx, "plan executed",
		"updated", result.Updated,
		"created", result.Created,
		"unchanged", result.Unchanged)
	return result
}

func (e *Executor) applyUpdate(ctx context.Context, entry model.UpdatePlanEntry, snapshots store.SnapshotStore, content, documentPath string) bool {
	if entry.Patch != nil && !entry.Patch.Empty() {
		if err := e.store.Update(ctx, entry.ItemID, *entry.Patch); err != nil {
			slog.WarnContext(ctx, "item update failed", "item_id", entry.ItemID, "error", err)
			return false
		}
	}

	if entry.Comment != "" {
		if err := e.store.AddComment(ctx, entry.ItemID, entry.Comment); err != nil {
			slog.WarnContext(ctx, "item comment failed", "item_id", entry.ItemID, "error", err)
			return false
		}
	}

	if snapshots != nil {
		if err := snapshots.StoreSnapshot(ctx, entry.ItemID, content, documentPath); err != nil {
			slog.WarnContext(ctx, "snapshot store failed", "item_id", entry.ItemID, "error", err)
			return false
		}
	}
	return true
}

// markObsolete leaves an advisory comment and nothing else. Closing is a human
// decision; the engine never does it.
func (e *Executor) markObsolete(ctx context.Context, entry model.UpdatePlanEntry) bool {
	comment := fmt.Sprintf("**Possibly obsolete.** %s\n\nThe latest document revision no longer appears to cover this item. It stays open pending human review.", entry.Rationale)
	if err := e.store.AddComment(ctx, entry.ItemID, comment); err != nil {
		slog.WarnContext(ctx, "obsolete comment failed", "item_id", entry.ItemID, "error", err)
		return false
	}
	return true
}

func (e *Executor) createFeature(ctx context.Context, feature model.NewFeatureRecord, snapshots store.SnapshotStore, content, documentPath string) bool {
	body, err := RenderBody(feature, documentPath)
	if err != nil {
		slog.WarnContext(ctx, "feature body render failed", "title", feature.Title, "error", err)
		return false
	}

	id, err := e.store.Create(ctx, store.CreateParams{
		Title:  feature.Title,
		Body:   body,
		Labels: BuildLabels(feature),
	})
	if err != nil {
		slog.WarnContext(ctx, "feature creation failed", "title", feature.Title, "error", err)
		return false
	}

	if snapshots != nil {
		if err := snapshots.StoreSnapshot(ctx, id, content, documentPath); err != nil {
			slog.WarnContext(ctx, "initial snapshot failed", "item_id", id, "error", err)
			return false
		}
	}

	slog.InfoContext(ctx, "work item created", "item_id", id, "title", feature.Title, "category", feature.Category)
	return true
}
