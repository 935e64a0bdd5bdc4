// Package orchestrator drives one document run end to end: load the document,
// discover its tracked items, pick fresh-create or incremental mode, diff,
// plan, execute and summarize. A run with no significant changes is a normal
// terminal state, not an error.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"prdsync.app/prdsync/common/id"
	"prdsync.app/prdsync/common/logger"
	"prdsync.app/prdsync/internal/diff"
	"prdsync.app/prdsync/internal/executor"
	"prdsync.app/prdsync/internal/model"
	"prdsync.app/prdsync/internal/planner"
	"prdsync.app/prdsync/internal/store"
)

const (
	ModeFreshCreate = "fresh-create"
	ModeIncremental = "incremental"

	creationComment = "Created from source document %s"
)

type Orchestrator struct {
	store     store.WorkItemStore
	planner   *planner.Planner
	extractor *planner.Extractor
	executor  *executor.Executor
	runDir    string
}

// New wires the run pipeline. runDir may be empty to skip run artifacts.
func New(s store.WorkItemStore, p *planner.Planner, e *planner.Extractor, runDir string) *Orchestrator {
	return &Orchestrator{
		store:     s,
		planner:   p,
		extractor: e,
		executor:  executor.New(s),
		runDir:    runDir,
	}
}

// ProcessDocument runs the full pipeline for one document revision. The
// returned summary is also written to the run artifact directory.
func (o *Orchestrator) ProcessDocument(ctx context.Context, path string, forceCreate bool) (model.RunSummary, error) {
	runID := strconv.FormatInt(id.New(), 10)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:        logger.Ptr(runID),
		DocumentPath: logger.Ptr(path),
		Component:    "prdsync.orchestrator",
	})

	content, err := os.ReadFile(path)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("reading document: %w", err)
	}

	items, err := o.store.List(ctx, store.Filter{
		State:  model.ItemStateOpen,
		Labels: []string{model.LabelGenerated},
	})
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("discovering items: %w", err)
	}
	slog.InfoContext(ctx, "items discovered", "count", len(items))

	var summary model.RunSummary
	if forceCreate || len(items) == 0 {
		summary, err = o.freshCreate(ctx, string(content), path)
	} else {
		summary, err = o.incremental(ctx, string(content), path, items)
	}
	if err != nil {
		return model.RunSummary{}, err
	}

	summary.RunID = runID
	summary.Document = path
	summary.Timestamp = time.Now().UTC()
	o.writeRunArtifact(ctx, summary)

	slog.InfoContext(ctx, "run complete",
		"mode", summary.Mode,
		"updated", summary.Updated,
		"created", summary.Created,
		"unchanged", summary.Unchanged)
	return summary, nil
}

// freshCreate extracts every feature the document describes and creates one
// item each, seeded with a provenance comment and an initial snapshot.
func (o *Orchestrator) freshCreate(ctx context.Context, content, path string) (model.RunSummary, error) {
	features, err := o.extractor.Extract(ctx, content, path)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("extracting features: %w", err)
	}

	snapshots, _ := o.store.(store.SnapshotStore)
	created := 0
	for _, feature := range features {
		body, err := executor.RenderBody(feature, path)
		if err != nil {
			slog.WarnContext(ctx, "feature body render failed", "title", feature.Title, "error", err)
			continue
		}
		itemID, err := o.store.Create(ctx, store.CreateParams{
			Title:  feature.Title,
			Body:   body,
			Labels: executor.BuildLabels(feature),
		})
		if err != nil {
			slog.WarnContext(ctx, "item creation failed", "title", feature.Title, "error", err)
			continue
		}
		if err := o.store.AddComment(ctx, itemID, fmt.Sprintf(creationComment, path)); err != nil {
			slog.WarnContext(ctx, "provenance comment failed", "item_id", itemID, "error", err)
			continue
		}
		if snapshots != nil {
			if err := snapshots.StoreSnapshot(ctx, itemID, content, path); err != nil {
				slog.WarnContext(ctx, "initial snapshot failed", "item_id", itemID, "error", err)
				continue
			}
		}
		created++
	}

	return model.RunSummary{
		Mode:      ModeFreshCreate,
		Created:   created,
		Rationale: fmt.Sprintf("created %d of %d extracted features", created, len(features)),
	}, nil
}

func (o *Orchestrator) incremental(ctx context.Context, content, path string, items []model.WorkItem) (model.RunSummary, error) {
	prior := o.priorContent(ctx, items)
	diffLines := diff.Diff(prior, content)

	plan, err := o.planner.Plan(ctx, content, diffLines, items)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("planning run: %w", err)
	}

	result := o.executor.Execute(ctx, plan, content, path)

	rationale := plan.Assessment.Summary
	if plan.Assessment.Rationale != "" {
		rationale = plan.Assessment.Rationale
	}
	return model.RunSummary{
		Mode:      ModeIncremental,
		Updated:   result.Updated,
		Created:   result.Created,
		Unchanged: result.Unchanged,
		Rationale: rationale,
	}, nil
}

// priorContent loads the last analyzed document text: the latest snapshot of
// the newest item. A store without snapshots, or one with none recorded yet,
// degrades to an empty prior so the whole document reads as added.
func (o *Orchestrator) priorContent(ctx context.Context, items []model.WorkItem) string {
	snapshots, ok := o.store.(store.SnapshotStore)
	if !ok || len(items) == 0 {
		return ""
	}

	// List returns newest first.
	snapshot, err := snapshots.GetSnapshot(ctx, items[0].ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "snapshot lookup failed, treating document as new", "item_id", items[0].ID, "error", err)
		}
		return ""
	}
	return snapshot.Content
}

func (o *Orchestrator) writeRunArtifact(ctx context.Context, summary model.RunSummary) {
	if o.runDir == "" {
		return
	}
	if err := os.MkdirAll(o.runDir, 0o755); err != nil {
		slog.WarnContext(ctx, "creating run artifact directory failed", "error", err)
		return
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		slog.WarnContext(ctx, "encoding run artifact failed", "error", err)
		return
	}
	path := filepath.Join(o.runDir, summary.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.WarnContext(ctx, "writing run artifact failed", "error", err)
	}
}
