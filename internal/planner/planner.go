// Package planner decides what an evolving document means for its tracked
// work items. Given the current content, a diff against the last analyzed
// snapshot, and the existing items, it produces one UnifiedPlan: per-item
// actions plus the genuinely new features to create.
//
// The significance filter runs first; an insignificant diff short-circuits
// the whole engine with zero oracle calls.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"prdsync.app/prdsync/common/llm"
	"prdsync.app/prdsync/common/logger"
	"prdsync.app/prdsync/internal/diff"
	"prdsync.app/prdsync/internal/model"
	"prdsync.app/prdsync/internal/significance"
)

const noChangeRationale = "no significant changes affect this item"

type Planner struct {
	oracle     llm.Client
	classifier *significance.Classifier
	maxTokens  int
}

func New(oracle llm.Client, classifier *significance.Classifier) *Planner {
	if classifier == nil {
		classifier = significance.New(significance.DefaultMinLineLength)
	}
	return &Planner{
		oracle:     oracle,
		classifier: classifier,
		maxTokens:  16384,
	}
}

// planSchema is the fixed response contract sent to the oracle. It mirrors
// UnifiedPlan minus Assessment.Significant, which defaults true on this path.
type planSchema struct {
	Summary   string `json:"summary" jsonschema:"description=One paragraph describing what changed in the document"`
	Rationale string `json:"rationale" jsonschema:"description=Why the plan is shaped the way it is"`
	Entries   []struct {
		ItemID        int64    `json:"item_id" jsonschema:"required"`
		Action        string   `json:"action" jsonschema:"required,enum=update,enum=obsolete,enum=no_change"`
		Significance  string   `json:"significance,omitempty" jsonschema:"enum=minor,enum=major,enum=scope_change"`
		Rationale     string   `json:"rationale" jsonschema:"required"`
		Title         string   `json:"title,omitempty"`
		Body          string   `json:"body,omitempty"`
		Labels        []string `json:"labels,omitempty"`
		Comment       string   `json:"comment,omitempty"`
		UpdateSummary string   `json:"update_summary,omitempty"`
	} `json:"entries" jsonschema:"required"`
	NewFeatures []featureSchema `json:"new_features" jsonschema:"required"`
}

type featureSchema struct {
	Title              string   `json:"title" jsonschema:"required"`
	Description        string   `json:"description" jsonschema:"required"`
	Category           string   `json:"category" jsonschema:"required,enum=technical,enum=non-technical,enum=enabler"`
	Priority           string   `json:"priority" jsonschema:"required,enum=high,enum=medium,enum=low"`
	Effort             string   `json:"effort,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	DependsOn          []string `json:"depends_on,omitempty"`
	Blocks             []string `json:"blocks,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	Rationale          string   `json:"rationale,omitempty"`
}

// Plan classifies the diff and, when significant, makes one consolidated
// oracle call covering every existing item. The returned plan always carries
// exactly one entry per supplied item.
func (p *Planner) Plan(ctx context.Context, currentContent string, diffLines []diff.Line, items []model.WorkItem) (model.UnifiedPlan, error) {
	result := p.classifier.Classify(diffLines)

	if !result.Significant {
		slog.InfoContext(ctx, "no significant changes, skipping oracle",
			"trivial_changes", len(result.Trivial))
		return model.UnifiedPlan{
			Assessment: model.ChangeAssessment{
				Significant:    false,
				Summary:        "no significant changes detected",
				TrivialChanges: result.Trivial,
				Rationale:      fmt.Sprintf("all %d changed lines are trivial or below the noise threshold", len(result.Trivial)),
			},
			Entries: noChangeEntries(items),
		}, nil
	}

	req := llm.Request{
		SystemPrompt: planSystemPrompt,
		UserPrompt:   buildPlanUserPrompt(currentContent, diff.Render(result.Filtered), result.Trivial, items),
		SchemaName:   "unified_plan",
		Schema:       llm.GenerateSchema[planSchema](),
		MaxTokens:    p.maxTokens,
		Temperature:  llm.Temp(0),
	}

	response, _, err := p.oracle.Complete(ctx, req)
	if err != nil {
		return model.UnifiedPlan{}, fmt.Errorf("planning oracle call: %w", err)
	}

	payload, err := ExtractJSON(response)
	if err != nil {
		slog.ErrorContext(ctx, "plan response carried no JSON",
			"response", logger.Truncate(response, 500))
		return model.UnifiedPlan{}, fmt.Errorf("parsing plan response: %w", err)
	}

	plan, err := decodePlan(ctx, []byte(payload), items)
	if err != nil {
		return model.UnifiedPlan{}, fmt.Errorf("decoding plan response: %w", err)
	}
	plan.Assessment.TrivialChanges = result.Trivial

	slog.InfoContext(ctx, "plan produced",
		"entries", len(plan.Entries),
		"new_features", len(plan.NewFeatures))
	return plan, nil
}

func noChangeEntries(items []model.WorkItem) []model.UpdatePlanEntry {
	entries := make([]model.UpdatePlanEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, model.UpdatePlanEntry{
			ItemID:    item.ID,
			Action:    model.PlanActionNoChange,
			Rationale: noChangeRationale,
		})
	}
	return entries
}

// decodePlan tolerates known alternate key spellings and defaults every
// omitted field to its safe empty value. Entries for unknown item ids are
// dropped; items the oracle skipped get a no_change entry, keeping the
// one-entry-per-item invariant.
func decodePlan(ctx context.Context, payload []byte, items []model.WorkItem) (model.UnifiedPlan, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return model.UnifiedPlan{}, err
	}

	plan := model.UnifiedPlan{
		Assessment: model.ChangeAssessment{
			Significant: true,
			Summary:     pickString(raw, "summary", "change_summary"),
			Rationale:   pickString(raw, "rationale", "reasoning"),
		},
	}

	known := make(map[int64]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}
	planned := make(map[int64]bool, len(items))

	if v, ok := pick(raw, "entries", "updates", "item_updates"); ok {
		var rawEntries []map[string]json.RawMessage
		if err := json.Unmarshal(v, &rawEntries); err != nil {
			return model.UnifiedPlan{}, fmt.Errorf("entries: %w", err)
		}
		for _, rawEntry := range rawEntries {
			entry := decodeEntry(rawEntry)
			if !known[entry.ItemID] {
				slog.WarnContext(ctx, "oracle planned unknown item, dropping entry", "item_id", entry.ItemID)
				continue
			}
			if planned[entry.ItemID] {
				slog.WarnContext(ctx, "oracle planned item twice, keeping first entry", "item_id", entry.ItemID)
				continue
			}
			planned[entry.ItemID] = true
			plan.Entries = append(plan.Entries, entry)
		}
	}

	// Conservative default for anything the oracle left out.
	for _, item := range items {
		if !planned[item.ID] {
			plan.Entries = append(plan.Entries, model.UpdatePlanEntry{
				ItemID:    item.ID,
				Action:    model.PlanActionNoChange,
				Rationale: noChangeRationale,
			})
		}
	}

	if v, ok := pick(raw, "new_features", "newFeatures", "features"); ok {
		var rawFeatures []map[string]json.RawMessage
		if err := json.Unmarshal(v, &rawFeatures); err != nil {
			return model.UnifiedPlan{}, fmt.Errorf("new_features: %w", err)
		}
		for _, rawFeature := range rawFeatures {
			plan.NewFeatures = append(plan.NewFeatures, decodeFeature(rawFeature))
		}
	}

	return plan, nil
}

func decodeEntry(raw map[string]json.RawMessage) model.UpdatePlanEntry {
	id, _ := pickInt64(raw, "item_id", "itemId", "issue_number", "id")
	entry := model.UpdatePlanEntry{
		ItemID:        id,
		Action:        normalizeAction(pickString(raw, "action")),
		Significance:  normalizeSignificance(pickString(raw, "significance")),
		Rationale:     pickString(raw, "rationale", "reasoning"),
		Comment:       pickString(raw, "comment", "comment_text"),
		UpdateSummary: pickString(raw, "update_summary", "updateSummary"),
	}

	patch := model.ItemPatch{}
	if title := pickString(raw, "title", "new_title"); title != "" {
		patch.Title = &title
	}
	if body := pickString(raw, "body", "description", "new_body"); body != "" {
		patch.Body = &body
	}
	if labels := pickStrings(raw, "labels"); labels != nil {
		patch.Labels = labels
	}
	if !patch.Empty() {
		entry.Patch = &patch
	}
	return entry
}

func decodeFeature(raw map[string]json.RawMessage) model.NewFeatureRecord {
	return model.NewFeatureRecord{
		Title:              pickString(raw, "title", "name"),
		Description:        pickString(raw, "description", "desc"),
		Category:           normalizeCategory(pickString(raw, "category", "type")),
		Priority:           normalizePriority(pickString(raw, "priority")),
		Effort:             pickString(raw, "effort", "effort_estimate"),
		AcceptanceCriteria: pickStrings(raw, "acceptance_criteria", "acceptanceCriteria", "criteria"),
		DependsOn:          pickStrings(raw, "depends_on", "dependencies"),
		Blocks:             pickStrings(raw, "blocks", "blocked_features"),
		Tags:               pickStrings(raw, "tags"),
		Rationale:          pickString(raw, "rationale", "reasoning"),
	}
}

// normalizeAction maps unrecognized actions to no_change: when the oracle's
// intent is unclear the conservative reading wins.
func normalizeAction(action string) model.PlanAction {
	switch action {
	case "update":
		return model.PlanActionUpdate
	case "obsolete", "deprecate", "deprecated":
		return model.PlanActionObsolete
	default:
		return model.PlanActionNoChange
	}
}

func normalizeSignificance(s string) model.Significance {
	switch s {
	case "major":
		return model.SignificanceMajor
	case "scope_change", "scope-change":
		return model.SignificanceScopeChange
	case "minor":
		return model.SignificanceMinor
	default:
		return ""
	}
}

func normalizeCategory(category string) model.FeatureCategory {
	switch category {
	case "non-technical", "non_technical":
		return model.FeatureCategoryNonTechnical
	case "enabler":
		return model.FeatureCategoryEnabler
	default:
		return model.FeatureCategoryTechnical
	}
}

func normalizePriority(priority string) model.FeaturePriority {
	switch priority {
	case "high":
		return model.FeaturePriorityHigh
	case "low":
		return model.FeaturePriorityLow
	default:
		return model.FeaturePriorityMedium
	}
}
