package model

import "time"

type PlanAction string

const (
	PlanActionUpdate   PlanAction = "update"
	PlanActionObsolete PlanAction = "obsolete"
	PlanActionNoChange PlanAction = "no_change"
)

type Significance string

const (
	SignificanceMinor       Significance = "minor"
	SignificanceMajor       Significance = "major"
	SignificanceScopeChange Significance = "scope_change"
)

type FeatureCategory string

const (
	FeatureCategoryTechnical    FeatureCategory = "technical"
	FeatureCategoryNonTechnical FeatureCategory = "non-technical"
	FeatureCategoryEnabler      FeatureCategory = "enabler"
)

type FeaturePriority string

const (
	FeaturePriorityHigh   FeaturePriority = "high"
	FeaturePriorityMedium FeaturePriority = "medium"
	FeaturePriorityLow    FeaturePriority = "low"
)

// ChangeAssessment is the significance verdict for one document revision.
// Derived each run, never persisted.
type ChangeAssessment struct {
	Significant    bool     `json:"significant"`
	Summary        string   `json:"summary"`
	TrivialChanges []string `json:"trivial_changes,omitempty"`
	Rationale      string   `json:"rationale"`
}

// UpdatePlanEntry is the planned action for one existing work item. Exactly
// one entry per item in scope; Action values are mutually exclusive.
type UpdatePlanEntry struct {
	ItemID        int64        `json:"item_id"`
	Action        PlanAction   `json:"action"`
	Significance  Significance `json:"significance,omitempty"`
	Rationale     string       `json:"rationale"`
	Patch         *ItemPatch   `json:"patch,omitempty"`
	Comment       string       `json:"comment,omitempty"`
	UpdateSummary string       `json:"update_summary,omitempty"`
}

// NewFeatureRecord describes a capability that has no corresponding work item
// yet. Consumed once by the execution engine to create a WorkItem.
type NewFeatureRecord struct {
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	Category           FeatureCategory `json:"category"`
	Priority           FeaturePriority `json:"priority"`
	Effort             string          `json:"effort,omitempty"`
	AcceptanceCriteria []string        `json:"acceptance_criteria,omitempty"`
	DependsOn          []string        `json:"depends_on,omitempty"`
	Blocks             []string        `json:"blocks,omitempty"`
	Tags               []string        `json:"tags,omitempty"`
	Rationale          string          `json:"rationale,omitempty"`
}

// UnifiedPlan is the sole contract between planning and execution: the
// significance assessment, one entry per existing item, and the features to
// create. It decouples "what to do" from how storage performs it.
type UnifiedPlan struct {
	Assessment  ChangeAssessment   `json:"assessment"`
	Entries     []UpdatePlanEntry  `json:"entries"`
	NewFeatures []NewFeatureRecord `json:"new_features"`
}

// CountByAction tallies plan entries per action.
func (p UnifiedPlan) CountByAction() map[PlanAction]int {
	counts := make(map[PlanAction]int)
	for _, e := range p.Entries {
		counts[e.Action]++
	}
	return counts
}

// RunSummary is emitted after each orchestrator run and written to the run
// artifact. A debugging/audit record, not an API contract.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Mode      string    `json:"mode"`
	Document  string    `json:"document"`
	Updated   int       `json:"updated"`
	Created   int       `json:"created"`
	Unchanged int       `json:"unchanged"`
	Rationale string    `json:"rationale"`
	Timestamp time.Time `json:"timestamp"`
}
