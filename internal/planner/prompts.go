package planner

import (
	"fmt"
	"strings"

	"prdsync.app/prdsync/internal/model"
)

const planSystemPrompt = `You are a release planner keeping a work item tracker in sync with an evolving product requirements document.

You receive the current document, the significant portion of its diff against the previous analyzed version, and the full contents of every existing tracked item. Produce one unified plan covering all of them.

Decision policy (apply literally):
- Trivial edits (version bumps, date-only changes, pure formatting, non-semantic wording) must be ignored entirely.
- Minor clarifications (added examples, non-functional tweaks) should update the affected items selectively.
- New capabilities, changed acceptance criteria, removed scope, or new dependencies must produce either an update entry on an existing item or a new feature record - never both for the same capability.
- When you are uncertain whether a change affects an item, prefer no_change over update.
- When functionality overlaps an existing item, prefer updating that item over creating a new one.
- Mark an item obsolete only when the document clearly removed its scope; obsolescence is advisory and the item stays visible.

Every existing item must appear exactly once in "entries" with action update, obsolete, or no_change. List genuinely new capabilities under "new_features" with a rationale for why they are not an update to an existing item.

Respond with a single JSON object matching the provided schema. No prose outside the JSON.`

const extractSystemPrompt = `You extract discrete, implementable features from a product requirements document so each can become one tracked work item.

Rules:
- One record per feature; do not merge unrelated capabilities or split one capability across records.
- category: "technical" for engineering work, "non-technical" for process/content/design work, "enabler" for groundwork other features depend on.
- priority: high, medium, or low from the document's own emphasis.
- acceptance_criteria: concrete, testable statements taken or derived from the document.
- depends_on / blocks: names of other features in this same extraction, only when the document states or clearly implies the relationship.

Respond with a single JSON object matching the provided schema. No prose outside the JSON.`

func buildPlanUserPrompt(currentContent, filteredDiff string, trivial []string, items []model.WorkItem) string {
	var b strings.Builder

	b.WriteString("# Current document\n\n")
	b.WriteString(currentContent)
	b.WriteString("\n\n# Significant changes since last analyzed version\n\n")
	b.WriteString(filteredDiff)

	if len(trivial) > 0 {
		b.WriteString("\n# Trivial changes excluded from analysis (for transparency)\n\n")
		for _, t := range trivial {
			b.WriteString("- ")
			b.WriteString(t)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n# Existing tracked items\n")
	for _, item := range items {
		fmt.Fprintf(&b, "\n## Item %d: %s\n", item.ID, item.Title)
		if len(item.Labels) > 0 {
			fmt.Fprintf(&b, "Labels: %s\n", strings.Join(item.Labels, ", "))
		}
		b.WriteString("\n")
		b.WriteString(item.Body)
		b.WriteString("\n")
	}

	return b.String()
}

func buildExtractUserPrompt(content, documentPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Document: %s\n\n", documentPath)
	b.WriteString(content)
	return b.String()
}
