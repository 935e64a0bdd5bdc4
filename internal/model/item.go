package model

import "time"

type ItemState string

const (
	ItemStateOpen   ItemState = "open"
	ItemStateClosed ItemState = "closed"
)

// LabelGenerated marks work items created from a source document. Discovery
// filters on it, so every backend must preserve it verbatim.
const LabelGenerated = "generated"

// Comment is a single entry in a work item's comment sequence.
type Comment struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkItem is a trackable unit of work. IDs are assigned by the owning store
// and are monotonic within one backend. Items are never physically deleted;
// "closed" and advisory obsolescence are soft states reached via Update.
type WorkItem struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	State       ItemState `json:"state"`
	Labels      []string  `json:"labels,omitempty"`
	Comments    []Comment `json:"comments,omitempty"`
	SnapshotRef *string   `json:"snapshot_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasLabel reports label membership. Label order is preserved for display but
// irrelevant for membership.
func (w *WorkItem) HasLabel(label string) bool {
	for _, l := range w.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// ItemPatch is a partial update: nil fields are left untouched by the store.
// Labels replace the full set when non-nil.
type ItemPatch struct {
	Title  *string    `json:"title,omitempty"`
	Body   *string    `json:"body,omitempty"`
	State  *ItemState `json:"state,omitempty"`
	Labels []string   `json:"labels,omitempty"`
}

// Empty reports whether applying the patch would change nothing.
func (p ItemPatch) Empty() bool {
	return p.Title == nil && p.Body == nil && p.State == nil && p.Labels == nil
}
