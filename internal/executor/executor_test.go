package executor_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"prdsync.app/prdsync/internal/executor"
	"prdsync.app/prdsync/internal/model"
	"prdsync.app/prdsync/internal/store"
)

type recordedComment struct {
	id   int64
	text string
}

type recordedSnapshot struct {
	id      int64
	content string
	path    string
}

// mockStore implements WorkItemStore and SnapshotStore. Error hooks let
// individual specs inject per-call failures.
type mockStore struct {
	nextID int64

	updateErr   func(id int64) error
	commentErr  func(id int64) error
	createErr   error
	snapshotErr func(id int64) error

	creates   []store.CreateParams
	updates   []int64
	comments  []recordedComment
	snapshots []recordedSnapshot
}

func (m *mockStore) Create(ctx context.Context, params store.CreateParams) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	m.creates = append(m.creates, params)
	return m.nextID, nil
}

func (m *mockStore) Update(ctx context.Context, id int64, patch model.ItemPatch) error {
	if m.updateErr != nil {
		if err := m.updateErr(id); err != nil {
			return err
		}
	}
	m.updates = append(m.updates, id)
	return nil
}

func (m *mockStore) List(ctx context.Context, filter store.Filter) ([]model.WorkItem, error) {
	return nil, nil
}

func (m *mockStore) Get(ctx context.Context, id int64) (*model.WorkItem, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) AddComment(ctx context.Context, id int64, text string) error {
	if m.commentErr != nil {
		if err := m.commentErr(id); err != nil {
			return err
		}
	}
	m.comments = append(m.comments, recordedComment{id: id, text: text})
	return nil
}

func (m *mockStore) Close(ctx context.Context, id int64) error { return nil }

func (m *mockStore) StoreSnapshot(ctx context.Context, id int64, content, documentPath string) error {
	if m.snapshotErr != nil {
		if err := m.snapshotErr(id); err != nil {
			return err
		}
	}
	m.snapshots = append(m.snapshots, recordedSnapshot{id: id, content: content, path: documentPath})
	return nil
}

func (m *mockStore) GetSnapshot(ctx context.Context, id int64) (*model.DocumentSnapshot, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) SnapshotDiff(ctx context.Context, id int64, newContent string) (string, error) {
	return "", nil
}

var _ = Describe("Executor", func() {
	var (
		ctx context.Context
		ms  *mockStore
		ex  *executor.Executor
	)

	BeforeEach(func() {
		ctx = context.Background()
		ms = &mockStore{nextID: 10}
		ex = executor.New(ms)
	})

	title := "Login and sessions"

	It("accounts one updated, one unchanged, zero created with one snapshot", func() {
		plan := model.UnifiedPlan{
			Entries: []model.UpdatePlanEntry{
				{ItemID: 3, Action: model.PlanActionUpdate, Patch: &model.ItemPatch{Title: &title}, Comment: "title refreshed"},
				{ItemID: 7, Action: model.PlanActionNoChange},
			},
		}

		result := ex.Execute(ctx, plan, "doc content", "docs/prd.md")

		Expect(result).To(Equal(executor.Result{Updated: 1, Created: 0, Unchanged: 1}))
		Expect(ms.updates).To(Equal([]int64{3}))
		Expect(ms.comments).To(HaveLen(1))
		Expect(ms.comments[0].text).To(Equal("title refreshed"))
		Expect(ms.snapshots).To(HaveLen(1))
		Expect(ms.snapshots[0]).To(Equal(recordedSnapshot{id: 3, content: "doc content", path: "docs/prd.md"}))
	})

	It("skips the store write for an empty patch but still comments and snapshots", func() {
		plan := model.UnifiedPlan{
			Entries: []model.UpdatePlanEntry{
				{ItemID: 3, Action: model.PlanActionUpdate, Comment: "document clarified scope"},
			},
		}

		result := ex.Execute(ctx, plan, "doc content", "docs/prd.md")

		Expect(result.Updated).To(Equal(1))
		Expect(ms.updates).To(BeEmpty())
		Expect(ms.comments).To(HaveLen(1))
		Expect(ms.snapshots).To(HaveLen(1))
	})

	It("marks obsolete items with an advisory comment and never closes them", func() {
		plan := model.UnifiedPlan{
			Entries: []model.UpdatePlanEntry{
				{ItemID: 3, Action: model.PlanActionObsolete, Rationale: "feature removed from document"},
			},
		}

		result := ex.Execute(ctx, plan, "doc content", "docs/prd.md")

		Expect(result.Updated).To(Equal(1))
		Expect(ms.comments).To(HaveLen(1))
		Expect(ms.comments[0].text).To(ContainSubstring("Possibly obsolete"))
		Expect(ms.comments[0].text).To(ContainSubstring("feature removed from document"))
		Expect(ms.updates).To(BeEmpty())
	})

	It("creates new features with rendered bodies, labels, and a first snapshot", func() {
		plan := model.UnifiedPlan{
			NewFeatures: []model.NewFeatureRecord{
				{
					Title:       "Audit log",
					Description: "Track admin actions.",
					Category:    model.FeatureCategoryEnabler,
					Priority:    model.FeaturePriorityHigh,
					Blocks:      []string{"Compliance report"},
				},
			},
		}

		result := ex.Execute(ctx, plan, "doc content", "docs/prd.md")

		Expect(result.Created).To(Equal(1))
		Expect(ms.creates).To(HaveLen(1))
		Expect(ms.creates[0].Title).To(Equal("Audit log"))
		Expect(ms.creates[0].Body).To(ContainSubstring("## Blocks"))
		Expect(ms.creates[0].Body).To(ContainSubstring("**Source document:** docs/prd.md"))
		Expect(ms.creates[0].Labels).To(Equal([]string{"generated", "type:enabler", "priority:high"}))
		Expect(ms.snapshots).To(HaveLen(1))
		Expect(ms.snapshots[0].id).To(Equal(int64(11)))
	})

	Context("partial failures", func() {
		It("does not count an entry whose update fails, without aborting siblings", func() {
			ms.updateErr = func(id int64) error {
				if id == 3 {
					return errors.New("backend down")
				}
				return nil
			}
			plan := model.UnifiedPlan{
				Entries: []model.UpdatePlanEntry{
					{ItemID: 3, Action: model.PlanActionUpdate, Patch: &model.ItemPatch{Title: &title}},
					{ItemID: 7, Action: model.PlanActionUpdate, Patch: &model.ItemPatch{Title: &title}},
				},
			}

			result := ex.Execute(ctx, plan, "doc content", "docs/prd.md")

			Expect(result.Updated).To(Equal(1))
			Expect(ms.updates).To(Equal([]int64{7}))
			// The failed entry's later side effects were aborted.
			Expect(ms.snapshots).To(HaveLen(1))
			Expect(ms.snapshots[0].id).To(Equal(int64(7)))
		})

		It("does not count an entry whose snapshot fails", func() {
			ms.snapshotErr = func(id int64) error { return errors.New("disk full") }
			plan := model.UnifiedPlan{
				Entries: []model.UpdatePlanEntry{
					{ItemID: 3, Action: model.PlanActionUpdate, Patch: &model.ItemPatch{Title: &title}},
				},
			}

			result := ex.Execute(ctx, plan, "doc content", "docs/prd.md")

			Expect(result.Updated).To(Equal(0))
			Expect(ms.updates).To(Equal([]int64{3}))
		})

		It("does not count a feature whose creation fails", func() {
			ms.createErr = errors.New("quota exceeded")
			plan := model.UnifiedPlan{
				NewFeatures: []model.NewFeatureRecord{
					{Title: "Audit log", Description: "x", Category: model.FeatureCategoryTechnical, Priority: model.FeaturePriorityLow},
				},
			}

			result := ex.Execute(ctx, plan, "doc content", "docs/prd.md")

			Expect(result.Created).To(Equal(0))
			Expect(ms.snapshots).To(BeEmpty())
		})
	})

	Context("store without snapshot capability", func() {
		It("updates without attempting snapshots", func() {
			exPlain := executor.New(noSnapshotStore{ms})
			plan := model.UnifiedPlan{
				Entries: []model.UpdatePlanEntry{
					{ItemID: 3, Action: model.PlanActionUpdate, Patch: &model.ItemPatch{Title: &title}},
				},
			}

			result := exPlain.Execute(ctx, plan, "doc content", "docs/prd.md")

			Expect(result.Updated).To(Equal(1))
			Expect(ms.snapshots).To(BeEmpty())
		})
	})
})

// noSnapshotStore hides the snapshot methods of the wrapped mock so the
// executor's capability assertion fails.
type noSnapshotStore struct{ inner *mockStore }

func (n noSnapshotStore) Create(ctx context.Context, params store.CreateParams) (int64, error) {
	return n.inner.Create(ctx, params)
}

func (n noSnapshotStore) Update(ctx context.Context, id int64, patch model.ItemPatch) error {
	return n.inner.Update(ctx, id, patch)
}

func (n noSnapshotStore) List(ctx context.Context, filter store.Filter) ([]model.WorkItem, error) {
	return n.inner.List(ctx, filter)
}

func (n noSnapshotStore) Get(ctx context.Context, id int64) (*model.WorkItem, error) {
	return n.inner.Get(ctx, id)
}

func (n noSnapshotStore) AddComment(ctx context.Context, id int64, text string) error {
	return n.inner.AddComment(ctx, id, text)
}

func (n noSnapshotStore) Close(ctx context.Context, id int64) error {
	return n.inner.Close(ctx, id)
}
