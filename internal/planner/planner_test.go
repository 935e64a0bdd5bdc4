package planner_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"prdsync.app/prdsync/common/llm"
	"prdsync.app/prdsync/internal/diff"
	"prdsync.app/prdsync/internal/model"
	"prdsync.app/prdsync/internal/planner"
	"prdsync.app/prdsync/internal/significance"
)

type mockOracle struct {
	completeFn func(ctx context.Context, req llm.Request) (string, *llm.Usage, error)
	callCount  int
	lastReq    llm.Request
}

func (m *mockOracle) Complete(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
	m.callCount++
	m.lastReq = req
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return `{"summary": "", "rationale": "", "entries": [], "new_features": []}`, &llm.Usage{}, nil
}

func (m *mockOracle) Model() string { return "mock" }

var _ = Describe("Planner", func() {
	var (
		p      *planner.Planner
		oracle *mockOracle
		ctx    context.Context
		items  []model.WorkItem
	)

	BeforeEach(func() {
		ctx = context.Background()
		oracle = &mockOracle{}
		p = planner.New(oracle, significance.New(significance.DefaultMinLineLength))
		items = []model.WorkItem{
			{ID: 3, Title: "User login", Body: "Allow users to log in", Labels: []string{"generated"}},
			{ID: 7, Title: "CSV export", Body: "Export reports as CSV", Labels: []string{"generated"}},
		}
	})

	Describe("Plan", func() {
		Context("trivial-only diff", func() {
			It("short-circuits with zero oracle calls", func() {
				lines := []diff.Line{
					{Tag: diff.TagRemoved, Text: "version: 1.0"},
					{Tag: diff.TagAdded, Text: "version: 1.1"},
					{Tag: diff.TagRemoved, Text: "updated: 2024-01-01"},
					{Tag: diff.TagAdded, Text: "updated: 2024-02-01"},
				}

				plan, err := p.Plan(ctx, "doc content", lines, items)

				Expect(err).NotTo(HaveOccurred())
				Expect(oracle.callCount).To(Equal(0))
				Expect(plan.Assessment.Significant).To(BeFalse())
				Expect(plan.Assessment.TrivialChanges).To(HaveLen(4))
				Expect(plan.NewFeatures).To(BeEmpty())
				Expect(plan.Entries).To(HaveLen(2))
				for _, entry := range plan.Entries {
					Expect(entry.Action).To(Equal(model.PlanActionNoChange))
					Expect(entry.Rationale).To(ContainSubstring("no significant changes"))
				}
			})
		})

		Context("significant diff", func() {
			lines := []diff.Line{
				{Tag: diff.TagAdded, Text: "- Users can now delete their own account"},
			}

			It("makes exactly one consolidated oracle call", func() {
				_, err := p.Plan(ctx, "doc content", lines, items)

				Expect(err).NotTo(HaveOccurred())
				Expect(oracle.callCount).To(Equal(1))
				Expect(oracle.lastReq.SchemaName).To(Equal("unified_plan"))
				Expect(oracle.lastReq.UserPrompt).To(ContainSubstring("doc content"))
				Expect(oracle.lastReq.UserPrompt).To(ContainSubstring("Item 3: User login"))
				Expect(oracle.lastReq.UserPrompt).To(ContainSubstring("Item 7: CSV export"))
			})

			It("parses a well-formed plan response", func() {
				oracle.completeFn = func(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
					return `{
						"summary": "account deletion added",
						"rationale": "one new capability",
						"entries": [
							{"item_id": 3, "action": "update", "significance": "minor", "rationale": "login flow mentions deletion", "comment": "Document now covers account deletion."},
							{"item_id": 7, "action": "no_change", "rationale": "export unaffected"}
						],
						"new_features": [
							{"title": "Account deletion", "description": "Users can delete their account", "category": "technical", "priority": "high", "rationale": "not covered by any existing item"}
						]
					}`, &llm.Usage{}, nil
				}

				plan, err := p.Plan(ctx, "doc content", lines, items)

				Expect(err).NotTo(HaveOccurred())
				Expect(plan.Assessment.Significant).To(BeTrue())
				Expect(plan.Assessment.Summary).To(Equal("account deletion added"))
				Expect(plan.Entries).To(HaveLen(2))
				Expect(plan.Entries[0].Action).To(Equal(model.PlanActionUpdate))
				Expect(plan.Entries[0].Comment).NotTo(BeEmpty())
				Expect(plan.NewFeatures).To(HaveLen(1))
				Expect(plan.NewFeatures[0].Category).To(Equal(model.FeatureCategoryTechnical))
				Expect(plan.NewFeatures[0].Priority).To(Equal(model.FeaturePriorityHigh))
			})

			It("tolerates alternate key spellings", func() {
				oracle.completeFn = func(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
					return `{
						"change_summary": "aliased keys",
						"updates": [
							{"issue_number": 3, "action": "update", "reasoning": "aliased entry", "new_title": "Login and sessions"}
						],
						"features": [
							{"name": "Audit log", "desc": "Track admin actions", "type": "enabler", "priority": "low", "dependencies": ["User login"]}
						]
					}`, &llm.Usage{}, nil
				}

				plan, err := p.Plan(ctx, "doc content", lines, items)

				Expect(err).NotTo(HaveOccurred())
				Expect(plan.Assessment.Summary).To(Equal("aliased keys"))

				byID := entriesByID(plan)
				Expect(byID[3].Action).To(Equal(model.PlanActionUpdate))
				Expect(byID[3].Patch).NotTo(BeNil())
				Expect(*byID[3].Patch.Title).To(Equal("Login and sessions"))
				// Item 7 was omitted by the oracle and must default to no_change.
				Expect(byID[7].Action).To(Equal(model.PlanActionNoChange))

				Expect(plan.NewFeatures).To(HaveLen(1))
				Expect(plan.NewFeatures[0].Title).To(Equal("Audit log"))
				Expect(plan.NewFeatures[0].Category).To(Equal(model.FeatureCategoryEnabler))
				Expect(plan.NewFeatures[0].DependsOn).To(Equal([]string{"User login"}))
			})

			It("extracts the plan from a fenced block with surrounding prose", func() {
				oracle.completeFn = func(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
					return "Here is my analysis.\n```json\n{\"summary\": \"fenced\", \"entries\": [], \"new_features\": []}\n```\nLet me know.", &llm.Usage{}, nil
				}

				plan, err := p.Plan(ctx, "doc content", lines, items)

				Expect(err).NotTo(HaveOccurred())
				Expect(plan.Assessment.Summary).To(Equal("fenced"))
				// Both items filled in conservatively.
				Expect(plan.Entries).To(HaveLen(2))
			})

			It("drops entries for unknown items", func() {
				oracle.completeFn = func(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
					return `{"entries": [{"item_id": 999, "action": "update", "rationale": "hallucinated"}], "new_features": []}`, &llm.Usage{}, nil
				}

				plan, err := p.Plan(ctx, "doc content", lines, items)

				Expect(err).NotTo(HaveOccurred())
				Expect(plan.Entries).To(HaveLen(2))
				for _, entry := range plan.Entries {
					Expect(entry.ItemID).To(BeElementOf(int64(3), int64(7)))
					Expect(entry.Action).To(Equal(model.PlanActionNoChange))
				}
			})

			It("treats unrecognized actions conservatively", func() {
				oracle.completeFn = func(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
					return `{"entries": [{"item_id": 3, "action": "rewrite-everything", "rationale": "?"}], "new_features": []}`, &llm.Usage{}, nil
				}

				plan, err := p.Plan(ctx, "doc content", lines, items)

				Expect(err).NotTo(HaveOccurred())
				Expect(entriesByID(plan)[3].Action).To(Equal(model.PlanActionNoChange))
			})

			It("fails when the response has no parseable JSON", func() {
				oracle.completeFn = func(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
					return "Sorry, I cannot help with that.", &llm.Usage{}, nil
				}

				_, err := p.Plan(ctx, "doc content", lines, items)

				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("parsing plan response"))
			})

			It("propagates oracle errors", func() {
				oracle.completeFn = func(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
					return "", nil, errors.New("rate limited")
				}

				_, err := p.Plan(ctx, "doc content", lines, items)

				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("planning oracle call"))
			})
		})
	})
})

var _ = Describe("Extractor", func() {
	var (
		e      *planner.Extractor
		oracle *mockOracle
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		oracle = &mockOracle{}
		e = planner.NewExtractor(oracle)
	})

	It("extracts one record per feature", func() {
		oracle.completeFn = func(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
			return `{"features": [
				{"title": "User login", "description": "Log in with email", "category": "technical", "priority": "high", "acceptance_criteria": ["valid credentials succeed", "invalid credentials fail"]},
				{"title": "Style guide", "description": "Document tone of voice", "category": "non-technical", "priority": "low"}
			]}`, &llm.Usage{}, nil
		}

		features, err := e.Extract(ctx, "doc content", "docs/prd.md")

		Expect(err).NotTo(HaveOccurred())
		Expect(oracle.callCount).To(Equal(1))
		Expect(features).To(HaveLen(2))
		Expect(features[0].AcceptanceCriteria).To(HaveLen(2))
		Expect(features[1].Category).To(Equal(model.FeatureCategoryNonTechnical))
	})

	It("drops records without a title", func() {
		oracle.completeFn = func(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
			return `{"features": [{"description": "nameless"}, {"title": "Named", "description": "ok"}]}`, &llm.Usage{}, nil
		}

		features, err := e.Extract(ctx, "doc content", "docs/prd.md")

		Expect(err).NotTo(HaveOccurred())
		Expect(features).To(HaveLen(1))
		Expect(features[0].Title).To(Equal("Named"))
	})

	It("fails on unparseable responses", func() {
		oracle.completeFn = func(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
			return "no json here", &llm.Usage{}, nil
		}

		_, err := e.Extract(ctx, "doc content", "docs/prd.md")

		Expect(err).To(HaveOccurred())
	})
})

func entriesByID(plan model.UnifiedPlan) map[int64]model.UpdatePlanEntry {
	byID := make(map[int64]model.UpdatePlanEntry, len(plan.Entries))
	for _, entry := range plan.Entries {
		byID[entry.ItemID] = entry
	}
	return byID
}
