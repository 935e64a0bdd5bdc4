package orchestrator_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"prdsync.app/prdsync/common/llm"
	"prdsync.app/prdsync/internal/model"
	"prdsync.app/prdsync/internal/orchestrator"
	"prdsync.app/prdsync/internal/planner"
	"prdsync.app/prdsync/internal/significance"
	"prdsync.app/prdsync/internal/store"
)

// mockOracle answers extraction and planning requests separately, keyed by the
// request's schema name, and counts calls per kind.
type mockOracle struct {
	extractResponse string
	planResponse    string
	extractCalls    int
	planCalls       int
}

func (m *mockOracle) Complete(ctx context.Context, req llm.Request) (string, *llm.Usage, error) {
	switch req.SchemaName {
	case "feature_extraction":
		m.extractCalls++
		return m.extractResponse, &llm.Usage{}, nil
	case "unified_plan":
		m.planCalls++
		return m.planResponse, &llm.Usage{}, nil
	default:
		return "", nil, fmt.Errorf("unexpected schema %q", req.SchemaName)
	}
}

func (m *mockOracle) Model() string { return "mock" }

const initialDocument = `# Product Requirements
version: 1.0
last updated: 2026-01-10

## Features
- Users can log in with email and password
- Reports can be exported as CSV
`

const trivialRevision = `# Product Requirements
version: 1.1
last updated: 2026-02-01

## Features
- Users can log in with email and password
- Reports can be exported as CSV
`

var _ = Describe("Orchestrator", func() {
	var (
		ctx     context.Context
		oracle  *mockOracle
		fs      *store.FileStore
		orch    *orchestrator.Orchestrator
		docPath string
		runDir  string
	)

	writeDoc := func(content string) {
		Expect(os.WriteFile(docPath, []byte(content), 0o644)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		tmp := GinkgoT().TempDir()
		docPath = filepath.Join(tmp, "prd.md")
		runDir = filepath.Join(tmp, "runs")

		var err error
		fs, err = store.NewFileStore(filepath.Join(tmp, "store"))
		Expect(err).NotTo(HaveOccurred())

		oracle = &mockOracle{
			extractResponse: `{"features": [
				{"title": "User login", "description": "Log in with email and password", "category": "technical", "priority": "high"},
				{"title": "CSV export", "description": "Export reports as CSV", "category": "technical", "priority": "medium"}
			]}`,
		}

		p := planner.New(oracle, significance.New(significance.DefaultMinLineLength))
		orch = orchestrator.New(fs, p, planner.NewExtractor(oracle), runDir)
	})

	Describe("fresh-create", func() {
		It("creates one labeled item per extracted feature with provenance and snapshot", func() {
			writeDoc(initialDocument)

			summary, err := orch.ProcessDocument(ctx, docPath, false)

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Mode).To(Equal(orchestrator.ModeFreshCreate))
			Expect(summary.Created).To(Equal(2))
			Expect(oracle.extractCalls).To(Equal(1))
			Expect(oracle.planCalls).To(Equal(0))

			items, err := fs.List(ctx, store.Filter{Labels: []string{model.LabelGenerated}})
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
			for _, item := range items {
				Expect(item.HasLabel("generated")).To(BeTrue())
				Expect(item.HasLabel("type:technical")).To(BeTrue())
				Expect(item.Comments).To(HaveLen(1))
				Expect(item.Comments[0].Body).To(ContainSubstring("Created from source document"))
				Expect(item.Body).To(ContainSubstring("**Source document:** " + docPath))

				snapshot, err := fs.GetSnapshot(ctx, item.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(snapshot.Content).To(Equal(initialDocument))
			}
		})

		It("writes the run artifact", func() {
			writeDoc(initialDocument)

			summary, err := orch.ProcessDocument(ctx, docPath, false)

			Expect(err).NotTo(HaveOccurred())
			artifact := filepath.Join(runDir, summary.RunID+".json")
			data, err := os.ReadFile(artifact)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"mode": "fresh-create"`))
		})

		It("fails the run when the document is unreadable", func() {
			_, err := orch.ProcessDocument(ctx, filepath.Join(runDir, "missing.md"), false)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("incremental", func() {
		BeforeEach(func() {
			writeDoc(initialDocument)
			_, err := orch.ProcessDocument(ctx, docPath, false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports all items unchanged for a trivial-only revision, with no writes", func() {
			before, err := fs.List(ctx, store.Filter{})
			Expect(err).NotTo(HaveOccurred())

			writeDoc(trivialRevision)
			summary, err := orch.ProcessDocument(ctx, docPath, false)

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Mode).To(Equal(orchestrator.ModeIncremental))
			Expect(summary.Unchanged).To(Equal(2))
			Expect(summary.Updated).To(BeZero())
			Expect(summary.Created).To(BeZero())
			Expect(oracle.planCalls).To(Equal(0))

			after, err := fs.List(ctx, store.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(HaveLen(len(before)))
			for i := range after {
				Expect(after[i].UpdatedAt).To(Equal(before[i].UpdatedAt))
				Expect(after[i].Comments).To(HaveLen(len(before[i].Comments)))
			}
		})

		It("is idempotent across repeated runs on identical content", func() {
			first, err := orch.ProcessDocument(ctx, docPath, false)
			Expect(err).NotTo(HaveOccurred())
			second, err := orch.ProcessDocument(ctx, docPath, false)
			Expect(err).NotTo(HaveOccurred())

			for _, summary := range []model.RunSummary{first, second} {
				Expect(summary.Mode).To(Equal(orchestrator.ModeIncremental))
				Expect(summary.Unchanged).To(Equal(2))
				Expect(summary.Updated).To(BeZero())
				Expect(summary.Created).To(BeZero())
			}
			Expect(oracle.planCalls).To(Equal(0))

			items, err := fs.List(ctx, store.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
		})

		It("plans and executes a significant revision", func() {
			items, err := fs.List(ctx, store.Filter{})
			Expect(err).NotTo(HaveOccurred())
			loginID := items[len(items)-1].ID

			oracle.planResponse = fmt.Sprintf(`{
				"summary": "password reset added",
				"rationale": "login scope grew",
				"entries": [
					{"item_id": %d, "action": "update", "significance": "minor", "rationale": "reset flow belongs to login", "comment": "Document now includes password reset."}
				],
				"new_features": [
					{"title": "Password reset", "description": "Reset via email link", "category": "technical", "priority": "medium"}
				]
			}`, loginID)

			writeDoc(initialDocument + "- Users can reset a forgotten password via email\n")
			summary, err := orch.ProcessDocument(ctx, docPath, false)

			Expect(err).NotTo(HaveOccurred())
			Expect(oracle.planCalls).To(Equal(1))
			Expect(summary.Updated).To(Equal(1))
			Expect(summary.Created).To(Equal(1))
			Expect(summary.Unchanged).To(Equal(1))

			login, err := fs.Get(ctx, loginID)
			Expect(err).NotTo(HaveOccurred())
			Expect(login.Comments).To(HaveLen(2))
			Expect(login.Comments[1].Body).To(ContainSubstring("password reset"))

			all, err := fs.List(ctx, store.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
			Expect(all[0].Title).To(Equal("Password reset"))
		})

		It("forces fresh-create when requested even with existing items", func() {
			summary, err := orch.ProcessDocument(ctx, docPath, true)

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Mode).To(Equal(orchestrator.ModeFreshCreate))
			Expect(summary.Created).To(Equal(2))

			items, err := fs.List(ctx, store.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(4))
		})
	})
})
