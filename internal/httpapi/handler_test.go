package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"prdsync.app/prdsync/internal/httpapi"
	"prdsync.app/prdsync/internal/queue"
	"prdsync.app/prdsync/internal/store"
)

type mockProducer struct {
	enqueueFn func(ctx context.Context, task queue.RunTask) error
	tasks     []queue.RunTask
}

func (m *mockProducer) Enqueue(ctx context.Context, task queue.RunTask) error {
	if m.enqueueFn != nil {
		if err := m.enqueueFn(ctx, task); err != nil {
			return err
		}
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *mockProducer) Close() error { return nil }

var _ = Describe("Handler", func() {
	var (
		router   *gin.Engine
		fs       *store.FileStore
		producer *mockProducer
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()

		var err error
		fs, err = store.NewFileStore(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		producer = &mockProducer{}
		httpapi.New(fs, producer).Register(router)
	})

	Describe("GET /health", func() {
		It("returns ok", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /api/runs", func() {
		It("enqueues a run and returns its id", func() {
			body, _ := json.Marshal(httpapi.RunRequest{DocumentPath: "docs/prd.md", ForceCreate: true})
			req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			var resp httpapi.RunResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Enqueued).To(BeTrue())
			Expect(resp.RunID).NotTo(BeEmpty())

			Expect(producer.tasks).To(HaveLen(1))
			Expect(producer.tasks[0].DocumentPath).To(Equal("docs/prd.md"))
			Expect(producer.tasks[0].ForceCreate).To(BeTrue())
			Expect(producer.tasks[0].RunID).To(Equal(resp.RunID))
		})

		It("rejects a request without a document path", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(`{}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(producer.tasks).To(BeEmpty())
		})

		It("returns 500 when enqueue fails", func() {
			producer.enqueueFn = func(ctx context.Context, task queue.RunTask) error {
				return errors.New("redis down")
			}
			body, _ := json.Marshal(httpapi.RunRequest{DocumentPath: "docs/prd.md"})
			req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("GET /api/items", func() {
		It("lists items newest first with optional label filter", func() {
			ctx := context.Background()
			_, err := fs.Create(ctx, store.CreateParams{Title: "First", Labels: []string{"generated"}})
			Expect(err).NotTo(HaveOccurred())
			_, err = fs.Create(ctx, store.CreateParams{Title: "Second", Labels: []string{"manual"}})
			Expect(err).NotTo(HaveOccurred())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items?label=generated", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			var resp struct {
				Items []struct {
					Title string `json:"title"`
				} `json:"items"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Items).To(HaveLen(1))
			Expect(resp.Items[0].Title).To(Equal("First"))
		})

		It("returns an empty list for an empty store", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"items":[]`))
		})
	})

	Describe("GET /api/items/:id", func() {
		It("returns the item", func() {
			itemID, err := fs.Create(context.Background(), store.CreateParams{Title: "Only"})
			Expect(err).NotTo(HaveOccurred())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items/1", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"title":"Only"`))
			Expect(itemID).To(Equal(int64(1)))
		})

		It("returns 404 for an unknown item", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items/99", nil))

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a non-numeric id", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items/abc", nil))

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
