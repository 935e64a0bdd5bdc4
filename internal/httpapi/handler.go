// Package httpapi exposes the run and item surface over HTTP. Runs are
// accepted asynchronously: the handler enqueues a task and returns the run id
// the worker will use.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"prdsync.app/prdsync/common/id"
	"prdsync.app/prdsync/internal/model"
	"prdsync.app/prdsync/internal/queue"
	"prdsync.app/prdsync/internal/store"
)

type RunRequest struct {
	DocumentPath string `json:"document_path" binding:"required"`
	ForceCreate  bool   `json:"force_create"`
}

type RunResponse struct {
	RunID    string `json:"run_id"`
	Enqueued bool   `json:"enqueued"`
}

type Handler struct {
	store    store.WorkItemStore
	producer queue.Producer
}

func New(s store.WorkItemStore, producer queue.Producer) *Handler {
	return &Handler{store: s, producer: producer}
}

func (h *Handler) Register(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/runs", h.EnqueueRun)
		api.GET("/items", h.ListItems)
		api.GET("/items/:id", h.GetItem)
	}
}

func (h *Handler) EnqueueRun(c *gin.Context) {
	ctx := c.Request.Context()

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid run request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := queue.RunTask{
		RunID:        strconv.FormatInt(id.New(), 10),
		DocumentPath: req.DocumentPath,
		ForceCreate:  req.ForceCreate,
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		task.TraceID = spanCtx.TraceID().String()
	}

	if err := h.producer.Enqueue(ctx, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue run", "error", err, "document", req.DocumentPath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue run"})
		return
	}

	c.JSON(http.StatusAccepted, RunResponse{RunID: task.RunID, Enqueued: true})
}

func (h *Handler) ListItems(c *gin.Context) {
	ctx := c.Request.Context()

	filter := store.Filter{State: model.ItemState(c.Query("state"))}
	if label := c.Query("label"); label != "" {
		filter.Labels = []string{label}
	}

	items, err := h.store.List(ctx, filter)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list items", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list items"})
		return
	}
	if items == nil {
		items = []model.WorkItem{}
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) GetItem(c *gin.Context) {
	ctx := c.Request.Context()

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	item, err := h.store.Get(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get item", "error", err, "item_id", itemID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get item"})
		return
	}

	c.JSON(http.StatusOK, item)
}
