package api

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/trade-enricher/internal/enrich"
	"github.com/Checker-Finance/trade-enricher/internal/metrics"
	"github.com/Checker-Finance/trade-enricher/internal/registry"
	"github.com/Checker-Finance/trade-enricher/pkg/model"
)

// ProductRegistry is the registry surface the handlers need.
type ProductRegistry interface {
	Replace(rows []model.ProductRow) int
	Upsert(rows []model.ProductRow) (added, updated int)
	Size() int
}

// Enricher starts enrichment runs. NewRun consumes and validates the trade
// header, so a structural defect surfaces before any response bytes exist.
type Enricher interface {
	NewRun(in io.Reader) (*enrich.Run, error)
}

// RunStore reads and writes cached run summaries. Optional.
type RunStore interface {
	SaveRunSummary(ctx context.Context, summary model.RunSummary) error
	GetRunSummary(ctx context.Context, runID string) (*model.RunSummary, error)
	RecordProductOp(ctx context.Context, op model.ProductOpEvent) error
}

// EventPublisher emits product and run events. Optional.
type EventPublisher interface {
	PublishProductOp(ctx context.Context, subjectPrefix string, op model.ProductOpEvent) error
	PublishRunCompleted(ctx context.Context, subject string, summary model.RunSummary) error
}

// Handler serves the product and enrichment endpoints.
// Store and Publisher may be nil; observability side effects are skipped.
type Handler struct {
	Logger         *zap.Logger
	Registry       ProductRegistry
	Pipeline       Enricher
	Store          RunStore
	Publisher      EventPublisher
	ProductSubject string
	RunSubject     string
}

// InitProducts handles POST /api/v1/product/init. The whole payload is
// parsed before the registry is touched: a malformed row anywhere fails the
// call and leaves the previous mapping published.
func (h *Handler) InitProducts(c *fiber.Ctx) error {
	rows, err := registry.ParseProducts(h.bodyReader(c))
	if err != nil {
		metrics.IncProductOp("replace", "error")
		h.Logger.Warn("api.product_init.bad_payload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Code:    CodeCSVProcessing,
			Message: err.Error(),
			Path:    c.Path(),
		})
	}

	accepted := h.Registry.Replace(rows)
	metrics.IncProductOp("replace", "ok")

	op := model.ProductOpEvent{
		Operation: "replace",
		Accepted:  accepted,
		Entries:   h.Registry.Size(),
	}
	h.recordOp(op)

	return c.Status(fiber.StatusOK).JSON(InitResult{
		Accepted: accepted,
		Entries:  op.Entries,
	})
}

// UpdateProducts handles POST /api/v1/product/update.
func (h *Handler) UpdateProducts(c *fiber.Ctx) error {
	rows, err := registry.ParseProducts(h.bodyReader(c))
	if err != nil {
		metrics.IncProductOp("upsert", "error")
		h.Logger.Warn("api.product_update.bad_payload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Code:    CodeCSVProcessing,
			Message: err.Error(),
			Path:    c.Path(),
		})
	}

	added, updated := h.Registry.Upsert(rows)
	metrics.IncProductOp("upsert", "ok")

	op := model.ProductOpEvent{
		Operation: "upsert",
		Added:     added,
		Updated:   updated,
		Entries:   h.Registry.Size(),
	}
	h.recordOp(op)

	return c.Status(fiber.StatusOK).JSON(UpdateResult{
		Added:   added,
		Updated: updated,
		Entries: op.Entries,
	})
}

// EnrichTrades handles POST /api/v1/enrich. The trade header is validated
// up front, so a bad header gets a classified 400 body. Past that point
// output rows stream back as they are produced; the response is not
// buffered, and a mid-stream failure flushes what was already enriched and
// then aborts the connection.
func (h *Handler) EnrichTrades(c *fiber.Ctx) error {
	run, err := h.Pipeline.NewRun(h.bodyReader(c))
	if err != nil {
		h.Logger.Warn("api.enrich.bad_payload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Code:    CodeCSVProcessing,
			Message: err.Error(),
			Path:    c.Path(),
		})
	}

	pr, pw := io.Pipe()
	go func() {
		summary, err := run.Stream(context.Background(), pw)
		pw.CloseWithError(err) //nolint:errcheck
		h.finishRun(summary)
	}()

	c.Set(fiber.HeaderContentType, "text/csv")
	return c.SendStream(pr)
}

// GetRun handles GET /api/v1/runs/:run_id.
func (h *Handler) GetRun(c *fiber.Ctx) error {
	if h.Store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Code:    CodeUnavailable,
			Message: "run store not configured",
			Path:    c.Path(),
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	summary, err := h.Store.GetRunSummary(ctx, c.Params("run_id"))
	if err != nil {
		h.Logger.Error("api.get_run.failed",
			zap.String("run_id", c.Params("run_id")), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Code:    CodeInternal,
			Message: err.Error(),
			Path:    c.Path(),
		})
	}
	if summary == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Code:    CodeRunNotFound,
			Message: "unknown run id",
			Path:    c.Path(),
		})
	}

	return c.JSON(summary)
}

// bodyReader returns the request body as a stream when fiber is configured
// with StreamRequestBody, falling back to the buffered body otherwise.
func (h *Handler) bodyReader(c *fiber.Ctx) io.Reader {
	if stream := c.Context().RequestBodyStream(); stream != nil {
		return bufio.NewReader(stream)
	}
	return bytes.NewReader(c.Body())
}

// recordOp persists and publishes a product operation, best effort.
func (h *Handler) recordOp(op model.ProductOpEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if h.Store != nil {
		if err := h.Store.RecordProductOp(ctx, op); err != nil {
			h.Logger.Warn("api.product_op.audit_failed", zap.Error(err))
		}
	}
	if h.Publisher != nil {
		if err := h.Publisher.PublishProductOp(ctx, h.ProductSubject, op); err != nil {
			h.Logger.Warn("api.product_op.publish_failed", zap.Error(err))
		}
	}
}

// finishRun persists and publishes a completed run summary, best effort.
func (h *Handler) finishRun(summary model.RunSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if h.Store != nil {
		if err := h.Store.SaveRunSummary(ctx, summary); err != nil {
			h.Logger.Warn("api.run.save_failed",
				zap.String("run_id", summary.RunID), zap.Error(err))
		}
	}
	if h.Publisher != nil {
		if err := h.Publisher.PublishRunCompleted(ctx, h.RunSubject, summary); err != nil {
			h.Logger.Warn("api.run.publish_failed",
				zap.String("run_id", summary.RunID), zap.Error(err))
		}
	}
}
