package enrich

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/trade-enricher/internal/metrics"
	"github.com/Checker-Finance/trade-enricher/pkg/model"
)

// DefaultBatchSize is the number of emitted rows between output flushes.
// Smaller values bound memory tighter at the cost of more I/O calls.
const DefaultBatchSize = 1000

// ErrBadHeader indicates the trade input did not start with the expected
// date,productId,currency,price header.
var ErrBadHeader = errors.New("trade csv: expected header date,productId,currency,price")

// ProductLookup resolves a productId to a display name. ok is false when
// the id is unmapped and name carries the sentinel default.
type ProductLookup interface {
	Lookup(productID string) (name string, ok bool)
}

// Pipeline enriches a stream of trade rows against a product lookup.
// A Pipeline is stateless across runs and safe for concurrent use.
type Pipeline struct {
	products  ProductLookup
	logger    *zap.Logger
	batchSize int
}

// NewPipeline creates a pipeline. batchSize <= 0 falls back to DefaultBatchSize.
func NewPipeline(products ProductLookup, logger *zap.Logger, batchSize int) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{products: products, logger: logger, batchSize: batchSize}
}

// Run is a single enrichment pass whose input header has already been
// consumed and validated. Create one with Pipeline.NewRun.
type Run struct {
	pipeline *Pipeline
	reader   *csv.Reader
	summary  model.RunSummary
}

// NewRun reads and validates the trade header from in. A header defect is
// detectable before a single output byte exists, so callers can reject the
// whole call instead of aborting a stream that already started.
func (p *Pipeline) NewRun(in io.Reader) (*Run, error) {
	reader := csv.NewReader(in)
	reader.ReuseRecord = true
	if err := readHeader(reader); err != nil {
		return nil, err
	}
	return &Run{
		pipeline: p,
		reader:   reader,
		summary: model.RunSummary{
			RunID:     uuid.NewString(),
			StartedAt: time.Now().UTC(),
		},
	}, nil
}

// ID returns the run identifier assigned at NewRun time.
func (r *Run) ID() string { return r.summary.RunID }

// Enrich validates the header and streams the whole input in one call.
func (p *Pipeline) Enrich(ctx context.Context, in io.Reader, out io.Writer) (model.RunSummary, error) {
	run, err := p.NewRun(in)
	if err != nil {
		return model.RunSummary{
			RunID:     uuid.NewString(),
			StartedAt: time.Now().UTC(),
			Failed:    true,
			Error:     err.Error(),
		}, err
	}
	return run.Stream(ctx, out)
}

// Stream consumes trade rows one at a time and writes enriched rows to out,
// preserving input order among emitted rows. Rows with an invalid date are
// dropped; unmapped ids and unparseable prices degrade the row but never
// drop it. Output is flushed every batchSize rows and unconditionally on
// exit, including error paths, so no buffered row is lost. The results are
// named so the deferred flush stamps Duration on every exit path.
func (r *Run) Stream(ctx context.Context, out io.Writer) (summary model.RunSummary, err error) {
	summary = r.summary
	p := r.pipeline
	log := p.logger.With(zap.String("run_id", summary.RunID))

	writer := csv.NewWriter(out)
	defer func() {
		writer.Flush()
		summary.Duration = time.Since(summary.StartedAt)
		metrics.ObserveRun(summary.StartedAt, summary.RowsEmitted, summary.RowsDropped)
	}()

	if werr := writer.Write([]string{"date", "productName", "currency", "price"}); werr != nil {
		summary.Failed = true
		summary.Error = werr.Error()
		return summary, fmt.Errorf("write output header: %w", werr)
	}

	sinceFlush := 0
	for {
		if cerr := ctx.Err(); cerr != nil {
			summary.Failed = true
			summary.Error = cerr.Error()
			return summary, cerr
		}

		rec, rerr := r.reader.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			// Structural defect mid-stream: stop, keep what was already
			// buffered, surface the failure.
			summary.Failed = true
			summary.Error = rerr.Error()
			return summary, fmt.Errorf("read trade row %d: %w", summary.RowsIn+2, rerr)
		}
		summary.RowsIn++

		row, emit := p.processRow(log, rec, summary.RowsIn, &summary)
		if !emit {
			summary.RowsDropped++
			continue
		}

		if werr := writer.Write(row); werr != nil {
			summary.Failed = true
			summary.Error = werr.Error()
			return summary, fmt.Errorf("write enriched row: %w", werr)
		}
		summary.RowsEmitted++

		if sinceFlush++; sinceFlush >= p.batchSize {
			writer.Flush()
			if werr := writer.Error(); werr != nil {
				summary.Failed = true
				summary.Error = werr.Error()
				return summary, fmt.Errorf("flush output: %w", werr)
			}
			sinceFlush = 0
			log.Debug("pipeline.flushed", zap.Int64("rows", summary.RowsEmitted))
		}
	}

	writer.Flush()
	if werr := writer.Error(); werr != nil {
		summary.Failed = true
		summary.Error = werr.Error()
		return summary, fmt.Errorf("final flush: %w", werr)
	}

	log.Info("pipeline.completed",
		zap.Int64("rows_in", summary.RowsIn),
		zap.Int64("emitted", summary.RowsEmitted),
		zap.Int64("dropped", summary.RowsDropped),
		zap.Int64("unmapped", summary.UnmappedIDs),
		zap.Int64("price_fallbacks", summary.PriceFallbacks))
	return summary, nil
}

func readHeader(reader *csv.Reader) error {
	header, err := reader.Read()
	if err == io.EOF {
		return ErrBadHeader
	}
	if err != nil {
		return fmt.Errorf("read trade header: %w", err)
	}
	if len(header) != 4 || header[0] != "date" || header[1] != "productId" ||
		header[2] != "currency" || header[3] != "price" {
		return ErrBadHeader
	}
	return nil
}

// processRow validates the date, resolves the product name and normalizes
// the price for one row. emit is false only when the date is calendar-invalid.
func (p *Pipeline) processRow(log *zap.Logger, rec []string, rowNum int64, summary *model.RunSummary) ([]string, bool) {
	date, productID, currency, price := rec[0], rec[1], rec[2], rec[3]

	if !ValidDate(date) {
		metrics.IncRowObservation("invalid_date")
		log.Warn("pipeline.invalid_date",
			zap.String("date", date),
			zap.Int64("row", rowNum))
		return nil, false
	}

	name, ok := p.products.Lookup(productID)
	if !ok {
		summary.UnmappedIDs++
		metrics.IncRowObservation("unmapped_id")
		log.Warn("pipeline.unmapped_product_id",
			zap.String("product_id", productID),
			zap.Int64("row", rowNum))
	}

	normalized, ok := NormalizePrice(price)
	if !ok {
		summary.PriceFallbacks++
		metrics.IncRowObservation("price_fallback")
		log.Warn("pipeline.invalid_price",
			zap.String("price", price),
			zap.Int64("row", rowNum))
	}

	return []string{date, name, currency, normalized}, true
}
