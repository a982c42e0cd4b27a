package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/Checker-Finance/trade-enricher/pkg/model"
)

// ParseProducts reads a product CSV stream (header productId,productName)
// into rows. Any structural defect — missing or wrong header, short or long
// row — fails the whole parse; callers must not apply a partial payload.
func ParseProducts(r io.Reader) ([]model.ProductRow, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("product csv: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("product csv: read header: %w", err)
	}
	if len(header) != 2 || header[0] != "productId" || header[1] != "productName" {
		return nil, fmt.Errorf("product csv: expected header productId,productName, got %v", header)
	}

	var rows []model.ProductRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("product csv: row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, model.ProductRow{ID: rec[0], Name: rec[1]})
	}
	return rows, nil
}

// LoadFile bootstraps the registry from a product CSV on disk. A missing or
// unreadable file is returned as an error; the caller decides whether that
// is fatal (it is at startup).
func (r *Registry) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open product file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	rows, err := ParseProducts(f)
	if err != nil {
		return 0, err
	}
	return r.Replace(rows), nil
}
