package model

import "time"

// TradeRecord is one raw input row: date,productId,currency,price.
// All fields are kept as raw strings; validation happens in the pipeline.
type TradeRecord struct {
	Date      string
	ProductID string
	Currency  string
	Price     string
}

// EnrichedRecord is one output row: date,productName,currency,price.
type EnrichedRecord struct {
	Date        string
	ProductName string
	Currency    string
	Price       string
}

// RunSummary captures the outcome of a single enrichment run.
type RunSummary struct {
	RunID          string        `json:"run_id"`
	RowsIn         int64         `json:"rows_in"`
	RowsEmitted    int64         `json:"rows_emitted"`
	RowsDropped    int64         `json:"rows_dropped"`
	UnmappedIDs    int64         `json:"unmapped_ids"`
	PriceFallbacks int64         `json:"price_fallbacks"`
	Duration       time.Duration `json:"duration_ns"`
	StartedAt      time.Time     `json:"started_at"`
	Failed         bool          `json:"failed"`
	Error          string        `json:"error,omitempty"`
}
