package api

// Error codes returned in ErrorResponse.Code. These mirror the failure
// taxonomy: structural input defects are client errors, everything else is
// an internal failure.
const (
	CodeCSVProcessing = "CSV_PROCESSING_ERROR"
	CodeRunNotFound   = "RUN_NOT_FOUND"
	CodeInternal      = "INTERNAL_SERVER_ERROR"
	CodeUnavailable   = "DEPENDENCY_UNAVAILABLE"
)

// ErrorResponse is the JSON error body for call-level failures.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// InitResult reports a completed product replace.
type InitResult struct {
	Accepted int `json:"accepted"`
	Entries  int `json:"entries"`
}

// UpdateResult reports a completed product upsert.
type UpdateResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Entries int `json:"entries"`
}
