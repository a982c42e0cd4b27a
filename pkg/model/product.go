package model

// ProductRow is one parsed row of a product dataset: productId,productName.
// IDs are opaque strings; uniqueness is enforced per published snapshot,
// not per input payload (last row wins on duplicates).
type ProductRow struct {
	ID   string `json:"productId"`
	Name string `json:"productName"`
}

// MissingProductName is substituted when a productId has no registry entry.
const MissingProductName = "Missing Product Name"
