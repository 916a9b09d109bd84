package models

// SearchParams carries the tunable parameters of one similarity query. The
// caller resolves the threshold before building params: an explicit zero is a
// real threshold (drops only negative scores), not a request for the default.
type SearchParams struct {
	TopK      int                    `json:"top_k,omitempty"`
	Threshold float64                `json:"threshold,omitempty"`
	Filters   map[string]interface{} `json:"filters,omitempty"`
}

// Normalize clamps TopK into [1, maxTopK], defaulting when unset.
func (p *SearchParams) Normalize(defaultTopK, maxTopK int) {
	if p.TopK <= 0 {
		p.TopK = defaultTopK
	}
	if p.TopK > maxTopK {
		p.TopK = maxTopK
	}
}

// TextQuery is the request body for text search. Threshold is a pointer so an
// explicit 0 can be told apart from an absent field.
type TextQuery struct {
	Query     string   `json:"query"`
	TopK      int      `json:"top_k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// RecommendQuery identifies the item to recommend against, by product id or
// stored image filename. Exactly one of the two should be set.
type RecommendQuery struct {
	ProductID string `json:"product_id,omitempty"`
	Filename  string `json:"filename,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

// DeleteRequest names the stored image to remove by filename.
type DeleteRequest struct {
	Filename string `json:"filename"`
}

// BenchmarkRequest configures a self-benchmark run.
type BenchmarkRequest struct {
	NumQueries int `json:"num_queries,omitempty"`
	TopK       int `json:"top_k,omitempty"`
}
