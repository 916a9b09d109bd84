package models

// SearchResult is a single ranked hit. OriginalScore is the raw inner-product
// similarity before any reranking; Score currently equals it.
type SearchResult struct {
	Path          string   `json:"path"`
	Score         float64  `json:"score"`
	OriginalScore float64  `json:"original_score"`
	Rank          int      `json:"rank"`
	Metadata      Metadata `json:"metadata"`
}

// TextSearchResponse is the response for a text search request.
type TextSearchResponse struct {
	Query   string          `json:"query"`
	Results []*SearchResult `json:"results"`
	Total   int             `json:"total"`
}

// RecommendResponse is the response for a recommend request. Elapsed is in
// seconds.
type RecommendResponse struct {
	SourceProduct   Metadata        `json:"source_product"`
	Recommendations []*SearchResult `json:"recommendations"`
	Elapsed         float64         `json:"elapsed"`
}

// AddResponse echoes the stored path and effective metadata after an add.
type AddResponse struct {
	Message  string   `json:"message"`
	Path     string   `json:"path"`
	Metadata Metadata `json:"metadata"`
}

// BatchAck acknowledges an asynchronous batch ingestion.
type BatchAck struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Total   int    `json:"total"`
}
