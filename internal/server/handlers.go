package server

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/indexer"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/search"
	"github.com/hyperjump/mitsuke/internal/storage"
	"github.com/hyperjump/mitsuke/internal/vector"
	"github.com/hyperjump/mitsuke/pkg/utils"
)

const maxUploadBytes = 32 << 20

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":    "mitsuke",
		"message":    "content-based product image search",
		"index_size": s.vectors.Size(),
		"index_type": string(s.vectors.Type()),
		"dimensions": s.vectors.Dimensions(),
		"endpoints":  map[string]string{
			"GET /health":          "service health and index size",
			"POST /add":            "add one image (multipart: image, metadata)",
			"POST /add-batch":      "add many images asynchronously (multipart: images, metadata_list)",
			"POST /search":         "search by image (multipart: image, top_k, threshold, filters)",
			"POST /search-by-text": "search by description (json)",
			"POST /recommend":      "similar products for an indexed item (json)",
			"POST /delete":         "delete one image by filename (json)",
			"POST /reset":          "drop the whole catalog",
			"GET /stats":           "query statistics and index info",
			"POST /benchmark":      "self-benchmark against indexed items (json)",
			"POST /evaluate-query": "search by image with timing breakdown",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"index_size": s.vectors.Size(),
		"index_type": string(s.vectors.Type()),
	})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.formImage(r, "image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	// Well-known fields may arrive as plain form values; the metadata JSON
	// overrides them.
	extra := models.Metadata{}
	for _, field := range []string{"product_id", "name", "category"} {
		if v := r.FormValue(field); v != "" {
			extra[field] = v
		}
	}
	for k, v := range s.parseMetadata(r.FormValue("metadata")) {
		extra[k] = v
	}
	resp, err := s.indexer.Add(r.Context(), header.Filename, file, extra)
	if err != nil {
		s.logger.Error("add failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one image file is required")
		return
	}

	var metadataList []models.Metadata
	if raw := r.FormValue("metadata_list"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadataList); err != nil {
			s.logger.Warn("malformed metadata_list ignored", zap.Error(err))
			metadataList = nil
		}
	}

	items := make([]indexer.BatchItem, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for i, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "unreadable upload: "+h.Filename)
			return
		}
		opened = append(opened, f)
		item := indexer.BatchItem{Filename: h.Filename, Reader: f}
		if i < len(metadataList) {
			item.Metadata = metadataList[i]
		}
		items = append(items, item)
	}

	ack, err := s.indexer.AddBatch(r.Context(), items)
	if err != nil {
		s.logger.Error("batch add failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, ack)
}

// handleSearch responds with the bare ranked list, not an envelope.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	results, _, ok := s.runImageQuery(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleEvaluateQuery(w http.ResponseWriter, r *http.Request) {
	results, timing, ok := s.runImageQuery(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   len(results),
		"timing": map[string]float64{
			"embed_ms":  utils.Round2(timing.EmbedMs),
			"search_ms": utils.Round2(timing.SearchMs),
			"rank_ms":   utils.Round2(timing.RankMs),
			"total_ms":  utils.Round2(timing.TotalMs),
		},
		"index_size": s.vectors.Size(),
		"index_type": string(s.vectors.Type()),
	})
}

// runImageQuery handles the shared multipart query flow of /search and
// /evaluate-query: save the upload to a temp file, run the pipeline, record
// stats. On failure it writes the error response and returns ok=false.
func (s *Server) runImageQuery(w http.ResponseWriter, r *http.Request) ([]*models.SearchResult, search.Timing, bool) {
	var timing search.Timing
	file, _, err := s.formImage(r, "image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, timing, false
	}
	defer file.Close()

	params := s.parseSearchParams(r)
	tmpPath, cleanup, err := storage.SaveTemp(file)
	if err != nil {
		s.logger.Error("temp save failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, timing, false
	}
	defer cleanup()

	results, timing, err := s.pipeline.SearchImage(r.Context(), tmpPath, params)
	if err != nil {
		s.logger.Error("image search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, timing, false
	}
	s.recordQuery(timing.TotalMs, results)
	return results, timing, true
}

func (s *Server) handleSearchByText(w http.ResponseWriter, r *http.Request) {
	var query models.TextQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	params := models.SearchParams{TopK: query.TopK, Threshold: s.config.Search.DefaultThreshold}
	if query.Threshold != nil {
		params.Threshold = *query.Threshold
	}
	params.Normalize(s.config.Search.DefaultTopK, s.config.Search.MaxTopK)

	results, timing, err := s.pipeline.SearchText(r.Context(), query.Query, params)
	if err != nil {
		s.logger.Error("text search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.recordQuery(timing.TotalMs, results)
	s.respondJSON(w, http.StatusOK, models.TextSearchResponse{
		Query:   query.Query,
		Results: results,
		Total:   len(results),
	})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var query models.RecommendQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.TopK <= 0 {
		query.TopK = 10
	}
	if query.TopK > s.config.Search.MaxTopK {
		query.TopK = s.config.Search.MaxTopK
	}

	start := time.Now()
	sourcePath, recs, err := s.pipeline.Recommend(r.Context(), query)
	if err != nil {
		if errors.Is(err, search.ErrItemNotFound) {
			s.respondError(w, http.StatusNotFound, "item not found")
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, models.RecommendResponse{
		SourceProduct:   s.meta.Get(sourcePath),
		Recommendations: recs,
		Elapsed:         utils.Round4(time.Since(start).Seconds()),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		s.respondError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if err := s.indexer.Delete(r.Context(), req.Filename); err != nil {
		if errors.Is(err, vector.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "image not found in index")
			return
		}
		s.logger.Error("delete failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "image deleted",
		"filename":   req.Filename,
		"index_size": s.vectors.Size(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.indexer.Reset(r.Context()); err != nil {
		s.logger.Error("reset failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Query statistics survive a catalog reset; they are process-lifetime.
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "catalog reset"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"queries": s.stats.Snapshot(),
		"index": map[string]interface{}{
			"size":       s.vectors.Size(),
			"type":       string(s.vectors.Type()),
			"dimensions": s.vectors.Dimensions(),
			"items":      s.meta.Len(),
		},
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.ImageDir,
		s.config.Storage.IndexPath,
		s.config.Storage.PathsPath,
		s.config.Storage.MetadataPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	var req models.BenchmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report, err := s.pipeline.Benchmark(r.Context(), req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

// formImage extracts the uploaded image file from a multipart request.
func (s *Server) formImage(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, errors.New("invalid multipart form")
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, errors.New(field + " file is required")
	}
	return file, header, nil
}

// parseMetadata decodes a JSON metadata form field. Malformed JSON is treated
// as empty metadata, not as a request error.
func (s *Server) parseMetadata(raw string) models.Metadata {
	if raw == "" {
		return nil
	}
	var m models.Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		s.logger.Warn("malformed metadata ignored", zap.Error(err))
		return nil
	}
	return m
}

// parseSearchParams reads top_k, threshold and filters form fields, falling
// back to configured defaults. An explicit threshold of 0 is honored (it
// drops only negative scores); only an absent field gets the default.
func (s *Server) parseSearchParams(r *http.Request) models.SearchParams {
	params := models.SearchParams{Threshold: s.config.Search.DefaultThreshold}
	if v := r.FormValue("top_k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.TopK = n
		}
	}
	if v := r.FormValue("threshold"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			params.Threshold = f
		}
	}
	if raw := r.FormValue("filters"); raw != "" {
		var filters map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			s.logger.Warn("malformed filters ignored", zap.Error(err))
		} else {
			params.Filters = filters
		}
	}
	params.Normalize(s.config.Search.DefaultTopK, s.config.Search.MaxTopK)
	return params
}

func (s *Server) recordQuery(latencyMs float64, results []*models.SearchResult) {
	scores := make([]float64, len(results))
	for i, res := range results {
		scores[i] = res.Score
	}
	s.stats.Record(latencyMs, scores)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
