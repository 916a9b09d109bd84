// Package indexer maintains the product catalog: image files, their
// embeddings in the vector index, their metadata records, and the persisted
// artifacts that tie the three together.
package indexer

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/embedding"
	"github.com/hyperjump/mitsuke/internal/metadata"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/storage"
	"github.com/hyperjump/mitsuke/internal/vector"
)

// Embedder is the embedding dependency of the indexer. Image invalidation is
// needed because an upload may replace an existing file under the same path.
type Embedder interface {
	embedding.Embedder
	InvalidateImage(path string)
}

// Indexer coordinates image storage, embedding, vector index and metadata for
// every catalog mutation, and persists artifacts on a fixed cadence.
type Indexer struct {
	embedder Embedder
	vectors  *vector.Manager
	meta     *metadata.Store
	images   *storage.ImageStore
	logger   *zap.Logger

	persistEvery int
	indexPath    string
	pathsPath    string
	metaPath     string

	mu       sync.Mutex // guards addCount and persistence
	addCount int

	jobs sync.WaitGroup
}

// New creates an indexer. persistEvery is the add-count cadence for writing
// artifacts; batch and delete operations persist unconditionally.
func New(embedder Embedder, vectors *vector.Manager, meta *metadata.Store, images *storage.ImageStore,
	indexPath, pathsPath, metaPath string, persistEvery int, logger *zap.Logger) *Indexer {
	if persistEvery < 1 {
		persistEvery = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		embedder:     embedder,
		vectors:      vectors,
		meta:         meta,
		images:       images,
		logger:       logger,
		persistEvery: persistEvery,
		indexPath:    indexPath,
		pathsPath:    pathsPath,
		metaPath:     metaPath,
	}
}

// Add stores one image, embeds it and registers it in the index and metadata
// store. An embedding failure does not reject the item: a zero vector is
// stored so the catalog entry exists, and it will never score above any
// threshold.
func (idx *Indexer) Add(ctx context.Context, filename string, r io.Reader, extra models.Metadata) (*models.AddResponse, error) {
	path, err := idx.images.Save(filename, r)
	if err != nil {
		return nil, err
	}
	idx.embedder.InvalidateImage(path)

	vec, err := idx.embedder.EmbedImage(ctx, path)
	if err != nil {
		idx.logger.Warn("embedding failed, storing zero vector",
			zap.String("path", path),
			zap.Error(err))
		vec = make([]float32, idx.vectors.Dimensions())
	}
	typeBefore := idx.vectors.Type()
	if _, err := idx.vectors.Add(path, vec); err != nil {
		return nil, err
	}
	// A promotion changes the persisted index format; write it out right away
	// rather than waiting for the cadence.
	promoted := typeBefore == vector.IndexTypeFlat && idx.vectors.Type() == vector.IndexTypeIVF

	record := idx.defaultRecord(path, extra)
	idx.meta.Set(path, record)

	idx.mu.Lock()
	idx.addCount++
	persist := promoted || idx.addCount%idx.persistEvery == 0
	idx.mu.Unlock()
	if persist {
		if err := idx.Persist(); err != nil {
			idx.logger.Warn("periodic persist failed", zap.Error(err))
		}
	}

	idx.logger.Info("image indexed",
		zap.String("path", path),
		zap.Int("index_size", idx.vectors.Size()))
	return &models.AddResponse{
		Message:  "image added",
		Path:     path,
		Metadata: idx.meta.Get(path),
	}, nil
}

// BatchItem is one file of a batch ingestion request.
type BatchItem struct {
	Filename string
	Reader   io.Reader
	Metadata models.Metadata
}

// AddBatch saves all files synchronously, then embeds and indexes them in the
// background. A file whose embedding fails is skipped and logged, not failed;
// the rest of the batch proceeds. The returned ack carries a job id for log
// correlation.
func (idx *Indexer) AddBatch(ctx context.Context, items []BatchItem) (*models.BatchAck, error) {
	jobID := uuid.NewString()
	paths := make([]string, len(items))
	for i, item := range items {
		path, err := idx.images.Save(item.Filename, item.Reader)
		if err != nil {
			return nil, err
		}
		idx.embedder.InvalidateImage(path)
		paths[i] = path
	}

	bgCtx := context.WithoutCancel(ctx)
	idx.jobs.Add(1)
	go func() {
		defer idx.jobs.Done()
		idx.runBatch(bgCtx, jobID, paths, items)
	}()

	return &models.BatchAck{
		Message: "batch accepted",
		Status:  "processing",
		JobID:   jobID,
		Total:   len(items),
	}, nil
}

func (idx *Indexer) runBatch(ctx context.Context, jobID string, paths []string, items []BatchItem) {
	var (
		okPaths []string
		okVecs  [][]float32
		failed  int
	)
	for i, path := range paths {
		vec, err := idx.embedder.EmbedImage(ctx, path)
		if err != nil {
			failed++
			idx.logger.Warn("batch item skipped",
				zap.String("job_id", jobID),
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		okPaths = append(okPaths, path)
		okVecs = append(okVecs, vec)
		idx.meta.Set(path, idx.defaultRecord(path, items[i].Metadata))
	}
	if len(okPaths) > 0 {
		if err := idx.vectors.AddBatch(okPaths, okVecs); err != nil {
			idx.logger.Error("batch index failed",
				zap.String("job_id", jobID),
				zap.Error(err))
			return
		}
	}
	if err := idx.Persist(); err != nil {
		idx.logger.Warn("batch persist failed", zap.String("job_id", jobID), zap.Error(err))
	}
	idx.logger.Info("batch complete",
		zap.String("job_id", jobID),
		zap.Int("indexed", len(okPaths)),
		zap.Int("failed", failed),
		zap.Int("index_size", idx.vectors.Size()))
}

// Delete removes the image identified by filename from the index, the
// metadata store, the embedding cache and disk, then persists.
func (idx *Indexer) Delete(ctx context.Context, filename string) error {
	path := idx.images.PathFor(filename)
	if err := idx.vectors.Remove(path); err != nil {
		return err
	}
	idx.meta.Delete(path)
	idx.embedder.InvalidateImage(path)
	if err := idx.images.Remove(filename); err != nil {
		idx.logger.Warn("image file removal failed", zap.String("path", path), zap.Error(err))
	}
	if err := idx.Persist(); err != nil {
		idx.logger.Warn("persist after delete failed", zap.Error(err))
	}
	idx.logger.Info("image deleted", zap.String("path", path), zap.Int("index_size", idx.vectors.Size()))
	return nil
}

// Reset drops the whole catalog: index, metadata, stored images and persisted
// artifacts.
func (idx *Indexer) Reset(ctx context.Context) error {
	idx.vectors.Reset()
	idx.meta.Reset()
	if err := idx.images.Reset(); err != nil {
		return err
	}
	for _, p := range []string{idx.indexPath, idx.pathsPath, idx.metaPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	idx.mu.Lock()
	idx.addCount = 0
	idx.mu.Unlock()
	idx.logger.Info("catalog reset")
	return nil
}

// Persist writes the index, path sequence and metadata artifacts. Writes are
// serialized so concurrent callers cannot interleave partial artifacts.
func (idx *Indexer) Persist() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.vectors.Save(idx.indexPath, idx.pathsPath); err != nil {
		return err
	}
	return idx.meta.Save(idx.metaPath)
}

// Load restores persisted artifacts. Missing artifacts leave the catalog
// empty; this is the first-start case, not an error.
func (idx *Indexer) Load() error {
	if err := idx.vectors.Load(idx.indexPath, idx.pathsPath); err != nil {
		return err
	}
	if err := idx.meta.Load(idx.metaPath); err != nil {
		return err
	}
	if idx.vectors.Size() > 0 {
		idx.logger.Info("catalog loaded",
			zap.Int("items", idx.vectors.Size()),
			zap.String("index_type", string(idx.vectors.Type())))
	}
	return nil
}

// Wait blocks until all background batch jobs have finished. Used during
// shutdown so accepted batches are not lost.
func (idx *Indexer) Wait() {
	idx.jobs.Wait()
}

// defaultRecord fills the well-known fields a catalog record always has.
// product_id, name and category default to empty, so an item without a
// caller-supplied product id deduplicates by its path, never by a fabricated
// id. Caller-provided fields win.
func (idx *Indexer) defaultRecord(path string, extra models.Metadata) models.Metadata {
	record := models.Metadata{
		"product_id": "",
		"name":       "",
		"category":   "",
		"image_path": path,
	}
	for k, v := range extra {
		record[k] = v
	}
	return record
}
