package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/mitsuke/internal/embedding"
	"github.com/hyperjump/mitsuke/internal/metadata"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/storage"
	"github.com/hyperjump/mitsuke/internal/vector"
)

// pickyEmbedder embeds deterministically but fails for paths containing "bad".
type pickyEmbedder struct {
	*embedding.MockEmbedder
}

func (e *pickyEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	if strings.Contains(path, "bad") {
		return nil, fmt.Errorf("unreadable image %s", path)
	}
	return e.MockEmbedder.EmbedImage(ctx, path)
}

func (e *pickyEmbedder) InvalidateImage(string) {}

type testEnv struct {
	idx     *Indexer
	vectors *vector.Manager
	meta    *metadata.Store
	dir     string
}

func newTestEnv(t *testing.T, persistEvery int) *testEnv {
	t.Helper()
	dir := t.TempDir()
	mgr, err := vector.NewManager(4)
	if err != nil {
		t.Fatal(err)
	}
	meta := metadata.NewStore()
	images, err := storage.NewImageStore(filepath.Join(dir, "images"))
	if err != nil {
		t.Fatal(err)
	}
	emb := &pickyEmbedder{MockEmbedder: embedding.NewMockEmbedder(4)}
	idx := New(emb, mgr, meta, images,
		filepath.Join(dir, "index.bin"),
		filepath.Join(dir, "paths.json"),
		filepath.Join(dir, "metadata.json"),
		persistEvery, nil)
	return &testEnv{idx: idx, vectors: mgr, meta: meta, dir: dir}
}

func TestIndexer_Add(t *testing.T) {
	env := newTestEnv(t, 100)
	resp, err := env.idx.Add(context.Background(), "alma_sofa.jpg",
		strings.NewReader("img"), models.Metadata{"category": "sofa"})
	if err != nil {
		t.Fatal(err)
	}
	if env.vectors.Size() != 1 {
		t.Fatalf("size = %d", env.vectors.Size())
	}
	// No caller-supplied product id: the record keeps it empty instead of
	// inventing one, so dedup later groups by path.
	if resp.Metadata["product_id"] != "" {
		t.Errorf("product_id = %v", resp.Metadata["product_id"])
	}
	if resp.Metadata["category"] != "sofa" {
		t.Errorf("category = %v", resp.Metadata["category"])
	}
	if resp.Metadata["image_path"] != resp.Path {
		t.Errorf("image_path = %v, path = %s", resp.Metadata["image_path"], resp.Path)
	}
	if _, err := os.Stat(resp.Path); err != nil {
		t.Errorf("image file missing: %v", err)
	}
}

func TestIndexer_AddMetadataOverridesDefaults(t *testing.T) {
	env := newTestEnv(t, 100)
	resp, err := env.idx.Add(context.Background(), "x.jpg",
		strings.NewReader("img"), models.Metadata{"product_id": "p42", "name": "Alma"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Metadata["product_id"] != "p42" || resp.Metadata["name"] != "Alma" {
		t.Errorf("metadata = %v", resp.Metadata)
	}
}

func TestIndexer_AddEmbeddingFailureKeepsItem(t *testing.T) {
	env := newTestEnv(t, 100)
	resp, err := env.idx.Add(context.Background(), "bad.jpg",
		strings.NewReader("img"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if env.vectors.Size() != 1 {
		t.Fatalf("size = %d", env.vectors.Size())
	}
	// Zero vector: the item never scores against any query.
	vec, ok := env.vectors.VectorFor(resp.Path)
	if !ok {
		t.Fatal("vector missing")
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v", vec)
		}
	}
}

func TestIndexer_PersistCadence(t *testing.T) {
	env := newTestEnv(t, 2)
	indexPath := filepath.Join(env.dir, "index.bin")

	_, _ = env.idx.Add(context.Background(), "a.jpg", strings.NewReader("a"), nil)
	if _, err := os.Stat(indexPath); !os.IsNotExist(err) {
		t.Error("artifacts should not exist after 1 add with cadence 2")
	}
	_, _ = env.idx.Add(context.Background(), "b.jpg", strings.NewReader("b"), nil)
	if _, err := os.Stat(indexPath); err != nil {
		t.Errorf("artifacts should exist after 2 adds: %v", err)
	}
}

func TestIndexer_AddBatch(t *testing.T) {
	env := newTestEnv(t, 100)
	ack, err := env.idx.AddBatch(context.Background(), []BatchItem{
		{Filename: "a.jpg", Reader: strings.NewReader("a"), Metadata: models.Metadata{"category": "sofa"}},
		{Filename: "bad.jpg", Reader: strings.NewReader("b")},
		{Filename: "c.jpg", Reader: strings.NewReader("c")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ack.Total != 3 || ack.JobID == "" || ack.Status != "processing" {
		t.Errorf("ack = %+v", ack)
	}

	env.idx.Wait()
	// The failing item is skipped, not fatal.
	if env.vectors.Size() != 2 {
		t.Errorf("size = %d, want 2", env.vectors.Size())
	}
	if env.meta.Get(filepath.Join(env.dir, "images", "a.jpg")).Category() != "sofa" {
		t.Error("batch metadata not set")
	}
	if _, err := os.Stat(filepath.Join(env.dir, "index.bin")); err != nil {
		t.Errorf("batch should persist artifacts: %v", err)
	}
}

func TestIndexer_Delete(t *testing.T) {
	env := newTestEnv(t, 100)
	resp, _ := env.idx.Add(context.Background(), "a.jpg", strings.NewReader("a"), nil)

	if err := env.idx.Delete(context.Background(), "a.jpg"); err != nil {
		t.Fatal(err)
	}
	if env.vectors.Size() != 0 || env.meta.Len() != 0 {
		t.Errorf("size = %d, meta = %d", env.vectors.Size(), env.meta.Len())
	}
	if _, err := os.Stat(resp.Path); !os.IsNotExist(err) {
		t.Error("image file should be removed")
	}
	if err := env.idx.Delete(context.Background(), "a.jpg"); !errors.Is(err, vector.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestIndexer_Reset(t *testing.T) {
	env := newTestEnv(t, 1)
	_, _ = env.idx.Add(context.Background(), "a.jpg", strings.NewReader("a"), nil)

	if err := env.idx.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	if env.vectors.Size() != 0 || env.meta.Len() != 0 {
		t.Error("catalog should be empty")
	}
	if _, err := os.Stat(filepath.Join(env.dir, "index.bin")); !os.IsNotExist(err) {
		t.Error("artifacts should be removed")
	}
}

func TestIndexer_PersistLoadRoundtrip(t *testing.T) {
	env := newTestEnv(t, 100)
	_, _ = env.idx.Add(context.Background(), "a.jpg", strings.NewReader("a"), models.Metadata{"category": "sofa"})
	_, _ = env.idx.Add(context.Background(), "b.jpg", strings.NewReader("b"), nil)
	if err := env.idx.Persist(); err != nil {
		t.Fatal(err)
	}

	mgr, _ := vector.NewManager(4)
	meta := metadata.NewStore()
	images, _ := storage.NewImageStore(filepath.Join(env.dir, "images"))
	emb := &pickyEmbedder{MockEmbedder: embedding.NewMockEmbedder(4)}
	fresh := New(emb, mgr, meta, images,
		filepath.Join(env.dir, "index.bin"),
		filepath.Join(env.dir, "paths.json"),
		filepath.Join(env.dir, "metadata.json"),
		100, nil)
	if err := fresh.Load(); err != nil {
		t.Fatal(err)
	}
	if mgr.Size() != 2 {
		t.Fatalf("loaded size = %d", mgr.Size())
	}
	path := filepath.Join(env.dir, "images", "a.jpg")
	if meta.Get(path).Category() != "sofa" {
		t.Error("metadata lost")
	}
	if !mgr.Contains(path) {
		t.Error("path missing after load")
	}
}

func TestIndexer_LoadMissingArtifacts(t *testing.T) {
	env := newTestEnv(t, 100)
	if err := env.idx.Load(); err != nil {
		t.Fatal(err)
	}
	if env.vectors.Size() != 0 {
		t.Error("catalog should be empty on first start")
	}
}
