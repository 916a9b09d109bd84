package vector

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"
)

func unitVec(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis%dim] = 1
	return v
}

func TestManager_AddAlignment(t *testing.T) {
	m, err := NewManager(4)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		pos, err := m.Add(fmt.Sprintf("/img/%d.jpg", i), unitVec(4, i))
		if err != nil {
			t.Fatal(err)
		}
		if pos != i {
			t.Errorf("position = %d, want %d", pos, i)
		}
	}
	if m.Size() != 4 || len(m.Paths()) != 4 {
		t.Errorf("size=%d paths=%d", m.Size(), len(m.Paths()))
	}

	results, err := m.Search(unitVec(4, 2), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Path != "/img/2.jpg" {
		t.Errorf("results = %v", results)
	}
}

func TestManager_StoresNormalized(t *testing.T) {
	m, _ := NewManager(2)
	if _, err := m.Add("/img/a.jpg", []float32{3, 4}); err != nil {
		t.Fatal(err)
	}
	v, ok := m.VectorFor("/img/a.jpg")
	if !ok {
		t.Fatal("vector missing")
	}
	if math.Abs(L2Norm(v)-1) > 1e-6 {
		t.Errorf("stored norm = %f, want 1", L2Norm(v))
	}
}

func TestManager_DimensionMismatch(t *testing.T) {
	m, _ := NewManager(4)
	if _, err := m.Add("/img/a.jpg", []float32{1, 0}); err == nil {
		t.Error("expected dimension error on add")
	}
	if _, err := m.Search([]float32{1, 0}, 3); err == nil {
		t.Error("expected dimension error on search")
	}
}

func TestManager_RemoveRebuildsFlat(t *testing.T) {
	m, _ := NewManager(4, WithPromoteThreshold(3), WithClusterBounds(2, 4))
	paths := make([]string, 6)
	vecs := make([][]float32, 6)
	for i := range paths {
		paths[i] = fmt.Sprintf("/img/%d.jpg", i)
		vecs[i] = unitVec(4, i)
	}
	if err := m.AddBatch(paths, vecs); err != nil {
		t.Fatal(err)
	}
	if m.Type() != IndexTypeIVF {
		t.Fatalf("expected promotion at threshold, type=%s", m.Type())
	}

	if err := m.Remove("/img/3.jpg"); err != nil {
		t.Fatal(err)
	}
	if m.Size() != 5 {
		t.Errorf("size after remove = %d", m.Size())
	}
	if m.Type() != IndexTypeFlat {
		t.Errorf("delete must downgrade to flat, type=%s", m.Type())
	}
	if m.Contains("/img/3.jpg") {
		t.Error("removed path still present")
	}
	results, err := m.Search(unitVec(4, 3), m.Size())
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Path == "/img/3.jpg" {
			t.Error("removed path returned by search")
		}
	}
}

func TestManager_RemoveNotFound(t *testing.T) {
	m, _ := NewManager(4)
	if _, err := m.Add("/img/a.jpg", unitVec(4, 0)); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("/img/missing.jpg"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if m.Size() != 1 {
		t.Error("failed remove must not change the index")
	}
}

func TestManager_PromotionTrigger(t *testing.T) {
	m, _ := NewManager(8, WithPromoteThreshold(20), WithClusterBounds(2, 10))
	for i := 0; i < 19; i++ {
		if _, err := m.Add(fmt.Sprintf("/img/%d.jpg", i), unitVec(8, i)); err != nil {
			t.Fatal(err)
		}
		if m.Type() != IndexTypeFlat {
			t.Fatalf("promoted early at %d items", i+1)
		}
	}
	if _, err := m.Add("/img/19.jpg", unitVec(8, 3)); err != nil {
		t.Fatal(err)
	}
	if m.Type() != IndexTypeIVF {
		t.Error("expected promotion exactly at the threshold add")
	}
	// Idempotent: already promoted.
	if m.PromoteIfEligible() {
		t.Error("promote on an ivf index should be a no-op")
	}
}

func TestManager_Reset(t *testing.T) {
	m, _ := NewManager(4)
	_, _ = m.Add("/img/a.jpg", unitVec(4, 0))
	m.Reset()
	if m.Size() != 0 || m.Type() != IndexTypeFlat {
		t.Errorf("after reset: size=%d type=%s", m.Size(), m.Type())
	}
}

func TestManager_SaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "products.idx")
	pathsPath := filepath.Join(dir, "products.paths.json")

	m, _ := NewManager(4)
	for i := 0; i < 7; i++ {
		_, _ = m.Add(fmt.Sprintf("/img/%d.jpg", i), unitVec(4, i))
	}
	if err := m.Save(indexPath, pathsPath); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewManager(4)
	if err := loaded.Load(indexPath, pathsPath); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != m.Size() {
		t.Fatalf("size = %d, want %d", loaded.Size(), m.Size())
	}
	want := m.Paths()
	got := loaded.Paths()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("path %d: %s vs %s", i, got[i], want[i])
		}
	}
	results, err := loaded.Search(unitVec(4, 2), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Path != "/img/2.jpg" {
		t.Errorf("results after load = %v", results)
	}
}

func TestManager_SaveLoadIVF(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "products.idx")
	pathsPath := filepath.Join(dir, "products.paths.json")

	m, _ := NewManager(8, WithPromoteThreshold(10), WithClusterBounds(2, 4))
	for i := 0; i < 12; i++ {
		_, _ = m.Add(fmt.Sprintf("/img/%d.jpg", i), unitVec(8, i))
	}
	if m.Type() != IndexTypeIVF {
		t.Fatal("expected ivf before save")
	}
	if err := m.Save(indexPath, pathsPath); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewManager(8, WithPromoteThreshold(10), WithClusterBounds(2, 4))
	if err := loaded.Load(indexPath, pathsPath); err != nil {
		t.Fatal(err)
	}
	if loaded.Type() != IndexTypeIVF {
		t.Errorf("loaded type = %s, want ivf", loaded.Type())
	}
	if loaded.Size() != 12 {
		t.Errorf("loaded size = %d", loaded.Size())
	}
}

func TestManager_LoadMissingFiles(t *testing.T) {
	m, _ := NewManager(4)
	if err := m.Load("/nonexistent/products.idx", "/nonexistent/paths.json"); err != nil {
		t.Errorf("missing artifacts should not error: %v", err)
	}
	if m.Size() != 0 {
		t.Error("manager should be unchanged")
	}
}
