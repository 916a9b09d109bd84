package vector

import "testing"

func TestFlatIndex_AddSearch(t *testing.T) {
	idx := NewFlatIndex(3)
	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	for _, v := range vecs {
		idx.Add(v)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}
	if idx.Type() != IndexTypeFlat {
		t.Errorf("Type=%s", idx.Type())
	}

	hits := idx.Search([]float32{1, 0, 0}, 2)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Position != 0 {
		t.Errorf("top hit should be position 0, got %d", hits[0].Position)
	}
	if hits[1].Position != 1 {
		t.Errorf("second hit should be position 1, got %d", hits[1].Position)
	}
}

func TestFlatIndex_SearchEmpty(t *testing.T) {
	idx := NewFlatIndex(2)
	if hits := idx.Search([]float32{1, 0}, 5); hits != nil {
		t.Errorf("empty index should return nil, got %v", hits)
	}
}

func TestTopK(t *testing.T) {
	hits := []Hit{
		{Position: 0, Score: 0.1},
		{Position: 1, Score: 0.9},
		{Position: 2, Score: 0.5},
		{Position: 3, Score: 0.7},
	}
	top := topK(hits, 2)
	if len(top) != 2 || top[0].Position != 1 || top[1].Position != 3 {
		t.Errorf("topK = %v", top)
	}
	if got := topK([]Hit{{Position: 0, Score: 1}}, 5); len(got) != 1 {
		t.Errorf("k beyond len should clamp, got %v", got)
	}
}

func TestInnerProduct(t *testing.T) {
	if got := InnerProduct([]float32{1, 0}, []float32{1, 0}); got != 1 {
		t.Errorf("identical unit vectors = %f, want 1", got)
	}
	if got := InnerProduct([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal = %f, want 0", got)
	}
	if got := InnerProduct([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("length mismatch = %f, want 0", got)
	}
}
