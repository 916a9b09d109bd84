package vector

// FlatIndex is exact brute-force inner-product search over all stored vectors.
// Always correct, O(n) per query.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
}

// NewFlatIndex creates an empty flat index with the given dimension.
func NewFlatIndex(dimensions int) *FlatIndex {
	return &FlatIndex{dimensions: dimensions}
}

// Add appends a vector.
func (f *FlatIndex) Add(vec []float32) {
	f.vectors = append(f.vectors, vec)
}

// Search scans all vectors and returns the top k by inner product.
func (f *FlatIndex) Search(query []float32, k int) []Hit {
	if k <= 0 || len(f.vectors) == 0 {
		return nil
	}
	candidates := make([]Hit, len(f.vectors))
	for i, vec := range f.vectors {
		candidates[i] = Hit{Position: i, Score: InnerProduct(query, vec)}
	}
	return topK(candidates, k)
}

// Size returns the number of stored vectors.
func (f *FlatIndex) Size() int {
	return len(f.vectors)
}

// Type returns the variant identifier.
func (f *FlatIndex) Type() IndexType {
	return IndexTypeFlat
}
