// Package vector provides the vector index variants and the manager that owns
// the path/vector alignment and the index lifecycle.
package vector

// IndexType identifies the index variant currently in use.
type IndexType string

const (
	// IndexTypeFlat is exact inner-product search over all stored vectors.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeIVF is approximate search probing only the nearest clusters.
	IndexTypeIVF IndexType = "ivf"
)

// Index is one searchable snapshot over the manager's vectors. Implementations
// are immutable after construction except for Add, which only appends; any
// structural change (removal, promotion) replaces the whole index.
type Index interface {
	// Search returns up to k hits by inner product, best first.
	Search(query []float32, k int) []Hit
	// Add appends a vector. The caller guarantees dimension and normalization.
	Add(vec []float32)
	// Size returns the number of stored vectors.
	Size() int
	// Type returns the variant identifier.
	Type() IndexType
}

// Hit is a raw index hit: the position in the aligned path sequence and the
// inner-product score.
type Hit struct {
	Position int
	Score    float64
}
