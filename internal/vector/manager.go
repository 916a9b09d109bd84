package vector

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/pkg/utils"
)

// ErrNotFound is returned when a storage path is not present in the index.
var ErrNotFound = errors.New("path not found in index")

// Manager owns the stored vectors, the parallel storage-path sequence, and the
// current index variant. Position i in the path sequence and the vector
// sequence always refer to the same item; every mutation that changes one
// changes the other under the same lock. Structural changes (removal,
// promotion, reset) build a complete replacement index and swap it, so readers
// see either the old structure or the new one, never a partial state.
type Manager struct {
	dimensions       int
	promoteThreshold int
	minClusters      int
	maxClusters      int
	logger           *zap.Logger

	mu      sync.RWMutex
	paths   []string
	vectors [][]float32
	index   Index
}

// Result is a search hit resolved to its storage path.
type Result struct {
	Path  string
	Score float64
}

// Option configures a Manager.
type Option func(*Manager)

// WithPromoteThreshold sets the item count at which the flat index is promoted.
func WithPromoteThreshold(n int) Option {
	return func(m *Manager) { m.promoteThreshold = n }
}

// WithClusterBounds sets the inclusive [min, max] range for the trained cluster count.
func WithClusterBounds(min, max int) Option {
	return func(m *Manager) { m.minClusters, m.maxClusters = min, max }
}

// WithLogger sets a logger for promotion and rebuild events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager with an empty flat index of the given dimension.
func NewManager(dimensions int, opts ...Option) (*Manager, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	m := &Manager{
		dimensions:       dimensions,
		promoteThreshold: 100,
		minClusters:      10,
		maxClusters:      100,
		logger:           zap.NewNop(),
		index:            NewFlatIndex(dimensions),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Add appends one path/vector pair in lock-step and returns the assigned
// position. Crossing the promotion threshold triggers a best-effort promotion.
func (m *Manager) Add(path string, vec []float32) (int, error) {
	if len(vec) != m.dimensions {
		return 0, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), m.dimensions)
	}
	stored := make([]float32, m.dimensions)
	copy(stored, vec)
	utils.NormalizeL2(stored)

	m.mu.Lock()
	defer m.mu.Unlock()
	pos := len(m.paths)
	m.paths = append(m.paths, path)
	m.vectors = append(m.vectors, stored)
	m.index.Add(stored)
	m.promoteLocked()
	return pos, nil
}

// AddBatch appends all pairs as one contiguous append; the promotion check runs
// once for the whole batch.
func (m *Manager) AddBatch(paths []string, vecs [][]float32) error {
	if len(paths) != len(vecs) {
		return fmt.Errorf("paths and vectors length mismatch: %d vs %d", len(paths), len(vecs))
	}
	stored := make([][]float32, len(vecs))
	for i, vec := range vecs {
		if len(vec) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch at %d: got %d, expected %d", i, len(vec), m.dimensions)
		}
		v := make([]float32, m.dimensions)
		copy(v, vec)
		utils.NormalizeL2(v)
		stored[i] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, path := range paths {
		m.paths = append(m.paths, path)
		m.vectors = append(m.vectors, stored[i])
		m.index.Add(stored[i])
	}
	m.promoteLocked()
	return nil
}

// Remove drops the path/vector pair and rebuilds a brand-new flat index from
// the retained vectors. The index never re-promotes automatically after a
// delete; the next add past the threshold will.
func (m *Manager) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := -1
	for i, p := range m.paths {
		if p == path {
			pos = i
			break
		}
	}
	if pos < 0 {
		return ErrNotFound
	}

	newPaths := make([]string, 0, len(m.paths)-1)
	newVectors := make([][]float32, 0, len(m.vectors)-1)
	flat := NewFlatIndex(m.dimensions)
	for i := range m.paths {
		if i == pos {
			continue
		}
		newPaths = append(newPaths, m.paths[i])
		newVectors = append(newVectors, m.vectors[i])
		flat.Add(m.vectors[i])
	}
	m.paths = newPaths
	m.vectors = newVectors
	m.index = flat
	m.logger.Info("index rebuilt after delete",
		zap.String("path", path),
		zap.Int("size", len(newPaths)))
	return nil
}

// Reset drops all state back to an empty flat index.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = nil
	m.vectors = nil
	m.index = NewFlatIndex(m.dimensions)
}

// Search returns up to k hits resolved to storage paths, best first.
func (m *Manager) Search(query []float32, k int) ([]Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	hits := m.index.Search(query, k)
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Position >= len(m.paths) {
			continue
		}
		results = append(results, Result{Path: m.paths[h.Position], Score: h.Score})
	}
	return results, nil
}

// PromoteIfEligible promotes a flat index past the item-count threshold to an
// IVF index. Idempotent; a training failure leaves the flat index unchanged.
// Returns whether a promotion happened.
func (m *Manager) PromoteIfEligible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promoteLocked()
}

// promoteLocked must be called with mu held.
func (m *Manager) promoteLocked() bool {
	if len(m.paths) < m.promoteThreshold || m.index.Type() != IndexTypeFlat {
		return false
	}
	nlist := utils.Clamp(int(math.Round(math.Sqrt(float64(len(m.paths))))), m.minClusters, m.maxClusters)
	nprobe := nlist / 4
	if nprobe < 1 {
		nprobe = 1
	}
	ivf, err := TrainIVF(m.vectors, m.dimensions, nlist, nprobe)
	if err != nil {
		m.logger.Warn("index promotion failed, staying flat", zap.Error(err))
		return false
	}
	m.index = ivf
	m.logger.Info("index promoted to ivf",
		zap.Int("size", len(m.paths)),
		zap.Int("nlist", nlist),
		zap.Int("nprobe", nprobe))
	return true
}

// Size returns the number of stored items.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.paths)
}

// Type returns the current index variant.
func (m *Manager) Type() IndexType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Type()
}

// Dimensions returns the vector dimension.
func (m *Manager) Dimensions() int {
	return m.dimensions
}

// Paths returns a copy of the ordered storage-path sequence.
func (m *Manager) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.paths))
	copy(out, m.paths)
	return out
}

// Contains reports whether path is present in the index.
func (m *Manager) Contains(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.paths {
		if p == path {
			return true
		}
	}
	return false
}

// VectorFor returns a copy of the stored vector for path.
func (m *Manager) VectorFor(path string) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, p := range m.paths {
		if p == path {
			out := make([]float32, m.dimensions)
			copy(out, m.vectors[i])
			return out, true
		}
	}
	return nil, false
}
