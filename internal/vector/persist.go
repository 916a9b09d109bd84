package vector

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

const (
	variantFlat uint8 = 0
	variantIVF  uint8 = 1
)

// Save durably writes the index artifact and the parallel path-sequence
// artifact. Index format: dimensions (4), variant (1), count (4), vectors
// (count*dimensions*4), and for IVF: nlist (4), nprobe (4), centroids
// (nlist*dimensions*4). Paths are a JSON array, position-aligned with the
// vectors. Directories are created as needed.
func (m *Manager) Save(indexPath, pathsPath string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if indexPath == "" || pathsPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	f, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	variant := variantFlat
	ivf, isIVF := m.index.(*IVFIndex)
	if isIVF {
		variant = variantIVF
	}
	if err := binary.Write(f, binary.LittleEndian, variant); err != nil {
		return fmt.Errorf("write variant: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(m.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, vec := range m.vectors {
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	if isIVF {
		if err := binary.Write(f, binary.LittleEndian, uint32(ivf.NList())); err != nil {
			return fmt.Errorf("write nlist: %w", err)
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(ivf.NProbe())); err != nil {
			return fmt.Errorf("write nprobe: %w", err)
		}
		for _, c := range ivf.Centroids() {
			if _, err := f.Write(float32SliceToBytes(c)); err != nil {
				return fmt.Errorf("write centroid: %w", err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(pathsPath), 0755); err != nil {
		return fmt.Errorf("create paths dir: %w", err)
	}
	data, err := json.Marshal(m.paths)
	if err != nil {
		return fmt.Errorf("marshal paths: %w", err)
	}
	if err := os.WriteFile(pathsPath, data, 0644); err != nil {
		return fmt.Errorf("write paths: %w", err)
	}
	return nil
}

// Load reads both artifacts and replaces the in-memory state. When either file
// does not exist, no error is returned and the manager is unchanged. The path
// sequence length must equal the vector count.
func (m *Manager) Load(indexPath, pathsPath string) error {
	if indexPath == "" || pathsPath == "" {
		return nil
	}
	f, err := os.Open(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var dim uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	var variant uint8
	if err := binary.Read(f, binary.LittleEndian, &variant); err != nil {
		return fmt.Errorf("read variant: %w", err)
	}
	var n uint32
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}

	var index Index
	switch variant {
	case variantFlat:
		flat := NewFlatIndex(m.dimensions)
		for _, vec := range vectors {
			flat.Add(vec)
		}
		index = flat
	case variantIVF:
		var nlist, nprobe uint32
		if err := binary.Read(f, binary.LittleEndian, &nlist); err != nil {
			return fmt.Errorf("read nlist: %w", err)
		}
		if err := binary.Read(f, binary.LittleEndian, &nprobe); err != nil {
			return fmt.Errorf("read nprobe: %w", err)
		}
		centroids := make([][]float32, 0, nlist)
		for i := uint32(0); i < nlist; i++ {
			if _, err := io.ReadFull(f, buf); err != nil {
				return fmt.Errorf("read centroid: %w", err)
			}
			centroids = append(centroids, bytesToFloat32Slice(buf))
		}
		index = rebuildFromCentroids(vectors, centroids, m.dimensions, int(nprobe))
	default:
		return fmt.Errorf("unknown index variant: %d", variant)
	}

	data, err := os.ReadFile(pathsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read paths: %w", err)
	}
	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return fmt.Errorf("unmarshal paths: %w", err)
	}
	if len(paths) != len(vectors) {
		return fmt.Errorf("artifact mismatch: %d paths, %d vectors", len(paths), len(vectors))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = paths
	m.vectors = vectors
	m.index = index
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
