// Package flat implements an exact L2 nearest-neighbour index over
// dense float32 vectors, persisted alongside a JSON mapping of chunk
// texts and metadata.
package flat

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/miabe-ai/campusgpt/internal/core/domain"
)

// Persisted file names inside the store directory.
const (
	indexFile   = "index.bin"
	mappingFile = "mapping.json"
)

// magic and version head the binary index file.
const (
	magic   = uint32(0x464c4154) // "FLAT"
	version = uint32(1)
)

// Index is a flat L2 index. Vector i corresponds to mapping row i;
// that positional coupling is the only id scheme.
type Index struct {
	dims    int
	vectors [][]float32

	texts    []string
	metadata []domain.ChunkMetadata
}

// New returns an empty index for vectors of the given dimensionality.
func New(dims int) *Index {
	return &Index{dims: dims}
}

// Dims returns the vector dimensionality.
func (ix *Index) Dims() int { return ix.dims }

// Len returns the number of indexed vectors.
func (ix *Index) Len() int { return len(ix.vectors) }

// Add appends a vector with its chunk text and metadata.
func (ix *Index) Add(vector []float32, text string, meta domain.ChunkMetadata) error {
	if len(vector) != ix.dims {
		return fmt.Errorf("%w: vector has %d dims, index expects %d", domain.ErrInvalidInput, len(vector), ix.dims)
	}
	ix.vectors = append(ix.vectors, vector)
	ix.texts = append(ix.texts, text)
	ix.metadata = append(ix.metadata, meta)
	return nil
}

// Search returns up to k chunks nearest to the query by squared L2
// distance, closest first. k larger than the index is clamped.
func (ix *Index) Search(query []float32, k int) ([]domain.ScoredChunk, error) {
	if len(query) != ix.dims {
		return nil, fmt.Errorf("%w: query has %d dims, index expects %d", domain.ErrInvalidInput, len(query), ix.dims)
	}
	if k <= 0 || ix.Len() == 0 {
		return nil, nil
	}
	if k > ix.Len() {
		k = ix.Len()
	}

	type hit struct {
		id   int
		dist float32
	}
	hits := make([]hit, ix.Len())
	for i, vec := range ix.vectors {
		hits[i] = hit{id: i, dist: squaredL2(query, vec)}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].dist != hits[b].dist {
			return hits[a].dist < hits[b].dist
		}
		return hits[a].id < hits[b].id
	})

	results := make([]domain.ScoredChunk, 0, k)
	for _, h := range hits[:k] {
		results = append(results, domain.ScoredChunk{
			Text:     ix.texts[h.id],
			Metadata: ix.metadata[h.id],
			Distance: h.dist,
		})
	}
	return results, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// mapping is the JSON sidecar: two parallel arrays aligned with the
// vector order in index.bin.
type mapping struct {
	Texts    []string               `json:"texts"`
	Metadata []domain.ChunkMetadata `json:"metadata"`
}

// Save writes the index and its mapping into dir.
func (ix *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, indexFile))
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	header := []uint32{magic, version, uint32(ix.dims), uint32(ix.Len())}
	for _, v := range header {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write index header: %w", err)
		}
	}
	for _, vec := range ix.vectors {
		for _, x := range vec {
			if err := binary.Write(f, binary.LittleEndian, math.Float32bits(x)); err != nil {
				return fmt.Errorf("write index vectors: %w", err)
			}
		}
	}

	data, err := json.Marshal(mapping{Texts: ix.texts, Metadata: ix.metadata})
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, mappingFile), data, 0o644); err != nil {
		return fmt.Errorf("write mapping: %w", err)
	}
	return nil
}

// Load reads an index saved by Save. Returns domain.ErrIndexMisaligned
// when the mapping arrays and vector count disagree: a misaligned
// store would silently return the wrong text for every hit.
func Load(dir string) (*Index, error) {
	f, err := os.Open(filepath.Join(dir, indexFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no index at %s", domain.ErrNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var head [4]uint32
	for i := range head {
		if err := binary.Read(f, binary.LittleEndian, &head[i]); err != nil {
			return nil, fmt.Errorf("read index header: %w", err)
		}
	}
	if head[0] != magic {
		return nil, fmt.Errorf("not an index file: bad magic %#x", head[0])
	}
	if head[1] != version {
		return nil, fmt.Errorf("unsupported index version %d", head[1])
	}
	dims, count := int(head[2]), int(head[3])

	ix := New(dims)
	buf := make([]uint32, dims)
	for i := 0; i < count; i++ {
		if err := binary.Read(f, binary.LittleEndian, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, dims)
		for j, bits := range buf {
			vec[j] = math.Float32frombits(bits)
		}
		ix.vectors = append(ix.vectors, vec)
	}

	data, err := os.ReadFile(filepath.Join(dir, mappingFile))
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	var m mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}

	if len(m.Texts) != count || len(m.Metadata) != count {
		return nil, fmt.Errorf("%w: %d vectors, %d texts, %d metadata rows",
			domain.ErrIndexMisaligned, count, len(m.Texts), len(m.Metadata))
	}
	ix.texts = m.Texts
	ix.metadata = m.Metadata
	return ix, nil
}
