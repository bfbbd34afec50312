package rag

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Artifact file names inside an index directory. The two files are a
// paired unit: row i of the vector matrix corresponds to line i of the
// docs log, and neither is meaningful without the other.
const (
	// VectorsFileName is the binary vector matrix artifact.
	VectorsFileName = "vectors.idx"
	// DocsFileName is the line-delimited JSON record log artifact.
	DocsFileName = "docs.jsonl"
)

// flatMagic identifies a raggate vector matrix file.
var flatMagic = [4]byte{'R', 'G', 'V', 'X'}

// flatVersion is the current vector matrix format version.
const flatVersion uint32 = 1

// maxDocLine bounds a single docs.jsonl line during load. Chunks are at
// most a few KB of text plus metadata, so 1 MiB is generous.
const maxDocLine = 1 << 20

// FlatStore is a VectorStore holding the full vector matrix and its
// parallel records in memory, persisted as two paired artifacts:
// a binary float32 matrix and a JSONL record log.
//
// A FlatStore is built offline (Add then Save) and treated as immutable
// once loaded; concurrent Search calls on a loaded store are safe
// without locking.
type FlatStore struct {
	// dim is the fixed vector dimension, set at construction, first Add,
	// or Load, and never changed afterwards.
	dim int

	// vectors is the N×dim matrix of unit-norm chunk vectors.
	vectors [][]float32

	// records holds the chunk record for each vector row, same ordinal.
	records []Record

	// vectorsPath and docsPath are where Save writes the paired artifacts.
	vectorsPath string
	docsPath    string
}

// IndexPaths returns the conventional artifact paths inside an index
// directory.
func IndexPaths(indexDir string) (vectorsPath, docsPath string) {
	return filepath.Join(indexDir, VectorsFileName), filepath.Join(indexDir, DocsFileName)
}

// NewFlatStore constructs an empty FlatStore that will persist to the
// given artifact paths. dim may be 0, in which case the dimension is
// fixed by the first Add call.
func NewFlatStore(dim int, vectorsPath, docsPath string) *FlatStore {
	return &FlatStore{
		dim:         dim,
		vectorsPath: vectorsPath,
		docsPath:    docsPath,
	}
}

// Add appends vectors with their parallel records.
func (s *FlatStore) Add(_ context.Context, vectors [][]float32, records []Record) error {
	if len(vectors) != len(records) {
		return fmt.Errorf("rag: add: %d vectors for %d records: %w",
			len(vectors), len(records), ErrConfiguration)
	}
	if len(vectors) == 0 {
		return nil
	}

	if s.dim == 0 {
		s.dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != s.dim {
			return fmt.Errorf("rag: add: vector %d has dimension %d, store has %d: %w",
				i, len(v), s.dim, ErrDimensionMismatch)
		}
	}

	s.vectors = append(s.vectors, vectors...)
	s.records = append(s.records, records...)
	return nil
}

// Search returns the min(topK, N) highest-scoring contexts for the
// query vector, descending by score. Ties keep insertion order.
func (s *FlatStore) Search(_ context.Context, query []float32, topK int) ([]Context, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("rag: search: top_k must be positive, got %d: %w", topK, ErrConfiguration)
	}
	if len(s.vectors) == 0 {
		return []Context{}, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("rag: search: query dimension %d, store has %d: %w",
			len(query), s.dim, ErrDimensionMismatch)
	}

	// Vectors are unit-norm, so the inner product is the cosine similarity.
	order := make([]int, len(s.vectors))
	scores := make([]float32, len(s.vectors))
	for i, v := range s.vectors {
		order[i] = i
		scores[i] = dot(query, v)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}

	contexts := make([]Context, 0, topK)
	for _, idx := range order[:topK] {
		rec := s.records[idx]
		contexts = append(contexts, Context{
			ID:    rec.ID,
			Text:  rec.Text,
			Score: scores[idx],
			Meta:  rec.Meta,
		})
	}
	return contexts, nil
}

// Dim reports the store's fixed vector dimension (0 when still empty).
func (s *FlatStore) Dim(_ context.Context) (int, error) {
	return s.dim, nil
}

// Count reports the number of stored vectors.
func (s *FlatStore) Count(_ context.Context) (int, error) {
	return len(s.vectors), nil
}

// Close is a no-op for the in-memory flat store.
func (s *FlatStore) Close() error { return nil }

// Save durably persists both artifacts. Each file is written to a
// temporary sibling and atomically renamed into place, so a concurrent
// Load never observes a half-written file; a pair mismatch caused by
// interrupting Save between the two renames is caught at Load time by
// the row-count check.
func (s *FlatStore) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.vectorsPath), 0o755); err != nil {
		return fmt.Errorf("rag: save: create index dir: %w", err)
	}

	if err := s.writeVectors(s.vectorsPath + ".tmp"); err != nil {
		return err
	}
	if err := s.writeDocs(s.docsPath + ".tmp"); err != nil {
		return err
	}

	if err := os.Rename(s.vectorsPath+".tmp", s.vectorsPath); err != nil {
		return fmt.Errorf("rag: save: replace %s: %w", s.vectorsPath, err)
	}
	if err := os.Rename(s.docsPath+".tmp", s.docsPath); err != nil {
		return fmt.Errorf("rag: save: replace %s: %w", s.docsPath, err)
	}
	return nil
}

// writeVectors writes the binary matrix artifact:
// magic, version, dim, count (uint32 LE), then count×dim float32 LE rows.
func (s *FlatStore) writeVectors(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rag: save: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(flatMagic[:]); err != nil {
		return fmt.Errorf("rag: save: write magic: %w", err)
	}
	header := []uint32{flatVersion, uint32(s.dim), uint32(len(s.vectors))}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return fmt.Errorf("rag: save: write header: %w", err)
		}
	}
	for i, v := range s.vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("rag: save: write row %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("rag: save: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("rag: save: sync: %w", err)
	}
	return nil
}

// writeDocs writes the JSONL record log, one record per line in
// insertion order, UTF-8 with non-ASCII left unescaped.
func (s *FlatStore) writeDocs(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rag: save: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, rec := range s.records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("rag: save: encode record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("rag: save: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("rag: save: sync: %w", err)
	}
	return nil
}

// LoadFlatStore reads the paired artifacts back into a FlatStore whose
// search results are bit-for-bit equivalent to the store that saved
// them. Missing artifacts yield ErrNotFound; artifacts that disagree in
// row count yield ErrCorruptIndex.
func LoadFlatStore(vectorsPath, docsPath string) (*FlatStore, error) {
	dim, vectors, err := readVectors(vectorsPath)
	if err != nil {
		return nil, err
	}
	records, err := readDocs(docsPath)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(records) {
		return nil, fmt.Errorf("rag: load: %d vectors but %d records: %w",
			len(vectors), len(records), ErrCorruptIndex)
	}

	return &FlatStore{
		dim:         dim,
		vectors:     vectors,
		records:     records,
		vectorsPath: vectorsPath,
		docsPath:    docsPath,
	}, nil
}

// readVectors parses the binary matrix artifact.
func readVectors(path string) (int, [][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, fmt.Errorf("rag: load: %s: %w", path, ErrNotFound)
		}
		return 0, nil, fmt.Errorf("rag: load: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, nil, fmt.Errorf("rag: load: read magic: %w", ErrCorruptIndex)
	}
	if magic != flatMagic {
		return 0, nil, fmt.Errorf("rag: load: bad magic %q: %w", magic[:], ErrCorruptIndex)
	}

	var version, dim, count uint32
	for _, dst := range []*uint32{&version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return 0, nil, fmt.Errorf("rag: load: read header: %w", ErrCorruptIndex)
		}
	}
	if version != flatVersion {
		return 0, nil, fmt.Errorf("rag: load: unsupported format version %d: %w", version, ErrCorruptIndex)
	}

	vectors := make([][]float32, 0, count)
	for i := uint32(0); i < count; i++ {
		row := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return 0, nil, fmt.Errorf("rag: load: truncated at row %d of %d: %w", i, count, ErrCorruptIndex)
		}
		vectors = append(vectors, row)
	}
	return int(dim), vectors, nil
}

// readDocs parses the JSONL record log.
func readDocs(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("rag: load: %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("rag: load: open %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxDocLine)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("rag: load: %s line %d: %v: %w", path, line, err, ErrCorruptIndex)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("rag: load: scan %s: %w", path, err)
	}
	return records, nil
}

// dot returns the inner product of two equal-length vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
