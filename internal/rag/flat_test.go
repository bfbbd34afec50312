package rag

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// newTestStore returns an empty FlatStore persisting into a temp dir.
func newTestStore(t *testing.T, dim int) *FlatStore {
	t.Helper()
	vectorsPath, docsPath := IndexPaths(t.TempDir())
	return NewFlatStore(dim, vectorsPath, docsPath)
}

// unit returns an L2-normalized copy of v.
func unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func Test_FlatStore_AddAndSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, 3)

	vectors := [][]float32{
		unit([]float32{1, 0, 0}),
		unit([]float32{0, 1, 0}),
		unit([]float32{1, 1, 0}),
	}
	records := []Record{
		{ID: "a::chunk_0000", Text: "alpha", Meta: Meta{Path: "a", Chunk: 0}},
		{ID: "b::chunk_0000", Text: "beta", Meta: Meta{Path: "b", Chunk: 0}},
		{ID: "c::chunk_0000", Text: "gamma", Meta: Meta{Path: "c", Chunk: 0}},
	}
	if err := s.Add(ctx, vectors, records); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := s.Search(ctx, unit([]float32{1, 0, 0}), 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 contexts, got %d", len(got))
	}
	if got[0].ID != "a::chunk_0000" {
		t.Errorf("top hit: want a::chunk_0000, got %s", got[0].ID)
	}
	if got[1].ID != "c::chunk_0000" {
		t.Errorf("second hit: want c::chunk_0000, got %s", got[1].ID)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores not descending: %v then %v", got[0].Score, got[1].Score)
	}
}

func Test_FlatStore_SearchEmptyStore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 0)

	got, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("search on empty store: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want empty result, got %d contexts", len(got))
	}
}

func Test_FlatStore_SearchTopKExceedsCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, 2)

	vectors := [][]float32{unit([]float32{1, 0}), unit([]float32{0, 1})}
	records := []Record{{ID: "x::chunk_0000"}, {ID: "y::chunk_0000"}}
	if err := s.Add(ctx, vectors, records); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := s.Search(ctx, unit([]float32{1, 1}), 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("k > N should return all N items: want 2, got %d", len(got))
	}
}

func Test_FlatStore_SearchStableTieOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, 2)

	// Two identical vectors tie exactly; insertion order must win.
	v := unit([]float32{1, 1})
	vectors := [][]float32{v, v}
	records := []Record{{ID: "first"}, {ID: "second"}}
	if err := s.Add(ctx, vectors, records); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := s.Search(ctx, v, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got[0].ID != "first" || got[1].ID != "second" {
		t.Errorf("tie order not stable: got %s, %s", got[0].ID, got[1].ID)
	}
}

func Test_FlatStore_SearchInvalidTopK(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 2)

	_, err := s.Search(context.Background(), []float32{1, 0}, 0)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("want ErrConfiguration, got %v", err)
	}
}

func Test_FlatStore_AddLengthMismatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 2)

	err := s.Add(context.Background(), [][]float32{{1, 0}}, nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("want ErrConfiguration, got %v", err)
	}
}

func Test_FlatStore_AddDimensionMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, 3)

	err := s.Add(ctx, [][]float32{{1, 0}}, []Record{{ID: "x"}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("want ErrDimensionMismatch, got %v", err)
	}
}

func Test_FlatStore_SearchDimensionMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, 3)

	if err := s.Add(ctx, [][]float32{unit([]float32{1, 1, 0})}, []Record{{ID: "x"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err := s.Search(ctx, []float32{1, 0, 0, 0, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("want ErrDimensionMismatch, got %v", err)
	}
}

func Test_FlatStore_DimFixedAtFirstAdd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, 0)

	if err := s.Add(ctx, [][]float32{unit([]float32{1, 0, 0})}, []Record{{ID: "x"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	dim, err := s.Dim(ctx)
	if err != nil {
		t.Fatalf("dim: %v", err)
	}
	if dim != 3 {
		t.Errorf("dim: want 3, got %d", dim)
	}

	err = s.Add(ctx, [][]float32{unit([]float32{1, 0})}, []Record{{ID: "y"}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("second add with different dim: want ErrDimensionMismatch, got %v", err)
	}
}

func Test_FlatStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	vectorsPath, docsPath := IndexPaths(t.TempDir())
	s := NewFlatStore(3, vectorsPath, docsPath)

	vectors := [][]float32{
		unit([]float32{1, 0.5, 0}),
		unit([]float32{0, 1, 0.5}),
		unit([]float32{0.5, 0, 1}),
	}
	records := []Record{
		{ID: "doc::chunk_0000", Text: "첫 번째 청크", Meta: Meta{Path: "doc", Chunk: 0, Fields: map[string]string{"title": "공모전 A"}}},
		{ID: "doc::chunk_0001", Text: "second chunk", Meta: Meta{Path: "doc", Chunk: 1}},
		{ID: "doc::chunk_0002", Text: "third chunk", Meta: Meta{Path: "doc", Chunk: 2}},
	}
	if err := s.Add(ctx, vectors, records); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFlatStore(vectorsPath, docsPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	dim, _ := loaded.Dim(ctx)
	if dim != 3 {
		t.Errorf("loaded dim: want 3, got %d", dim)
	}

	query := unit([]float32{1, 0.4, 0.1})
	want, err := s.Search(ctx, query, 3)
	if err != nil {
		t.Fatalf("search pre-save: %v", err)
	}
	got, err := loaded.Search(ctx, query, 3)
	if err != nil {
		t.Fatalf("search post-load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("result count: want %d, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("result %d: want id %s, got %s", i, want[i].ID, got[i].ID)
		}
		if math.Abs(float64(got[i].Score-want[i].Score)) > 1e-6 {
			t.Errorf("result %d: score drifted: want %v, got %v", i, want[i].Score, got[i].Score)
		}
	}

	// Metadata must survive intact, including non-ASCII text and fields.
	if got[0].Meta.Path != "doc" {
		t.Errorf("meta path: want doc, got %s", got[0].Meta.Path)
	}
	loadedFirst := loaded.records[0]
	if loadedFirst.Text != "첫 번째 청크" {
		t.Errorf("non-ASCII text mangled: got %q", loadedFirst.Text)
	}
	if loadedFirst.Meta.Fields["title"] != "공모전 A" {
		t.Errorf("fields mangled: got %v", loadedFirst.Meta.Fields)
	}
}

func Test_FlatStore_LoadMissingArtifacts(t *testing.T) {
	t.Parallel()
	vectorsPath, docsPath := IndexPaths(t.TempDir())

	_, err := LoadFlatStore(vectorsPath, docsPath)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func Test_FlatStore_LoadRowCountMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	vectorsPath, docsPath := IndexPaths(t.TempDir())
	s := NewFlatStore(2, vectorsPath, docsPath)

	vectors := [][]float32{unit([]float32{1, 0}), unit([]float32{0, 1})}
	records := []Record{{ID: "a"}, {ID: "b"}}
	if err := s.Add(ctx, vectors, records); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Drop one line from the docs log so the pair disagrees.
	data, err := os.ReadFile(docsPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := data[:len(data)/2]
	if err := os.WriteFile(docsPath, lines, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = LoadFlatStore(vectorsPath, docsPath)
	if !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("want ErrCorruptIndex, got %v", err)
	}
}

func Test_FlatStore_LoadBadMagic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, VectorsFileName)
	docsPath := filepath.Join(dir, DocsFileName)

	if err := os.WriteFile(vectorsPath, []byte("not an index file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(docsPath, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFlatStore(vectorsPath, docsPath)
	if !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("want ErrCorruptIndex, got %v", err)
	}
}

func Test_FlatStore_SaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	vectorsPath, docsPath := IndexPaths(dir)
	s := NewFlatStore(2, vectorsPath, docsPath)

	if err := s.Add(ctx, [][]float32{unit([]float32{1, 1})}, []Record{{ID: "a"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp artifact left behind: %s", e.Name())
		}
	}
	if len(entries) != 2 {
		t.Errorf("want exactly the 2 paired artifacts, got %d entries", len(entries))
	}
}
