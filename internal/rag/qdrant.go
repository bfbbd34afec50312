package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant-backed store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. Only used when CreateMissing is true.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// CreateMissing creates the collection when it does not exist.
	// Index builds set this; query-time opens leave it false so a
	// missing collection surfaces as ErrNotFound instead of an empty
	// silently-created one.
	CreateMissing bool
}

// QdrantStore implements VectorStore backed by a remote Qdrant instance.
// It is the alternative to the local FlatStore for deployments where the
// index outgrows a single process.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore connects to Qdrant and binds to the configured
// collection. With CreateMissing unset, a missing collection yields
// ErrNotFound (the index has not been built yet).
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		if !cfg.CreateMissing {
			_ = client.Close()
			return nil, fmt.Errorf("qdrant: collection %q does not exist: %w", cfg.Collection, ErrNotFound)
		}
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", cfg.Collection, err)
		}
	}

	return &QdrantStore{client: client, cfg: cfg}, nil
}

// Add upserts vectors with their parallel records. Record IDs are
// arbitrary strings, so each point ID is a deterministic UUID derived
// from the record ID, with the original ID preserved in the payload.
func (s *QdrantStore) Add(ctx context.Context, vectors [][]float32, records []Record) error {
	if len(vectors) != len(records) {
		return fmt.Errorf("qdrant: add: %d vectors for %d records: %w",
			len(vectors), len(records), ErrConfiguration)
	}

	dim, err := s.Dim(ctx)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for i, rec := range records {
		if len(vectors[i]) != dim {
			return fmt.Errorf("qdrant: add: vector %d has dimension %d, collection has %d: %w",
				i, len(vectors[i]), dim, ErrDimensionMismatch)
		}

		payload := map[string]any{
			"id":    rec.ID,
			"text":  rec.Text,
			"path":  rec.Meta.Path,
			"chunk": rec.Meta.Chunk,
		}
		if len(rec.Meta.Fields) > 0 {
			fields := make(map[string]any, len(rec.Meta.Fields))
			for k, v := range rec.Meta.Fields {
				fields[k] = v
			}
			payload["fields"] = fields
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(rec.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search performs a cosine similarity query and returns the top-k
// contexts, descending by score.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int) ([]Context, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("qdrant: search: top_k must be positive, got %d: %w", topK, ErrConfiguration)
	}

	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	contexts := make([]Context, 0, len(results))
	for _, r := range results {
		c := Context{Score: r.Score}
		p := r.Payload
		if p == nil {
			contexts = append(contexts, c)
			continue
		}
		if v, ok := p["id"]; ok {
			c.ID = v.GetStringValue()
		}
		if v, ok := p["text"]; ok {
			c.Text = v.GetStringValue()
		}
		if v, ok := p["path"]; ok {
			c.Meta.Path = v.GetStringValue()
		}
		if v, ok := p["chunk"]; ok {
			c.Meta.Chunk = int(v.GetIntegerValue())
		}
		if v, ok := p["fields"]; ok {
			if sv := v.GetStructValue(); sv != nil {
				c.Meta.Fields = make(map[string]string, len(sv.GetFields()))
				for k, fv := range sv.GetFields() {
					c.Meta.Fields[k] = fv.GetStringValue()
				}
			}
		}
		contexts = append(contexts, c)
	}
	return contexts, nil
}

// Dim reports the collection's configured vector size.
func (s *QdrantStore) Dim(ctx context.Context) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: collection info: %w", err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, fmt.Errorf("qdrant: collection %q has no vector params: %w", s.cfg.Collection, ErrCorruptIndex)
	}
	return int(params.GetSize()), nil
}

// Count reports the number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Ping checks Qdrant reachability for readiness probes.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Name labels this dependency in readiness responses.
func (s *QdrantStore) Name() string { return "qdrant" }

// pointUUID derives a stable UUID from an arbitrary record ID so the
// same chunk always maps to the same Qdrant point across rebuilds.
func pointUUID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}
