package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const scanPageSize = 256

// Embedder produces embedding vectors for texts. Satisfied by llm.Provider.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QdrantStore implements Store against a Qdrant gRPC endpoint. It is safe
// for concurrent use; one instance is shared across all requests.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	qdrant      pb.QdrantClient
	embedder    Embedder
	collection  string
	dim         uint64
	defaultTopK int

	mu      sync.Mutex
	ensured bool
}

// QdrantConfig configures the store connection.
type QdrantConfig struct {
	Host        string
	Port        int
	APIKey      string
	Collection  string
	DefaultTopK int
}

// NewQdrant creates a Qdrant-backed store. The connection is lazy; the
// collection is created on first use.
func NewQdrant(cfg QdrantConfig, embedder Embedder) (*QdrantStore, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}

	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = 4
	}

	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		qdrant:      pb.NewQdrantClient(conn),
		embedder:    embedder,
		collection:  cfg.Collection,
		dim:         EmbedDimension,
		defaultTopK: topK,
	}, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// EnsureCollection creates the collection when absent. An existing
// collection with a different vector size is a configuration error and is
// reported loudly rather than silently corrupting data.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
	if err == nil {
		size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != 0 && size != s.dim {
			return fmt.Errorf("collection %q has vector size %d, expected %d: recreate the collection or fix the embedding model", s.collection, size, s.dim)
		}
		s.setEnsured(true)
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("get collection %q: %w", s.collection, err)
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     s.dim,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		// Lost a create race with a concurrent request; the collection exists.
		if status.Code(err) == codes.AlreadyExists {
			s.setEnsured(true)
			return nil
		}
		return fmt.Errorf("create collection %q: %w", s.collection, err)
	}
	s.setEnsured(true)
	return nil
}

func (s *QdrantStore) setEnsured(v bool) {
	s.mu.Lock()
	s.ensured = v
	s.mu.Unlock()
}

func (s *QdrantStore) ensure(ctx context.Context) error {
	s.mu.Lock()
	ensured := s.ensured
	s.mu.Unlock()
	if ensured {
		return nil
	}
	return s.EnsureCollection(ctx)
}

// Add embeds the chunks and upserts them with fresh uuid identifiers.
func (s *QdrantStore) Add(ctx context.Context, chunks []Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))
	}

	ids := make([]string, len(chunks))
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		ids[i] = uuid.NewString()
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: ids[i]}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[i]}}},
			Payload: buildPayload(c),
		}
	}

	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	}); err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}
	return ids, nil
}

// Search returns the top-k most similar chunks, best first.
func (s *QdrantStore) Search(ctx context.Context, query string, k int) ([]Chunk, error) {
	scored, err := s.SearchWithScores(ctx, query, k)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, len(scored))
	for i, sc := range scored {
		chunks[i] = sc.Chunk
	}
	return chunks, nil
}

// SearchWithScores returns the top-k most similar chunks with scores,
// ordered by descending similarity.
func (s *QdrantStore) SearchWithScores(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = s.defaultTopK
	}
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors, want 1", len(vectors))
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vectors[0],
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]ScoredChunk, len(resp.Result))
	for i, pt := range resp.Result {
		results[i] = ScoredChunk{
			Chunk: chunkFromPayload(pt.Payload),
			Score: pt.Score,
		}
	}
	return results, nil
}

// ScanAll pages through the whole collection via scroll. Unordered.
func (s *QdrantStore) ScanAll(ctx context.Context, limit int) ([]Chunk, error) {
	if limit <= 0 {
		limit = 10000
	}
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	var chunks []Chunk
	var offset *pb.PointId

	for len(chunks) < limit {
		page := uint32(scanPageSize)
		if remaining := limit - len(chunks); remaining < scanPageSize {
			page = uint32(remaining)
		}

		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Limit:          &page,
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: false}},
		})
		if err != nil {
			return nil, fmt.Errorf("scroll: %w", err)
		}

		for _, pt := range resp.Result {
			chunks = append(chunks, chunkFromPayload(pt.Payload))
		}

		if resp.NextPageOffset == nil || len(resp.Result) == 0 {
			break
		}
		offset = resp.NextPageOffset
	}
	return chunks, nil
}

// UniqueSources scans the collection and returns the sorted set of source
// names.
func (s *QdrantStore) UniqueSources(ctx context.Context) ([]string, error) {
	chunks, err := s.ScanAll(ctx, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, c := range chunks {
		if src := c.Source(); src != "" {
			seen[src] = struct{}{}
		}
	}

	sources := make([]string, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return sources, nil
}

// ChunksBySource filters a full scan down to one source document.
func (s *QdrantStore) ChunksBySource(ctx context.Context, source string) ([]Chunk, error) {
	chunks, err := s.ScanAll(ctx, 0)
	if err != nil {
		return nil, err
	}
	var out []Chunk
	for _, c := range chunks {
		if c.Source() == source {
			out = append(out, c)
		}
	}
	return out, nil
}

// CollectionInfo reports collection statistics. A missing collection is not
// an error.
func (s *QdrantStore) CollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	resp, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &CollectionInfo{Name: s.collection, Status: StatusNotFound}, nil
		}
		return nil, fmt.Errorf("get collection %q: %w", s.collection, err)
	}

	info := resp.GetResult()
	return &CollectionInfo{
		Name:                s.collection,
		PointsCount:         info.GetPointsCount(),
		IndexedVectorsCount: info.GetIndexedVectorsCount(),
		Status:              strings.ToLower(info.GetStatus().String()),
	}, nil
}

// DeleteCollection drops the collection. The next operation re-creates it.
func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
		return fmt.Errorf("delete collection %q: %w", s.collection, err)
	}
	s.setEnsured(false)
	return nil
}

// HealthCheck probes the Qdrant service. Never returns an error.
func (s *QdrantStore) HealthCheck(ctx context.Context) bool {
	_, err := s.qdrant.HealthCheck(ctx, &pb.HealthCheckRequest{})
	return err == nil
}

// Close releases the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

var _ Store = (*QdrantStore)(nil)
