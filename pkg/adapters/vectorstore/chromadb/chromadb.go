// Package chromadb stores vectors in a Chroma server through its v1 REST API.
// Each namespace maps to one collection created with the l2 space.
package chromadb

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/cloudask/pkg/adapters/vectorstore"
)

// Config controls the ChromaDB adapter behavior.
//
// BaseURL: Chroma server base URL (e.g., http://localhost:8000). Defaults to CHROMADB_URL or http://localhost:8000.
// Collection: Single collection name to use for all items. If empty, per-namespace collections are used.
// CreateIfMissing: Whether to create collections automatically when missing. Default true.
type Config struct {
	BaseURL         string
	Collection      string
	CreateIfMissing bool
	Timeout         time.Duration
}

type Store struct {
	client     *resty.Client
	useSingle  string
	autoCreate bool

	mu       sync.RWMutex
	nameToID map[string]string // cache: collection name -> id
}

// Register this provider under name "chromadb".
func init() { _ = vectorstore.Register("chromadb", Factory) }

// Factory constructs a ChromaDB-backed VectorStore. Config keys:
// - base_url (string)
// - collection (string)
// - create_if_missing (bool)
// - timeout (time.Duration)
func Factory(ctx context.Context, cfg map[string]any) (vectorstore.VectorStore, error) {
	c := Config{BaseURL: os.Getenv("CHROMADB_URL"), CreateIfMissing: true, Timeout: 30 * time.Second}
	if v, ok := cfg["base_url"].(string); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := cfg["collection"].(string); ok {
		c.Collection = v
	}
	if v, ok := cfg["create_if_missing"].(bool); ok {
		c.CreateIfMissing = v
	}
	if v, ok := cfg["timeout"].(time.Duration); ok && v > 0 {
		c.Timeout = v
	}
	return New(c)
}

// New returns a Store for c.
func New(c Config) (*Store, error) {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8000"
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return nil, fmt.Errorf("chromadb: invalid base_url: %w", err)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(c.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(c.Timeout).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))
	return &Store{
		client:     client,
		useSingle:  c.Collection,
		autoCreate: c.CreateIfMissing,
		nameToID:   make(map[string]string),
	}, nil
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	// Group by collection name, keeping first-seen order
	groups := map[string][]vectorstore.Item{}
	var order []string
	for _, it := range items {
		coll := s.resolveCollectionName(it.Namespace)
		if _, ok := groups[coll]; !ok {
			order = append(order, coll)
		}
		groups[coll] = append(groups[coll], it)
	}
	for _, coll := range order {
		batch := groups[coll]
		id, err := s.ensureCollection(ctx, coll)
		if err != nil {
			return err
		}
		payload := upsertRequest{
			IDs:        make([]string, 0, len(batch)),
			Embeddings: make([][]float32, 0, len(batch)),
			Metadatas:  make([]map[string]any, 0, len(batch)),
		}
		for _, it := range batch {
			payload.IDs = append(payload.IDs, it.ID)
			payload.Embeddings = append(payload.Embeddings, []float32(it.Vector))
			md := it.Metadata
			if md == nil {
				md = map[string]any{}
			}
			payload.Metadatas = append(payload.Metadatas, md)
		}
		if err := s.post(ctx, "/api/v1/collections/"+id+"/upsert", payload, nil); err != nil {
			return err
		}
	}
	return nil
}

// Query returns up to k matches. Chroma reports squared L2 for the l2 space;
// Distance carries the Euclidean distance.
func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	coll := s.resolveCollectionName(filter.Namespace)
	id, err := s.ensureCollection(ctx, coll)
	if err != nil {
		return nil, err
	}
	payload := queryRequest{
		QueryEmbeddings: [][]float32{[]float32(query)},
		NResults:        k,
		Where:           filter.Equals,
		Include:         []string{"distances", "metadatas"},
	}
	var resp queryResponse
	if err := s.post(ctx, "/api/v1/collections/"+id+"/query", payload, &resp); err != nil {
		return nil, err
	}
	// Response fields are nested per query; we sent 1 query, so index 0.
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	ids := resp.IDs[0]
	var dists []float32
	if len(resp.Distances) > 0 {
		dists = resp.Distances[0]
	}
	var metas []map[string]any
	if len(resp.Metadatas) > 0 {
		metas = resp.Metadatas[0]
	}
	out := make([]vectorstore.Match, 0, len(ids))
	for i := range ids {
		var md map[string]any
		if i < len(metas) {
			md = metas[i]
		}
		var d float32
		if i < len(dists) && dists[i] > 0 {
			d = float32(math.Sqrt(float64(dists[i])))
		}
		out = append(out, vectorstore.Match{
			Item:     vectorstore.Item{ID: ids[i], Namespace: filter.Namespace, Metadata: md},
			Score:    -d,
			Distance: d,
		})
	}
	return out, nil
}

// DeleteNamespace drops the namespace's collection. It is a no-op when a
// single shared collection is configured.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	if s.useSingle != "" {
		return nil
	}
	name := s.resolveCollectionName(namespace)
	resp, err := s.client.R().SetContext(ctx).Delete("/api/v1/collections/" + url.PathEscape(name))
	if err != nil {
		return fmt.Errorf("chromadb: DELETE collection %s: %w", name, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("chromadb: DELETE collection %s => %s", name, resp.Status())
	}
	s.mu.Lock()
	delete(s.nameToID, name)
	s.mu.Unlock()
	return nil
}

// Helpers

func (s *Store) resolveCollectionName(namespace string) string {
	if s.useSingle != "" {
		return s.useSingle
	}
	if namespace == "" {
		return "default"
	}
	return namespace
}

func (s *Store) ensureCollection(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if id, ok := s.nameToID[name]; ok {
		s.mu.RUnlock()
		return id, nil
	}
	s.mu.RUnlock()

	var list []collection
	resp, err := s.client.R().SetContext(ctx).SetResult(&list).Get("/api/v1/collections")
	if err != nil {
		return "", fmt.Errorf("chromadb: list collections: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("chromadb: GET /api/v1/collections => %s", resp.Status())
	}
	for _, c := range list {
		if c.Name == name {
			s.cache(name, c.ID)
			return c.ID, nil
		}
	}
	if !s.autoCreate {
		return "", fmt.Errorf("chromadb: collection %q not found", name)
	}
	var created collection
	req := createCollectionRequest{
		Name:        name,
		Metadata:    map[string]any{"hnsw:space": "l2"},
		GetOrCreate: true,
	}
	if err := s.post(ctx, "/api/v1/collections", req, &created); err != nil {
		return "", err
	}
	s.cache(name, created.ID)
	return created.ID, nil
}

func (s *Store) cache(name, id string) {
	s.mu.Lock()
	s.nameToID[name] = id
	s.mu.Unlock()
}

func (s *Store) post(ctx context.Context, p string, body any, out any) error {
	r := s.client.R().SetContext(ctx).SetBody(body)
	if out != nil {
		r = r.SetResult(out)
	}
	resp, err := r.Post(p)
	if err != nil {
		return fmt.Errorf("chromadb: POST %s: %w", p, err)
	}
	if resp.IsError() {
		return fmt.Errorf("chromadb: POST %s => %s", p, resp.Status())
	}
	return nil
}

// Wire types (minimal shapes of the v1 API)
type collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createCollectionRequest struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create"`
}

type upsertRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Metadatas  []map[string]any `json:"metadatas"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include,omitempty"`
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float32        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
}
