package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/wilhg/cloudask/pkg/adapters/vectorstore"
)

// Store is an exact, flat in-memory VectorStore. Queries scan every item in
// the namespace; ties are broken by insertion order.
type Store struct {
	mu     sync.RWMutex
	metric string
	byNS   map[string]*bucket
}

type bucket struct {
	items []vectorstore.Item
	pos   map[string]int // id -> index in items
}

// Option configures a Store.
type Option func(*Store)

// WithMetric selects vectorstore.MetricL2 (default) or vectorstore.MetricCosine.
func WithMetric(m string) Option { return func(s *Store) { s.metric = m } }

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{metric: vectorstore.MetricL2, byNS: make(map[string]*bucket)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func nsOrDefault(ns string) string {
	if ns == "" {
		return "default"
	}
	return ns
}

// Upsert inserts items, replacing existing IDs in place.
func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	for _, it := range items {
		if it.ID == "" {
			return errors.New("memory vectorstore: empty id")
		}
		if len(it.Vector) == 0 {
			return errors.New("memory vectorstore: empty vector")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		ns := nsOrDefault(it.Namespace)
		b, ok := s.byNS[ns]
		if !ok {
			b = &bucket{pos: map[string]int{}}
			s.byNS[ns] = b
		}
		if i, ok := b.pos[it.ID]; ok {
			b.items[i] = it
			continue
		}
		b.pos[it.ID] = len(b.items)
		b.items = append(b.items, it)
	}
	return nil
}

// Len returns the number of items in namespace.
func (s *Store) Len(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b := s.byNS[nsOrDefault(namespace)]; b != nil {
		return len(b.items)
	}
	return 0
}

// DeleteNamespace drops every item in namespace.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byNS, nsOrDefault(namespace))
	return nil
}

// Query returns up to k matches ordered by ascending distance. k <= 0 returns all.
func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if len(query) == 0 {
		return nil, errors.New("memory vectorstore: empty query vector")
	}
	var qnorm float64
	if s.metric == vectorstore.MetricCosine {
		qnorm = math.Sqrt(dot(query, query))
		if qnorm == 0 {
			return nil, errors.New("memory vectorstore: zero-norm query vector")
		}
	} else if s.metric != vectorstore.MetricL2 {
		return nil, fmt.Errorf("memory vectorstore: unknown metric %q", s.metric)
	}

	s.mu.RLock()
	var matches []vectorstore.Match
	if b := s.byNS[nsOrDefault(filter.Namespace)]; b != nil {
		matches = make([]vectorstore.Match, 0, len(b.items))
		for _, it := range b.items {
			if !metaEquals(it.Metadata, filter.Equals) || len(it.Vector) != len(query) {
				continue
			}
			var m vectorstore.Match
			if s.metric == vectorstore.MetricCosine {
				sim := cosine(query, it.Vector, qnorm)
				m = vectorstore.Match{Item: it, Score: sim, Distance: 1 - sim}
			} else {
				d := float32(math.Sqrt(squaredL2(query, it.Vector)))
				m = vectorstore.Match{Item: it, Score: -d, Distance: d}
			}
			matches = append(matches, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func metaEquals(have map[string]any, want map[string]any) bool {
	if len(want) == 0 {
		return true
	}
	if have == nil {
		return false
	}
	for k, v := range want {
		if hv, ok := have[k]; !ok || hv != v {
			return false
		}
	}
	return true
}

func squaredL2(a, b vectorstore.Vector) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return s
}

func cosine(a, b vectorstore.Vector, qnorm float64) float32 {
	denom := qnorm * math.Sqrt(dot(b, b))
	if denom == 0 {
		return 0
	}
	return float32(dot(a, b) / denom)
}

func dot(a, b vectorstore.Vector) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Factory builds a memory store; cfg key metric selects l2 or cosine.
func Factory(ctx context.Context, cfg map[string]any) (vectorstore.VectorStore, error) {
	metric := vectorstore.MetricL2
	if v, ok := cfg["metric"].(string); ok && v != "" {
		metric = v
	}
	if metric != vectorstore.MetricL2 && metric != vectorstore.MetricCosine {
		return nil, fmt.Errorf("memory vectorstore: unknown metric %q", metric)
	}
	return New(WithMetric(metric)), nil
}

func init() {
	_ = vectorstore.Register("memory", Factory)
}
