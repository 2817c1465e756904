// Package ltm implements the Long-Term Memory Store (spec §4.8): a
// user-scoped vector store of stable facts with importance weighting.
// The vector backend is Qdrant (single collection "agent_memory", cosine
// distance, dim 384); the ranking and near-duplicate logic here is backend
// agnostic and exercised against a fake in tests.
package ltm

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// CollectionName is the single Qdrant collection backing LTM (spec §6).
const CollectionName = "agent_memory"

// VectorSize is the embedding dimensionality (spec §3/§4.8).
const VectorSize = 384

// similarityThreshold is the near-duplicate cutoff used before a write
// prefers Update over Store (spec §4.5).
const similarityThreshold = 0.8

// relevanceThreshold and importanceFloor gate retrieval results (spec §4.8).
const (
	relevanceThreshold = 0.2
	importanceFloor    = 4
)

// Fact is a Long-Term Memory point (spec §3).
type Fact struct {
	ID         uint64
	UserEmail  string
	FactText   string
	Importance int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Vector     []float32
}

// Embedder produces a deterministic, pure vector embedding for a piece of
// text (spec §4.8: "the embedding function is pure and deterministic for
// testing").
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// collectionClient is the subset of vector-store operations ltm.Store
// depends on, implemented in production by a Qdrant-backed adapter
// (qdrant.go) and in tests by a fake.
type collectionClient interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, f Fact) error
	ScrollByUser(ctx context.Context, userEmail string, limit int) ([]Fact, error)
	Delete(ctx context.Context, id uint64) error
}

// Store is the Long-Term Memory Store.
type Store struct {
	coll     collectionClient
	embedder Embedder
	idFunc   func(userEmail, factText string, at time.Time) uint64
}

// New builds a Store over the given collection client and embedder.
func New(coll collectionClient, embedder Embedder) *Store {
	return &Store{coll: coll, embedder: embedder, idFunc: defaultID}
}

// EnsureCollection creates the collection if absent, or recreates it if an
// existing collection has the wrong vector size (spec §4.8/§6).
func (s *Store) EnsureCollection(ctx context.Context) error {
	return s.coll.EnsureCollection(ctx)
}

// Store inserts a new fact, unless a near-duplicate (cosine ≥ 0.8) already
// exists for this user, in which case it prefers Update (spec §4.5).
func (s *Store) Store(ctx context.Context, userEmail, factText string, importance int) error {
	if existing, err := s.FindSimilar(ctx, userEmail, factText, similarityThreshold); err == nil && existing != nil {
		return s.Update(ctx, userEmail, existing.FactText, factText, &importance)
	}
	vector, err := s.embedder.Embed(ctx, factText)
	if err != nil {
		return fmt.Errorf("ltm embed: %w", err)
	}
	now := time.Now()
	fact := Fact{
		ID:         s.idFunc(userEmail, factText, now),
		UserEmail:  userEmail,
		FactText:   factText,
		Importance: importance,
		CreatedAt:  now,
		Vector:     vector,
	}
	return s.coll.Upsert(ctx, fact)
}

// FindSimilar returns the highest-cosine fact above threshold for this
// user, or nil if none qualifies.
func (s *Store) FindSimilar(ctx context.Context, userEmail, factText string, threshold float64) (*Fact, error) {
	query, err := s.embedder.Embed(ctx, factText)
	if err != nil {
		return nil, fmt.Errorf("ltm embed: %w", err)
	}
	facts, err := s.coll.ScrollByUser(ctx, userEmail, 1000)
	if err != nil {
		return nil, fmt.Errorf("ltm scroll: %w", err)
	}
	var best *Fact
	bestScore := threshold
	for i := range facts {
		f := facts[i]
		if len(f.Vector) == 0 {
			continue
		}
		score := cosine(query, f.Vector)
		if score >= bestScore {
			bestScore = score
			best = &facts[i]
		}
	}
	return best, nil
}

// Update replaces oldText's fact with newText/newImportance for this user.
// If no existing fact matches oldText, Update behaves like Store.
func (s *Store) Update(ctx context.Context, userEmail, oldText, newText string, newImportance *int) error {
	facts, err := s.coll.ScrollByUser(ctx, userEmail, 1000)
	if err != nil {
		return fmt.Errorf("ltm scroll: %w", err)
	}
	var target *Fact
	for i := range facts {
		if facts[i].FactText == oldText {
			target = &facts[i]
			break
		}
	}
	importance := 3
	if newImportance != nil {
		importance = *newImportance
	} else if target != nil {
		importance = target.Importance
	}

	vector, err := s.embedder.Embed(ctx, newText)
	if err != nil {
		return fmt.Errorf("ltm embed: %w", err)
	}
	now := time.Now()
	fact := Fact{
		UserEmail:  userEmail,
		FactText:   newText,
		Importance: importance,
		UpdatedAt:  now,
		Vector:     vector,
	}
	if target != nil {
		fact.ID = target.ID
		fact.CreatedAt = target.CreatedAt
		if err := s.coll.Delete(ctx, target.ID); err != nil {
			return fmt.Errorf("ltm delete stale: %w", err)
		}
	} else {
		fact.ID = s.idFunc(userEmail, newText, now)
		fact.CreatedAt = now
	}
	return s.coll.Upsert(ctx, fact)
}

// Delete removes a fact by ID for a user.
func (s *Store) Delete(ctx context.Context, userEmail string, id uint64) error {
	return s.coll.Delete(ctx, id)
}

// GetRelevant retrieves the top_k most relevant fact texts for query under
// the ranking algorithm in spec §4.8:
//  1. scroll all points for user_email (bounded, 1000),
//  2. cosine-score each against the query embedding,
//  3. rank by 0.7*cosine + 0.3*(importance-1)/4,
//  4. keep final_score > 0.2 OR importance >= 4, return top_k fact_texts.
func (s *Store) GetRelevant(ctx context.Context, userEmail, query string, topK int) ([]string, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ltm embed: %w", err)
	}
	facts, err := s.coll.ScrollByUser(ctx, userEmail, 1000)
	if err != nil {
		return nil, fmt.Errorf("ltm scroll: %w", err)
	}

	type scored struct {
		fact  Fact
		score float64
	}
	var candidates []scored
	for _, f := range facts {
		var cos float64
		if len(f.Vector) > 0 {
			cos = cosine(queryVec, f.Vector)
		}
		score := 0.7*cos + 0.3*float64(f.Importance-1)/4
		if score > relevanceThreshold || f.Importance >= importanceFloor {
			candidates = append(candidates, scored{fact: f, score: score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]string, 0, topK)
	for _, c := range candidates[:topK] {
		out = append(out, c.fact.FactText)
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func defaultID(userEmail, factText string, at time.Time) uint64 {
	h := fnv64a(userEmail + factText + at.Format(time.RFC3339Nano))
	return h
}

// fnv64a is a small deterministic hash used for point IDs, in place of the
// reference implementation's md5-prefix-to-int scheme — Qdrant point IDs
// must be uint64 or UUID, so a wide non-cryptographic hash works as well and
// avoids pulling in md5 purely for an identifier.
func fnv64a(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	var h uint64 = offset64
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
