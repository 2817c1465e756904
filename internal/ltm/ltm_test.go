package ltm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCollection is an in-memory stand-in for the Qdrant-backed
// collectionClient, used so Store's ranking/dedup logic is tested without a
// live Qdrant instance.
type fakeCollection struct {
	facts    map[uint64]Fact
	nextID   uint64
	ensured  bool
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{facts: map[uint64]Fact{}}
}

func (f *fakeCollection) EnsureCollection(context.Context) error {
	f.ensured = true
	return nil
}

func (f *fakeCollection) Upsert(_ context.Context, fact Fact) error {
	f.facts[fact.ID] = fact
	return nil
}

func (f *fakeCollection) ScrollByUser(_ context.Context, userEmail string, _ int) ([]Fact, error) {
	var out []Fact
	for _, fact := range f.facts {
		if fact.UserEmail == userEmail {
			out = append(out, fact)
		}
	}
	return out, nil
}

func (f *fakeCollection) Delete(_ context.Context, id uint64) error {
	delete(f.facts, id)
	return nil
}

func TestStore_Store_CreatesNewFact(t *testing.T) {
	coll := newFakeCollection()
	store := New(coll, DeterministicEmbedder{})

	require.NoError(t, store.Store(context.Background(), "a@b.com", "likes aisle seats", 3))

	facts, err := coll.ScrollByUser(context.Background(), "a@b.com", 100)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "likes aisle seats", facts[0].FactText)
	assert.Equal(t, 3, facts[0].Importance)
}

func TestStore_Store_NearDuplicateUpdatesInstead(t *testing.T) {
	coll := newFakeCollection()
	store := New(coll, DeterministicEmbedder{})
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "a@b.com", "likes aisle seats", 3))
	require.NoError(t, store.Store(ctx, "a@b.com", "likes aisle seats", 5))

	facts, err := coll.ScrollByUser(ctx, "a@b.com", 100)
	require.NoError(t, err)
	require.Len(t, facts, 1, "identical text should dedup to a single fact")
	assert.Equal(t, 5, facts[0].Importance)
}

func TestStore_FindSimilar_NoMatchBelowThreshold(t *testing.T) {
	coll := newFakeCollection()
	store := New(coll, DeterministicEmbedder{})
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "a@b.com", "prefers window seats on long flights", 2))

	match, err := store.FindSimilar(ctx, "a@b.com", "allergic to shellfish", 0.8)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestStore_Update_ReplacesExistingFact(t *testing.T) {
	coll := newFakeCollection()
	store := New(coll, DeterministicEmbedder{})
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "a@b.com", "vegetarian", 4))
	newImportance := 5
	require.NoError(t, store.Update(ctx, "a@b.com", "vegetarian", "vegan", &newImportance))

	facts, err := coll.ScrollByUser(ctx, "a@b.com", 100)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "vegan", facts[0].FactText)
	assert.Equal(t, 5, facts[0].Importance)
}

func TestStore_Delete_RemovesFact(t *testing.T) {
	coll := newFakeCollection()
	store := New(coll, DeterministicEmbedder{})
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "a@b.com", "vegetarian", 4))
	facts, err := coll.ScrollByUser(ctx, "a@b.com", 100)
	require.NoError(t, err)
	require.Len(t, facts, 1)

	require.NoError(t, store.Delete(ctx, "a@b.com", facts[0].ID))

	facts, err = coll.ScrollByUser(ctx, "a@b.com", 100)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestStore_GetRelevant_RanksAndFiltersByScore(t *testing.T) {
	coll := newFakeCollection()
	store := New(coll, DeterministicEmbedder{})
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "a@b.com", "always books aisle seats on flights", 5))
	require.NoError(t, store.Store(ctx, "a@b.com", "once mentioned liking a particular hotel lobby", 1))

	results, err := store.GetRelevant(ctx, "a@b.com", "seat preference for flights", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results, "always books aisle seats on flights", "importance 5 fact should always be admitted")
}

func TestStore_GetRelevant_HighImportanceSurvivesLowSimilarity(t *testing.T) {
	coll := newFakeCollection()
	store := New(coll, DeterministicEmbedder{})
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "a@b.com", "severe peanut allergy, always flag to airline", 5))

	results, err := store.GetRelevant(ctx, "a@b.com", "completely unrelated query about currency conversion", 5)
	require.NoError(t, err)
	require.Len(t, results, 1, "importance >= 4 should admit the fact regardless of low cosine score")
}

func TestStore_GetRelevant_ScopesToUser(t *testing.T) {
	coll := newFakeCollection()
	store := New(coll, DeterministicEmbedder{})
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "a@b.com", "always books aisle seats on flights", 5))
	require.NoError(t, store.Store(ctx, "c@d.com", "always books aisle seats on flights", 5))

	results, err := store.GetRelevant(ctx, "a@b.com", "seat preference", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
