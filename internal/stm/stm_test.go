package stm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is a minimal in-memory stand-in for *redis.Client satisfying
// redisClient, used so store tests don't need a live Redis instance.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(context.Background())
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	}
	cmd := redis.NewStatusCmd(context.Background())
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd := redis.NewIntCmd(context.Background())
	cmd.SetVal(n)
	return cmd
}

type stubSummarizer struct{ called int }

func (s *stubSummarizer) Summarize(context.Context, []Message) (string, error) {
	s.called++
	return "summary text", nil
}

func TestStore_AddMessage_BoundsWindowAndSummarizes(t *testing.T) {
	summarizer := &stubSummarizer{}
	store := newStore(newFakeRedis(), summarizer)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		role := "user"
		if i%2 == 1 {
			role = "agent"
		}
		require.NoError(t, store.AddMessage(ctx, "sess-1", "a@b.com", role, "message"))
	}

	rec, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.LessOrEqual(t, len(rec.LastMessages), 10)
	assert.Equal(t, "summary text", rec.Summary)
	assert.Equal(t, 2, summarizer.called)
}

func TestStore_AddMessage_SortsByTimestamp(t *testing.T) {
	store := newStore(newFakeRedis(), nil)
	ctx := context.Background()

	require.NoError(t, store.AddMessage(ctx, "sess-2", "a@b.com", "user", "first"))
	require.NoError(t, store.AddMessage(ctx, "sess-2", "a@b.com", "agent", "second"))

	rec, err := store.Get(ctx, "sess-2")
	require.NoError(t, err)
	require.Len(t, rec.LastMessages, 2)
	assert.True(t, rec.LastMessages[0].Timestamp.Before(rec.LastMessages[1].Timestamp) ||
		rec.LastMessages[0].Timestamp.Equal(rec.LastMessages[1].Timestamp))
}

func TestStore_AddMessage_RejectsInvalidRole(t *testing.T) {
	store := newStore(newFakeRedis(), nil)

	err := store.AddMessage(context.Background(), "sess-3", "a@b.com", "system", "oops")

	assert.Error(t, err)
}

func TestStore_Clear(t *testing.T) {
	store := newStore(newFakeRedis(), nil)
	ctx := context.Background()
	require.NoError(t, store.AddMessage(ctx, "sess-4", "a@b.com", "user", "hi"))

	require.NoError(t, store.Clear(ctx, "sess-4"))

	rec, err := store.Get(ctx, "sess-4")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
