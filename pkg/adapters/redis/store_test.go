package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/regions/internal/runtime"
	"github.com/aretw0/regions/pkg/adapters/memory"
	"github.com/aretw0/regions/pkg/adapters/redis"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunRecordStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Second), redis.WithPrefix("ttl:"))
	ctx := context.Background()

	require.NoError(t, store.AddRecord(ctx, "s", "t", domain.NewRecord(map[string]any{"uid": "a"})))
	assert.True(t, mr.Exists("ttl:store:s:t"))

	mr.FastForward(2 * time.Second)

	recs, err := store.Records(ctx, "s", "t")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRedisStore_PreservesNumbers(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.AddRecord(ctx, "s", "t", domain.NewRecord(map[string]any{"id": 9007199254740993})))
	recs, err := store.Records(ctx, "s", "t")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, json.Number("9007199254740993"), recs[0].Data["id"])
}

// A workspace rendering with the memory engine can keep its records in Redis.
func TestRedisStore_BacksWorkspace(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	engine := memory.NewEngine()
	engine.AddImage("img", memory.PNG(2, 2))
	ws, err := runtime.NewWorkspace(engine,
		runtime.WithRecordStore(store),
		runtime.WithImageSource(engine),
		runtime.WithSettleWindow(time.Hour),
	)
	require.NoError(t, err)
	defer ws.Close()

	_, err = ws.LoadImage(ctx, "img")
	require.NoError(t, err)

	rec := domain.NewRecord(map[string]any{"points": 3})
	require.NoError(t, store.AddRecord(ctx, "main", domain.DefaultTool, rec))
	ws.Complete(domain.CompletionEvent{Tool: domain.DefaultTool, Record: rec, Index: 0})
	ws.Flush()

	labels := ws.Labels()
	require.Len(t, labels, 1)

	ok, err := ws.Delete(ctx, labels[0].UID)
	require.NoError(t, err)
	assert.True(t, ok)

	recs, err := store.Records(ctx, "main", domain.DefaultTool)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
