package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"testing"

	"github.com/aretw0/regions/pkg/adapters/memory"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/persistence/middleware"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	surface = "main"
	tool    = domain.DefaultTool
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunRecordStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	_, isSplicer := secure.(ports.Splicer)
	assert.True(t, isSplicer)

	rec := domain.NewRecord(map[string]any{"uid": "u1", "points": 12})
	require.NoError(t, secure.AddRecord(ctx, surface, tool, rec))

	// 1. The underlying store only sees the envelope
	raw, err := underlying.Records(ctx, surface, tool)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.NotContains(t, raw[0].Data, "uid")
	assert.Contains(t, raw[0].Data, middleware.EnvelopeField)
	assert.True(t, raw[0].Visible)

	// 2. Reads through the middleware are decrypted
	got, err := secure.Records(ctx, surface, tool)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].Data["uid"])
	assert.Equal(t, json.Number("12"), got[0].Data["points"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	storeOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, storeOld.AddRecord(ctx, surface, tool, domain.NewRecord(map[string]any{"uid": "old"})))

	storeNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	got, err := storeNew.Records(ctx, surface, tool)
	require.NoError(t, err)
	assert.Equal(t, "old", got[0].Data["uid"])

	// Re-encrypt with the new key; the old key alone can no longer read it.
	require.NoError(t, storeNew.ReplaceRecord(ctx, surface, tool, 0, domain.NewRecord(map[string]any{"uid": "new"})))
	_, err = storeOld.Records(ctx, surface, tool)
	assert.Error(t, err)
}

func TestEncryptionMiddleware_RejectsPlainRecords(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	require.NoError(t, underlying.AddRecord(ctx, surface, tool, domain.NewRecord(map[string]any{"uid": "plain"})))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.Records(ctx, surface, tool)
	assert.ErrorContains(t, err, "missing encrypted data envelope")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)
	got, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = middleware.ParseKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
