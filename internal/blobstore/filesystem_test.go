package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stratumhq/stratum/internal/record/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStoreRoundTrip(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	payload := []byte(`{"id":"rec-1","amount":12.5}`)
	size, err := store.Put(ctx, "billing-cold", "tier3/2024/06/01/cust-1/rec-1.json", payload, map[string]string{"storage_tier": "tier3"})
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), size)

	data, err := store.Get(ctx, "billing-cold", "tier3/2024/06/01/cust-1/rec-1.json")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	require.NoError(t, store.Delete(ctx, "billing-cold", "tier3/2024/06/01/cust-1/rec-1.json"))
	_, err = store.Get(ctx, "billing-cold", "tier3/2024/06/01/cust-1/rec-1.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "billing-cold", "tier3/2024/06/01/cust-1/rec-1.json"))
}

func TestFilesystemStoreGetMissing(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "billing-hot", "nope.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFilesystemStoreLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "billing-hot", "tier2/a/b.json", []byte("x"), nil)
	require.NoError(t, err)

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		if !info.IsDir() {
			assert.False(t, strings.Contains(info.Name(), ".tmp-"), "temp file left behind: %s", path)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRedisValueFraming(t *testing.T) {
	compressible := []byte(strings.Repeat(`{"id":"rec"}`, 50))
	framed := frameValue(compressible)
	assert.Equal(t, byte(redisFrameSnappy), framed[0])

	out, err := unframeValue(framed)
	require.NoError(t, err)
	assert.Equal(t, compressible, out)

	tiny := []byte("x")
	framedTiny := frameValue(tiny)
	assert.Equal(t, byte(redisFrameRaw), framedTiny[0])
	outTiny, err := unframeValue(framedTiny)
	require.NoError(t, err)
	assert.Equal(t, tiny, outTiny)

	_, err = unframeValue([]byte{0x7f, 0x01})
	assert.Error(t, err)
}
