package canonical_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/canonical"
)

const exampleShops = `shops:
  - name: example
    host: shop.example.com
    aliases: [example.com]
    product_pattern: '^/p/(\d+)$'
    canonical_path: /p/$1
`

const renamedShops = `shops:
  - name: example-v2
    host: shop.example.com
    product_pattern: '^/p/(\d+)$'
    canonical_path: /p/$1
`

func TestLoadShopsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shops.yml")
	require.NoError(t, os.WriteFile(path, []byte(exampleShops), 0o600))

	shops, err := canonical.LoadShopsFile(path)
	require.NoError(t, err)
	require.Len(t, shops, 1)

	r, err := canonical.NewRegistry(shops)
	require.NoError(t, err)

	id, err := r.Canonicalize("http://example.com/p/77?ref=home")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/p/77", id.URL)
}

func TestLoadShopsFile_Empty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shops.yml")
	require.NoError(t, os.WriteFile(path, []byte("shops: []\n"), 0o600))

	_, err := canonical.LoadShopsFile(path)
	require.Error(t, err)
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shops.yml")
	require.NoError(t, os.WriteFile(path, []byte(exampleShops), 0o600))

	shops, err := canonical.LoadShopsFile(path)
	require.NoError(t, err)
	r, err := canonical.NewRegistry(shops)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, r.Watch(ctx, path, infralogger.NewNop()))

	require.NoError(t, os.WriteFile(path, []byte(renamedShops), 0o600))

	assert.Eventually(t, func() bool {
		names := r.Shops()
		return len(names) == 1 && names[0] == "example-v2"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatch_BadFileKeepsPreviousTable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shops.yml")
	require.NoError(t, os.WriteFile(path, []byte(exampleShops), 0o600))

	shops, err := canonical.LoadShopsFile(path)
	require.NoError(t, err)
	r, err := canonical.NewRegistry(shops)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, r.Watch(ctx, path, infralogger.NewNop()))

	require.NoError(t, os.WriteFile(path, []byte("shops: [\n"), 0o600))
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, []string{"example"}, r.Shops())
}
