package canonical_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/price-tracker/internal/canonical"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
)

func newRegistry(t *testing.T) *canonical.Registry {
	t.Helper()
	r, err := canonical.NewRegistry(canonical.DefaultShops())
	require.NoError(t, err)
	return r
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "amazon slug and ref stripped",
			in:   "https://www.amazon.com/Some-Gadget/dp/B08N5WRWNW/ref=sr_1_1?keywords=gadget&tag=aff-20",
			want: "https://www.amazon.com/dp/B08N5WRWNW",
		},
		{
			name: "amazon alias host, http and port",
			in:   "http://Smile.Amazon.com:80/gp/product/B08N5WRWNW",
			want: "https://www.amazon.com/dp/B08N5WRWNW",
		},
		{
			name: "ebay mobile alias",
			in:   "https://m.ebay.com/itm/vintage-camera/123456789012?hash=item1",
			want: "https://www.ebay.com/itm/123456789012",
		},
		{
			name: "ozon keeps trailing slash form",
			in:   "ozon.ru/product/smartfon-x-123456?from=share#reviews",
			want: "https://www.ozon.ru/product/smartfon-x-123456/",
		},
		{
			name: "wildberries short domain",
			in:   "https://wb.ru/catalog/1234567/detail.aspx?targetUrl=GP",
			want: "https://www.wildberries.ru/catalog/1234567/detail.aspx",
		},
		{
			name: "non product page only cleaned",
			in:   "https://www.ozon.ru/category//phones/?page=2",
			want: "https://www.ozon.ru/category/phones",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := r.Normalize(tt.in)
			require.NoError(t, err)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Errors(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "   ", canonical.ErrInvalidURL},
		{"ftp scheme", "ftp://www.amazon.com/dp/B08N5WRWNW", canonical.ErrInvalidURL},
		{"no host", "https:///dp/B08N5WRWNW", canonical.ErrInvalidURL},
		{"unparseable", "https://www.amazon.com/%zz", canonical.ErrInvalidURL},
		{"unknown shop", "https://shop.example.com/item/1", canonical.ErrUnsupportedShop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := r.Normalize(tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIsSingleProductPage(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	require.NoError(t, r.IsSingleProductPage("https://www.amazon.com/dp/B08N5WRWNW"))
	require.NoError(t, r.IsSingleProductPage("https://www.ozon.ru/product/smartfon-x-123456/"))

	for _, listing := range []string{
		"https://www.amazon.com/s?k=headphones",
		"https://www.ebay.com/sch/i.html?_nkw=camera",
		"https://www.ozon.ru/category/smartfony-15502/",
		"https://www.wildberries.ru/catalog/elektronika",
	} {
		err := r.IsSingleProductPage(listing)
		assert.ErrorIs(t, err, canonical.ErrNotASingleProductURL, listing)
	}
}

func TestCanonicalize_AliasesShareIdentity(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	variants := []string{
		"https://www.amazon.com/dp/B08N5WRWNW",
		"amazon.com/dp/B08N5WRWNW/",
		"https://m.amazon.com/Gadget/dp/B08N5WRWNW?psc=1&utm_source=x",
		"HTTP://SMILE.AMAZON.COM/gp/product/B08N5WRWNW#top",
	}

	first, err := r.Canonicalize(variants[0])
	require.NoError(t, err)
	assert.Equal(t, "amazon", first.Shop)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), first.Hash)
	assert.Equal(t, canonical.IdentityHash(first.URL), first.Hash)

	for _, v := range variants[1:] {
		got, err := r.Canonicalize(v)
		require.NoError(t, err, v)
		assert.Equal(t, first, got, v)
	}
}

func TestCanonicalize_DistinctProductsDiffer(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)

	a, err := r.Canonicalize("https://www.ebay.com/itm/111")
	require.NoError(t, err)
	b, err := r.Canonicalize("https://www.ebay.com/itm/112")
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestKeepQuery(t *testing.T) {
	t.Parallel()

	r, err := canonical.NewRegistry([]canonical.Shop{{
		Name:           "example",
		Host:           "shop.example.com",
		ProductPattern: `^/item$`,
		CanonicalPath:  "/item",
		KeepQuery:      []string{"id", "variant"},
	}})
	require.NoError(t, err)

	got, err := r.Normalize("https://shop.example.com/item?variant=red&utm_campaign=x&id=42")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/item?id=42&variant=red", got)
}

func TestNewRegistry_RejectsDuplicateHost(t *testing.T) {
	t.Parallel()

	shops := canonical.DefaultShops()
	shops[1].Aliases = append(shops[1].Aliases, "amazon.com")

	_, err := canonical.NewRegistry(shops)
	require.Error(t, err)
}

func TestAsValidationError(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)
	_, err := r.Canonicalize("https://www.amazon.com/s?k=x")

	var vErr *domain.ValidationError
	require.True(t, errors.As(canonical.AsValidationError("url", err), &vErr))
	assert.Equal(t, domain.CodeNotASingleProductURL, vErr.Code)
	assert.False(t, vErr.Malformed())
}
