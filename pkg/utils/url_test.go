package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"drops fragment", "https://Shop.Test/products/a#reviews", "https://shop.test/products/a"},
		{"drops tracking params", "https://shop.test/p/1?utm_source=x&color=red", "https://shop.test/p/1?color=red"},
		{"trims trailing slash", "https://shop.test/products/a/", "https://shop.test/products/a"},
		{"keeps root", "https://shop.test/", "https://shop.test/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSameSite(t *testing.T) {
	assert.True(t, SameSite("https://www.brand.test/a", "https://brand.test/b"))
	assert.False(t, SameSite("https://brand.test/a", "https://cdn.other.test/b"))
	assert.False(t, SameSite("not a url", "https://brand.test"))
}

func TestOriginAndAbsolute(t *testing.T) {
	assert.Equal(t, "https://brand.test", Origin("https://Brand.test/some/path?q=1"))
	assert.Equal(t, "", Origin("::::"))

	base, err := url.Parse("https://brand.test/collections/all")
	require.NoError(t, err)
	abs, err := ToAbsoluteURL(base, "/products/tee")
	require.NoError(t, err)
	assert.Equal(t, "https://brand.test/products/tee", abs)
}

func TestHashURLIsStable(t *testing.T) {
	assert.Equal(t, HashURL("https://brand.test/p/1"), HashURL("https://brand.test/p/1"))
	assert.Len(t, HashURL("x"), 64)
}
