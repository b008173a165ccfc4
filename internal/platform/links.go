package platform

import (
	"net/url"
	"path"
	"strings"
)

var productPathTokens = []string{"/product/", "/products/", "/p/", "/item/", "/items/", "/dp/", "/produkt/", "/produit/"}

var excludedPathTokens = []string{
	"/blog", "/news", "/pages/", "/page/", "/cart", "/account", "/login", "/checkout",
	"/search", "/policies/", "/policy", "/legal", "/faq", "/contact", "/tag/", "/tags/",
	"/wp-admin", "/wp-login", "/cdn-cgi/",
}

var excludedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": true,
	".pdf": true, ".css": true, ".js": true, ".xml": true, ".json": true, ".txt": true,
}

// IsLikelyProductURL applies path heuristics for product detail pages.
func IsLikelyProductURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	p := strings.ToLower(u.Path)
	if p == "" || p == "/" || IsExcludedURL(raw) {
		return false
	}
	for _, tok := range productPathTokens {
		if i := strings.Index(p, tok); i >= 0 && len(strings.Trim(p[i+len(tok):], "/")) > 0 {
			return true
		}
	}
	if i := strings.Index(p, "/shop/"); i >= 0 {
		rest := strings.Trim(p[i+len("/shop/"):], "/")
		return rest != "" && strings.Contains(rest, "-")
	}
	// Slugs like /linen-shirt-p-1234.html used by several custom storefronts.
	return strings.Contains(p, "-p-") || (strings.HasSuffix(p, ".html") && strings.Count(path.Base(p), "-") >= 2)
}

// IsExcludedURL reports paths that are never product pages, such as blog
// posts, account pages and static assets.
func IsExcludedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	if excludedExtensions[path.Ext(p)] {
		return true
	}
	for _, tok := range excludedPathTokens {
		if strings.Contains(p, tok) {
			return true
		}
	}
	return false
}

// IsListingURL reports collection/category pages worth one level of link discovery.
func IsListingURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, tok := range []string{"/collections/", "/collection/", "/category/", "/categories/", "/shop", "/c/"} {
		if strings.Contains(p, tok) {
			return true
		}
	}
	return false
}
