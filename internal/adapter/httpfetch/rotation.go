package httpfetch

import (
	"math/rand"
	"net/http"
	"net/url"
	"sync"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// Rotation hands out proxies in round-robin order and user agents at random.
type Rotation struct {
	proxies    []*url.URL
	userAgents []string
	mu         sync.Mutex
	proxyIndex int
	rnd        *rand.Rand
}

// NewRotation builds a Rotation. Unparseable proxy URLs are skipped; an empty
// user agent list falls back to a small built-in set.
func NewRotation(proxies, userAgents []string) *Rotation {
	r := &Rotation{
		userAgents: userAgents,
		rnd:        rand.New(rand.NewSource(rand.Int63())),
	}
	if len(r.userAgents) == 0 {
		r.userAgents = defaultUserAgents
	}
	for _, p := range proxies {
		if u, err := url.Parse(p); err == nil && u.Host != "" {
			r.proxies = append(r.proxies, u)
		}
	}
	return r
}

// Proxy returns the next proxy, or nil when none are configured. Its signature
// fits http.Transport.Proxy.
func (r *Rotation) Proxy(_ *http.Request) (*url.URL, error) {
	if len(r.proxies) == 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.proxies[r.proxyIndex]
	r.proxyIndex = (r.proxyIndex + 1) % len(r.proxies)
	return p, nil
}

// NextProxy returns the next proxy as a string, or "".
func (r *Rotation) NextProxy() string {
	p, _ := r.Proxy(nil)
	if p == nil {
		return ""
	}
	return p.String()
}

// UserAgent returns a random user agent string.
func (r *Rotation) UserAgent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userAgents[r.rnd.Intn(len(r.userAgents))]
}
