package sitemap

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/pkg/utils"
)

const (
	defaultMaxDocuments = 50
	maxGzipBytes        = 50 << 20
)

// Source walks robots.txt sitemaps and sitemap indexes breadth-first.
type Source struct {
	fetcher      repository.PageFetcher
	maxDocuments int
	logger       *zap.Logger
}

// NewSource creates a Source. maxDocuments caps sitemap documents fetched per site.
func NewSource(fetcher repository.PageFetcher, maxDocuments int, logger *zap.Logger) *Source {
	if maxDocuments <= 0 {
		maxDocuments = defaultMaxDocuments
	}
	return &Source{fetcher: fetcher, maxDocuments: maxDocuments, logger: logger}
}

// DiscoverURLs returns up to scanCap page URLs. Fetch failures of individual
// sitemaps are logged and skipped, so the error is only non-nil for a bad site URL.
func (s *Source) DiscoverURLs(ctx context.Context, siteURL string, scanCap int) ([]string, error) {
	origin := utils.Origin(siteURL)
	if origin == "" {
		return nil, nil
	}

	queue := s.seeds(ctx, origin)
	visited := make(map[string]bool)
	var pages []string

	for len(queue) > 0 && len(visited) < s.maxDocuments {
		if scanCap > 0 && len(pages) >= scanCap {
			break
		}
		if ctx.Err() != nil {
			return pages, nil
		}
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		page, err := s.fetcher.Fetch(ctx, current)
		if err != nil {
			s.logger.Debug("sitemap fetch failed, continuing", zap.String("url", current), zap.Error(err))
			continue
		}
		body := page.Body
		if strings.HasSuffix(strings.ToLower(current), ".gz") {
			if body, err = gunzip(body); err != nil {
				s.logger.Debug("sitemap gunzip failed, continuing", zap.String("url", current), zap.Error(err))
				continue
			}
		}

		children, urls, err := parseSitemapXML(body)
		if err != nil {
			s.logger.Debug("sitemap parse failed, continuing", zap.String("url", current), zap.Error(err))
			continue
		}
		queue = append(queue, children...)
		pages = append(pages, urls...)
	}

	if scanCap > 0 && len(pages) > scanCap {
		s.logger.Info("sitemap url count exceeds scan cap, truncating",
			zap.String("site", origin), zap.Int("found", len(pages)), zap.Int("cap", scanCap))
		pages = pages[:scanCap]
	}
	return pages, nil
}

// seeds returns sitemap locations from robots.txt followed by the conventional paths.
func (s *Source) seeds(ctx context.Context, origin string) []string {
	var seeds []string
	if page, err := s.fetcher.Fetch(ctx, origin+"/robots.txt"); err == nil {
		seeds = append(seeds, parseRobotsSitemaps(page.Body)...)
	}
	seeds = append(seeds, origin+"/sitemap.xml", origin+"/sitemap_index.xml")

	seen := make(map[string]bool, len(seeds))
	out := seeds[:0]
	for _, u := range seeds {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func parseRobotsSitemaps(body []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) > 8 && strings.EqualFold(line[:8], "sitemap:") {
			if u := strings.TrimSpace(line[8:]); u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}

func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, maxGzipBytes))
}

func parseSitemapXML(data []byte) ([]string, []string, error) {
	var index sitemapIndex
	if err := xml.Unmarshal(data, &index); err == nil && len(index.Sitemaps) > 0 {
		var links []string
		for _, sm := range index.Sitemaps {
			if loc := strings.TrimSpace(sm.Location); loc != "" {
				links = append(links, loc)
			}
		}
		return links, nil, nil
	}

	var set urlSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, nil, err
	}
	var pages []string
	for _, entry := range set.URLs {
		if loc := strings.TrimSpace(entry.Location); loc != "" {
			pages = append(pages, loc)
		}
	}
	return nil, pages, nil
}

type sitemapIndex struct {
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Location string `xml:"loc"`
}

type urlSet struct {
	URLs []urlEntry `xml:"url"`
}

type urlEntry struct {
	Location string `xml:"loc"`
}
