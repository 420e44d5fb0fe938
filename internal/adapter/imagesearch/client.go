// Package imagesearch queries the emoticon source site and turns its result
// page into domain.SearchResult values, inlining small images as data URIs.
package imagesearch

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/emoticon-relay/internal/adapter/observability"
	"github.com/fairyhunter13/emoticon-relay/internal/config"
	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

const provider = "emoticon_source"

// Client implements domain.ImageSearcher against a fabiaoqing-style site.
type Client struct {
	baseURL    string
	referer    string
	userAgent  string
	pageHC     *http.Client
	imageHC    *http.Client
	retry      config.SearchRetryConfig
	maxResults int
	inlineMax  int64
	sleep      func(ctx domain.Context, d time.Duration) error
}

// New builds a search client from cfg.
func New(cfg config.Config) *Client {
	base := strings.TrimRight(cfg.EmoticonSourceURL, "/")
	transport := observability.NewTracedTransport(http.DefaultTransport, provider)
	return &Client{
		baseURL:    base,
		referer:    base + "/",
		userAgent:  cfg.EmoticonUserAgent,
		pageHC:     &http.Client{Timeout: orDefault(cfg.EmoticonPageTimeout, 10*time.Second), Transport: transport},
		imageHC:    &http.Client{Timeout: orDefault(cfg.EmoticonImageTimeout, 3*time.Second), Transport: transport},
		retry:      cfg.GetSearchRetryConfig(),
		maxResults: cfg.EmoticonMaxResults,
		inlineMax:  cfg.EmoticonInlineMaxBytes,
		sleep:      sleepCtx,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Referer is the header value the source site expects on image requests.
func (c *Client) Referer() string { return c.referer }

// UserAgent is the browser-like agent sent to the source site.
func (c *Client) UserAgent() string { return c.userAgent }

// Search returns up to maxResults images for keyword in page order.
// An empty keyword returns nothing without touching the network.
func (c *Client) Search(ctx domain.Context, keyword string) ([]domain.SearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}
	lg := observability.LoggerFromContext(ctx).With(slog.String("keyword", keyword))

	doc, err := c.fetchPage(ctx, keyword)
	if err != nil {
		observability.RecordSearch("error")
		lg.Warn("emoticon search page failed", slog.Any("error", err))
		return nil, fmt.Errorf("op=imagesearch.Search: %w", err)
	}

	candidates := c.extractCandidates(doc, keyword)
	if len(candidates) == 0 {
		observability.RecordSearch("miss")
		return nil, nil
	}

	results := make([]domain.SearchResult, 0, len(candidates))
	for i, cand := range candidates {
		if i > 0 && c.inlineMax > 0 && c.retry.ImageDelay > 0 {
			if err := c.sleep(ctx, c.retry.ImageDelay); err != nil {
				return nil, fmt.Errorf("op=imagesearch.Search: %w", err)
			}
		}
		results = append(results, c.materialize(ctx, lg, cand))
	}
	observability.RecordSearch("hit")
	return results, nil
}

// searchURL builds the keyword-in-path result page URL.
func (c *Client) searchURL(keyword string) string {
	return fmt.Sprintf("%s/search/bqb/keyword/%s/type/bq/page/1.html", c.baseURL, url.PathEscape(keyword))
}

// fetchPage GETs the result page, retrying only on 502/503/504 with a
// linearly growing delay.
func (c *Client) fetchPage(ctx domain.Context, keyword string) (*goquery.Document, error) {
	var doc *goquery.Document
	target := c.searchURL(keyword)
	attempt := 0
	op := func() error {
		attempt++
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := c.pageHC.Do(req)
		if err != nil {
			observability.ObserveUpstream(provider, "page", "error", time.Since(start))
			return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err))
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case isRetryableStatus(resp.StatusCode):
			observability.ObserveUpstream(provider, "page", "unavailable", time.Since(start))
			slog.Debug("emoticon source unavailable, will retry",
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt))
			return fmt.Errorf("%w: status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			observability.ObserveUpstream(provider, "page", "http_error", time.Since(start))
			return backoff.Permanent(fmt.Errorf("%w: status %d", domain.ErrUpstreamFailed, resp.StatusCode))
		}

		d, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			observability.ObserveUpstream(provider, "page", "malformed", time.Since(start))
			return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamMalformed, err))
		}
		observability.ObserveUpstream(provider, "page", "ok", time.Since(start))
		doc = d
		return nil
	}

	attempts := c.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newLinearBackOff(c.retry.Step), uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, err
	}
	return doc, nil
}

func isRetryableStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

// extractCandidates walks img elements in document order. The lazy-load
// data-original attribute wins over src; only absolute or protocol-relative
// URLs are accepted.
func (c *Client) extractCandidates(doc *goquery.Document, keyword string) []domain.SearchResult {
	var out []domain.SearchResult
	seen := make(map[string]struct{})
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("data-original")
		if strings.TrimSpace(src) == "" {
			src, _ = s.Attr("src")
		}
		abs, ok := absoluteURL(src)
		if !ok {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		alt, _ := s.Attr("alt")
		if strings.TrimSpace(alt) == "" {
			alt, _ = s.Attr("title")
		}
		out = append(out, domain.NewSearchResult(abs, alt, keyword))
		return len(out) < c.maxResults
	})
	return out
}

// absoluteURL accepts http(s) and protocol-relative URLs, upgrading the latter to https.
func absoluteURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return raw, true
	case strings.HasPrefix(raw, "//") && len(raw) > 2:
		return "https:" + raw, true
	default:
		return "", false
	}
}

// materialize inlines cand when its bytes are small enough, otherwise keeps
// the remote URL. Download failures keep the remote URL too.
func (c *Client) materialize(ctx domain.Context, lg *slog.Logger, cand domain.SearchResult) domain.SearchResult {
	if c.inlineMax <= 0 {
		observability.RecordImage("remote")
		return cand
	}
	dataURI, inlined, err := c.fetchImage(ctx, cand.URL)
	switch {
	case err != nil:
		observability.RecordImage("degraded")
		lg.Debug("emoticon image download failed, keeping remote url",
			slog.String("url", cand.URL),
			slog.Any("error", err))
		return cand
	case !inlined:
		observability.RecordImage("remote")
		return cand
	default:
		observability.RecordImage("inline")
		return domain.SearchResult{URL: dataURI, Alt: cand.Alt}
	}
}

// fetchImage downloads target with the site Referer. It reports inlined=false
// when the image is at or above the inline threshold.
func (c *Client) fetchImage(ctx domain.Context, target string) (dataURI string, inlined bool, err error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Referer", c.referer)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.imageHC.Do(req)
	if err != nil {
		observability.ObserveUpstream(provider, "image", "error", time.Since(start))
		return "", false, fmt.Errorf("%w: %v", domain.ErrImageFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ObserveUpstream(provider, "image", "http_error", time.Since(start))
		return "", false, fmt.Errorf("%w: status %d", domain.ErrImageFetchFailed, resp.StatusCode)
	}
	if resp.ContentLength >= c.inlineMax {
		observability.ObserveUpstream(provider, "image", "too_large", time.Since(start))
		return "", false, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.inlineMax))
	if err != nil {
		observability.ObserveUpstream(provider, "image", "error", time.Since(start))
		return "", false, fmt.Errorf("%w: %v", domain.ErrImageFetchFailed, err)
	}
	if int64(len(data)) >= c.inlineMax {
		observability.ObserveUpstream(provider, "image", "too_large", time.Since(start))
		return "", false, nil
	}

	contentType := imageContentType(resp.Header.Get("Content-Type"), data)
	if contentType == "" {
		observability.ObserveUpstream(provider, "image", "not_image", time.Since(start))
		return "", false, fmt.Errorf("%w: not an image", domain.ErrImageFetchFailed)
	}
	observability.ObserveUpstream(provider, "image", "ok", time.Since(start))
	return domain.DataURIPrefix + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), true, nil
}

// imageContentType trusts an image/* header and otherwise sniffs the bytes.
// It returns "" when the payload is not an image.
func imageContentType(header string, data []byte) string {
	ct := strings.TrimSpace(strings.SplitN(header, ";", 2)[0])
	if strings.HasPrefix(strings.ToLower(ct), "image/") {
		return strings.ToLower(ct)
	}
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return m.String()
		}
	}
	return ""
}

func sleepCtx(ctx domain.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
