package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/emoticon-relay/internal/adapter/observability"
	"github.com/fairyhunter13/emoticon-relay/internal/config"
	"github.com/fairyhunter13/emoticon-relay/internal/domain"
	"github.com/fairyhunter13/emoticon-relay/pkg/textx"
)

// EmoticonResolver replaces image placeholders in chat text with emoticon markup.
type EmoticonResolver struct {
	Searcher  domain.ImageSearcher
	Suggester domain.KeywordSuggester
	// FallbackMaxAttempts bounds suggester round trips per placeholder.
	FallbackMaxAttempts int
	// Concurrency is the number of placeholders resolved at once; 1 is sequential.
	Concurrency int
	// ProxyPath, when set, routes remote image URLs in markup through the image proxy.
	ProxyPath string
}

// NewEmoticonResolver constructs an EmoticonResolver from cfg.
func NewEmoticonResolver(s domain.ImageSearcher, sg domain.KeywordSuggester, cfg config.Config) EmoticonResolver {
	return EmoticonResolver{
		Searcher:            s,
		Suggester:           sg,
		FallbackMaxAttempts: cfg.FallbackMaxAttempts,
		Concurrency:         cfg.EmoticonResolveConcurrency,
		ProxyPath:           cfg.EmoticonProxyPath,
	}
}

type resolution struct {
	result domain.SearchResult
	ok     bool
}

// Resolve substitutes every placeholder it can match and leaves the rest
// verbatim. It never fails: per-placeholder errors only leave that
// placeholder unchanged. The same file name is looked up once per call, but
// Emoticons holds one entry per substituted placeholder, in text order.
func (r EmoticonResolver) Resolve(ctx domain.Context, text, credential string) domain.ReplacementOutcome {
	tracer := otel.Tracer("usecase.resolver")
	ctx, span := tracer.Start(ctx, "EmoticonResolver.Resolve")
	defer span.End()

	var matches []domain.PlaceholderMatch
	var tokens []string
	index := make(map[string]int)
	for m := range ScanPlaceholders(text) {
		matches = append(matches, m)
		if _, seen := index[m.FileNameToken]; !seen {
			index[m.FileNameToken] = len(tokens)
			tokens = append(tokens, m.FileNameToken)
		}
	}
	span.SetAttributes(
		attribute.Int("placeholders", len(matches)),
		attribute.Int("unique_tokens", len(tokens)),
	)
	if len(matches) == 0 {
		return domain.ReplacementOutcome{ProcessedText: text, Emoticons: []domain.SearchResult{}}
	}

	resolved := make([]resolution, len(tokens))
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, token := range tokens {
		g.Go(func() error {
			resolved[i] = r.resolveGuarded(ctx, token, credential)
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	b.Grow(len(text))
	emoticons := make([]domain.SearchResult, 0, len(matches))
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.Start])
		if res := resolved[index[m.FileNameToken]]; res.ok {
			b.WriteString(textx.EmoticonImgTag(res.result.URL, res.result.Alt, r.ProxyPath))
			emoticons = append(emoticons, res.result)
		} else {
			b.WriteString(m.FullMatch)
		}
		last = m.End
	}
	b.WriteString(text[last:])

	span.SetAttributes(attribute.Int("resolved", len(emoticons)))
	return domain.ReplacementOutcome{ProcessedText: b.String(), Emoticons: emoticons}
}

// resolveGuarded isolates one placeholder: a panic leaves it unresolved.
func (r EmoticonResolver) resolveGuarded(ctx domain.Context, token, credential string) (res resolution) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.RecordPlaceholder("panic")
			observability.LoggerFromContext(ctx).Error("placeholder resolution panicked",
				slog.String("token", token),
				slog.Any("panic", fmt.Sprint(rec)))
			res = resolution{}
		}
	}()
	return r.resolveToken(ctx, token, credential)
}

// resolveToken walks the variations in order and stops at the first hit.
// When all miss and a credential is present, it asks the suggester for an
// alternative, searches it, and repeats up to FallbackMaxAttempts times.
func (r EmoticonResolver) resolveToken(ctx domain.Context, token, credential string) resolution {
	lg := observability.LoggerFromContext(ctx).With(slog.String("token", token))

	variations := DeriveVariations(token)
	if len(variations) == 0 {
		observability.RecordPlaceholder("skipped")
		return resolution{}
	}

	for _, kw := range variations {
		if ctx.Err() != nil {
			observability.RecordPlaceholder("cancelled")
			return resolution{}
		}
		if res, ok := r.searchFirst(ctx, lg, kw); ok {
			observability.RecordPlaceholder("matched")
			return resolution{result: res, ok: true}
		}
	}

	if strings.TrimSpace(credential) == "" || r.Suggester == nil {
		observability.RecordPlaceholder("unmatched")
		return resolution{}
	}

	current := variations[0]
	tried := map[string]struct{}{current: {}}
	for attempt := 1; attempt <= r.FallbackMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		alt, err := r.Suggester.SuggestAlternative(ctx, current, credential)
		if err != nil {
			lg.Warn("fallback chain aborted", slog.Int("attempt", attempt), slog.Any("error", err))
			break
		}
		alt = strings.TrimSpace(alt)
		if alt == "" || alt == current {
			break
		}
		if _, dup := tried[alt]; dup {
			break
		}
		tried[alt] = struct{}{}
		if res, ok := r.searchFirst(ctx, lg, alt); ok {
			observability.RecordPlaceholder("fallback_matched")
			lg.Debug("placeholder matched via fallback", slog.String("alternative", alt), slog.Int("attempt", attempt))
			return resolution{result: res, ok: true}
		}
		current = alt
	}
	observability.RecordPlaceholder("unmatched")
	lg.Debug("placeholder left unresolved",
		slog.Any("error", fmt.Errorf("%w: %d variations, fallback tried %d", domain.ErrSearchExhausted, len(variations), len(tried)-1)))
	return resolution{}
}

// searchFirst returns the first result for kw. Search errors count as a miss.
func (r EmoticonResolver) searchFirst(ctx context.Context, lg *slog.Logger, kw string) (domain.SearchResult, bool) {
	if r.Searcher == nil {
		return domain.SearchResult{}, false
	}
	results, err := r.Searcher.Search(ctx, kw)
	if err != nil {
		lg.Warn("emoticon search failed", slog.String("keyword", kw), slog.Any("error", err))
		return domain.SearchResult{}, false
	}
	if len(results) == 0 {
		return domain.SearchResult{}, false
	}
	return results[0], true
}
