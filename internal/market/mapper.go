package market

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"github.com/polymirror/polymirror/internal/config"
	"github.com/polymirror/polymirror/internal/model"
	"github.com/polymirror/polymirror/internal/pkg/logger"
	"github.com/polymirror/polymirror/internal/pkg/metrics"
)

// gammaMarket mirrors the relevant slice of the Gamma /markets payload.
type gammaMarket struct {
	Question string `json:"question"`
	Slug     string `json:"slug"`
	Tokens   []struct {
		TokenID string `json:"token_id"`
		Outcome string `json:"outcome"`
	} `json:"tokens"`
}

var unknownMarket = model.MarketDetails{Question: "Unknown", Outcome: "Unknown"}

// Resolver maps outcome token ids to market question and outcome labels
// via the Gamma API. Lookups are rate limited and successful results are
// cached; failures always degrade to "Unknown" rather than blocking the
// mirror pipeline.
type Resolver struct {
	http    *resty.Client
	cache   *cache.Cache
	limiter *rate.Limiter
	baseURL string
}

func NewResolver(cfg config.GammaConfig) *Resolver {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 60
	}

	httpClient := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutMs) * time.Millisecond)

	return &Resolver{
		http:    httpClient,
		cache:   cache.New(ttl, 2*ttl),
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		baseURL: cfg.BaseURL,
	}
}

// Resolve returns the labels for a token id, or the "Unknown" placeholder
// on any failure. Placeholders are never cached, so a transient Gamma
// outage does not poison later lookups.
func (r *Resolver) Resolve(ctx context.Context, tokenID string) model.MarketDetails {
	if cached, found := r.cache.Get(tokenID); found {
		metrics.GammaLookups.WithLabelValues("cache_hit").Inc()
		return cached.(model.MarketDetails)
	}

	details, err := r.fetch(ctx, tokenID)
	if err != nil {
		metrics.GammaLookups.WithLabelValues("error").Inc()
		logger.Warn("market lookup failed, using placeholder labels",
			"token_id", tokenID, "error", err)
		return unknownMarket
	}

	metrics.GammaLookups.WithLabelValues("ok").Inc()
	r.cache.SetDefault(tokenID, details)
	return details
}

func (r *Resolver) fetch(ctx context.Context, tokenID string) (model.MarketDetails, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return model.MarketDetails{}, err
	}

	var markets []gammaMarket
	res, err := r.http.R().
		SetContext(ctx).
		SetQueryParam("clob_token_ids", tokenID).
		SetResult(&markets).
		Get(r.baseURL + "/markets")
	if err != nil {
		return model.MarketDetails{}, err
	}
	if res.StatusCode() >= 400 {
		return model.MarketDetails{}, fmt.Errorf("gamma api status %d", res.StatusCode())
	}
	if len(markets) == 0 {
		return model.MarketDetails{}, fmt.Errorf("no market for token %s", tokenID)
	}

	m := markets[0]
	details := model.MarketDetails{
		Question: m.Question,
		Slug:     m.Slug,
		Outcome:  "Unknown",
	}
	for _, token := range m.Tokens {
		if token.TokenID == tokenID {
			details.Outcome = token.Outcome
			break
		}
	}
	return details, nil
}
