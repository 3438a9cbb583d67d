package fetchlib

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/archfetch/archfetch/pkg/logger"
)

// Verification strategies, in cascade order. The first cache hit wins.
const (
	StrategyStandard    = "standard"
	StrategyStrict      = "strict"
	StrategyAlternative = "alternative"
)

// maxAlternativeVariants bounds the alternative-spelling list per
// lookup regardless of how many VariantFuncs are configured.
const maxAlternativeVariants = 8

// VariantFunc produces alternative spellings for an identifier.
// Returning nil is fine.
type VariantFunc func(identifier string) []string

// ExistenceCheckFunc performs the upstream existence check for one
// candidate identifier form.
type ExistenceCheckFunc func(ctx context.Context, identifier string) (bool, error)

// DefaultVariants covers the common identifier mangling seen in
// practice: space/underscore/hyphen interchange and a stripped leading
// article. The cascade order and metrics are fixed contract; this list
// is configurable.
func DefaultVariants() []VariantFunc {
	return []VariantFunc{
		func(id string) []string {
			lower := strings.ToLower(strings.TrimSpace(id))
			return []string{
				strings.ReplaceAll(lower, " ", "_"),
				strings.ReplaceAll(lower, " ", "-"),
				strings.ReplaceAll(lower, "-", "_"),
				strings.ReplaceAll(lower, "_", "-"),
			}
		},
		func(id string) []string {
			lower := strings.ToLower(strings.TrimSpace(id))
			if rest, ok := strings.CutPrefix(lower, "the-"); ok {
				return []string{rest}
			}
			if rest, ok := strings.CutPrefix(lower, "the_"); ok {
				return []string{rest}
			}
			return nil
		},
	}
}

// HTTPExistenceCheck builds an ExistenceCheckFunc issuing HEAD
// requests against the URL produced by urlFor.
func HTTPExistenceCheck(client *http.Client, urlFor func(identifier string) string) ExistenceCheckFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, identifier string) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, urlFor(identifier), nil)
		if err != nil {
			return false, err
		}
		req.Header.Set(USER_AGENT_KEY, DEF_USER_AGENT)
		resp, err := client.Do(req)
		if err != nil {
			return false, NewTransferError(CategoryNetwork, "exists", err)
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
			return true, nil
		case resp.StatusCode == http.StatusNotFound:
			return false, nil
		default:
			return false, classifyStatus(resp, "exists")
		}
	}
}

// IdentifierCacheMetrics is a snapshot of the verification counters.
// Counters accumulate monotonically until an explicit reset.
type IdentifierCacheMetrics struct {
	StandardHits       int64     `json:"standard_hits"`
	StrictHits         int64     `json:"strict_hits"`
	AlternativeHits    int64     `json:"alternative_hits"`
	CacheMisses        int64     `json:"cache_misses"`
	APICallsMade       int64     `json:"api_calls_made"`
	APICallsSaved      int64     `json:"api_calls_saved"`
	TotalVerifications int64     `json:"total_verifications"`
	LastReset          time.Time `json:"last_reset"`
}

// IdentifierVerificationCache avoids repeated upstream existence
// checks for the same archive identifier. Lookups walk a cascade of
// progressively looser normalization strategies (standard, strict,
// alternatives), short-circuiting on the first cache hit; only a full
// miss across all attempts triggers a network existence check, gated
// through the shared RateLimiter. A successful check populates the
// cache under every attempted key so later lookups for any variant hit
// directly.
type IdentifierVerificationCache struct {
	store    *Store
	limiter  *RateLimiter
	check    ExistenceCheckFunc
	variants []VariantFunc
	l        logger.Logger

	mu      sync.Mutex
	metrics IdentifierCacheMetrics
}

// NewIdentifierVerificationCache creates a verification cache. A nil
// variants slice gets DefaultVariants.
func NewIdentifierVerificationCache(store *Store, limiter *RateLimiter, check ExistenceCheckFunc, variants []VariantFunc, l logger.Logger) *IdentifierVerificationCache {
	if variants == nil {
		variants = DefaultVariants()
	}
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &IdentifierVerificationCache{
		store:    store,
		limiter:  limiter,
		check:    check,
		variants: variants,
		l:        l,
		metrics:  IdentifierCacheMetrics{LastReset: time.Now()},
	}
}

// attempt is one (key, strategy) pair in cascade order.
type attempt struct {
	key      string
	strategy string
}

// attemptsFor builds the ordered, de-duplicated attempt list for an
// identifier: exact form, lower-cased form, then bounded alternatives.
func (c *IdentifierVerificationCache) attemptsFor(identifier string) []attempt {
	standard := strings.TrimSpace(identifier)
	attempts := []attempt{{key: standard, strategy: StrategyStandard}}
	seen := map[string]struct{}{standard: {}}

	strict := strings.ToLower(standard)
	if _, dup := seen[strict]; !dup {
		attempts = append(attempts, attempt{key: strict, strategy: StrategyStrict})
		seen[strict] = struct{}{}
	}

	var alts int
	for _, fn := range c.variants {
		for _, v := range fn(standard) {
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			if alts >= maxAlternativeVariants {
				return attempts
			}
			attempts = append(attempts, attempt{key: v, strategy: StrategyAlternative})
			seen[v] = struct{}{}
			alts++
		}
	}
	return attempts
}

// Verify resolves an identifier to its canonical verified form.
// found is false when neither the cache nor the upstream knows any
// attempted variant. Every completed lookup increments exactly one of
// the per-strategy hit counters or the miss counter; a lookup the
// limiter refuses to admit counts as nothing.
func (c *IdentifierVerificationCache) Verify(ctx context.Context, identifier string) (canonical string, found bool, err error) {
	attempts := c.attemptsFor(identifier)

	for _, a := range attempts {
		cached, _, ok, gerr := c.store.GetIdentifier(a.key)
		if gerr != nil {
			// The cache is an optimization; degrade to a miss.
			c.l.Warning("identifier cache read for %q degraded to miss: %s", a.key, gerr.Error())
			continue
		}
		if ok {
			c.recordHit(a.strategy)
			return cached, true, nil
		}
	}

	// Full cache miss: one rate-limited network phase tries the
	// attempted forms in cascade order. The miss and its API call are
	// counted together only once the limiter admits the phase, so a
	// rejected acquire leaves every counter untouched and the
	// saved+made == total invariant holds.
	tok, err := c.limiter.Acquire(ctx, PriorityNormal)
	if err != nil {
		return "", false, err
	}
	defer tok.Release()
	c.recordMiss()

	for _, a := range attempts {
		exists, cerr := c.check(ctx, a.key)
		if cerr != nil {
			return "", false, fmt.Errorf("existence check for %q: %w", a.key, cerr)
		}
		if !exists {
			continue
		}
		keys := make(map[string]string, len(attempts))
		for _, tried := range attempts {
			keys[tried.key] = tried.strategy
		}
		if perr := c.store.PutIdentifiers(keys, a.key, time.Now()); perr != nil {
			c.l.Warning("failed to cache verified identifier %q: %s", a.key, perr.Error())
		}
		return a.key, true, nil
	}
	return "", false, nil
}

func (c *IdentifierVerificationCache) recordHit(strategy string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch strategy {
	case StrategyStandard:
		c.metrics.StandardHits++
	case StrategyStrict:
		c.metrics.StrictHits++
	default:
		c.metrics.AlternativeHits++
	}
	// A cache hit is a network call avoided.
	c.metrics.APICallsSaved++
	c.metrics.TotalVerifications++
}

// recordMiss counts a full cache miss together with the one upstream
// verification phase it triggers, regardless of how many variant probes
// that phase needs.
func (c *IdentifierVerificationCache) recordMiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.CacheMisses++
	c.metrics.APICallsMade++
	c.metrics.TotalVerifications++
}

// Metrics returns a snapshot of the counters.
func (c *IdentifierVerificationCache) Metrics() IdentifierCacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// ResetMetrics zeroes all counters and stamps LastReset.
func (c *IdentifierVerificationCache) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = IdentifierCacheMetrics{LastReset: time.Now()}
}
