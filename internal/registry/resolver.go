package registry

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"multisig-trader/internal/cache"
	"multisig-trader/internal/domain"
	"multisig-trader/internal/errs"
)

// Cache TTLs. Negative lookups expire faster so newly listed tokens
// become resolvable quickly.
const (
	DefaultTTL         = 5 * time.Minute
	DefaultNegativeTTL = 30 * time.Second
)

// Resolver merges the built-in table, the metadata registry and the
// listing index into an ordered binding list per symbol. Lookups are
// cached with single-flight protection.
type Resolver struct {
	sources     []Source // consulted in priority order
	cache       *cache.TTLCache
	negativeTTL time.Duration
	log         *zap.SugaredLogger
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Builtin      *BuiltinSource
	Registry     Source
	ListingIndex Source
	TTL          time.Duration
	NegativeTTL  time.Duration
	Logger       *zap.SugaredLogger
}

// NewResolver creates a Resolver. Nil sources are skipped.
func NewResolver(opts ResolverOptions) (*Resolver, error) {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	negTTL := opts.NegativeTTL
	if negTTL == 0 {
		negTTL = DefaultNegativeTTL
	}

	c, err := cache.New(10_000, ttl)
	if err != nil {
		return nil, err
	}

	var sources []Source
	if opts.Builtin != nil {
		sources = append(sources, opts.Builtin)
	}
	if opts.Registry != nil {
		sources = append(sources, opts.Registry)
	}
	if opts.ListingIndex != nil {
		sources = append(sources, opts.ListingIndex)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Resolver{
		sources:     sources,
		cache:       c,
		negativeTTL: negTTL,
		log:         log,
	}, nil
}

// negative is the cached marker for symbols no source knows.
type negative struct{}

// Resolve returns the ordered binding list for symbol. Chains where
// the caller has an active deployment are moved to the front without
// dropping the others. An empty result is TOKEN_NOT_FOUND; it is only
// PRICE_DATA_UNAVAILABLE when every source returned an error.
func (r *Resolver) Resolve(ctx context.Context, symbol string, activeNetworks map[domain.NetworkKey]bool) ([]domain.TokenBinding, error) {
	v, err := r.cache.GetOrLoad(ctx, symbol, func(ctx context.Context) (any, error) {
		return r.lookup(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}

	if _, ok := v.(negative); ok {
		return nil, errs.New(errs.TokenNotFound, "token %s not found on any source", symbol).
			WithRecommendation("check the symbol spelling or wait for the token to be listed").
			WithContext(errs.Context{Service: "resolver", Symbol: symbol})
	}

	bindings := v.([]domain.TokenBinding)
	return rank(bindings, activeNetworks), nil
}

// Invalidate drops the cached entry for symbol.
func (r *Resolver) Invalidate(symbol string) {
	r.cache.Del(symbol)
}

// lookup consults all sources, union-merges and de-duplicates by
// (network, contract). Individual source errors are logged, not fatal,
// unless every source fails.
func (r *Resolver) lookup(ctx context.Context, symbol string) (any, error) {
	type key struct {
		network domain.NetworkKey
		addr    string
	}

	seen := make(map[key]bool)
	var merged []domain.TokenBinding
	failures := 0

	for _, src := range r.sources {
		bindings, err := src.LookupTokenBindings(ctx, symbol)
		if err != nil {
			failures++
			r.log.Warnw("token source lookup failed", "symbol", symbol, "error", err)
			continue
		}
		for _, b := range bindings {
			k := key{b.NetworkKey, b.ContractAddress.Hex()}
			if seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, b)
		}
	}

	if len(merged) == 0 {
		if failures == len(r.sources) && failures > 0 {
			return nil, errs.New(errs.PriceDataUnavailable, "all token sources failed for %s", symbol).
				WithContext(errs.Context{Service: "resolver", Symbol: symbol})
		}
		// Negative result gets the short TTL.
		r.cache.SetTTL(symbol, negative{}, r.negativeTTL)
		return negative{}, nil
	}

	return merged, nil
}

// rank orders bindings by whether the caller has an active wallet on
// the chain, then by source priority, then by verification.
func rank(bindings []domain.TokenBinding, activeNetworks map[domain.NetworkKey]bool) []domain.TokenBinding {
	out := make([]domain.TokenBinding, len(bindings))
	copy(out, bindings)

	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := out[i], out[j]
		ai := activeNetworks[bi.NetworkKey]
		aj := activeNetworks[bj.NetworkKey]
		if ai != aj {
			return ai
		}
		if bi.Source.Rank() != bj.Source.Rank() {
			return bi.Source.Rank() < bj.Source.Rank()
		}
		if bi.Verified != bj.Verified {
			return bi.Verified
		}
		return false
	})
	return out
}
