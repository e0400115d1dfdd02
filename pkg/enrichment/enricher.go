package enrichment

import (
	"context"
	"errors"
	"time"

	relayerrors "github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/logger"
)

// DefaultTimeout bounds a single origin lookup
const DefaultTimeout = 4 * time.Second

// Enricher performs the best-effort origin lookup for a submission. Enrich
// never fails and never takes longer than the configured timeout; cache
// reads, the lookup and the cache write share one deadline.
type Enricher struct {
	lookuper Lookuper
	cache    Cache
	timeout  time.Duration
	logger   logger.Logger
}

// Option configures an Enricher
type Option func(*Enricher)

// WithCache adds a read-through cache in front of the lookuper
func WithCache(c Cache) Option {
	return func(e *Enricher) {
		e.cache = c
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEnricher creates an enricher. A nil lookuper disables lookups.
func NewEnricher(lookuper Lookuper, timeout time.Duration, opts ...Option) *Enricher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e := &Enricher{
		lookuper: lookuper,
		timeout:  timeout,
		logger:   logger.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich resolves clientAddr. Any failure degrades to the address-only origin.
func (e *Enricher) Enrich(ctx context.Context, clientAddr string) Origin {
	ip := NormalizeAddr(clientAddr)
	if ip == "" {
		return AddressOnly(clientAddr)
	}
	if e == nil || e.lookuper == nil || !IsPublic(ip) {
		return AddressOnly(ip)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if e.cache != nil {
		if cached, ok := e.cache.Get(lookupCtx, ip); ok {
			return *cached
		}
	}

	origin, err := e.lookuper.Lookup(lookupCtx, ip)
	if err != nil || origin == nil {
		if err == nil {
			err = errors.New("empty lookup result")
		}
		e.logger.Warn("Origin enrichment unavailable", "ip", ip,
			"error", relayerrors.Wrap(err, relayerrors.ErrEnrichmentUnavailable, "origin lookup failed"))
		return AddressOnly(ip)
	}

	if e.cache != nil {
		e.cache.Set(lookupCtx, ip, origin)
	}
	return *origin
}
