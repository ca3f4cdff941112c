package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleet-monitor/locintel/internal/config"
)

// Principal kinds.
const (
	KindOwner  = "owner"
	KindEntity = "entity"
)

// Principal is the caller an API key resolves to: an owner using the query
// and stream surface, or an entity reporting its own position.
type Principal struct {
	Kind string
	ID   string
}

func (p Principal) IsOwner() bool  { return p.Kind == KindOwner }
func (p Principal) IsEntity() bool { return p.Kind == KindEntity }

// ParsePrincipal decodes "owner:<id>" or "entity:<id>".
func ParsePrincipal(s string) (Principal, bool) {
	kind, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || id == "" {
		return Principal{}, false
	}
	switch kind {
	case KindOwner, KindEntity:
		return Principal{Kind: kind, ID: id}, true
	default:
		return Principal{}, false
	}
}

// KeyLookup resolves keys provisioned outside the config, usually in Redis.
type KeyLookup interface {
	GetAPIKey(ctx context.Context, apiKey string) (string, error)
}

type cacheEntry struct {
	principal Principal
	expiresAt time.Time
}

type Authenticator struct {
	localCache sync.Map
	lookup     KeyLookup
	ttl        time.Duration
	staticKeys map[string]Principal
	logger     *zap.SugaredLogger
}

// NewAuthenticator takes static keys from VALID_API_KEYS ("key=owner:id").
// lookup may be nil when Redis is disabled.
func NewAuthenticator(cfg *config.Config, lookup KeyLookup, logger *zap.SugaredLogger) *Authenticator {
	logger = logger.Named("auth")
	staticKeys := make(map[string]Principal, len(cfg.ValidAPIKeys))
	for _, entry := range cfg.ValidAPIKeys {
		key, value, ok := strings.Cut(entry, "=")
		p, valid := ParsePrincipal(value)
		if !ok || key == "" || !valid {
			logger.Warnw("Ignoring malformed static API key entry")
			continue
		}
		staticKeys[key] = p
	}

	return &Authenticator{
		lookup:     lookup,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
		logger:     logger,
	}
}

// Resolve returns the principal for apiKey.
func (a *Authenticator) Resolve(ctx context.Context, apiKey string) (Principal, bool) {
	// Level 0: static config keys
	if p, ok := a.staticKeys[apiKey]; ok {
		return p, true
	}

	// Level 1: in-memory cache
	if raw, ok := a.localCache.Load(apiKey); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.principal, true
		}
		a.localCache.Delete(apiKey)
	}

	// Level 2: Redis lookup
	if a.lookup == nil {
		return Principal{}, false
	}
	value, err := a.lookup.GetAPIKey(ctx, apiKey)
	if err != nil {
		a.logger.Warnw("API key lookup failed", "error", err)
		return Principal{}, false
	}
	p, ok := ParsePrincipal(value)
	if !ok {
		return Principal{}, false
	}

	a.localCache.Store(apiKey, cacheEntry{
		principal: p,
		expiresAt: time.Now().Add(a.ttl),
	})
	return p, true
}
