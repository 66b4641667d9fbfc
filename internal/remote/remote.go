// Package remote resolves WebFinger handles and ActivityPub actor documents
// and keeps them in a cache with a stale-while-revalidate policy.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chao7150/wpmastodon/internal/cache"
	"github.com/chao7150/wpmastodon/internal/config"
	"github.com/chao7150/wpmastodon/internal/idmap"
	"github.com/chao7150/wpmastodon/internal/store"
)

const (
	NegativeTTL     = time.Hour
	WebfingerTTL    = 7 * 24 * time.Hour
	DocumentTTL     = 365 * 24 * time.Hour
	DocumentRefresh = 24 * time.Hour

	activityJSON = "application/activity+json"
	acceptJSON   = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams", application/json`
)

// ErrUnavailable is returned while a negative result is cached.
var ErrUnavailable = errors.New("remote document unavailable")

// Refresher schedules a background refetch of a cached document.
type Refresher interface {
	Enqueue(url string)
}

// Options configures a Resolver. Scheme is used for WebFinger requests and
// defaults to https.
type Options struct {
	Cache           cache.Cache
	Clock           store.Clock
	Logger          zerolog.Logger
	Guard           Guard
	Client          *http.Client
	Scheme          string
	UserAgent       string
	MetadataTimeout time.Duration
	ContextTimeout  time.Duration
}

// Resolver fetches and caches remote actor metadata. Safe for concurrent use.
type Resolver struct {
	cache           cache.Cache
	clock           store.Clock
	logger          zerolog.Logger
	guard           Guard
	client          *http.Client
	scheme          string
	userAgent       string
	metadataTimeout time.Duration
	contextTimeout  time.Duration
	refresher       Refresher
}

func New(opts Options) *Resolver {
	r := &Resolver{
		cache:           opts.Cache,
		clock:           opts.Clock,
		logger:          opts.Logger,
		guard:           opts.Guard,
		scheme:          opts.Scheme,
		userAgent:       opts.UserAgent,
		metadataTimeout: opts.MetadataTimeout,
		contextTimeout:  opts.ContextTimeout,
	}
	if r.cache == nil {
		r.cache = cache.NewMemory(opts.Clock)
	}
	if r.clock == nil {
		r.clock = store.RealClock{}
	}
	if r.guard == nil {
		r.guard = PublicHosts
	}
	client := &http.Client{}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	client.CheckRedirect = r.checkRedirect
	r.client = client
	if r.scheme == "" {
		r.scheme = "https"
	}
	if r.userAgent == "" {
		r.userAgent = "wpmastodon"
	}
	if r.metadataTimeout == 0 {
		r.metadataTimeout = 5 * time.Second
	}
	if r.contextTimeout == 0 {
		r.contextTimeout = 20 * time.Second
	}
	r.refresher = NewGoroutineRefresher(r)
	return r
}

// NewFromConfig builds a Resolver from the [remote] config section.
func NewFromConfig(cfg config.RemoteConfig, c cache.Cache, logger zerolog.Logger) *Resolver {
	return New(Options{
		Cache:           c,
		Logger:          logger,
		Guard:           GuardFromList(cfg.AllowHosts),
		UserAgent:       cfg.UserAgent,
		MetadataTimeout: cfg.MetadataTimeout.Duration,
		ContextTimeout:  cfg.ContextTimeout.Duration,
	})
}

// SetRefresher replaces the background refresh strategy.
func (r *Resolver) SetRefresher(f Refresher) {
	r.refresher = f
}

type cacheEntry struct {
	Failed    bool            `json:"failed,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	RefreshAt int64           `json:"refresh_at,omitempty"`
}

func cacheKey(prefix, url string) string {
	return prefix + idmap.Hash(url)[:40]
}

func (r *Resolver) readEntry(ctx context.Context, key string) (*cacheEntry, bool) {
	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("remote cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var e cacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return &e, true
}

func (r *Resolver) writeEntry(ctx context.Context, key string, e cacheEntry, ttl time.Duration) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, raw, ttl); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("remote cache write failed")
	}
}

// Document returns the JSON document at url. Results are cached for a year
// with a refresh due after DocumentRefresh; a due entry is served stale while
// a refetch is scheduled. Failures are cached for NegativeTTL.
func (r *Resolver) Document(ctx context.Context, url string) ([]byte, error) {
	key := cacheKey("remote_doc_", url)
	if e, ok := r.readEntry(ctx, key); ok {
		if e.Failed {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, url)
		}
		if r.clock.Now().Unix() >= e.RefreshAt {
			r.refresher.Enqueue(url)
		}
		return e.Body, nil
	}
	return r.fetchDocument(ctx, url, r.metadataTimeout)
}

// Refresh refetches url and replaces the cached entry. A failed refetch
// keeps the stale document.
func (r *Resolver) Refresh(ctx context.Context, url string) error {
	key := cacheKey("remote_doc_", url)
	fetchCtx, cancel := context.WithTimeout(ctx, r.contextTimeout)
	defer cancel()
	body, err := r.hGetDocument(fetchCtx, url, acceptJSON)
	if err != nil || !json.Valid(body) {
		if err == nil {
			err = fmt.Errorf("invalid json from %s", url)
		}
		r.logger.Debug().Err(err).Str("url", url).Msg("remote refresh failed")
		return err
	}
	r.writeEntry(ctx, key, cacheEntry{Body: body, RefreshAt: r.clock.Now().Add(DocumentRefresh).Unix()}, DocumentTTL)
	return nil
}

func (r *Resolver) fetchDocument(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	key := cacheKey("remote_doc_", url)
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	body, err := r.hGetDocument(fetchCtx, url, acceptJSON)
	if err == nil && !json.Valid(body) {
		err = fmt.Errorf("invalid json from %s", url)
	}
	if err != nil {
		if errors.Is(err, ErrForbiddenHost) {
			return nil, err
		}
		r.logger.Debug().Err(err).Str("url", url).Msg("remote fetch failed")
		r.writeEntry(ctx, key, cacheEntry{Failed: true}, NegativeTTL)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	r.writeEntry(ctx, key, cacheEntry{Body: body, RefreshAt: r.clock.Now().Add(DocumentRefresh).Unix()}, DocumentTTL)
	return body, nil
}
