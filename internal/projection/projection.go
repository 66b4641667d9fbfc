// Package projection builds Mastodon entities from native content.
//
// Every builder starts from a default projection, hands the result through
// the middleware chain registered for that entity type and validates what
// comes out. A nil result or a failed validation means the item cannot be
// served.
package projection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chao7150/wpmastodon/internal/idmap"
	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/remote"
	"github.com/chao7150/wpmastodon/internal/store"
)

var (
	// ErrNotFound is returned when the native object does not exist or the
	// viewer may not see it.
	ErrNotFound = errors.New("record not found")
	// ErrIntegrity wraps a validation failure of a projected entity.
	ErrIntegrity = errors.New("entity failed validation")
)

// Viewer is the request-scoped identity entities are projected for. A zero
// Viewer is anonymous.
type Viewer struct {
	User  *model.User
	App   *model.App
	Scope string
}

func (v Viewer) UserId() int64 {
	if v.User == nil {
		return 0
	}
	return v.User.Id
}

// CanSee reports whether the viewer may read a post with the given status.
func (v Viewer) CanSee(status string) bool {
	switch status {
	case model.StatusPublish:
		return true
	case model.StatusPrivate:
		return v.User.CanManagePrivate()
	default:
		return false
	}
}

// Middleware receives the current entity (possibly nil) and the native
// object it was built from and returns the entity to continue with.
type Middleware[N, E any] func(ctx context.Context, current *E, native N) *E

// Chain is an ordered list of middlewares for one entity type.
type Chain[N, E any] struct {
	middlewares []Middleware[N, E]
}

func (c *Chain[N, E]) Use(m Middleware[N, E]) {
	c.middlewares = append(c.middlewares, m)
}

// Run passes def through every middleware in registration order.
func (c *Chain[N, E]) Run(ctx context.Context, def *E, native N) *E {
	current := def
	for _, m := range c.middlewares {
		current = m(ctx, current, native)
	}
	return current
}

// ActorSource supplies remote actor metadata, falling back on failure.
type ActorSource interface {
	ActorOr(ctx context.Context, input string, fallback *remote.Actor) *remote.Actor
	Document(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	BaseURL  string
	Domain   string
	Language string
	Logger   zerolog.Logger
	Remote   ActorSource
}

// Projector turns native content into validated Mastodon entities.
type Projector struct {
	store    *store.Store
	ids      *idmap.Mapper
	remote   ActorSource
	baseURL  string
	domain   string
	language string
	logger   zerolog.Logger

	Statuses      Chain[Native, mastodon.Status]
	Accounts      Chain[AccountSource, mastodon.Account]
	Media         Chain[MediaSource, mastodon.MediaAttachment]
	Notifications Chain[*model.Comment, mastodon.Notification]
}

func New(s *store.Store, ids *idmap.Mapper, opts Options) *Projector {
	return &Projector{
		store:    s,
		ids:      ids,
		remote:   opts.Remote,
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		domain:   opts.Domain,
		language: opts.Language,
		logger:   opts.Logger,
	}
}

// Mapper returns the identity mapper used for every id.
func (p *Projector) Mapper() *idmap.Mapper {
	return p.ids
}

func (p *Projector) postURL(id int64) string {
	return p.baseURL + "/?p=" + strconv.FormatInt(id, 10)
}

func (p *Projector) commentURL(c *model.Comment) string {
	return p.postURL(c.PostId) + "#comment-" + strconv.FormatInt(c.Id, 10)
}

func (p *Projector) authorURL(login string) string {
	return p.baseURL + "/author/" + login
}

// validate runs the entity validator, logging dropped list items.
func (p *Projector) validate(entity any, what string) error {
	err := mastodon.Validate(entity, func(e *mastodon.ValidationError) {
		p.logger.Warn().Str("entity", what).Str("field", e.Path).Msg("dropped invalid list item")
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("entity", what).Msg("entity failed validation")
		return fmt.Errorf("%w: %s: %v", ErrIntegrity, what, err)
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
