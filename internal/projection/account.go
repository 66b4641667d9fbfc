package projection

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/chao7150/wpmastodon/internal/idmap"
	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/remote"
	"github.com/chao7150/wpmastodon/internal/store"
)

// DefaultAvatar is served for accounts without a picture.
const DefaultAvatar = "https://www.gravatar.com/avatar/?d=mp"

// AccountSource is the tagged input of account projection: exactly one of
// User, Commenter or Actor is set. Input is the handle or url an Actor was
// requested by.
type AccountSource struct {
	User      *model.User
	Commenter *model.Comment
	Actor     *remote.Actor
	Input     string
}

// LocalAccount projects a blog user.
func (p *Projector) LocalAccount(ctx context.Context, u *model.User) (*mastodon.Account, error) {
	if u == nil {
		return nil, ErrNotFound
	}
	return p.account(ctx, AccountSource{User: u})
}

// CredentialAccount is LocalAccount plus the source block returned by
// verify_credentials.
func (p *Projector) CredentialAccount(ctx context.Context, u *model.User) (*mastodon.Account, error) {
	a, err := p.LocalAccount(ctx, u)
	if err != nil {
		return nil, err
	}
	a.Source = &mastodon.Source{
		Privacy:  mastodon.VisibilityPublic,
		Language: p.language,
		Note:     u.Bio,
		Fields:   []mastodon.Field{},
	}
	return a, nil
}

// CommenterAccount projects the author of a comment, which is a blog user
// when the comment carries a user id.
func (p *Projector) CommenterAccount(ctx context.Context, c *model.Comment) (*mastodon.Account, error) {
	if c.UserId != 0 {
		u, err := p.store.SelectUser(ctx, c.UserId)
		if err == nil {
			return p.LocalAccount(ctx, u)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return p.account(ctx, AccountSource{Commenter: c})
}

// RemoteAccount projects a remote actor. known, when non-nil, is used
// without consulting the resolver.
func (p *Projector) RemoteAccount(ctx context.Context, input string, known *remote.Actor) (*mastodon.Account, error) {
	actor := known
	if actor == nil {
		actor = fallbackActor(input)
		if p.remote != nil {
			actor = p.remote.ActorOr(ctx, input, actor)
		}
	}
	return p.account(ctx, AccountSource{Actor: actor, Input: input})
}

// AccountByID resolves an external account id.
func (p *Projector) AccountByID(ctx context.Context, id string) (*mastodon.Account, error) {
	ref, err := p.ids.Resolve(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	switch ref.Kind {
	case idmap.KindLocal:
		n, ok := ref.Int()
		if !ok {
			return nil, ErrNotFound
		}
		u, err := p.store.SelectUser(ctx, n)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return p.LocalAccount(ctx, u)
	case idmap.KindRemoteActor:
		a, err := p.RemoteAccount(ctx, ref.Native, nil)
		if err != nil {
			return nil, err
		}
		a.Id = id
		return a, nil
	case idmap.KindCommentAuthor:
		return p.account(ctx, AccountSource{Commenter: commenterFromRef(ref.Native)})
	default:
		return nil, ErrNotFound
	}
}

func (p *Projector) account(ctx context.Context, src AccountSource) (*mastodon.Account, error) {
	var def *mastodon.Account
	var err error
	switch {
	case src.User != nil:
		def, err = p.defaultLocalAccount(ctx, src.User)
	case src.Commenter != nil:
		def, err = p.defaultCommenterAccount(ctx, src.Commenter)
	case src.Actor != nil:
		def, err = p.defaultRemoteAccount(ctx, src.Actor, src.Input)
	default:
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a := p.Accounts.Run(ctx, def, src)
	if a == nil {
		return nil, ErrNotFound
	}
	if err := p.validate(a, "account"); err != nil {
		return nil, err
	}
	return a, nil
}

func (p *Projector) defaultLocalAccount(ctx context.Context, u *model.User) (*mastodon.Account, error) {
	id, err := p.ids.Remap(ctx, idmap.Local(u.Id))
	if err != nil {
		return nil, err
	}
	statuses, err := p.store.CountPosts(ctx, store.PostQuery{
		Types:    []string{model.PostTypePost},
		Statuses: []string{model.StatusPublish},
		AuthorId: u.Id,
	})
	if err != nil {
		return nil, err
	}
	following, err := p.store.CountFollowing(ctx, u.Id)
	if err != nil {
		return nil, err
	}
	profile := u.Url
	if profile == "" {
		profile = p.authorURL(u.Login)
	}
	avatar := u.AvatarUrl
	if avatar == "" {
		avatar = DefaultAvatar
	}
	display := u.DisplayName
	if display == "" {
		display = u.Login
	}
	return &mastodon.Account{
		Id:             id,
		Username:       u.Login,
		Acct:           u.Login,
		DisplayName:    display,
		CreatedAt:      orEpoch(u.Registered),
		Note:           u.Bio,
		Url:            profile,
		Uri:            profile,
		Avatar:         avatar,
		AvatarStatic:   avatar,
		Header:         "",
		HeaderStatic:   "",
		Discoverable:   ptr(true),
		FollowingCount: int64(following),
		StatusesCount:  int64(statuses),
	}, nil
}

// commenterRef is the id_map reference of a comment author without a user.
func commenterRef(c *model.Comment) string {
	v := url.Values{}
	v.Set("name", c.AuthorName)
	v.Set("email", strings.ToLower(c.AuthorEmail))
	v.Set("url", c.AuthorUrl)
	return v.Encode()
}

func commenterFromRef(ref string) *model.Comment {
	v, _ := url.ParseQuery(ref)
	return &model.Comment{AuthorName: v.Get("name"), AuthorEmail: v.Get("email"), AuthorUrl: v.Get("url")}
}

func (p *Projector) defaultCommenterAccount(ctx context.Context, c *model.Comment) (*mastodon.Account, error) {
	id, err := p.ids.Remap(ctx, idmap.Ref{Kind: idmap.KindCommentAuthor, Native: commenterRef(c)})
	if err != nil {
		return nil, err
	}
	username := store.Slugify(c.AuthorName)
	if username == "" {
		username = "anonymous"
	}
	acct := username
	profile := c.AuthorUrl
	if h, ok := remote.ParseHandle(c.AuthorUrl); ok {
		username = h.User
		acct = h.String()
	}
	if profile == "" {
		profile = p.baseURL + "/?comment_author=" + url.QueryEscape(username)
	}
	display := c.AuthorName
	if display == "" {
		display = username
	}
	return &mastodon.Account{
		Id:           id,
		Username:     username,
		Acct:         acct,
		DisplayName:  display,
		CreatedAt:    time.Unix(0, 0).UTC(),
		Url:          profile,
		Avatar:       DefaultAvatar,
		AvatarStatic: DefaultAvatar,
	}, nil
}

// remoteKey is the id_map reference of a remote account. It is user@host
// whenever the input or the actor names one.
func remoteKey(input string, a *remote.Actor) string {
	if h, ok := remote.ParseHandle(input); ok {
		return strings.ToLower(h.String())
	}
	if a.Username != "" && a.Host != "" {
		return strings.ToLower(a.Acct())
	}
	if a.URI != "" {
		return a.URI
	}
	return a.URL
}

func (p *Projector) defaultRemoteAccount(ctx context.Context, a *remote.Actor, input string) (*mastodon.Account, error) {
	key := remoteKey(input, a)
	if key == "" {
		return nil, ErrNotFound
	}
	id, err := p.ids.Remap(ctx, idmap.Ref{Kind: idmap.KindRemoteActor, Native: key})
	if err != nil {
		return nil, err
	}
	uri := a.URI
	if uri == "" {
		uri = a.URL
	}
	if uri == "" {
		uri = "acct:" + key
	}
	username := a.Username
	if username == "" {
		username = fallbackActor(key).Username
	}
	if username == "" {
		return nil, fmt.Errorf("remote actor %s has no username", key)
	}
	display := a.DisplayName
	if display == "" {
		display = username
	}
	acct := username
	if a.Host != "" {
		acct = username + "@" + a.Host
	}
	profile := a.URL
	if profile == "" {
		profile = uri
	}
	avatar := a.Avatar
	if avatar == "" {
		avatar = DefaultAvatar
	}
	return &mastodon.Account{
		Id:             id,
		Username:       username,
		Acct:           acct,
		DisplayName:    display,
		Locked:         a.Locked,
		Bot:            a.Bot,
		Group:          a.Group,
		CreatedAt:      orEpoch(a.CreatedAt),
		Note:           a.Note,
		Url:            profile,
		Uri:            uri,
		Avatar:         avatar,
		AvatarStatic:   avatar,
		Header:         a.Header,
		HeaderStatic:   a.Header,
		FollowersCount: a.FollowersCount,
		FollowingCount: a.FollowingCount,
		StatusesCount:  a.StatusesCount,
	}, nil
}

// fallbackActor derives what it can from a handle or url alone.
func fallbackActor(input string) *remote.Actor {
	a := &remote.Actor{}
	if h, ok := remote.ParseHandle(input); ok {
		a.Username = h.User
		a.Host = h.Host
	}
	if u, err := url.Parse(input); err == nil && u.Host != "" {
		a.URI = input
		a.URL = input
		a.Host = strings.ToLower(u.Host)
		if a.Username == "" {
			a.Username = strings.TrimPrefix(path.Base(strings.TrimSuffix(u.Path, "/")), "@")
			if a.Username == "." || a.Username == "/" {
				a.Username = ""
			}
		}
	} else if a.Username != "" {
		a.URI = "acct:" + a.Username + "@" + a.Host
	}
	return a
}

func orEpoch(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t.UTC()
}

func formatId(id int64) string {
	return strconv.FormatInt(id, 10)
}
