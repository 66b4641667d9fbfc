package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Actor is the metadata kept for a remote account.
type Actor struct {
	URI            string
	URL            string
	Username       string
	Host           string
	DisplayName    string
	Note           string
	Avatar         string
	Header         string
	Locked         bool
	Bot            bool
	Group          bool
	CreatedAt      time.Time
	FollowersCount int64
	FollowingCount int64
	StatusesCount  int64
}

// Acct returns username@host.
func (a *Actor) Acct() string {
	if a.Host == "" {
		return a.Username
	}
	return a.Username + "@" + a.Host
}

// ParseActor builds an Actor from an already fetched actor document without
// touching the network. Collection counts are taken from inline collections
// only.
func ParseActor(body []byte) (*Actor, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid actor document")
	}
	doc := gjson.ParseBytes(body)
	id := doc.Get("id").String()
	if id == "" {
		return nil, fmt.Errorf("actor document has no id")
	}
	a := &Actor{
		URI:         id,
		URL:         linkHref(doc.Get("url")),
		Username:    doc.Get("preferredUsername").String(),
		DisplayName: doc.Get("name").String(),
		Note:        doc.Get("summary").String(),
		Avatar:      linkHref(doc.Get("icon")),
		Header:      linkHref(doc.Get("image")),
		Locked:      doc.Get("manuallyApprovesFollowers").Bool(),
	}
	if u, err := url.Parse(id); err == nil {
		a.Host = strings.ToLower(u.Host)
	}
	switch doc.Get("type").String() {
	case "Service", "Application":
		a.Bot = true
	case "Group":
		a.Group = true
	}
	if t, err := time.Parse(time.RFC3339, doc.Get("published").String()); err == nil {
		a.CreatedAt = t.UTC()
	}
	if a.URL == "" {
		a.URL = a.URI
	}
	a.FollowersCount = doc.Get("followers.totalItems").Int()
	a.FollowingCount = doc.Get("following.totalItems").Int()
	a.StatusesCount = doc.Get("outbox.totalItems").Int()
	return a, nil
}

// linkHref reads a value that may be a string, a Link/Image object or an
// array of either.
func linkHref(v gjson.Result) string {
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if href := linkHref(item); href != "" {
				return href
			}
		}
		return ""
	case v.IsObject():
		if u := v.Get("url"); u.Exists() {
			return linkHref(u)
		}
		return v.Get("href").String()
	default:
		return v.String()
	}
}

// Actor resolves input (handle, profile URL or actor URL) to actor metadata
// including follower, following and outbox counts.
func (r *Resolver) Actor(ctx context.Context, input string) (*Actor, error) {
	actorURL, err := r.ResolveActorURL(ctx, input)
	if err != nil {
		return nil, err
	}
	body, err := r.Document(ctx, actorURL)
	if err != nil {
		return nil, err
	}
	a, err := ParseActor(body)
	if err != nil {
		return nil, fmt.Errorf("actor %s: %w", actorURL, err)
	}
	if h, ok := ParseHandle(input); ok {
		if a.Username == "" {
			a.Username = h.User
		}
		if a.Host == "" {
			a.Host = h.Host
		}
	}

	doc := gjson.ParseBytes(body)
	counts := []struct {
		field string
		dst   *int64
	}{
		{"followers", &a.FollowersCount},
		{"following", &a.FollowingCount},
		{"outbox", &a.StatusesCount},
	}
	for _, c := range counts {
		link := doc.Get(c.field)
		if link.Type != gjson.String {
			continue
		}
		coll, err := r.Document(ctx, link.String())
		if err != nil {
			continue
		}
		*c.dst = gjson.GetBytes(coll, "totalItems").Int()
	}
	return a, nil
}

// ActorOr is Actor with failures replaced by fallback.
func (r *Resolver) ActorOr(ctx context.Context, input string, fallback *Actor) *Actor {
	a, err := r.Actor(ctx, input)
	if err != nil {
		r.logger.Debug().Err(err).Str("input", input).Msg("using fallback actor")
		return fallback
	}
	return a
}
