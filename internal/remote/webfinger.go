package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	handlePattern      = regexp.MustCompile(`^@?([^@\s/:]+)@([^@\s/]+)$`)
	profilePathPattern = regexp.MustCompile(`^/(?:@|users/|author/)([^/@]+)/?$`)
)

// ErrNotHandle is returned for input that is neither a handle nor a URL.
var ErrNotHandle = errors.New("not a handle or profile url")

// Handle is a user@host reference.
type Handle struct {
	User string
	Host string
}

func (h Handle) String() string {
	return h.User + "@" + h.Host
}

// ParseHandle accepts user@host (optionally prefixed with @) and profile
// URLs of the form /@user, /users/user and /author/user.
func ParseHandle(input string) (Handle, bool) {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "acct:")
	if m := handlePattern.FindStringSubmatch(input); m != nil {
		return Handle{User: m[1], Host: strings.ToLower(m[2])}, true
	}
	u, err := url.Parse(input)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Handle{}, false
	}
	if m := profilePathPattern.FindStringSubmatch(u.Path); m != nil {
		return Handle{User: m[1], Host: strings.ToLower(u.Host)}, true
	}
	return Handle{}, false
}

// WebfingerResult is the useful part of a JRD response.
type WebfingerResult struct {
	Subject     string   `json:"subject"`
	Self        string   `json:"self"`
	ProfilePage string   `json:"profile_page,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

func parseWebfinger(body []byte) (*WebfingerResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid webfinger response")
	}
	doc := gjson.ParseBytes(body)
	res := &WebfingerResult{Subject: doc.Get("subject").String()}
	for _, alias := range doc.Get("aliases").Array() {
		res.Aliases = append(res.Aliases, alias.String())
	}
	for _, link := range doc.Get("links").Array() {
		rel := link.Get("rel").String()
		typ := link.Get("type").String()
		href := link.Get("href").String()
		switch {
		case rel == "self" && res.Self == "" && (typ == activityJSON || strings.HasPrefix(typ, "application/ld+json")):
			res.Self = href
		case rel == "http://webfinger.net/rel/profile-page" && res.ProfilePage == "":
			res.ProfilePage = href
		}
	}
	if res.Self == "" && len(res.Aliases) > 0 {
		res.Self = res.Aliases[0]
	}
	if res.Self == "" {
		return nil, fmt.Errorf("webfinger response for %q has no actor link", res.Subject)
	}
	return res, nil
}

// Webfinger resolves a handle or profile URL through the host's WebFinger
// endpoint. Successes are cached for WebfingerTTL and failures for
// NegativeTTL.
func (r *Resolver) Webfinger(ctx context.Context, input string) (*WebfingerResult, error) {
	h, ok := ParseHandle(input)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotHandle, input)
	}
	resource := "acct:" + h.String()
	key := cacheKey("remote_wf_", resource)
	if e, ok := r.readEntry(ctx, key); ok {
		if e.Failed {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, resource)
		}
		if res, err := parseWebfinger(e.Body); err == nil {
			return res, nil
		}
	}

	endpoint := r.scheme + "://" + h.Host + "/.well-known/webfinger?resource=" + url.QueryEscape(resource)
	fetchCtx, cancel := context.WithTimeout(ctx, r.metadataTimeout)
	defer cancel()
	body, err := r.hGetDocument(fetchCtx, endpoint, "application/jrd+json, application/json")
	if err != nil {
		if errors.Is(err, ErrForbiddenHost) {
			return nil, err
		}
		r.logger.Debug().Err(err).Str("resource", resource).Msg("webfinger failed")
		r.writeEntry(ctx, key, cacheEntry{Failed: true}, NegativeTTL)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	res, err := parseWebfinger(body)
	if err != nil {
		r.writeEntry(ctx, key, cacheEntry{Failed: true}, NegativeTTL)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	r.writeEntry(ctx, key, cacheEntry{Body: body}, WebfingerTTL)
	return res, nil
}

// ResolveActorURL returns the ActivityPub actor url for a handle or profile
// URL. Any other absolute URL is taken to be the actor url already.
func (r *Resolver) ResolveActorURL(ctx context.Context, input string) (string, error) {
	if _, ok := ParseHandle(input); ok {
		res, err := r.Webfinger(ctx, input)
		if err != nil {
			return "", err
		}
		return res.Self, nil
	}
	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrNotHandle, input)
	}
	return u.String(), nil
}
