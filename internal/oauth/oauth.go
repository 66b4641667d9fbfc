// Package oauth implements the OAuth2 authorization code and client
// credentials flows for registered Mastodon clients.
//
// A flow moves from an unauthenticated request through the consent page to
// an issued code, which the token endpoint redeems exactly once for a
// bearer token. Tokens end by expiring or by being revoked.
package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chao7150/wpmastodon/internal/config"
	"github.com/chao7150/wpmastodon/internal/mastodon"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/store"
)

const (
	// lastUsedInterval bounds how often token and app usage is written.
	lastUsedInterval = time.Minute
	reregisterWindow = time.Hour
	// sweepGrace keeps expired codes and tokens around before deletion.
	sweepGrace = 24 * time.Hour
)

// Grant types accepted by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
)

type Provider struct {
	store         *store.Store
	logger        zerolog.Logger
	tokenLifetime time.Duration
	codeLifetime  time.Duration
}

func New(s *store.Store, cfg config.OAuthConfig, logger zerolog.Logger) *Provider {
	p := &Provider{
		store:         s,
		logger:        logger,
		tokenLifetime: cfg.TokenLifetime.Duration,
		codeLifetime:  cfg.CodeLifetime.Duration,
	}
	if p.tokenLifetime <= 0 {
		p.tokenLifetime = 2 * 365 * 24 * time.Hour
	}
	if p.codeLifetime <= 0 {
		p.codeLifetime = 24 * time.Hour
	}
	return p
}

func (p *Provider) newSecret() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func equalSecret(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// AppRegistration is the response body of a successful registration.
func AppRegistration(app *model.App) mastodon.AppRegistration {
	r := mastodon.AppRegistration{
		Id:           app.ClientId,
		Name:         app.ClientName,
		RedirectUri:  strings.Join(app.RedirectUriList(), "\n"),
		ClientId:     app.ClientId,
		ClientSecret: app.ClientSecret,
	}
	if app.Website != "" {
		r.Website = &app.Website
	}
	return r
}

// AuthorizeRequest carries the query of GET /oauth/authorize.
type AuthorizeRequest struct {
	ResponseType string
	ClientId     string
	RedirectUri  string
	Scope        string
	State        string
}

// CheckAuthorize validates an authorization request and returns the app and
// the scope that will be granted.
func (p *Provider) CheckAuthorize(ctx context.Context, r AuthorizeRequest) (*model.App, string, error) {
	if r.ResponseType != "code" {
		return nil, "", ErrUnsupportedResponse
	}
	app, err := p.lookupClient(ctx, r.ClientId, "", r.RedirectUri)
	if err != nil {
		return nil, "", err
	}
	if r.RedirectUri == "" || !slices.Contains(app.RedirectUriList(), r.RedirectUri) {
		return nil, "", ErrInvalidRequest
	}
	scope := app.Scopes
	if strings.TrimSpace(r.Scope) != "" {
		normalized, unknown := NormalizeScopes(r.Scope)
		if len(unknown) > 0 || !SatisfiesAll(normalized, app.Scopes) {
			return nil, "", ErrInvalidScope
		}
		scope = normalized
	}
	return app, scope, nil
}

// IssueCode records the consent of user and returns a one-time code.
func (p *Provider) IssueCode(ctx context.Context, app *model.App, user *model.User, redirectUri, scope string) (string, error) {
	if !user.CanManagePrivate() {
		return "", ErrCapability
	}
	code := &model.AuthCode{
		Code:        p.newSecret() + p.newSecret(),
		ClientId:    app.ClientId,
		UserId:      user.Id,
		RedirectUri: redirectUri,
		Scope:       scope,
		Expires:     p.store.Now().Add(p.codeLifetime).Unix(),
	}
	if err := p.store.InsertAuthCode(ctx, code); err != nil {
		return "", err
	}
	return code.Code, nil
}

// TokenRequest carries the form of POST /oauth/token.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectUri  string
	ClientId     string
	ClientSecret string
	Scope        string
}

// Exchange redeems a code or client credentials for a bearer token.
func (p *Provider) Exchange(ctx context.Context, r TokenRequest) (*mastodon.Token, error) {
	switch r.GrantType {
	case GrantAuthorizationCode:
		return p.exchangeCode(ctx, r)
	case GrantClientCredentials:
		return p.exchangeClientCredentials(ctx, r)
	default:
		return nil, ErrUnsupportedGrantType
	}
}

func (p *Provider) exchangeCode(ctx context.Context, r TokenRequest) (*mastodon.Token, error) {
	if r.Code == "" || r.ClientSecret == "" {
		return nil, ErrInvalidRequest
	}
	app, err := p.lookupClient(ctx, r.ClientId, r.ClientSecret, r.RedirectUri)
	if err != nil {
		return nil, err
	}
	code, err := p.store.SelectAuthCode(ctx, r.Code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	if code.ClientId != app.ClientId || (r.RedirectUri != "" && r.RedirectUri != code.RedirectUri) {
		return nil, ErrInvalidGrant
	}
	claimed, err := p.store.ClaimAuthCode(ctx, r.Code)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrInvalidGrant
	}
	return p.issueToken(ctx, app, code.UserId, code.Scope)
}

func (p *Provider) exchangeClientCredentials(ctx context.Context, r TokenRequest) (*mastodon.Token, error) {
	if r.ClientSecret == "" {
		return nil, ErrInvalidClient
	}
	app, err := p.lookupClient(ctx, r.ClientId, r.ClientSecret, "")
	if err != nil {
		return nil, err
	}
	scope := app.Scopes
	if strings.TrimSpace(r.Scope) != "" {
		normalized, unknown := NormalizeScopes(r.Scope)
		if len(unknown) > 0 || !SatisfiesAll(normalized, app.Scopes) {
			return nil, ErrInvalidScope
		}
		scope = normalized
	}
	return p.issueToken(ctx, app, 0, scope)
}

func (p *Provider) issueToken(ctx context.Context, app *model.App, userId int64, scope string) (*mastodon.Token, error) {
	now := p.store.Now()
	token := &model.AccessToken{
		AccessToken: p.newSecret() + p.newSecret(),
		ClientId:    app.ClientId,
		UserId:      userId,
		Scope:       scope,
		Expires:     now.Add(p.tokenLifetime).Unix(),
		LastUsed:    now.Unix(),
		CreatedAt:   now,
	}
	if err := p.store.InsertAccessToken(ctx, token); err != nil {
		return nil, err
	}
	p.logger.Info().Str("client_id", app.ClientId).Int64("user_id", userId).Str("scope", scope).Msg("issued access token")
	return &mastodon.Token{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
		Scope:       scope,
		CreatedAt:   now.Unix(),
	}, nil
}

// Revoke deletes a token of the authenticated client. Unknown tokens are
// not an error.
func (p *Provider) Revoke(ctx context.Context, clientId, clientSecret, token string) error {
	if clientSecret == "" {
		return ErrInvalidClient
	}
	app, err := p.lookupClient(ctx, clientId, clientSecret, "")
	if err != nil {
		return err
	}
	row, err := p.store.SelectAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if row.ClientId != app.ClientId {
		return ErrAccessDenied
	}
	_, err = p.store.DeleteAccessToken(ctx, token)
	return err
}

// Grant is what a valid bearer token stands for. User is nil for client
// credentials tokens.
type Grant struct {
	Token *model.AccessToken
	App   *model.App
	User  *model.User
}

// Allows reports whether the grant covers the required scope.
func (g *Grant) Allows(required string) bool {
	return g != nil && Satisfies(required, g.Token.Scope)
}

// Authenticate resolves a bearer token. Every failure is ErrInvalidToken.
func (p *Provider) Authenticate(ctx context.Context, bearer string) (*Grant, error) {
	if bearer == "" {
		return nil, ErrInvalidToken
	}
	token, err := p.store.SelectAccessToken(ctx, bearer)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	now := p.store.Now()
	if token.Expires != 0 && token.Expires <= now.Unix() {
		return nil, ErrInvalidToken
	}
	app, err := p.store.SelectApp(ctx, token.ClientId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	g := &Grant{Token: token, App: app}
	if token.UserId != 0 {
		if g.User, err = p.store.SelectUser(ctx, token.UserId); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrInvalidToken
			}
			return nil, err
		}
	}
	if now.Unix()-token.LastUsed >= int64(lastUsedInterval/time.Second) {
		if err := p.store.UpdateAccessTokenLastUsed(ctx, token.AccessToken, now.Unix()); err != nil {
			return nil, err
		}
		if err := p.store.UpdateAppLastUsed(ctx, app.ClientId, now); err != nil {
			return nil, err
		}
		token.LastUsed = now.Unix()
	}
	return g, nil
}
