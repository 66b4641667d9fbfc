package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/store"
)

// OOBRedirect asks the authorize endpoint to show the code instead of
// redirecting.
const OOBRedirect = "urn:ietf:wg:oauth:2.0:oob"

const (
	maxClientNameLength = 200
	maxScopesLength     = 4096
)

// Registration is the input of POST /api/v1/apps.
type Registration struct {
	ClientName   string
	RedirectUris []string
	Scopes       string
	Website      string
}

// SplitRedirectUris accepts redirect uris given as repeated form values, a
// comma or whitespace separated list, or a mix of both.
func SplitRedirectUris(values []string) []string {
	var uris []string
	for _, v := range values {
		for _, u := range strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
		}) {
			uris = append(uris, u)
		}
	}
	return uris
}

func validRedirectUri(raw string) bool {
	if raw == OOBRedirect {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "javascript", "data", "vbscript", "file":
		return false
	case "http", "https":
		return u.Host != ""
	default:
		return true
	}
}

// validate checks a registration and returns it normalized.
func (r Registration) validate() (Registration, error) {
	var errs ValidationErrors
	r.ClientName = strings.TrimSpace(r.ClientName)
	switch {
	case r.ClientName == "":
		errs = append(errs, ValidationError{"invalid_client_name", "client_name is required"})
	case utf8.RuneCountInString(r.ClientName) > maxClientNameLength:
		errs = append(errs, ValidationError{"invalid_client_name", fmt.Sprintf("client_name must be at most %d characters", maxClientNameLength)})
	}

	uris := SplitRedirectUris(r.RedirectUris)
	if len(uris) == 0 {
		errs = append(errs, ValidationError{"invalid_redirect_uris", "redirect_uris is required"})
	}
	for _, u := range uris {
		if !validRedirectUri(u) {
			errs = append(errs, ValidationError{"invalid_redirect_uris", "invalid redirect uri: " + u})
		}
	}
	r.RedirectUris = uris

	scopes, unknown := NormalizeScopes(r.Scopes)
	if len(unknown) > 0 {
		errs = append(errs, ValidationError{"invalid_scope", "unknown scopes: " + strings.Join(unknown, " ")})
	}
	if len(scopes) > maxScopesLength {
		errs = append(errs, ValidationError{"invalid_scope", fmt.Sprintf("scopes must be at most %d characters", maxScopesLength)})
	}
	r.Scopes = scopes

	r.Website = strings.TrimSpace(r.Website)
	if r.Website != "" {
		if u, err := url.Parse(r.Website); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{"invalid_website", "website must be an http or https url"})
		}
	}

	if len(errs) > 0 {
		return r, errs
	}
	return r, nil
}

// RegisterApp validates and stores a new client.
func (p *Provider) RegisterApp(ctx context.Context, r Registration) (*model.App, error) {
	disabled, err := p.store.BoolOption(ctx, store.OptionDisableLogins)
	if err != nil {
		return nil, err
	}
	if disabled {
		return nil, ErrRegistrationDisabled
	}
	r, err = r.validate()
	if err != nil {
		return nil, err
	}

	postTypes, _, err := p.store.GetOption(ctx, store.OptionDefaultPostTypes)
	if err != nil {
		return nil, err
	}
	app := &model.App{
		ClientId:       p.newSecret(),
		ClientSecret:   p.newSecret() + p.newSecret(),
		ClientName:     r.ClientName,
		RedirectUris:   strings.Join(r.RedirectUris, "\n"),
		Scopes:         r.Scopes,
		Website:        r.Website,
		PostTypes:      postTypes,
		CreatePostType: model.PostTypePost,
	}
	if err := p.store.InsertApp(ctx, app); err != nil {
		return nil, err
	}
	p.logger.Info().Str("client_id", app.ClientId).Str("name", app.ClientName).Msg("registered app")
	return app, nil
}

// lookupClient finds an app. secret is only checked when non-empty. An
// unknown client id is provisioned once while auto re-register is armed.
func (p *Provider) lookupClient(ctx context.Context, clientId, secret, redirectUri string) (*model.App, error) {
	if clientId == "" {
		return nil, ErrInvalidClient
	}
	app, err := p.store.SelectApp(ctx, clientId)
	if errors.Is(err, store.ErrNotFound) {
		app, err = p.reregister(ctx, clientId, secret, redirectUri)
	}
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return app, nil
	}
	// An app re-registered at the authorize step learns its secret here.
	if app.ClientSecret == "" {
		app.ClientSecret = secret
		if err := p.store.UpdateAppSecret(ctx, app.ClientId, secret); err != nil {
			return nil, err
		}
		return app, nil
	}
	if !equalSecret(app.ClientSecret, secret) {
		return nil, ErrInvalidClient
	}
	return app, nil
}

// EnableReregister arms auto re-register for one hour.
func (p *Provider) EnableReregister(ctx context.Context) error {
	return p.store.PutOption(ctx, store.OptionAutoReregister, "1", reregisterWindow)
}

func (p *Provider) reregister(ctx context.Context, clientId, secret, redirectUri string) (*model.App, error) {
	claimed, err := p.store.ClaimOption(ctx, store.OptionAutoReregister)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrInvalidClient
	}
	if redirectUri == "" {
		redirectUri = OOBRedirect
	}
	app := &model.App{
		ClientId:       clientId,
		ClientSecret:   secret,
		ClientName:     "Re-registered app",
		RedirectUris:   redirectUri,
		Scopes:         "read write follow push",
		CreatePostType: model.PostTypePost,
	}
	if err := p.store.InsertApp(ctx, app); err != nil {
		return nil, err
	}
	p.logger.Warn().Str("client_id", clientId).Msg("auto re-registered unknown app")
	return app, nil
}
