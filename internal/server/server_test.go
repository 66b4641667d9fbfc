package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/chao7150/wpmastodon/internal/config"
	"github.com/chao7150/wpmastodon/internal/idmap"
	"github.com/chao7150/wpmastodon/internal/media"
	"github.com/chao7150/wpmastodon/internal/model"
	"github.com/chao7150/wpmastodon/internal/oauth"
	"github.com/chao7150/wpmastodon/internal/projection"
	"github.com/chao7150/wpmastodon/internal/store"
	"github.com/chao7150/wpmastodon/internal/testutil"
	"github.com/chao7150/wpmastodon/internal/timeline"
)

type testEnv struct {
	srv     *Server
	store   *store.Store
	oauth   *oauth.Provider
	cookies map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, _ := testutil.NewTestStore(t)
	cfg := config.Default()
	cfg.Server.BaseURL = "https://blog.example.org"
	cfg.Site.Domain = "blog.example.org"
	cfg.Site.Title = "Test Blog"
	cfg.OAuth.SessionSecret = "test-secret"
	cfg.Media.BaseURL = "https://blog.example.org/uploads"

	proj := projection.New(s, idmap.New(s), projection.Options{
		BaseURL:  cfg.Server.BaseURL,
		Domain:   cfg.Site.Domain,
		Language: "en",
		Logger:   zerolog.Nop(),
	})
	provider := oauth.New(s, cfg.OAuth, zerolog.Nop())
	srv := New(Deps{
		Config:    cfg,
		Store:     s,
		Projector: proj,
		Timeline:  timeline.New(s, proj, zerolog.Nop()),
		OAuth:     provider,
		Sessions:  oauth.NewSessions(s, cfg.OAuth.SessionSecret),
		Media:     media.NewLibrary(media.NewMemoryStore(), s, cfg.Media.BaseURL),
		Logger:    zerolog.Nop(),
	})
	return &testEnv{srv: srv, store: s, oauth: provider, cookies: map[string]string{}}
}

// serve runs req through the handler, carrying cookies between calls.
func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	for name, value := range e.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		e.cookies[c.Name] = c.Value
	}
	return rec
}

func (e *testEnv) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.serve(req)
}

func (e *testEnv) postForm(path string, form url.Values, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.serve(req)
}

func (e *testEnv) postJSON(path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.serve(req)
}

// token issues a token for user through the provider.
func (e *testEnv) token(t *testing.T, user *model.User, scope string) string {
	t.Helper()
	ctx := context.Background()
	app, err := e.oauth.RegisterApp(ctx, oauth.Registration{
		ClientName:   "T",
		RedirectUris: []string{oauth.OOBRedirect},
		Scopes:       "read write follow",
	})
	if err != nil {
		t.Fatalf("RegisterApp() error = %v", err)
	}
	code, err := e.oauth.IssueCode(ctx, app, user, oauth.OOBRedirect, scope)
	if err != nil {
		t.Fatalf("IssueCode() error = %v", err)
	}
	tok, err := e.oauth.Exchange(ctx, oauth.TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectUri:  oauth.OOBRedirect,
		ClientId:     app.ClientId,
		ClientSecret: app.ClientSecret,
	})
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	return tok.AccessToken
}

var (
	csrfPattern = regexp.MustCompile(`name="csrf" value="([^"]*)"`)
	codePattern = regexp.MustCompile(`<code id="code">([^<]+)</code>`)
)

func submatch(t *testing.T, re *regexp.Regexp, body string) string {
	t.Helper()
	m := re.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("%s not found in:\n%s", re, body)
	}
	return m[1]
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func wantError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	wantStatus(t, rec, status)
	if got := gjson.Get(rec.Body.String(), "error").String(); got != code {
		t.Errorf("error = %q, want %q", got, code)
	}
}

func TestOAuthFlowToHomeTimeline(t *testing.T) {
	e := newTestEnv(t)
	admin := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	testutil.AddPost(t, e.store, admin, "<p>first post</p>", 1)

	rec := e.postForm("/api/v1/apps", url.Values{
		"client_name":   {"T"},
		"redirect_uris": {oauth.OOBRedirect},
		"scopes":        {"read write"},
	}, "")
	wantStatus(t, rec, http.StatusOK)
	clientId := gjson.Get(rec.Body.String(), "client_id").String()
	clientSecret := gjson.Get(rec.Body.String(), "client_secret").String()
	if clientId == "" || clientSecret == "" {
		t.Fatalf("registration missing credentials: %s", rec.Body.String())
	}

	authorize := "/oauth/authorize?" + url.Values{
		"response_type": {"code"},
		"client_id":     {clientId},
		"redirect_uri":  {oauth.OOBRedirect},
		"scope":         {"read write"},
	}.Encode()

	rec = e.get(authorize, "")
	wantStatus(t, rec, http.StatusFound)
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/login?redirect_to=") {
		t.Fatalf("Location = %q, want login redirect", loc)
	}

	rec = e.get("/login?redirect_to="+url.QueryEscape(authorize), "")
	wantStatus(t, rec, http.StatusOK)
	rec = e.postForm("/login", url.Values{
		"csrf":        {submatch(t, csrfPattern, rec.Body.String())},
		"log":         {"admin"},
		"pwd":         {testutil.Password},
		"redirect_to": {authorize},
	}, "")
	wantStatus(t, rec, http.StatusFound)
	if got := rec.Header().Get("Location"); got != authorize {
		t.Errorf("Location = %q, want %q", got, authorize)
	}

	rec = e.get(authorize, "")
	wantStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Authorize T") {
		t.Errorf("consent page does not name the app: %s", rec.Body.String())
	}
	rec = e.postForm("/oauth/authorize", url.Values{
		"csrf":          {submatch(t, csrfPattern, rec.Body.String())},
		"response_type": {"code"},
		"client_id":     {clientId},
		"redirect_uri":  {oauth.OOBRedirect},
		"scope":         {"read write"},
		"authorize":     {"Authorize"},
	}, "")
	wantStatus(t, rec, http.StatusOK)
	code := submatch(t, codePattern, rec.Body.String())

	rec = e.postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {oauth.OOBRedirect},
		"client_id":     {clientId},
		"client_secret": {clientSecret},
	}, "")
	wantStatus(t, rec, http.StatusOK)
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	token := gjson.Get(rec.Body.String(), "access_token").String()
	if token == "" {
		t.Fatalf("no access_token in %s", rec.Body.String())
	}

	rec = e.get("/api/v1/timelines/home", token)
	wantStatus(t, rec, http.StatusOK)
	first := gjson.Get(rec.Body.String(), "0")
	if !first.Exists() {
		t.Fatalf("home timeline is empty: %s", rec.Body.String())
	}
	if acct := first.Get("account.acct").String(); acct == "" {
		t.Errorf("account.acct is empty")
	}
	if !regexp.MustCompile(`^[0-9]+$`).MatchString(first.Get("id").String()) {
		t.Errorf("id = %q, want numeric", first.Get("id").String())
	}

	// The code is single use.
	rec = e.postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {clientId},
		"client_secret": {clientSecret},
	}, "")
	wantError(t, rec, http.StatusBadRequest, "invalid_grant")
}

func TestAuthorizeCancel(t *testing.T) {
	e := newTestEnv(t)
	admin := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	token, err := e.srv.sessions.Issue(admin)
	if err != nil {
		t.Fatal(err)
	}
	e.cookies[oauth.SessionCookie] = token
	app, err := e.oauth.RegisterApp(context.Background(), oauth.Registration{
		ClientName:   "T",
		RedirectUris: []string{"https://app.example/cb"},
		Scopes:       "read",
	})
	if err != nil {
		t.Fatal(err)
	}
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {app.ClientId},
		"redirect_uri":  {"https://app.example/cb"},
		"state":         {"xyz"},
	}
	rec := e.get("/oauth/authorize?"+q.Encode(), "")
	wantStatus(t, rec, http.StatusOK)
	q.Set("csrf", submatch(t, csrfPattern, rec.Body.String()))

	q.Set("cancel", "Cancel")
	rec = e.postForm("/oauth/authorize", q, "")
	wantError(t, rec, http.StatusForbidden, "consent_required")

	q.Del("cancel")
	q.Set("authorize", "Authorize")
	rec = e.postForm("/oauth/authorize", q, "")
	wantStatus(t, rec, http.StatusFound)
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Host != "app.example" || loc.Query().Get("code") == "" || loc.Query().Get("state") != "xyz" {
		t.Errorf("Location = %s, want callback with code and state", loc)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	e := newTestEnv(t)
	testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	rec := e.get("/login", "")
	rec = e.postForm("/login", url.Values{
		"csrf": {submatch(t, csrfPattern, rec.Body.String())},
		"log":  {"admin"},
		"pwd":  {"wrong"},
	}, "")
	wantStatus(t, rec, http.StatusUnauthorized)
	if _, ok := e.cookies[oauth.SessionCookie]; ok {
		t.Error("session cookie set after failed login")
	}
}

func TestLoginRequiresCSRF(t *testing.T) {
	e := newTestEnv(t)
	testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	rec := e.postForm("/login", url.Values{"log": {"admin"}, "pwd": {testutil.Password}}, "")
	if rec.Code == http.StatusFound {
		t.Fatalf("login without csrf token succeeded")
	}
}

func TestErrorResponses(t *testing.T) {
	e := newTestEnv(t)
	user := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	readOnly := e.token(t, user, "read")

	tests := []struct {
		name   string
		rec    *httptest.ResponseRecorder
		status int
		code   string
	}{
		{"missing token", e.get("/api/v1/timelines/home", ""), http.StatusUnauthorized, "token-required"},
		{"invalid token", e.get("/api/v1/timelines/home", "bogus"), http.StatusUnauthorized, "token-required"},
		{"insufficient scope", e.postForm("/api/v1/statuses", url.Values{"status": {"hi"}}, readOnly), http.StatusUnauthorized, "insufficient-permissions"},
		{"unknown status", e.get("/api/v1/statuses/999", readOnly), http.StatusNotFound, "record-not-found"},
		{"streaming", e.get("/api/v1/streaming/user", readOnly), http.StatusNotFound, "streaming-unsupported"},
		{"bad app", e.postForm("/api/v1/apps", url.Values{"client_name": {"X"}}, ""), http.StatusUnprocessableEntity, "invalid_redirect_uris"},
		{"bad json", e.postJSON("/api/v1/apps", "{", ""), http.StatusUnprocessableEntity, "validation-failed"},
		{"unsupported grant", e.postForm("/oauth/token", url.Values{"grant_type": {"password"}}, ""), http.StatusBadRequest, "unsupported_grant_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantError(t, tt.rec, tt.status, tt.code)
			if tt.rec.Header().Get("X-Request-Id") == "" {
				t.Error("X-Request-Id header missing")
			}
		})
	}
}

func TestClientCredentialsTokenHasNoUser(t *testing.T) {
	e := newTestEnv(t)
	rec := e.postJSON("/api/v1/apps", `{"client_name":"T","redirect_uris":"`+oauth.OOBRedirect+`","scopes":"read"}`, "")
	wantStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	rec = e.postForm("/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {gjson.Get(body, "client_id").String()},
		"client_secret": {gjson.Get(body, "client_secret").String()},
		"scope":         {"read"},
	}, "")
	wantStatus(t, rec, http.StatusOK)
	token := gjson.Get(rec.Body.String(), "access_token").String()

	rec = e.get("/api/v1/apps/verify_credentials", token)
	wantStatus(t, rec, http.StatusOK)
	if got := gjson.Get(rec.Body.String(), "name").String(); got != "T" {
		t.Errorf("name = %q, want T", got)
	}
	wantError(t, e.get("/api/v1/accounts/verify_credentials", token), http.StatusUnprocessableEntity, "user-required")
	wantStatus(t, e.get("/api/v1/timelines/public", token), http.StatusOK)
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/timelines/public", nil)
	req.Header.Set("Origin", "https://client.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	rec := e.serve(req)
	wantStatus(t, rec, http.StatusNoContent)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://client.example" && got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestPostStatus(t *testing.T) {
	e := newTestEnv(t)
	user := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	token := e.token(t, user, "read write")

	rec := e.postForm("/api/v1/statuses", url.Values{"status": {"Hello **world** #golang"}}, token)
	wantStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	if got := gjson.Get(body, "content").String(); !strings.Contains(got, "<strong>world</strong>") {
		t.Errorf("content = %q, want rendered markdown", got)
	}
	if got := gjson.Get(body, "visibility").String(); got != "public" {
		t.Errorf("visibility = %q, want public", got)
	}
	id := gjson.Get(body, "id").String()

	rec = e.get("/api/v1/timelines/tag/golang", token)
	wantStatus(t, rec, http.StatusOK)
	if got := gjson.Get(rec.Body.String(), "0.id").String(); got != id {
		t.Errorf("tag timeline first id = %q, want %q", got, id)
	}

	rec = e.postForm("/api/v1/statuses", url.Values{"status": {"a reply"}, "in_reply_to_id": {id}}, token)
	wantStatus(t, rec, http.StatusOK)
	reply := rec.Body.String()
	if got := gjson.Get(reply, "in_reply_to_id").String(); got != id {
		t.Errorf("in_reply_to_id = %q, want %q", got, id)
	}

	rec = e.get("/api/v1/statuses/"+id+"/context", token)
	wantStatus(t, rec, http.StatusOK)
	if got := gjson.Get(rec.Body.String(), "descendants.0.id").String(); got != gjson.Get(reply, "id").String() {
		t.Errorf("descendants[0].id = %q, want the reply", got)
	}

	wantError(t, e.postForm("/api/v1/statuses", url.Values{"status": {"  "}}, token), http.StatusUnprocessableEntity, "validation-failed")
}

func TestPrivateStatusHiddenFromAnonymous(t *testing.T) {
	e := newTestEnv(t)
	user := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	token := e.token(t, user, "read write")

	rec := e.postForm("/api/v1/statuses", url.Values{"status": {"secret"}, "visibility": {"private"}}, token)
	wantStatus(t, rec, http.StatusOK)
	id := gjson.Get(rec.Body.String(), "id").String()

	wantStatus(t, e.get("/api/v1/statuses/"+id, token), http.StatusOK)
	wantError(t, e.get("/api/v1/statuses/"+id, ""), http.StatusNotFound, "record-not-found")
}

func TestDeleteStatus(t *testing.T) {
	e := newTestEnv(t)
	owner := testutil.AddUser(t, e.store, "owner", model.RoleAuthor)
	other := testutil.AddUser(t, e.store, "other", model.RoleAuthor)
	post := testutil.AddPost(t, e.store, owner, "<p>mine</p>", 1)
	path := fmt.Sprintf("/api/v1/statuses/%d", post.Id)

	req := httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer "+e.token(t, other, "write"))
	wantError(t, e.serve(req), http.StatusForbidden, "forbidden")

	req = httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer "+e.token(t, owner, "write"))
	wantStatus(t, e.serve(req), http.StatusOK)

	got, err := e.store.SelectPost(context.Background(), post.Id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusTrash {
		t.Errorf("status = %q, want trash", got.Status)
	}
}

func TestTimelinePagination(t *testing.T) {
	e := newTestEnv(t)
	user := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	for i := 1; i <= 3; i++ {
		testutil.AddPost(t, e.store, user, fmt.Sprintf("<p>post %d</p>", i), i)
	}
	rec := e.get("/api/v1/timelines/public?limit=2", "")
	wantStatus(t, rec, http.StatusOK)
	if n := len(gjson.Get(rec.Body.String(), "@this").Array()); n != 2 {
		t.Fatalf("got %d statuses, want 2", n)
	}
	link := rec.Header().Get("Link")
	if !strings.Contains(link, `rel="next"`) || !strings.Contains(link, "max_id=") {
		t.Errorf("Link = %q, want next page with max_id", link)
	}
}

func TestFavourite(t *testing.T) {
	e := newTestEnv(t)
	user := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	post := testutil.AddPost(t, e.store, user, "<p>like me</p>", 1)
	token := e.token(t, user, "read write")
	path := fmt.Sprintf("/api/v1/statuses/%d/", post.Id)

	rec := e.postForm(path+"favourite", nil, token)
	wantStatus(t, rec, http.StatusOK)
	if !gjson.Get(rec.Body.String(), "favourited").Bool() {
		t.Errorf("favourited = false after favourite")
	}
	rec = e.postForm(path+"unfavourite", nil, token)
	wantStatus(t, rec, http.StatusOK)
	if gjson.Get(rec.Body.String(), "favourited").Bool() {
		t.Errorf("favourited = true after unfavourite")
	}
}

func TestAccounts(t *testing.T) {
	e := newTestEnv(t)
	admin := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	other := testutil.AddUser(t, e.store, "other", model.RoleAuthor)
	token := e.token(t, admin, "read write follow")

	rec := e.get("/api/v1/accounts/verify_credentials", token)
	wantStatus(t, rec, http.StatusOK)
	if got := gjson.Get(rec.Body.String(), "username").String(); got != "admin" {
		t.Errorf("username = %q, want admin", got)
	}

	rec = e.get("/api/v1/accounts/lookup?acct=other@blog.example.org", "")
	wantStatus(t, rec, http.StatusOK)
	otherId := gjson.Get(rec.Body.String(), "id").String()
	if otherId != fmt.Sprint(other.Id) {
		t.Errorf("lookup id = %q, want %d", otherId, other.Id)
	}

	rec = e.postForm("/api/v1/accounts/"+otherId+"/follow", nil, token)
	wantStatus(t, rec, http.StatusOK)
	if !gjson.Get(rec.Body.String(), "following").Bool() {
		t.Errorf("following = false after follow")
	}
	rec = e.get("/api/v1/accounts/relationships?id[]="+otherId, token)
	wantStatus(t, rec, http.StatusOK)
	if !gjson.Get(rec.Body.String(), "0.following").Bool() {
		t.Errorf("relationship following = false: %s", rec.Body.String())
	}

	wantError(t, e.postForm(fmt.Sprintf("/api/v1/accounts/%d/follow", admin.Id), nil, token), http.StatusUnprocessableEntity, "validation-failed")
	wantError(t, e.get("/api/v1/accounts/lookup?acct=nobody", ""), http.StatusNotFound, "record-not-found")
}

func TestSearch(t *testing.T) {
	e := newTestEnv(t)
	user := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	token := e.token(t, user, "read write")
	wantStatus(t, e.postForm("/api/v1/statuses", url.Values{"status": {"searchable words #findme"}}, token), http.StatusOK)

	rec := e.get("/api/v2/search?q=searchable", token)
	wantStatus(t, rec, http.StatusOK)
	if n := len(gjson.Get(rec.Body.String(), "statuses").Array()); n != 1 {
		t.Errorf("got %d statuses, want 1", n)
	}

	rec = e.get("/api/v2/search?q=%23find&type=hashtags", token)
	wantStatus(t, rec, http.StatusOK)
	if got := gjson.Get(rec.Body.String(), "hashtags.0.name").String(); got != "findme" {
		t.Errorf("hashtag = %q, want findme", got)
	}
	if !gjson.Get(rec.Body.String(), "accounts").IsArray() {
		t.Errorf("accounts is not a list: %s", rec.Body.String())
	}

	rec = e.get("/api/v2/search?q=adm&type=accounts", token)
	wantStatus(t, rec, http.StatusOK)
	if got := gjson.Get(rec.Body.String(), "accounts.0.username").String(); got != "admin" {
		t.Errorf("account = %q, want admin", got)
	}
}

func uploadRequest(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.WriteField("description", "a pixel")
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/media", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestMediaUpload(t *testing.T) {
	e := newTestEnv(t)
	user := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	token := e.token(t, user, "read write")
	data := []byte("\x89PNG fake image")

	req := uploadRequest(t, "pixel.png", "image/png", data)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := e.serve(req)
	wantStatus(t, rec, http.StatusOK)
	att := rec.Body.String()
	if got := gjson.Get(att, "type").String(); got != "image" {
		t.Errorf("type = %q, want image", got)
	}
	if got := gjson.Get(att, "description").String(); got != "a pixel" {
		t.Errorf("description = %q, want a pixel", got)
	}

	fileURL, err := url.Parse(gjson.Get(att, "url").String())
	if err != nil {
		t.Fatal(err)
	}
	rec = e.get(fileURL.Path, "")
	wantStatus(t, rec, http.StatusOK)
	if got, _ := io.ReadAll(rec.Body); !bytes.Equal(got, data) {
		t.Errorf("served %q, want %q", got, data)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", got)
	}

	rec = e.postForm("/api/v1/statuses", url.Values{
		"status":      {"with a picture"},
		"media_ids[]": {gjson.Get(att, "id").String()},
	}, token)
	wantStatus(t, rec, http.StatusOK)
	if n := len(gjson.Get(rec.Body.String(), "media_attachments").Array()); n != 1 {
		t.Errorf("got %d attachments, want 1", n)
	}

	req = uploadRequest(t, "notes.txt", "text/plain", []byte("text"))
	req.Header.Set("Authorization", "Bearer "+token)
	wantError(t, e.serve(req), http.StatusUnprocessableEntity, "validation-failed")

	wantStatus(t, e.get("/uploads/2024/01/missing.png", ""), http.StatusNotFound)
}

func TestNotifications(t *testing.T) {
	e := newTestEnv(t)
	user := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	post := testutil.AddPost(t, e.store, user, "<p>hello</p>", 1)
	testutil.AddComment(t, e.store, post, "visitor", "nice post", 2)
	token := e.token(t, user, "read write")

	rec := e.get("/api/v1/notifications", token)
	wantStatus(t, rec, http.StatusOK)
	first := gjson.Get(rec.Body.String(), "0")
	if got := first.Get("type").String(); got != "mention" {
		t.Fatalf("type = %q, want mention: %s", got, rec.Body.String())
	}
	id := first.Get("id").String()

	wantStatus(t, e.get("/api/v1/notifications/"+id, token), http.StatusOK)
	wantStatus(t, e.postForm("/api/v1/notifications/"+id+"/dismiss", nil, token), http.StatusOK)

	rec = e.get("/api/v1/notifications", token)
	wantStatus(t, rec, http.StatusOK)
	if n := len(gjson.Get(rec.Body.String(), "@this").Array()); n != 0 {
		t.Errorf("got %d notifications after dismiss, want 0", n)
	}
}

func TestInstance(t *testing.T) {
	e := newTestEnv(t)
	user := testutil.AddUser(t, e.store, "admin", model.RoleAdministrator)
	testutil.AddPost(t, e.store, user, "<p>one</p>", 1)

	rec := e.get("/api/v1/instance", "")
	wantStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	if got := gjson.Get(body, "uri").String(); got != "blog.example.org" {
		t.Errorf("uri = %q", got)
	}
	if got := gjson.Get(body, "stats.user_count").Int(); got != 1 {
		t.Errorf("user_count = %d, want 1", got)
	}
	if got := gjson.Get(body, "stats.status_count").Int(); got != 1 {
		t.Errorf("status_count = %d, want 1", got)
	}
	if !strings.HasPrefix(gjson.Get(body, "version").String(), "4.") {
		t.Errorf("version = %q, want Mastodon 4 compatible", gjson.Get(body, "version").String())
	}

	rec = e.get("/api/v2/instance", "")
	wantStatus(t, rec, http.StatusOK)
	if got := gjson.Get(rec.Body.String(), "domain").String(); got != "blog.example.org" {
		t.Errorf("domain = %q", got)
	}

	rec = e.get("/.well-known/nodeinfo", "")
	wantStatus(t, rec, http.StatusOK)
	if got := gjson.Get(rec.Body.String(), "links.0.href").String(); got != "https://blog.example.org/nodeinfo/2.0" {
		t.Errorf("href = %q", got)
	}
	rec = e.get("/nodeinfo/2.0", "")
	wantStatus(t, rec, http.StatusOK)
	if got := gjson.Get(rec.Body.String(), "usage.localPosts").Int(); got != 1 {
		t.Errorf("localPosts = %d, want 1", got)
	}
}

func TestStubEndpoints(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/api/v1/custom_emojis", "/api/v1/filters", "/api/v1/lists", "/api/v1/trends"} {
		rec := e.get(path, "")
		wantStatus(t, rec, http.StatusOK)
		if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
			t.Errorf("%s = %s, want []", path, got)
		}
	}
}
