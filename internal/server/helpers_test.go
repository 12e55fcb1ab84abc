package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgellow/auth-bridge/internal/authstate"
	"github.com/dgellow/auth-bridge/internal/credential"
	"github.com/dgellow/auth-bridge/internal/githubauth"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testIssuer = "https://auth.example.com"
	testOrigin = "https://app.example.com"
)

// fakeGitHub serves the token and user endpoints and counts calls.
type fakeGitHub struct {
	server     *httptest.Server
	tokenCalls atomic.Int32
	userCalls  atomic.Int32

	tokenStatus int
	tokenBody   any
	userStatus  int
	userBody    any
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{
		tokenStatus: http.StatusOK,
		tokenBody:   map[string]any{"access_token": "T", "token_type": "bearer"},
		userStatus:  http.StatusOK,
		userBody:    map[string]any{"id": 42, "login": "octocat", "email": "e@x.com", "name": "Octo Cat"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		writeTestJSON(w, f.tokenStatus, f.tokenBody)
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		f.userCalls.Add(1)
		writeTestJSON(w, f.userStatus, f.userBody)
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, []any{})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitHub) upstreamCalls() int32 {
	return f.tokenCalls.Load() + f.userCalls.Load()
}

func writeTestJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// testClock is a settable clock shared by the handlers and assertions.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type testBridge struct {
	handler http.Handler
	github  *fakeGitHub
	keys    *credential.KeySet
	clock   *testClock
}

type bridgeOption func(*AuthHandlersConfig)

func withIssuer(issuer CredentialIssuer) bridgeOption {
	return func(c *AuthHandlersConfig) { c.Issuer = issuer }
}

func newTestBridge(t *testing.T, opts ...bridgeOption) *testBridge {
	t.Helper()
	gh := newFakeGitHub(t)

	client, err := githubauth.NewClient(githubauth.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  testIssuer + CallbackPath,
		AuthorizeURL: gh.server.URL + "/login/oauth/authorize",
		TokenURL:     gh.server.URL + "/login/oauth/access_token",
		APIBaseURL:   gh.server.URL,
		HTTPClient:   gh.server.Client(),
	})
	require.NoError(t, err)

	jwk, err := credential.GenerateKey()
	require.NoError(t, err)
	key, err := credential.LoadSigningKey(jwk)
	require.NoError(t, err)
	keys, err := credential.NewKeySet(nil, key)
	require.NoError(t, err)

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	cfg := AuthHandlersConfig{
		GitHub:         client,
		Issuer:         credential.NewIssuer(key, testIssuer, time.Hour),
		Keys:           keys,
		StateSecret:    []byte(testSecret),
		AllowedOrigins: []string{testOrigin},
		DefaultExpire:  time.Hour,
		Now:            clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &testBridge{
		handler: NewRouter(NewAuthHandlers(cfg), cfg.AllowedOrigins),
		github:  gh,
		keys:    keys,
		clock:   clock,
	}
}

func (b *testBridge) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	b.handler.ServeHTTP(w, req)
	return w
}

// login runs the login endpoint and returns the sealed state it produced.
func (b *testBridge) login(t *testing.T, target, app string) string {
	t.Helper()
	w := b.get(t, LoginPath+"?"+url.Values{"target": {target}, "app": {app}}.Encode())
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func (b *testBridge) callback(t *testing.T, state, code string) *httptest.ResponseRecorder {
	t.Helper()
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if code != "" {
		q.Set("code", code)
	}
	return b.get(t, CallbackPath+"?"+q.Encode())
}

// sealState builds and seals a state directly, bypassing the login endpoint.
func sealState(t *testing.T, target, app string, now time.Time) string {
	t.Helper()
	state, err := authstate.New(authstate.LoginParams{Target: target, App: app}, 3600, now)
	require.NoError(t, err)
	sealed, err := authstate.Encode(state, []byte(testSecret))
	require.NoError(t, err)
	return sealed
}

func decodeJSONBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func redirectLocation(t *testing.T, w *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	u, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return u
}
