package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/cache"
)

func tokenServer(t *testing.T, body string, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func oauthCreds() StaticCredentials {
	return StaticCredentials{
		"OAUTH_CLIENT_ID_OAUTH":     "client",
		"OAUTH_CLIENT_SECRET_OAUTH": "secret",
	}
}

func TestResolve_SecondSetApplied(t *testing.T) {
	schemes := map[string]Scheme{
		"bearerAuth": HTTPBearerScheme{},
		"apiKey":     APIKeyScheme{Name: "X-API-Key", In: "header"},
	}
	reqs := []RequirementSet{{"bearerAuth": {}}, {"apiKey": {}}}
	r := NewResolver(StaticCredentials{"API_KEY_APIKEY": "k1"}, zap.NewNop())

	applied := r.Resolve(context.Background(), reqs, schemes)
	assert.Equal(t, map[string]string{"x-api-key": "k1"}, applied.Headers)
}

func TestResolve_AllSchemesOfASetRequired(t *testing.T) {
	schemes := map[string]Scheme{
		"a": APIKeyScheme{Name: "A", In: "header"},
		"b": APIKeyScheme{Name: "b", In: "query"},
	}
	creds := StaticCredentials{"API_KEY_A": "1"}
	r := NewResolver(creds, zap.NewNop())

	assert.True(t, r.Resolve(context.Background(), []RequirementSet{{"a": {}, "b": {}}}, schemes).Empty())

	creds["API_KEY_B"] = "2"
	applied := r.Resolve(context.Background(), []RequirementSet{{"a": {}, "b": {}}}, schemes)
	assert.Equal(t, map[string]string{"a": "1"}, applied.Headers)
	assert.Equal(t, map[string]string{"b": "2"}, applied.Query)
}

func TestResolve_UnknownSchemeUnsatisfied(t *testing.T) {
	r := NewResolver(StaticCredentials{"API_KEY_GHOST": "x"}, zap.NewNop())
	applied := r.Resolve(context.Background(), []RequirementSet{{"ghost": {}}}, map[string]Scheme{})
	assert.True(t, applied.Empty())
}

func TestResolve_NoCredentialsWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewResolver(StaticCredentials{}, zap.New(core))

	applied := r.Resolve(context.Background(),
		[]RequirementSet{{"bearerAuth": {"read"}}}, map[string]Scheme{"bearerAuth": HTTPBearerScheme{}})
	assert.True(t, applied.Empty())
	require.Equal(t, 1, logs.FilterMessage("no suitable credentials found").Len())
	entry := logs.FilterMessage("no suitable credentials found").All()[0]
	assert.Equal(t, "[bearerAuth (scopes: read)]", entry.ContextMap()["requires"])
}

func TestResolve_EmptyRequirementsIsSilent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := NewResolver(StaticCredentials{}, zap.New(core))

	assert.True(t, r.Resolve(context.Background(), nil, nil).Empty())
	assert.Equal(t, 0, logs.Len())
}

func TestResolve_BasicAuth(t *testing.T) {
	r := NewResolver(StaticCredentials{"BASIC_USERNAME_BASIC": "user", "BASIC_PASSWORD_BASIC": "pass"}, zap.NewNop())
	applied := r.Resolve(context.Background(), []RequirementSet{{"basic": {}}}, map[string]Scheme{"basic": HTTPBasicScheme{}})
	assert.Equal(t, "Basic dXNlcjpwYXNz", applied.Headers["authorization"])
}

func TestResolve_SessionTokenSatisfiesTokenSchemes(t *testing.T) {
	r := NewResolver(SessionCredentials{Token: "pat"}, zap.NewNop())
	for name, scheme := range map[string]Scheme{
		"bearer": HTTPBearerScheme{},
		"oauth":  OAuth2Scheme{ClientCredentialsTokenURL: "http://unused"},
		"oidc":   OpenIDConnectScheme{URL: "http://unused"},
	} {
		applied := r.Resolve(context.Background(), []RequirementSet{{name: {}}}, map[string]Scheme{name: scheme})
		assert.Equal(t, "Bearer pat", applied.Headers["authorization"], name)
	}

	applied := r.Resolve(context.Background(), []RequirementSet{{"key": {}}},
		map[string]Scheme{"key": APIKeyScheme{Name: "k", In: "header"}})
	assert.True(t, applied.Empty())
}

func TestResolve_OAuthTokenCached(t *testing.T) {
	srv, hits := tokenServer(t, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`, http.StatusOK)
	schemes := map[string]Scheme{"oauth": OAuth2Scheme{ClientCredentialsTokenURL: srv.URL}}
	reqs := []RequirementSet{{"oauth": {}}}
	r := NewResolver(oauthCreds(), zap.NewNop())

	for i := 0; i < 3; i++ {
		applied := r.Resolve(context.Background(), reqs, schemes)
		assert.Equal(t, "Bearer tok", applied.Headers["authorization"])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestResolve_OAuthDefaultExpiry(t *testing.T) {
	srv, _ := tokenServer(t, `{"access_token":"tok","token_type":"bearer"}`, http.StatusOK)
	tokens := cache.NewMemoryCache()
	r := NewResolver(oauthCreds(), zap.NewNop(), WithTokenCache(tokens))

	before := time.Now()
	r.Resolve(context.Background(), []RequirementSet{{"oauth": {}}},
		map[string]Scheme{"oauth": OAuth2Scheme{PasswordTokenURL: srv.URL}})

	tok, ok, err := tokens.Get(context.Background(), "oauth_client")
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(DefaultTokenLifetime), tok.ExpiresAt, 5*time.Second)
}

func TestResolve_OAuthFailureFallsThrough(t *testing.T) {
	srv, _ := tokenServer(t, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	schemes := map[string]Scheme{
		"oauth": OAuth2Scheme{ClientCredentialsTokenURL: srv.URL},
		"key":   APIKeyScheme{Name: "api_key", In: "query"},
	}
	creds := oauthCreds()
	creds["API_KEY_KEY"] = "k"
	r := NewResolver(creds, zap.NewNop())

	applied := r.Resolve(context.Background(), []RequirementSet{{"oauth": {}}, {"key": {}}}, schemes)
	assert.Empty(t, applied.Headers)
	assert.Equal(t, map[string]string{"api_key": "k"}, applied.Query)
}

func TestResolve_OAuthMissingAccessToken(t *testing.T) {
	srv, _ := tokenServer(t, `{"token_type":"bearer"}`, http.StatusOK)
	r := NewResolver(oauthCreds(), zap.NewNop())

	applied := r.Resolve(context.Background(), []RequirementSet{{"oauth": {}}},
		map[string]Scheme{"oauth": OAuth2Scheme{ClientCredentialsTokenURL: srv.URL}})
	assert.True(t, applied.Empty())
}

func TestResolve_OAuthPreIssuedToken(t *testing.T) {
	r := NewResolver(StaticCredentials{"OAUTH_TOKEN_OAUTH": "pre"}, zap.NewNop())
	applied := r.Resolve(context.Background(), []RequirementSet{{"oauth": {}}},
		map[string]Scheme{"oauth": OAuth2Scheme{}})
	assert.Equal(t, "Bearer pre", applied.Headers["authorization"])
}

func TestResolve_OAuthWithoutFlow(t *testing.T) {
	r := NewResolver(oauthCreds(), zap.NewNop())
	applied := r.Resolve(context.Background(), []RequirementSet{{"oauth": {}}},
		map[string]Scheme{"oauth": OAuth2Scheme{}})
	assert.True(t, applied.Empty())
}

func TestWithCredentials_SharesTokenCache(t *testing.T) {
	srv, hits := tokenServer(t, `{"access_token":"tok","token_type":"bearer","expires_in":60}`, http.StatusOK)
	schemes := map[string]Scheme{"oauth": OAuth2Scheme{ClientCredentialsTokenURL: srv.URL}}
	base := NewResolver(StaticCredentials{}, zap.NewNop())

	for i := 0; i < 2; i++ {
		r := base.WithCredentials(oauthCreds())
		applied := r.Resolve(context.Background(), []RequirementSet{{"oauth": {}}}, schemes)
		assert.Equal(t, "Bearer tok", applied.Headers["authorization"])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestApplied_Apply(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/about?page=2", nil)
	Applied{
		Headers: map[string]string{"authorization": "Bearer t"},
		Query:   map[string]string{"key": "v"},
		Cookies: []*http.Cookie{{Name: "session", Value: "s"}},
	}.Apply(req)

	assert.Equal(t, "Bearer t", req.Header.Get("Authorization"))
	assert.Equal(t, "v", req.URL.Query().Get("key"))
	assert.Equal(t, "2", req.URL.Query().Get("page"))
	c, err := req.Cookie("session")
	require.NoError(t, err)
	assert.Equal(t, "s", c.Value)
}
