package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "API_KEY_API_KEY", EnvKey("API_KEY", "api-key"))
	assert.Equal(t, "BEARER_TOKEN_FIREFLY_AUTH", EnvKey("BEARER_TOKEN", "firefly.auth"))
	assert.Equal(t, "OAUTH_CLIENT_ID_OAUTH2", EnvKey("OAUTH_CLIENT_ID", "oauth2"))
}

func TestEnvCredentials(t *testing.T) {
	env := map[string]string{
		"API_KEY_MY_KEY":            "k",
		"BEARER_TOKEN_BEARER":       "",
		"BASIC_USERNAME_BASIC":      "u",
		"OAUTH_CLIENT_ID_OAUTH":     "id",
		"OAUTH_CLIENT_SECRET_OAUTH": "secret",
		"OAUTH_SCOPES_OAUTH":        "read write",
		"OPENID_TOKEN_OIDC":         "o",
	}
	e := EnvCredentials{Lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}

	v, ok := e.APIKey("my-key")
	assert.True(t, ok)
	assert.Equal(t, "k", v)

	_, ok = e.BearerToken("bearer")
	assert.False(t, ok, "empty values count as unset")

	_, _, ok = e.BasicAuth("basic")
	assert.False(t, ok, "password missing")

	cc, ok := e.OAuthClient("oauth")
	assert.True(t, ok)
	assert.Equal(t, ClientCredentials{ID: "id", Secret: "secret", Scopes: []string{"read", "write"}}, cc)

	v, ok = e.OpenIDToken("oidc")
	assert.True(t, ok)
	assert.Equal(t, "o", v)
}

func TestChainCredentials_FirstWins(t *testing.T) {
	c := ChainCredentials{
		SessionCredentials{Token: "pat"},
		StaticCredentials{"BEARER_TOKEN_B": "static", "API_KEY_K": "key"},
	}

	v, ok := c.BearerToken("b")
	assert.True(t, ok)
	assert.Equal(t, "pat", v)

	v, ok = c.APIKey("k")
	assert.True(t, ok)
	assert.Equal(t, "key", v)

	_, _, ok = c.BasicAuth("b")
	assert.False(t, ok)
}
