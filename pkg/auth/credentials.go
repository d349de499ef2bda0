package auth

import (
	"os"
	"regexp"
	"strings"
)

// ClientCredentials identifies an OAuth client.
type ClientCredentials struct {
	ID     string
	Secret string
	Scopes []string
}

// Credentials supplies secrets per security scheme name. Each method reports
// whether a value is available.
type Credentials interface {
	APIKey(scheme string) (string, bool)
	BearerToken(scheme string) (string, bool)
	BasicAuth(scheme string) (username, password string, ok bool)
	OAuthToken(scheme string) (string, bool)
	OAuthClient(scheme string) (ClientCredentials, bool)
	OpenIDToken(scheme string) (string, bool)
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// EnvKey builds the variable name holding a secret for scheme, for example
// EnvKey("API_KEY", "api-key") is "API_KEY_API_KEY".
func EnvKey(prefix, scheme string) string {
	return prefix + "_" + strings.ToUpper(nonAlnum.ReplaceAllString(scheme, "_"))
}

// EnvCredentials reads API_KEY_<NAME>, BEARER_TOKEN_<NAME>,
// BASIC_USERNAME_<NAME>/BASIC_PASSWORD_<NAME>, OAUTH_TOKEN_<NAME>,
// OAUTH_CLIENT_ID_<NAME>/OAUTH_CLIENT_SECRET_<NAME>/OAUTH_SCOPES_<NAME> and
// OPENID_TOKEN_<NAME>. Empty values count as unset.
type EnvCredentials struct {
	Lookup func(key string) (string, bool)
}

// NewEnvCredentials reads the process environment.
func NewEnvCredentials() EnvCredentials {
	return EnvCredentials{Lookup: os.LookupEnv}
}

func (e EnvCredentials) get(prefix, scheme string) (string, bool) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(EnvKey(prefix, scheme))
	return v, ok && v != ""
}

func (e EnvCredentials) APIKey(scheme string) (string, bool) { return e.get("API_KEY", scheme) }

func (e EnvCredentials) BearerToken(scheme string) (string, bool) {
	return e.get("BEARER_TOKEN", scheme)
}

func (e EnvCredentials) BasicAuth(scheme string) (string, string, bool) {
	user, ok := e.get("BASIC_USERNAME", scheme)
	if !ok {
		return "", "", false
	}
	pass, ok := e.get("BASIC_PASSWORD", scheme)
	if !ok {
		return "", "", false
	}
	return user, pass, true
}

func (e EnvCredentials) OAuthToken(scheme string) (string, bool) {
	return e.get("OAUTH_TOKEN", scheme)
}

func (e EnvCredentials) OAuthClient(scheme string) (ClientCredentials, bool) {
	id, ok := e.get("OAUTH_CLIENT_ID", scheme)
	if !ok {
		return ClientCredentials{}, false
	}
	secret, ok := e.get("OAUTH_CLIENT_SECRET", scheme)
	if !ok {
		return ClientCredentials{}, false
	}
	scopes, _ := e.get("OAUTH_SCOPES", scheme)
	return ClientCredentials{ID: id, Secret: secret, Scopes: strings.Fields(scopes)}, true
}

func (e EnvCredentials) OpenIDToken(scheme string) (string, bool) {
	return e.get("OPENID_TOKEN", scheme)
}

// StaticCredentials holds secrets under the same keys EnvCredentials reads.
type StaticCredentials map[string]string

func (s StaticCredentials) env() EnvCredentials {
	return EnvCredentials{Lookup: func(key string) (string, bool) {
		v, ok := s[key]
		return v, ok
	}}
}

func (s StaticCredentials) APIKey(scheme string) (string, bool) { return s.env().APIKey(scheme) }
func (s StaticCredentials) BearerToken(scheme string) (string, bool) {
	return s.env().BearerToken(scheme)
}
func (s StaticCredentials) BasicAuth(scheme string) (string, string, bool) {
	return s.env().BasicAuth(scheme)
}
func (s StaticCredentials) OAuthToken(scheme string) (string, bool) {
	return s.env().OAuthToken(scheme)
}
func (s StaticCredentials) OAuthClient(scheme string) (ClientCredentials, bool) {
	return s.env().OAuthClient(scheme)
}
func (s StaticCredentials) OpenIDToken(scheme string) (string, bool) {
	return s.env().OpenIDToken(scheme)
}

// SessionCredentials exposes a session's personal access token to every
// token-bearing scheme: http bearer, oauth2 and openIdConnect.
type SessionCredentials struct {
	Token string
}

func (s SessionCredentials) token() (string, bool) { return s.Token, s.Token != "" }

func (SessionCredentials) APIKey(string) (string, bool)            { return "", false }
func (s SessionCredentials) BearerToken(string) (string, bool)     { return s.token() }
func (SessionCredentials) BasicAuth(string) (string, string, bool) { return "", "", false }
func (s SessionCredentials) OAuthToken(string) (string, bool)      { return s.token() }
func (SessionCredentials) OAuthClient(string) (ClientCredentials, bool) {
	return ClientCredentials{}, false
}
func (s SessionCredentials) OpenIDToken(string) (string, bool) { return s.token() }

// ChainCredentials asks each provider in turn; the first answer wins.
type ChainCredentials []Credentials

func (c ChainCredentials) APIKey(scheme string) (string, bool) {
	return firstString(c, func(p Credentials) (string, bool) { return p.APIKey(scheme) })
}

func (c ChainCredentials) BearerToken(scheme string) (string, bool) {
	return firstString(c, func(p Credentials) (string, bool) { return p.BearerToken(scheme) })
}

func (c ChainCredentials) BasicAuth(scheme string) (string, string, bool) {
	for _, p := range c {
		if user, pass, ok := p.BasicAuth(scheme); ok {
			return user, pass, true
		}
	}
	return "", "", false
}

func (c ChainCredentials) OAuthToken(scheme string) (string, bool) {
	return firstString(c, func(p Credentials) (string, bool) { return p.OAuthToken(scheme) })
}

func (c ChainCredentials) OAuthClient(scheme string) (ClientCredentials, bool) {
	for _, p := range c {
		if cc, ok := p.OAuthClient(scheme); ok {
			return cc, true
		}
	}
	return ClientCredentials{}, false
}

func (c ChainCredentials) OpenIDToken(scheme string) (string, bool) {
	return firstString(c, func(p Credentials) (string, bool) { return p.OpenIDToken(scheme) })
}

func firstString(c ChainCredentials, get func(Credentials) (string, bool)) (string, bool) {
	for _, p := range c {
		if v, ok := get(p); ok {
			return v, true
		}
	}
	return "", false
}
