package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/cache"
)

// Applied is the set of credentials chosen for one request.
type Applied struct {
	Headers map[string]string
	Query   map[string]string
	Cookies []*http.Cookie
}

// Empty reports whether nothing is applied.
func (a Applied) Empty() bool {
	return len(a.Headers) == 0 && len(a.Query) == 0 && len(a.Cookies) == 0
}

// Apply writes the credentials to req.
func (a Applied) Apply(req *http.Request) {
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}
	if len(a.Query) > 0 {
		q := req.URL.Query()
		for k, v := range a.Query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	for _, c := range a.Cookies {
		req.AddCookie(c)
	}
}

func (a *Applied) merge(b Applied) {
	for k, v := range b.Headers {
		if a.Headers == nil {
			a.Headers = make(map[string]string)
		}
		a.Headers[k] = v
	}
	for k, v := range b.Query {
		if a.Query == nil {
			a.Query = make(map[string]string)
		}
		a.Query[k] = v
	}
	a.Cookies = append(a.Cookies, b.Cookies...)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// Resolver picks the first satisfiable security requirement set of an
// operation and produces the matching credentials.
type Resolver struct {
	creds  Credentials
	tokens cache.TokenCache
	client *http.Client
	group  *singleflight.Group
	logger *zap.Logger
	now    func() time.Time
}

// NewResolver returns a Resolver backed by creds. Tokens are cached in
// memory unless WithTokenCache is given.
func NewResolver(creds Credentials, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		creds:  creds,
		tokens: cache.NewMemoryCache(),
		group:  &singleflight.Group{},
		logger: logger.With(zap.String("component", "auth")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithCredentials returns a copy of r that reads creds instead, sharing the
// token cache and in-flight requests.
func (r *Resolver) WithCredentials(creds Credentials) *Resolver {
	return &Resolver{
		creds:  creds,
		tokens: r.tokens,
		client: r.client,
		group:  r.group,
		logger: r.logger,
		now:    r.now,
	}
}

// Credentials returns the provider the resolver reads.
func (r *Resolver) Credentials() Credentials {
	return r.creds
}

// Resolve returns the credentials of the first requirement set whose
// schemes can all be satisfied. Failing to acquire an OAuth token only
// disqualifies that set. With no satisfiable set the result is empty and the
// request goes out unauthenticated.
func (r *Resolver) Resolve(ctx context.Context, reqs []RequirementSet, schemes map[string]Scheme) Applied {
	for _, set := range reqs {
		applied, ok := r.satisfy(ctx, set, schemes)
		if ok {
			return applied
		}
	}
	if len(reqs) > 0 {
		parts := make([]string, len(reqs))
		for i, set := range reqs {
			parts[i] = "[" + set.String() + "]"
		}
		r.logger.Warn("no suitable credentials found", zap.String("requires", strings.Join(parts, " OR ")))
	}
	return Applied{}
}

func (r *Resolver) satisfy(ctx context.Context, set RequirementSet, schemes map[string]Scheme) (Applied, bool) {
	var out Applied
	for _, name := range set.Names() {
		scheme, ok := schemes[name]
		if !ok {
			return Applied{}, false
		}
		part, ok := r.credentialFor(ctx, name, scheme, set[name])
		if !ok {
			return Applied{}, false
		}
		out.merge(part)
	}
	return out, true
}

func (r *Resolver) credentialFor(ctx context.Context, name string, scheme Scheme, scopes []string) (Applied, bool) {
	switch s := scheme.(type) {
	case APIKeyScheme:
		key, ok := r.creds.APIKey(name)
		if !ok {
			return Applied{}, false
		}
		switch s.In {
		case "header":
			return Applied{Headers: map[string]string{strings.ToLower(s.Name): key}}, true
		case "query":
			return Applied{Query: map[string]string{s.Name: key}}, true
		case "cookie":
			return Applied{Cookies: []*http.Cookie{{Name: s.Name, Value: key}}}, true
		}
		return Applied{}, false

	case HTTPBearerScheme:
		token, ok := r.creds.BearerToken(name)
		if !ok {
			return Applied{}, false
		}
		return bearer(token), true

	case HTTPBasicScheme:
		user, pass, ok := r.creds.BasicAuth(name)
		if !ok {
			return Applied{}, false
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		return Applied{Headers: map[string]string{"authorization": "Basic " + encoded}}, true

	case OAuth2Scheme:
		if token, ok := r.creds.OAuthToken(name); ok {
			return bearer(token), true
		}
		client, ok := r.creds.OAuthClient(name)
		if !ok {
			return Applied{}, false
		}
		if len(client.Scopes) == 0 {
			client.Scopes = scopes
		}
		token, err := r.acquireToken(ctx, name, s, client, client.Scopes)
		if err != nil {
			r.logger.Warn("failed to acquire oauth2 token", zap.String("scheme", name), zap.Error(err))
			return Applied{}, false
		}
		return bearer(token), true

	case OpenIDConnectScheme:
		token, ok := r.creds.OpenIDToken(name)
		if !ok {
			return Applied{}, false
		}
		return bearer(token), true
	}
	return Applied{}, false
}

func bearer(token string) Applied {
	return Applied{Headers: map[string]string{"authorization": "Bearer " + token}}
}
