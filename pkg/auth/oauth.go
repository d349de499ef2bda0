package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/cache"
)

// DefaultTokenLifetime applies when the token endpoint omits expires_in.
const DefaultTokenLifetime = time.Hour

// ErrNoTokenURL is returned for an oauth2 scheme without a usable flow.
var ErrNoTokenURL = errors.New("no client credentials or password flow token URL")

// oauthCacheKey is "<scheme>_<clientId>".
func oauthCacheKey(scheme, clientID string) string {
	return scheme + "_" + clientID
}

// acquireToken returns a cached token for the client or fetches a new one
// with the client-credentials grant. Concurrent callers for one key share a
// single request.
func (r *Resolver) acquireToken(ctx context.Context, name string, scheme OAuth2Scheme, client ClientCredentials, scopes []string) (string, error) {
	tokenURL := scheme.TokenURL()
	if tokenURL == "" {
		return "", ErrNoTokenURL
	}
	key := oauthCacheKey(name, client.ID)

	if tok, ok, err := r.tokens.Get(ctx, key); err != nil {
		r.logger.Warn("token cache read failed", zap.String("scheme", name), zap.Error(err))
	} else if ok {
		r.logger.Debug("using cached oauth2 token", zap.String("scheme", name))
		return tok.AccessToken, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.fetchToken(ctx, name, tokenURL, client, scopes)
	})
	if err != nil {
		return "", err
	}
	tok := v.(cache.Token)
	if err := r.tokens.Set(ctx, key, tok); err != nil {
		r.logger.Warn("token cache write failed", zap.String("scheme", name), zap.Error(err))
	}
	return tok.AccessToken, nil
}

func (r *Resolver) fetchToken(ctx context.Context, name, tokenURL string, client ClientCredentials, scopes []string) (cache.Token, error) {
	cfg := clientcredentials.Config{
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}

	r.logger.Info("requesting oauth2 token", zap.String("scheme", name), zap.String("token_url", tokenURL))
	tok, err := cfg.Token(ctx)
	if err != nil {
		return cache.Token{}, fmt.Errorf("oauth2 token request for %s: %w", name, err)
	}
	if tok.AccessToken == "" {
		return cache.Token{}, fmt.Errorf("oauth2 token request for %s: no access_token in response", name)
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = r.now().Add(DefaultTokenLifetime)
	}
	r.logger.Info("acquired oauth2 token",
		zap.String("scheme", name), zap.Duration("expires_in", expiresAt.Sub(r.now()).Round(time.Second)))
	return cache.Token{AccessToken: tok.AccessToken, ExpiresAt: expiresAt}, nil
}

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) { r.client = c }
}

// WithTokenCache replaces the default in-memory token cache.
func WithTokenCache(c cache.TokenCache) ResolverOption {
	return func(r *Resolver) { r.tokens = c }
}
