package secrets

import (
	"context"
	"fmt"
	"net/url"
)

// Resolver resolves the database DSN, overriding the credentials embedded
// in the configured URL with ones fetched from the secrets provider.
type Resolver struct {
	provider Provider
	cache    *Cache[map[string]string]
}

// NewResolver creates a resolver backed by the given provider. Resolved
// secrets are cached for the cache's TTL to survive reconnect loops without
// hammering the secrets backend.
func NewResolver(provider Provider, cache *Cache[map[string]string]) *Resolver {
	return &Resolver{provider: provider, cache: cache}
}

// DatabaseURL returns rawURL with its userinfo replaced by the "username"
// and "password" keys of the named secret.
func (r *Resolver) DatabaseURL(ctx context.Context, rawURL, secretName string) (string, error) {
	secret, ok := r.cache.Get(secretName)
	if !ok {
		var err error
		secret, err = r.provider.GetSecret(ctx, secretName)
		if err != nil {
			return "", fmt.Errorf("resolve db secret: %w", err)
		}
		r.cache.Put(secretName, secret)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}

	username, password := secret["username"], secret["password"]
	if username == "" {
		return "", fmt.Errorf("secret [%s] has no username", secretName)
	}
	u.User = url.UserPassword(username, password)

	return u.String(), nil
}
