package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthConfig describes a client-credentials token endpoint.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// OAuth is a Source backed by the OAuth2 client-credentials grant. Tokens
// are cached by clientcredentials and refetched when they expire.
type OAuth struct {
	cfg        *clientcredentials.Config
	httpClient *http.Client

	mu  sync.Mutex
	src oauth2.TokenSource
}

// NewOAuth creates an OAuth source. httpClient may be nil.
func NewOAuth(cfg OAuthConfig, httpClient *http.Client) *OAuth {
	return &OAuth{
		cfg: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		},
		httpClient: httpClient,
	}
}

func (o *OAuth) Token(ctx context.Context) (string, error) {
	src := o.source(ctx)

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("auth.OAuth.Token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("auth.OAuth.Token: %w", ErrNoCredential)
	}
	return tok.AccessToken, nil
}

// source lazily builds the reusable token source. The first caller's context
// carries the HTTP client used for every later refresh.
func (o *OAuth) source(ctx context.Context) oauth2.TokenSource {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.src == nil {
		base := context.WithoutCancel(ctx)
		if o.httpClient != nil {
			base = context.WithValue(base, oauth2.HTTPClient, o.httpClient)
		}
		o.src = o.cfg.TokenSource(base)
	}
	return o.src
}
