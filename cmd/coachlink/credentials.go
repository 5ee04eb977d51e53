package main

import (
	"github.com/gosuda/coachlink/internal/auth"
	"github.com/gosuda/coachlink/internal/config"
)

// credentialSource picks the bearer credential: OAuth client credentials,
// then a locally minted token, then a static token. With none configured the
// socket is dialed without a bearer subprotocol.
func credentialSource(cfg *config.Config) (auth.Source, string) {
	switch {
	case cfg.Auth.OAuthTokenURL != "":
		return auth.NewOAuth(auth.OAuthConfig{
			TokenURL:     cfg.Auth.OAuthTokenURL,
			ClientID:     cfg.Auth.OAuthClientID,
			ClientSecret: cfg.Auth.OAuthClientSecret,
			Scopes:       cfg.Auth.OAuthScopes,
		}, nil), "oauth"
	case cfg.Auth.JWTSecret != "":
		return auth.NewMinted(cfg.Auth.JWTSecret, cfg.Socket.UserID, string(cfg.Socket.ChatKind), cfg.Auth.JWTTTL), "minted"
	case cfg.Auth.Token != "":
		return auth.NewStatic(cfg.Auth.Token), "static"
	default:
		return nil, "none"
	}
}
