package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "coachlink"
	// Tokens are re-minted once less than this much lifetime remains.
	refreshSkew = 30 * time.Second
)

// Claims holds the JWT payload of a locally minted token.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	ChatKind string `json:"chat,omitempty"`
}

// ErrInvalidToken is returned when a JWT cannot be parsed or has expired.
var ErrInvalidToken = errors.New("auth: invalid or expired token") //nolint:gochecknoglobals // sentinel error

// IssueToken creates a signed HS256 token for userID.
func IssueToken(secret, userID, chatKind string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("auth.IssueToken: %w", ErrNoCredential)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
		},
		UserID:   userID,
		ChatKind: chatKind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.IssueToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token string. Returns the embedded claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	if !token.Valid {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	return claims, nil
}

// Minted is a Source that signs its own short-lived tokens, for development
// against an agent service sharing the secret.
type Minted struct {
	secret   string
	userID   string
	chatKind string
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewMinted(secret, userID, chatKind string, ttl time.Duration) *Minted {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Minted{
		secret:   secret,
		userID:   userID,
		chatKind: chatKind,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *Minted) Token(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Add(refreshSkew).Before(m.expires) {
		return m.token, nil
	}

	tok, err := IssueToken(m.secret, m.userID, m.chatKind, m.ttl)
	if err != nil {
		return "", fmt.Errorf("auth.Minted.Token: %w", err)
	}
	m.token = tok
	m.expires = m.now().Add(m.ttl)
	return tok, nil
}
