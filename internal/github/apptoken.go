package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AppTokenSource mints short-lived RS256 JWTs for GitHub-App style
// authentication. Tokens are cached and re-minted shortly before expiry.
type AppTokenSource struct {
	appID string
	key   *rsa.PrivateKey

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewAppTokenSource parses a PEM-encoded RSA private key and returns a
// source minting app JWTs with the given issuer (the app id).
func NewAppTokenSource(appID string, pemKey []byte) (*AppTokenSource, error) {
	if appID == "" {
		return nil, fmt.Errorf("app id required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("parse app private key: %w", err)
	}
	return &AppTokenSource{appID: appID, key: key}, nil
}

// Token returns a valid app JWT, minting a fresh one when the cached token
// is within a minute of expiry. GitHub caps app JWT lifetime at 10 minutes;
// 9 keeps clock skew out of trouble.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.token != "" && now.Before(s.expires.Add(-time.Minute)) {
		return s.token, nil
	}

	expires := now.Add(9 * time.Minute)
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign app token: %w", err)
	}
	s.token = signed
	s.expires = expires
	return signed, nil
}
