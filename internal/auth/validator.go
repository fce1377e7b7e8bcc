package auth

//go:generate mockgen -destination=mocks/mock_validator.go -package=mocks -source=validator.go TokenValidator

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/civicportal/portal-sync/internal/config"
)

// TokenValidator verifies a bearer token and returns its claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (jwt.MapClaims, error)
}

// ValidatorFactory creates the validator of one configured key
type ValidatorFactory func(key config.JWTKeyConfig, issuer, audience string) (TokenValidator, error)

// DefaultValidatorFactory verifies tokens locally against the key file
var DefaultValidatorFactory ValidatorFactory = NewKeyValidator

// keyValidator verifies tokens signed with a single key and algorithm
type keyValidator struct {
	key    any
	parser *jwt.Parser
}

// NewKeyValidator reads the key file and builds a validator that accepts only
// the key's algorithm. Expiry is always required.
func NewKeyValidator(key config.JWTKeyConfig, issuer, audience string) (TokenValidator, error) {
	data, err := key.ReadKey()
	if err != nil {
		return nil, err
	}

	verifyKey, err := parseVerifyKey(key.Algorithm, data)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", key.Name, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{key.Algorithm}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &keyValidator{key: verifyKey, parser: jwt.NewParser(opts...)}, nil
}

func parseVerifyKey(algorithm string, data []byte) (any, error) {
	switch {
	case strings.HasPrefix(algorithm, "HS"):
		secret := bytes.TrimSpace(data)
		if len(secret) == 0 {
			return nil, fmt.Errorf("shared secret is empty")
		}
		return secret, nil
	case strings.HasPrefix(algorithm, "RS"), strings.HasPrefix(algorithm, "PS"):
		return jwt.ParseRSAPublicKeyFromPEM(data)
	case strings.HasPrefix(algorithm, "ES"):
		return jwt.ParseECPublicKeyFromPEM(data)
	case algorithm == "EdDSA":
		return jwt.ParseEdPublicKeyFromPEM(data)
	}
	return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
}

// ValidateToken parses and verifies the token
func (v *keyValidator) ValidateToken(_ context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
