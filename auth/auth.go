package auth

import (
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bambooai/panda-gateway/config"
)

const issuer = "privy.io"

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Identity describes an authenticated caller. API-key callers have no user
// partition and skip classification and context augmentation.
type Identity struct {
	UserID   string
	IsAPIKey bool
}

// Authenticator validates bearer tokens: static API keys first, then JWTs
// signed by the identity provider.
type Authenticator struct {
	apiKeys map[string]struct{}
	pubKey  crypto.PublicKey
	methods []string
	aud     string
}

func New(cfg config.AuthConfig) (*Authenticator, error) {
	a := &Authenticator{
		apiKeys: make(map[string]struct{}, len(cfg.APIKeys)),
		aud:     cfg.Audience,
	}
	for _, k := range cfg.APIKeys {
		a.apiKeys[k] = struct{}{}
	}
	if cfg.PublicKey != "" {
		key, err := parsePublicKey(cfg.JWTAlgorithm, []byte(cfg.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("auth: parse public key: %w", err)
		}
		a.pubKey = key
		a.methods = []string{cfg.JWTAlgorithm}
	}
	return a, nil
}

func parsePublicKey(alg string, pem []byte) (crypto.PublicKey, error) {
	switch {
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		return jwt.ParseRSAPublicKeyFromPEM(pem)
	case strings.HasPrefix(alg, "ES"):
		return jwt.ParseECPublicKeyFromPEM(pem)
	case alg == "EdDSA":
		return jwt.ParseEdPublicKeyFromPEM(pem)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}

// Authenticate resolves the Authorization header to an Identity.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return Identity{}, ErrMissingToken
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return a.AuthenticateToken(token)
}

// AuthenticateToken checks a raw bearer token.
func (a *Authenticator) AuthenticateToken(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	if _, ok := a.apiKeys[token]; ok {
		short := token
		if len(short) > 8 {
			short = short[:8]
		}
		return Identity{UserID: "api_key_" + short, IsAPIKey: true}, nil
	}
	if a.pubKey == nil {
		return Identity{}, ErrInvalidToken
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.pubKey, nil
	},
		jwt.WithValidMethods(a.methods),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(a.aud),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{UserID: claims.Subject}, nil
}
