// Package auth verifies bearer credentials and resolves the caller's owner key.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/dontdude/markcheck/internal/domain"
)

// OIDCConfig configures an OIDCVerifier.
type OIDCConfig struct {
	// Issuer is the token issuer, e.g. https://securetoken.google.com/<project-id>.
	// A discovery URL ending in /.well-known/openid-configuration is accepted too.
	Issuer string
	// ClientID is the expected audience.
	ClientID   string
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
}

// OIDCVerifier checks ID tokens against the issuer's published keys.
// The owner key is the token subject.
type OIDCVerifier struct {
	verifier *gooidc.IDTokenVerifier
}

var _ domain.TokenVerifier = (*OIDCVerifier)(nil)

// NewOIDCVerifier fetches the issuer's discovery document once and returns a verifier.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("oidc issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("oidc client ID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	issuer := strings.TrimSuffix(cfg.Issuer, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")

	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	return newOIDCVerifier(provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID})), nil
}

func newOIDCVerifier(v *gooidc.IDTokenVerifier) *OIDCVerifier {
	return &OIDCVerifier{verifier: v}
}

type idTokenClaims struct {
	Email string `json:"email"`
}

// Verify validates rawToken and returns the caller's identity.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (domain.Identity, error) {
	if rawToken == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		var expired *gooidc.TokenExpiredError
		if errors.As(err, &expired) {
			return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrTokenExpired, err)
		}
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	if tok.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}

	var claims idTokenClaims
	if err := tok.Claims(&claims); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: decode claims: %w", domain.ErrUnauthenticated, err)
	}

	return domain.Identity{
		OwnerKey: tok.Subject,
		Email:    claims.Email,
		Expiry:   tok.Expiry,
	}, nil
}
