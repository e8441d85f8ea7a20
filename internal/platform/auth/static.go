package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/dontdude/markcheck/internal/domain"
)

// StaticVerifier maps fixed tokens to owner keys. Development only.
type StaticVerifier struct {
	tokens map[string]domain.Identity
}

var _ domain.TokenVerifier = (*StaticVerifier)(nil)

// NewStaticVerifier returns a verifier accepting exactly the given token → owner pairs.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	m := make(map[string]domain.Identity, len(tokens))
	for tok, owner := range tokens {
		m[tok] = domain.Identity{OwnerKey: owner}
	}
	return &StaticVerifier{tokens: m}
}

// ParseStaticTokens parses "token=owner;token2=owner2".
func ParseStaticTokens(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tok, owner, ok := strings.Cut(pair, "=")
		tok, owner = strings.TrimSpace(tok), strings.TrimSpace(owner)
		if !ok || tok == "" || owner == "" {
			return nil, fmt.Errorf("invalid dev auth token entry %q (want token=owner)", pair)
		}
		out[tok] = owner
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no dev auth tokens configured")
	}
	return out, nil
}

func (v *StaticVerifier) Verify(_ context.Context, rawToken string) (domain.Identity, error) {
	id, ok := v.tokens[rawToken]
	if !ok {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}
