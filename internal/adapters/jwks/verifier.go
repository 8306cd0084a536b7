package jwks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/target/portal-api/internal/ports"
)

// Verifier checks service Bearer tokens against a tenant key set.
type Verifier struct {
	cache    *Cache
	jwksURL  string
	issuer   string
	audience string
	skew     time.Duration
	now      func() time.Time
}

var _ ports.ServiceTokenVerifier = (*Verifier)(nil)

// VerifierOptions groups constructor options.
type VerifierOptions struct {
	Cache     *Cache
	JWKSURL   string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// NewVerifier validates opts and returns a Verifier.
func NewVerifier(opts VerifierOptions) (*Verifier, error) {
	if opts.Cache == nil {
		return nil, errors.New("jwks cache is required")
	}
	if opts.JWKSURL == "" || opts.Issuer == "" || opts.Audience == "" {
		return nil, errors.New("jwks url, issuer and audience are required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		cache:    opts.Cache,
		jwksURL:  opts.JWKSURL,
		issuer:   opts.Issuer,
		audience: opts.Audience,
		skew:     opts.ClockSkew,
		now:      now,
	}, nil
}

// Verify checks signature, issuer, audience and the exp/nbf window. An unknown kid
// triggers one cooldown-bounded key set refresh to pick up rotated keys.
func (v *Verifier) Verify(ctx context.Context, raw string) (ports.ServiceTokenClaims, error) {
	set, err := v.cache.KeySet(ctx, v.jwksURL)
	if err != nil {
		return ports.ServiceTokenClaims{}, fmt.Errorf("load signing keys: %w", err)
	}
	if kid := tokenKeyID(raw); kid != "" {
		if _, found := set.LookupKeyID(kid); !found {
			if set, err = v.cache.Refresh(ctx, v.jwksURL); err != nil {
				return ports.ServiceTokenClaims{}, fmt.Errorf("refresh signing keys: %w", err)
			}
		}
	}

	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKeySet(set, jws.WithInferAlgorithmFromKey(true), jws.WithRequireKid(false)),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithValidate(true),
	)
	if err != nil {
		return ports.ServiceTokenClaims{}, err
	}

	return ports.ServiceTokenClaims{
		Subject:  tok.Subject(),
		Issuer:   tok.Issuer(),
		AZP:      stringClaim(tok, "azp"),
		AppID:    stringClaim(tok, "appid"),
		TenantID: stringClaim(tok, "tid"),
		Roles:    stringsClaim(tok, "roles"),
	}, nil
}

// tokenKeyID returns the kid of the first signature, or "" when the token does not parse.
func tokenKeyID(raw string) string {
	msg, err := jws.Parse([]byte(raw))
	if err != nil {
		return ""
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return ""
	}
	return sigs[0].ProtectedHeaders().KeyID()
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// stringsClaim returns a list claim; the result is never nil.
func stringsClaim(tok jwt.Token, name string) []string {
	out := []string{}
	v, ok := tok.Get(name)
	if !ok {
		return out
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, isStr := item.(string); isStr {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, t...)
	case string:
		out = append(out, t)
	}
	return out
}
