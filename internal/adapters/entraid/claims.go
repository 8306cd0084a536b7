package entraid

import (
	domainauth "github.com/target/portal-api/internal/domain/auth"
	apperrors "github.com/target/portal-api/internal/errors"
)

// reservedClaims are mapped to typed fields or are protocol bookkeeping; they never land in Extra.
var reservedClaims = map[string]struct{}{
	"iss": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "nonce": {},
	"sub": {}, "email": {}, "name": {}, "preferred_username": {},
	"oid": {}, "tid": {}, "roles": {}, "aio": {}, "uti": {}, "rh": {}, "ver": {},
	"c_hash": {}, "at_hash": {}, "sid": {},
}

// mapUser builds the User from verified ID-token claims.
func (d *Driver) mapUser(claims map[string]any) (domainauth.User, error) {
	sub := stringClaim(claims, "sub")
	if sub == "" {
		return domainauth.User{}, apperrors.ClaimsMapping("id token has no sub claim")
	}
	preferred := stringClaim(claims, "preferred_username")
	email := firstNonEmpty(stringClaim(claims, "email"), preferred)
	if email == "" {
		return domainauth.User{}, apperrors.ClaimsMapping("id token has neither email nor preferred_username")
	}

	var roles []string
	if d.roles != nil {
		roles = d.roles.Map(claims)
	}
	roles = domainauth.NormalizeRoles(roles)
	if len(roles) == 0 && d.cfg.DefaultRole != "" {
		roles = []string{d.cfg.DefaultRole}
	}

	attrs := &domainauth.Attributes{
		TenantID:          stringClaim(claims, "tid"),
		ObjectID:          stringClaim(claims, "oid"),
		PreferredUsername: preferred,
	}
	for k, v := range claims {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		if attrs.Extra == nil {
			attrs.Extra = make(map[string]any)
		}
		attrs.Extra[k] = v
	}

	user := domainauth.User{
		ID:         sub,
		Email:      email,
		Name:       firstNonEmpty(stringClaim(claims, "name"), email),
		Roles:      roles,
		Attributes: attrs,
	}
	if err := user.Validate(); err != nil {
		return domainauth.User{}, apperrors.ClaimsMapping(err.Error())
	}
	return user, nil
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
