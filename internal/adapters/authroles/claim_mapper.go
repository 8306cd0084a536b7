// Package authroles maps identity-provider claims to application roles.
package authroles

import (
	"fmt"
	"log/slog"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/target/portal-api/internal/domain/auth"
	"github.com/target/portal-api/internal/ports"
)

// ClaimRoleMapper evaluates a JMESPath expression against the ID-token claims
// and merges roles derived from group membership.
type ClaimRoleMapper struct {
	expr        string
	groupRoles  map[string]string
	defaultRole string
	logger      *slog.Logger
}

var _ ports.RoleMapper = (*ClaimRoleMapper)(nil)

// ClaimRoleMapperOptions groups constructor inputs.
type ClaimRoleMapperOptions struct {
	// Expression is evaluated against the claims; the result may be a string or a list of strings.
	Expression string
	// GroupRoles maps values of the `groups` claim to roles.
	GroupRoles map[string]string
	// DefaultRole is used when nothing else matched. Empty means no fallback.
	DefaultRole string
	Logger      *slog.Logger
}

// NewClaimRoleMapper validates the expression up front.
func NewClaimRoleMapper(opts ClaimRoleMapperOptions) (*ClaimRoleMapper, error) {
	expr := strings.TrimSpace(opts.Expression)
	if expr != "" {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("compile role expression %q: %w", expr, err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ClaimRoleMapper{
		expr:        expr,
		groupRoles:  opts.GroupRoles,
		defaultRole: strings.TrimSpace(opts.DefaultRole),
		logger:      logger,
	}, nil
}

// Map returns the de-duplicated roles for claims. It never returns nil.
func (m *ClaimRoleMapper) Map(claims map[string]any) []string {
	var roles []string

	if m.expr != "" {
		res, err := jmespath.Search(m.expr, claims)
		if err != nil {
			m.logger.Warn("role expression evaluation failed", "expression", m.expr, "error", err)
		} else {
			roles = append(roles, toStrings(res)...)
		}
	}

	if len(m.groupRoles) > 0 {
		for _, g := range toStrings(claims["groups"]) {
			if role, ok := m.groupRoles[g]; ok {
				roles = append(roles, role)
			}
		}
	}

	roles = domainauth.NormalizeRoles(roles)
	if len(roles) == 0 && m.defaultRole != "" {
		roles = append(roles, m.defaultRole)
	}
	return roles
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
