package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the closed set of catalog roles. The zero value is not a valid role.
type Role string

const (
	RoleSuper  Role = "SUPER"
	RoleAdmin  Role = "ADMIN"
	RoleReader Role = "READER"
	RoleGuest  Role = "GUEST"
)

// AuthorityPrefix is prepended to a role name to form its authority.
const AuthorityPrefix = "ROLE_"

// Roles lists every role in privilege order, highest first.
var Roles = []Role{RoleSuper, RoleAdmin, RoleReader, RoleGuest}

// ParseRole converts s (case-insensitive, with or without the ROLE_ prefix)
// into a Role.
func ParseRole(s string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, AuthorityPrefix)
	for _, r := range Roles {
		if string(r) == name {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	for _, x := range Roles {
		if r == x {
			return true
		}
	}
	return false
}

// Authority returns the granted authority derived from the role, e.g. ROLE_ADMIN.
func (r Role) Authority() string {
	return AuthorityPrefix + string(r)
}

func (r Role) String() string { return string(r) }

// RoleSet is an explicit allowed-role set.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from roles. It panics on an undeclared role so that
// a typo in a route table fails at startup instead of silently denying.
func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		if !r.Valid() {
			panic(fmt.Sprintf("auth: undeclared role %q", r))
		}
		s[r] = struct{}{}
	}
	return s
}

// Contains reports whether r is in the set.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// Slice returns the roles in privilege order.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s))
	for _, r := range Roles {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

// Authorities returns the sorted authorities of every role in the set.
func (s RoleSet) Authorities() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r.Authority())
	}
	sort.Strings(out)
	return out
}
