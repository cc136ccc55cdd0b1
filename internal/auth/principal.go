package auth

// GuestSubject is the reserved subject of the synthetic guest principal.
// No stored user may use it as a username.
const GuestSubject = "guestuser"

// Principal is the identity bound to a request after successful
// authentication. It is immutable after construction and lives only as
// long as the request context that carries it.
type Principal struct {
	// ID references users.id. Zero for the synthetic guest.
	ID       int64
	Username string
	Email    string
	Role     Role

	authorities []string
}

// NewPrincipal builds a principal whose authorities are derived 1:1 from role.
func NewPrincipal(id int64, username, email string, role Role) Principal {
	return Principal{
		ID:          id,
		Username:    username,
		Email:       email,
		Role:        role,
		authorities: []string{role.Authority()},
	}
}

// GuestPrincipal returns the synthetic guest principal. It carries exactly
// one authority, ROLE_GUEST, and is never backed by stored credentials.
func GuestPrincipal() Principal {
	return NewPrincipal(0, GuestSubject, "", RoleGuest)
}

// Subject is the identity encoded in issued tokens.
func (p Principal) Subject() string {
	return p.Username
}

// Authorities returns a copy of the granted authorities.
func (p Principal) Authorities() []string {
	return append([]string(nil), p.authorities...)
}

// HasAuthority reports whether authority was granted.
func (p Principal) HasAuthority(authority string) bool {
	for _, a := range p.authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// IsGuest reports whether p is the synthetic guest principal.
func (p Principal) IsGuest() bool {
	return p.Role == RoleGuest && p.Username == GuestSubject && p.ID == 0
}
