package auth

// Default messages used when a policy does not declare its own.
const (
	DefaultUnauthenticatedMessage = "Authentication required"
	DefaultForbiddenMessage       = "Access denied"
)

// Policy is the declarative authorization rule attached to an endpoint:
// allow if the bound principal's role is any of Allowed.
type Policy struct {
	// Name is the casbin object the rule is stored under, e.g. "book:create".
	Name    string
	Allowed RoleSet
	// UnauthenticatedMessage is returned with 401 when no principal is bound.
	UnauthenticatedMessage string
	// ForbiddenMessage is returned with 403 when the role is not allowed.
	ForbiddenMessage string
}

// Unauthenticated returns the 401 message for p.
func (p Policy) Unauthenticated() string {
	if p.UnauthenticatedMessage != "" {
		return p.UnauthenticatedMessage
	}
	return DefaultUnauthenticatedMessage
}

// Forbidden returns the 403 message for p.
func (p Policy) Forbidden() string {
	if p.ForbiddenMessage != "" {
		return p.ForbiddenMessage
	}
	return DefaultForbiddenMessage
}

// Rules expands p into casbin policy rules (authority, object).
func (p Policy) Rules() [][]string {
	rules := make([][]string, 0, len(p.Allowed))
	for _, authority := range p.Allowed.Authorities() {
		rules = append(rules, []string{authority, p.Name})
	}
	return rules
}

const (
	bookWriteDenied = "You do not have permission to update this book. Only SUPER or ADMIN is allowed."
)

// Endpoint policies. Every protected route is gated by exactly one of these.
var (
	PolicyBookCreate = Policy{
		Name:             "book:create",
		Allowed:          NewRoleSet(RoleSuper, RoleAdmin),
		ForbiddenMessage: "You do not have permission to create book. Only SUPER or ADMIN is allowed.",
	}
	PolicyBookUpdate = Policy{
		Name:             "book:update",
		Allowed:          NewRoleSet(RoleSuper, RoleAdmin),
		ForbiddenMessage: bookWriteDenied,
	}
	PolicyBookDelete = Policy{
		Name:             "book:delete",
		Allowed:          NewRoleSet(RoleSuper, RoleAdmin),
		ForbiddenMessage: bookWriteDenied,
	}
	PolicyBookListAll = Policy{
		Name:    "book:list",
		Allowed: NewRoleSet(RoleSuper, RoleAdmin),
	}
	PolicyBookRead = Policy{
		Name:    "book:read",
		Allowed: NewRoleSet(RoleSuper, RoleAdmin, RoleReader),
	}
	PolicyBookCover = Policy{
		Name:    "book:cover",
		Allowed: NewRoleSet(RoleSuper, RoleAdmin, RoleReader, RoleGuest),
	}
	PolicyBookCollect = Policy{
		Name:    "book:collect",
		Allowed: NewRoleSet(RoleSuper, RoleAdmin, RoleReader),
	}
	PolicyGuestBooks = Policy{
		Name:                   "guest:books",
		Allowed:                NewRoleSet(RoleGuest),
		UnauthenticatedMessage: "Restricted to logged Guest users",
		ForbiddenMessage:       "Access restricted to Guest users only",
	}
	PolicyUserAdmin = Policy{
		Name:    "user:admin",
		Allowed: NewRoleSet(RoleSuper, RoleAdmin),
	}
	PolicyUserSelf = Policy{
		Name:    "user:self",
		Allowed: NewRoleSet(RoleSuper, RoleAdmin, RoleReader, RoleGuest),
	}
)

// Policies lists every endpoint policy, in a stable order.
func Policies() []Policy {
	return []Policy{
		PolicyBookCreate,
		PolicyBookUpdate,
		PolicyBookDelete,
		PolicyBookListAll,
		PolicyBookRead,
		PolicyBookCover,
		PolicyBookCollect,
		PolicyGuestBooks,
		PolicyUserAdmin,
		PolicyUserSelf,
	}
}
