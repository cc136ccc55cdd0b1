package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/errs"
	"github.com/miguel-loureiro/BookCatalog/internal/telemetry"
)

// PolicyEnforcer decides whether a principal satisfies a policy.
type PolicyEnforcer interface {
	Allowed(principal auth.Principal, policy auth.Policy) (bool, error)
}

// Authorizer gates routes on declared policies.
type Authorizer struct {
	enforcer PolicyEnforcer
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

func NewAuthorizer(enforcer PolicyEnforcer, metrics *telemetry.Metrics, logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{enforcer: enforcer, metrics: metrics, logger: logger}
}

// Require returns a middleware that answers 401 without a bound principal
// and 403 when the principal's role is not allowed, using the policy's
// messages. The handler only runs once both checks pass.
func (a *Authorizer) Require(policy auth.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				a.metrics.AuthzDecision(policy.Name, "unauthenticated")
				errs.Write(w, r, a.logger, errs.Unauthenticated(policy.Unauthenticated(), nil))
				return
			}

			allowed, err := a.enforcer.Allowed(principal, policy)
			if err != nil {
				a.metrics.AuthzDecision(policy.Name, "error")
				errs.Write(w, r, a.logger, errs.Internal("evaluate policy "+policy.Name, err))
				return
			}
			if !allowed {
				a.metrics.AuthzDecision(policy.Name, "deny")
				a.logger.Debug("access denied",
					zap.String("policy", policy.Name),
					zap.String("principal", principal.Username),
					zap.String("role", principal.Role.String()),
				)
				errs.Write(w, r, a.logger, errs.Forbidden(policy.Forbidden()))
				return
			}

			a.metrics.AuthzDecision(policy.Name, "allow")
			next.ServeHTTP(w, r)
		})
	}
}
