// Package iam provides identity management for the catalog API.
//
// It covers:
//
//   - Subject resolution: mapping a token subject to an auth.Principal
//   - Credential login and self-issued guest login
//   - Registration and user administration
//   - Failed-login throttling with a pluggable attempt store
//
// Request Flow:
//
//	Bearer token → middleware.Authenticator → PrincipalResolver.ResolveBySubject
//	       ↓
//	   Handler → RequirePolicy(principal) → Casbin
//
// The synthetic guest principal is never backed by a stored user. Its
// username is reserved and cannot be registered.
package iam
