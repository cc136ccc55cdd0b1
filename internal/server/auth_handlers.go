package server

import (
	"net/http"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/middleware"
	"github.com/miguel-loureiro/BookCatalog/internal/services/catalog"
	"github.com/miguel-loureiro/BookCatalog/internal/services/iam"
	"github.com/miguel-loureiro/BookCatalog/internal/services/validation"
)

// handleLogin authenticates credentials. Any principal already bound to the
// request is cleared first so a stale identity never leaks into the login.
func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(auth.ClearPrincipal(r.Context()))

	var req iam.LoginRequest
	if err := a.decode(w, r, validation.SchemaLogin, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	req.ClientKey = middleware.ClientIP(r)

	resp, err := a.iam.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGuestLogin issues a guest token. It takes no body.
func (a *api) handleGuestLogin(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(auth.ClearPrincipal(r.Context()))

	resp, err := a.iam.GuestLogin(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req iam.SignupRequest
	if err := a.decode(w, r, validation.SchemaSignup, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.iam.Register(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleGuestBooks returns a page of short books for guests.
func (a *api) handleGuestBooks(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	size, err := queryInt(r, "size", catalog.DefaultPageSize)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := a.catalog.Page(r.Context(), page, size)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
