package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/errs"
	"github.com/miguel-loureiro/BookCatalog/internal/services/iam"
	"github.com/miguel-loureiro/BookCatalog/internal/services/validation"
)

// meResponse describes the bound principal.
type meResponse struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Authorities []string `json:"authorities"`
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		a.writeError(w, r, errs.Unauthenticated(auth.DefaultUnauthenticatedMessage, nil))
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:          p.ID,
		Username:    p.Username,
		Email:       p.Email,
		Role:        p.Role.String(),
		Authorities: p.Authorities(),
	})
}

func (a *api) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.iam.ListUsers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *api) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req iam.CreateUserRequest
	if err := a.decode(w, r, validation.SchemaUserCreate, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.iam.CreateUser(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// userLookup parses the {type}/{identifier} path pair.
func userLookup(r *http.Request) (iam.LookupType, string, error) {
	by, err := iam.ParseLookupType(chi.URLParam(r, "type"))
	if err != nil {
		return "", "", err
	}
	return by, chi.URLParam(r, "identifier"), nil
}

func (a *api) handleGetUser(w http.ResponseWriter, r *http.Request) {
	by, identifier, err := userLookup(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.iam.GetUser(r.Context(), by, identifier)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *api) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	by, identifier, err := userLookup(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req iam.UpdateUserRequest
	if err := a.decode(w, r, validation.SchemaUserUpdate, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.iam.UpdateUser(r.Context(), by, identifier, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *api) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	by, identifier, err := userLookup(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.iam.DeleteUser(r.Context(), by, identifier); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
