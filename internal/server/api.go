package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/miguel-loureiro/BookCatalog/internal/errs"
	"github.com/miguel-loureiro/BookCatalog/internal/services/catalog"
	"github.com/miguel-loureiro/BookCatalog/internal/services/iam"
	"github.com/miguel-loureiro/BookCatalog/internal/services/validation"
)

// maxJSONBody bounds plain JSON request bodies.
const maxJSONBody = 1 << 20

type api struct {
	iam       iam.Service
	catalog   *catalog.Service
	validator *validation.SchemaValidator
	logger    *zap.Logger
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	errs.Write(w, r, a.logger, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readBody reads a bounded JSON body. An empty body is a 400.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errs.BadRequest("Request body is required", nil)
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errs.BadRequest("Request body too large", err)
		}
		return nil, errs.BadRequest("Unable to read request body", err)
	}
	if len(data) == 0 {
		return nil, errs.BadRequest("Request body is required", nil)
	}
	return data, nil
}

// decode reads the body and validates it against schema before
// unmarshalling into dst.
func (a *api) decode(w http.ResponseWriter, r *http.Request, schema string, dst any) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	return a.validator.Decode(schema, data, dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.BadRequest(fmt.Sprintf("Invalid %s: %s", name, raw), err)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.BadRequest(fmt.Sprintf("Invalid %s: %s", name, raw), err)
	}
	return n, nil
}
