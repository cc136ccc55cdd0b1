package server

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/errs"
	"github.com/miguel-loureiro/BookCatalog/internal/services/catalog"
	"github.com/miguel-loureiro/BookCatalog/internal/services/validation"
)

const (
	// multipartOverhead leaves room for the book part and part headers on
	// top of the cover size limit.
	multipartOverhead = 1 << 20

	bookPart  = "book"
	coverPart = "file"
)

// readBookRequest accepts either multipart/form-data with a "book" JSON
// part and an optional "file" part, or a plain JSON book.
func (a *api) readBookRequest(w http.ResponseWriter, r *http.Request) (catalog.BookInput, *catalog.Cover, error) {
	var in catalog.BookInput

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := a.decode(w, r, validation.SchemaBook, &in); err != nil {
			return in, nil, err
		}
		return in, nil, nil
	}

	maxCover := a.catalog.MaxCoverSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxCover+multipartOverhead)
	if err := r.ParseMultipartForm(maxCover + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, nil, a.catalog.CoverTooLarge()
		}
		return in, nil, errs.BadRequest("Invalid multipart request", err)
	}
	form := r.MultipartForm

	raw, err := bookJSON(form)
	if err != nil {
		return in, nil, err
	}
	if err := a.validator.Decode(validation.SchemaBook, raw, &in); err != nil {
		return in, nil, err
	}

	cover, err := coverFromForm(form, maxCover)
	if err != nil {
		return in, nil, err
	}
	return in, cover, nil
}

// bookJSON returns the "book" part, sent either as a field or as a file.
func bookJSON(form *multipart.Form) ([]byte, error) {
	if values := form.Value[bookPart]; len(values) > 0 && values[0] != "" {
		return []byte(values[0]), nil
	}
	if files := form.File[bookPart]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			return nil, errs.BadRequest("Unable to read book part", err)
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxJSONBody))
		if err != nil {
			return nil, errs.BadRequest("Unable to read book part", err)
		}
		return data, nil
	}
	return nil, errs.BadRequest("Missing book part", nil)
}

// coverFromForm reads at most maxCover+1 bytes so the service can tell an
// exact-limit file from an oversized one.
func coverFromForm(form *multipart.Form, maxCover int64) (*catalog.Cover, error) {
	files := form.File[coverPart]
	if len(files) == 0 {
		return nil, nil
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return nil, errs.BadRequest("Unable to read file part", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxCover+1))
	if err != nil {
		return nil, errs.BadRequest("Unable to read file part", err)
	}
	return &catalog.Cover{Filename: fh.Filename, Data: data}, nil
}

func (a *api) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	in, cover, err := a.readBookRequest(w, r)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	book, err := a.catalog.Create(r.Context(), in, cover)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (a *api) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	in, cover, err := a.readBookRequest(w, r)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	book, err := a.catalog.Update(r.Context(), id, in, cover)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (a *api) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.catalog.Delete(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	book, err := a.catalog.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (a *api) handleGetCover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	f, contentType, err := a.catalog.OpenCover(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, f.Name(), modTime, f)
}

func (a *api) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := a.catalog.List(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (a *api) handleListBooksShort(w http.ResponseWriter, r *http.Request) {
	books, err := a.catalog.ListShort(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (a *api) handleBooksByUserID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	books, err := a.catalog.ByUserID(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (a *api) handleBooksByUserIdentifier(w http.ResponseWriter, r *http.Request) {
	books, err := a.catalog.ByUserIdentifier(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// handleAddToCollection adds the book to the caller's own collection.
func (a *api) handleAddToCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok || p.ID == 0 {
		a.writeError(w, r, errs.Unauthenticated(auth.DefaultUnauthenticatedMessage, nil))
		return
	}
	if err := a.catalog.AddToCollection(r.Context(), p.ID, id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
