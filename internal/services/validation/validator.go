// Package validation checks request payloads against the embedded JSON
// schemas before they are decoded into typed requests.
package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/miguel-loureiro/BookCatalog/internal/errs"
)

// Schema names, matching the files under schemas/.
const (
	SchemaBook       = "book"
	SchemaLogin      = "login"
	SchemaSignup     = "signup"
	SchemaUserCreate = "user_create"
	SchemaUserUpdate = "user_update"
)

const maxMessageLength = 200

//go:embed schemas/*.json
var schemaFS embed.FS

// SchemaValidator validates payloads against named schemas. Compiled schemas
// are kept in an LRU cache.
type SchemaValidator struct {
	cache   *lru.Cache[string, *jsonschema.Schema]
	printer *message.Printer
}

// NewSchemaValidator compiles every embedded schema up front so a broken
// schema fails at startup rather than on the first request.
func NewSchemaValidator() (*SchemaValidator, error) {
	names := []string{SchemaBook, SchemaLogin, SchemaSignup, SchemaUserCreate, SchemaUserUpdate}
	cache, err := lru.New[string, *jsonschema.Schema](len(names))
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}

	v := &SchemaValidator{cache: cache, printer: message.NewPrinter(language.English)}
	for _, name := range names {
		if _, err := v.schema(name); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// MustNewSchemaValidator is NewSchemaValidator for wiring code and tests.
func MustNewSchemaValidator() *SchemaValidator {
	v, err := NewSchemaValidator()
	if err != nil {
		panic(err)
	}
	return v
}

func (v *SchemaValidator) schema(name string) (*jsonschema.Schema, error) {
	if s, ok := v.cache.Get(name); ok {
		return s, nil
	}
	raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("unknown schema %q: %w", name, err)
	}
	s, err := compileSchema(name, raw)
	if err != nil {
		return nil, err
	}
	v.cache.Add(name, s)
	return s, nil
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)

	url := name + ".json"
	if err := compiler.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return s, nil
}

// Validate checks data against the named schema. Malformed JSON and schema
// violations come back as errs.BadRequest.
func (v *SchemaValidator) Validate(name string, data []byte) error {
	s, err := v.schema(name)
	if err != nil {
		return errs.Internal("schema unavailable", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return errs.BadRequest("Malformed JSON request body", err)
	}
	if err := s.Validate(inst); err != nil {
		return errs.BadRequest(v.formatValidationError(err), err)
	}
	return nil
}

// Decode validates data and unmarshals it into dst.
func (v *SchemaValidator) Decode(name string, data []byte, dst any) error {
	if err := v.Validate(name, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errs.BadRequest("Malformed JSON request body", err)
	}
	return nil
}

// formatValidationError renders the most specific cause as
// "validation failed at '$.title': minLength: got 0, want 1".
func (v *SchemaValidator) formatValidationError(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}

	path := "$"
	var parts []string
	for _, part := range ve.InstanceLocation {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) > 0 {
		path = "$." + strings.Join(parts, ".")
	}

	msg := ve.ErrorKind.LocalizedString(v.printer)
	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength] + "... (truncated)"
	}
	return fmt.Sprintf("validation failed at '%s': %s", path, msg)
}
