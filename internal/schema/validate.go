package schema

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/dbsync/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrSourceInvalid    = "E100" // CUE source cannot be read or built
	ErrEntityInvalid    = "E101" // entity definition cannot be compiled
	ErrNoEntitiesFound  = "E102" // sources define no entities
	ErrInvalidFieldType = "E104" // unknown field type
	ErrSchemaConflict   = "E105" // cross-entity error: parent, target, duplicate
)

// ValidationError represents one schema problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks the schema sources at paths and returns every problem
// found. Unlike Load it does not stop at the first broken entity.
// Cross-entity checks run only once every entity compiles.
func Validate(paths ...string) []ValidationError {
	if len(paths) == 0 {
		return []ValidationError{{Field: "schema", Message: "no schema paths given", Code: ErrSourceInvalid}}
	}

	var (
		errs     []ValidationError
		entities []ir.EntitySchema
	)
	ctx := cuecontext.New()
	for _, path := range paths {
		v, err := buildPath(ctx, path)
		if err != nil {
			errs = append(errs, toValidationError(err, path))
			continue
		}

		entitiesVal := v.LookupPath(cue.ParsePath("entity"))
		if !entitiesVal.Exists() {
			continue
		}
		iter, err := entitiesVal.Fields()
		if err != nil {
			errs = append(errs, toValidationError(formatCUEError(err), path))
			continue
		}
		for iter.Next() {
			es, err := CompileEntity(iter.Value())
			if err != nil {
				errs = append(errs, toValidationError(err, path))
				continue
			}
			entities = append(entities, *es)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	if len(entities) == 0 {
		return []ValidationError{{Field: "entity", Message: "no entities found in schema sources", Code: ErrNoEntitiesFound}}
	}
	if _, err := ir.NewSchema(entities...); err != nil {
		return []ValidationError{toValidationError(err, "")}
	}
	return nil
}

func toValidationError(err error, path string) ValidationError {
	var (
		ce *CompileError
		le *LoadError
		se *ir.SchemaError
	)
	switch {
	case errors.As(err, &ce):
		ve := ValidationError{Field: ce.Field, Message: ce.Message, Code: ErrEntityInvalid, File: path}
		switch {
		case ce.Field == "cue":
			ve.Code = ErrSourceInvalid
		case strings.HasPrefix(ce.Message, "unknown field type"), strings.HasPrefix(ce.Message, "unsupported type kind"):
			ve.Code = ErrInvalidFieldType
		}
		if ce.Pos.IsValid() {
			ve.File = ce.Pos.Filename()
			ve.Line = ce.Pos.Line()
		}
		return ve
	case errors.As(err, &le):
		ve := ValidationError{Field: "source", Message: le.Message, Code: ErrSourceInvalid, File: le.Path}
		if le.Pos.IsValid() {
			ve.File = le.Pos.Filename()
			ve.Line = le.Pos.Line()
		}
		return ve
	case errors.As(err, &se):
		field := "entity." + se.Entity
		if se.Field != "" {
			field += "." + se.Field
		}
		return ValidationError{Field: field, Message: se.Message, Code: ErrSchemaConflict}
	default:
		return ValidationError{Field: "schema", Message: err.Error(), Code: ErrEntityInvalid, File: path}
	}
}
