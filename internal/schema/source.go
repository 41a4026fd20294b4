package schema

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/dbsync/internal/ir"
)

// CompileString compiles CUE source text into a validated schema.
// filename is only used in error positions.
func CompileString(src, filename string) (*ir.Schema, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	return Build(v)
}

// Build compiles the entities of v and resolves them into a schema.
func Build(v cue.Value) (*ir.Schema, error) {
	entities, err := Compile(v)
	if err != nil {
		return nil, err
	}
	return ir.NewSchema(entities...)
}
