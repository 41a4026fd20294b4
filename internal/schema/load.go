package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dbsync/internal/ir"
)

// Load error codes.
const (
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeNoFiles     = "NO_FILES"
	ErrCodeLoadFailed  = "LOAD_FAILED"
	ErrCodeBuildFailed = "BUILD_FAILED"
	ErrCodeNoEntities  = "NO_ENTITIES"
)

// LoadError represents a failure to read or build CUE sources.
// Compilation problems are reported as *CompileError instead.
type LoadError struct {
	Code    string
	Message string
	Path    string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load compiles the entities of every path and resolves them into one
// schema. A path is either a .cue file or a directory holding one CUE
// package. Entities keep path order, then declaration order.
func Load(paths ...string) (*ir.Schema, error) {
	if len(paths) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no schema paths given"}
	}

	ctx := cuecontext.New()
	var entities []ir.EntitySchema
	for _, path := range paths {
		v, err := buildPath(ctx, path)
		if err != nil {
			return nil, err
		}
		compiled, err := Compile(v)
		if err != nil {
			return nil, err
		}
		entities = append(entities, compiled...)
	}

	if len(entities) == 0 {
		return nil, &LoadError{Code: ErrCodeNoEntities, Message: "no entities found in schema sources"}
	}
	return ir.NewSchema(entities...)
}

func buildPath(ctx *cue.Context, path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return cue.Value{}, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "schema path not found"}
	}
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeNotFound, Path: path, Message: err.Error()}
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return cue.Value{}, formatCUEError(err)
		}
		return v, nil
	}

	files, err := FindCUEFiles(path)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: fmt.Sprintf("scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeNoFiles, Path: path, Message: "no CUE files found"}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: inst.Err.Error()}
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeBuildFailed, Path: path, Message: err.Error()}
	}
	return v, nil
}

// FindCUEFiles returns the .cue files directly inside dir.
func FindCUEFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	return matches, nil
}
