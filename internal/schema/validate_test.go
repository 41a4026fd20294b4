package schema

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ok.cue", "entity: Pet: {\n\tprimary_key: \"id\"\n\tfields: id: int\n}\n")

	assert.Empty(t, Validate(path))
}

func TestValidate_CollectsAllEntityErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.cue", `entity: A: {
	fields: id: string
}
entity: B: {
	primary_key: "id"
	fields: id: "uuid"
}
entity: C: {
	primary_key: "id"
	fields: id: int
}
`)

	errs := Validate(path)
	require.Len(t, errs, 2)

	assert.Equal(t, ErrEntityInvalid, errs[0].Code)
	assert.Equal(t, "entity.A.primary_key", errs[0].Field)
	assert.Positive(t, errs[0].Line)

	assert.Equal(t, ErrInvalidFieldType, errs[1].Code)
	assert.Equal(t, "entity.B.fields.id", errs[1].Field)
	assert.Contains(t, errs[1].Message, `"uuid"`)
}

func TestValidate_SchemaConflict(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "conflict.cue", "entity: Dog: {\n\tparent: \"Pet\"\n}\n")

	errs := Validate(path)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrSchemaConflict, errs[0].Code)
	assert.Equal(t, "entity.Dog", errs[0].Field)
	assert.Contains(t, errs[0].Message, "unknown parent")
}

func TestValidate_SourceErrors(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.cue", "entity: Pet: {\n")
	missing := filepath.Join(dir, "missing.cue")

	errs := Validate(broken, missing)
	require.Len(t, errs, 2)
	assert.Equal(t, ErrSourceInvalid, errs[0].Code)
	assert.Equal(t, ErrSourceInvalid, errs[1].Code)
	assert.Equal(t, missing, errs[1].File)
}

func TestValidate_NoEntities(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.cue", "other: 1\n")

	errs := Validate(path)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrNoEntitiesFound, errs[0].Code)

	errs = Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrSourceInvalid, errs[0].Code)
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "entity.A", Message: "bad", Code: ErrEntityInvalid, Line: 3}
	assert.Equal(t, "[E101] line 3: entity.A: bad", e.Error())

	e.Line = 0
	assert.Equal(t, "[E101] entity.A: bad", e.Error())
}
