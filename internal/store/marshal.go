package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/dbsync/internal/ir"
)

// marshalFields converts entity fields to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalFields(fields ir.IRObject) (string, error) {
	if fields == nil {
		fields = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses canonical JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON which keeps integers as IRInt to avoid
// float64 precision loss for values > 2^53.
func unmarshalFields(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEntity reads the entity, pk, fields, seq columns.
func scanEntity(row scanner) (ir.Entity, error) {
	var (
		e      ir.Entity
		fields string
	)
	if err := row.Scan(&e.Type, &e.Key, &fields, &e.Seq); err != nil {
		return ir.Entity{}, fmt.Errorf("scan entity: %w", err)
	}

	obj, err := unmarshalFields(fields)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("entity %s/%s: %w", e.Type, e.Key, err)
	}
	e.Fields = obj
	return e, nil
}
