package inbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/dbsync/internal/ir"
)

// File is the envelope of one inbox file.
type File struct {
	Entity  string      `json:"entity"`
	Records []ir.Record `json:"records"`
}

// DecodeFile parses an inbox envelope. Numbers are kept as json.Number so
// large integer keys survive.
func DecodeFile(data []byte) (File, error) {
	var raw struct {
		Entity  string          `json:"entity"`
		Records json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return File{}, fmt.Errorf("decode envelope: %w", err)
	}
	if raw.Entity == "" {
		return File{}, errors.New("decode envelope: entity is required")
	}
	if len(raw.Records) == 0 {
		return File{}, errors.New("decode envelope: records is required")
	}

	records, err := DecodeRecords(raw.Records)
	if err != nil {
		return File{}, err
	}
	return File{Entity: raw.Entity, Records: records}, nil
}

// DecodeRecords parses a JSON array of record objects or a single object.
func DecodeRecords(data []byte) ([]ir.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode records: trailing data after JSON value")
	}

	switch t := v.(type) {
	case map[string]any:
		return []ir.Record{t}, nil
	case []any:
		records := make([]ir.Record, len(t))
		for i, item := range t {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("decode records: [%d] is %T, not an object", i, item)
			}
			records[i] = obj
		}
		return records, nil
	default:
		return nil, fmt.Errorf("decode records: expected an object or an array, got %T", v)
	}
}
