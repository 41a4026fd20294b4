package mapper

import "github.com/roach88/dbsync/internal/ir"

// Export converts an entity snapshot into a plain record keyed by local
// field names. Values are Go natives (string, int64, float64, bool, nil,
// []any, map[string]any). To-one relations export the target key, to-many
// relations a list of keys. Absent fields are omitted.
func (m *EntityMapper) Export(e ir.Entity) ir.Record {
	es, ok := m.schema.Lookup(e.Type)
	if !ok {
		out := make(ir.Record, len(e.Fields))
		for name, v := range e.Fields {
			out[name] = ir.ToGo(v)
		}
		return out
	}

	out := make(ir.Record, len(es.Fields)+len(es.Relations))
	for _, f := range es.Fields {
		v, ok := e.Fields[f.Name]
		if !ok {
			continue
		}
		val := ir.ToGo(v)
		// Integral floats round-trip through canonical JSON as integers.
		if n, isInt := val.(int64); isInt && f.Type == ir.FieldFloat {
			val = float64(n)
		}
		out[f.Name] = val
	}

	for _, r := range es.Relations {
		keyType := ir.FieldString
		if target, ok := m.schema.Lookup(r.Target); ok {
			keyType = target.KeyField().Type
		}
		keys := e.Relations[r.Name]

		if r.ToMany {
			list := make([]any, len(keys))
			for i, k := range keys {
				list[i] = ir.KeyValue(keyType, k)
			}
			out[r.Name] = list
			continue
		}
		if len(keys) > 0 {
			out[r.Name] = ir.KeyValue(keyType, keys[0])
		}
	}
	return out
}

// ExportAll exports every entity in order.
func (m *EntityMapper) ExportAll(entities []ir.Entity) []ir.Record {
	out := make([]ir.Record, len(entities))
	for i, e := range entities {
		out[i] = m.Export(e)
	}
	return out
}
