package ir

// Record is a loosely-typed record: the external interchange shape for
// entity data, typically decoded from JSON.
type Record map[string]any

// Entity is a materialised copy of a persisted object.
//
// Entities are snapshots: mutating one never touches the store until it is
// saved through a write context.
type Entity struct {
	Type string `json:"type"`

	// Key is the canonical primary-key string (see CanonicalKey).
	Key string `json:"key"`

	// Fields holds every mapped attribute, including the primary key.
	Fields IRObject `json:"fields"`

	// Relations maps a relation name to the ordered keys of its targets.
	Relations map[string][]string `json:"relations,omitempty"`

	// Seq is the store's insertion sequence, assigned on first save.
	Seq int64 `json:"seq"`
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	cp := e
	cp.Fields = e.Fields.Clone()
	if e.Relations != nil {
		cp.Relations = make(map[string][]string, len(e.Relations))
		for name, keys := range e.Relations {
			cp.Relations[name] = append([]string(nil), keys...)
		}
	}
	return cp
}

// Ref identifies one entity by type and canonical key.
type Ref struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}
