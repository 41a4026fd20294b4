// Package mapper translates loosely-typed records into persisted entities
// and back.
//
// MapBatch runs inside a write context: each record is matched to an
// existing entity by primary key (update) or becomes a new one (insert), its
// fields are coerced to the schema's types, and its relations are resolved
// either by mapping nested records or by looking up referenced keys. The
// first failing record aborts the batch; the caller discards the context so
// nothing from the batch is committed.
//
// Export turns an entity snapshot into a plain record with local field names
// and Go native values.
package mapper
