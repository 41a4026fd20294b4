// Package ir provides the shared data types of dbsync.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key types:
//   - Record: a loosely-typed field-name-to-value mapping (the external shape)
//   - IRValue: the sealed value set persisted inside an entity
//   - Entity: a persisted, schema-typed object identified by its primary key
//   - Schema: the flat registry of caller-supplied entity definitions
//
// Stored field values are serialized with MarshalCanonical so identical
// entities always produce byte-identical rows.
package ir
