// Package schema compiles CUE entity definitions into an ir.Schema.
//
// Entities live under the top-level "entity" struct, one field per type,
// in declaration order:
//
//	entity: Pet: {
//		primary_key: "id"
//		fields: {
//			id:   {type: "int", required: true}
//			name: string
//			age:  "float"
//		}
//		relations: owner: "Owner"
//	}
//
//	entity: Dog: {
//		parent: "Pet"
//		fields: good: bool
//		relations: toys: {target: "Toy", many: true, key: "toy_ids"}
//	}
//
// A field is a CUE type (string, int, float, bool, [...], {...}, _), a
// type name string, or a struct with type, key and required. A relation
// is a target entity name or a struct with target, many and key.
package schema
