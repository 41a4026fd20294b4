// Package provider is the caller-facing API of dbsync.
//
// Writes (MapOne, MapBatch, DeleteByID, DeleteByIDs, Purge, PurgeFunc,
// Edit) are wrapped in engine operations and serialized by the write
// coordinator; each returns a result.Channel that settles exactly once.
// Reads (FetchModels, FetchFirst, FetchRelated, FetchEntities,
// FetchFirstEntity, Count) go straight to the store's read pool and never
// wait for the coordinator. Read failures are logged and reported as
// empty results.
package provider
