// Package registry provides thread-safe lookup tables used across flowhost.
//
// Registry is a generic keyed table for read-heavy workloads (module
// registries, named flows). Store is a heterogeneous value store addressed
// by typed keys, shared between the setup phases of an application and
// exposed to operations at run time:
//
//	var dbKey = registry.NewKey[*sql.DB]("sqlite.db")
//
//	store := registry.NewStore()
//	registry.Put(store, dbKey, db)
//
//	db, ok := registry.Get(store, dbKey) // db is *sql.DB, no assertion needed
//
// Keys are compared by identity, so two keys created with the same name are
// still distinct.
package registry
