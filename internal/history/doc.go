// Package history records batch runs and per-file unlock outcomes in SQLite.
//
// Each run gets a UUID. Jobs are written as they finish, so an interrupted
// run still shows which files were handled. The store backs `aum history`.
// Schema changes bump schemaVersion; an older database must be deleted.
package history
