// Package cachefile implements a generic, file-backed object cache for
// applications that keep offline copies of remotely sourced collections.
//
// A Cache persists its whole collection as one JSON array in a single file.
// It runs in exactly one of two modes for its lifetime: memory-indexed, where
// an ordered in-memory index answers every read and the file is used for
// durability only, or disk-only, where each call reads and decodes the file.
// Mutations are written back by a per-cache worker off the caller's path;
// writes are sequenced so the file always converges to the latest committed
// collection. Staleness is decided by a set of Policy values evaluated against
// the last sync time kept in a prefs.Store.
package cachefile
