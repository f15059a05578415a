// Package history records fleet operation outcomes in SQLite.
//
// The store implements the group executor's Recorder contract: every group
// run is appended with its per-device results, queryable by run and by
// device. Recording is best effort; a failed insert is logged and never
// affects the operation outcome. A missing database file is not fatal to
// the fleet — the store is simply not wired in.
package history
