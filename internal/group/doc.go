// Package group provides device groups and the group executor for the
// Shelly fleet core.
//
// A group is a named, persisted, ordered set of device MACs, stored one
// YAML file per group with unsafe filename characters replaced by
// underscores. The reserved name "all-devices" is never persisted: it
// resolves dynamically to the registry snapshot at call time.
//
// # Executor
//
// The executor takes a group name plus a logical request (control verb,
// parameter read, parameter write, or bulk setter), resolves the target
// device set, and fans the request out with bounded concurrency (default
// 16). Per-device results are reported in input device order regardless of
// completion order; members missing from the registry are skipped with
// error kind unknown-device. One device's failure never aborts the
// remainder.
//
// # Safety Interlock
//
// When the target resolves to the implicit all-devices set and the action
// is destructive (a configured verb set, or any write to wifi.*), the
// executor refuses to run without confirm=true — reported as a single
// confirmation-required fleet error with zero device I/O performed.
package group
