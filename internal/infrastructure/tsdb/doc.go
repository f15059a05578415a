// Package tsdb is the optional InfluxDB telemetry sink for the Shelly fleet
// core.
//
// When enabled it records operation outcomes (measurement fleet_operation,
// tagged by device, group, action and error kind), run summaries
// (fleet_run) and discovery scan summaries (fleet_discovery). Writes are
// batched and non-blocking; failures surface through an error callback and
// never propagate into fleet operations.
//
// Disabled by default. The fleet is fully functional without it.
package tsdb
