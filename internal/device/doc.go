// Package device provides the Device Registry for the Shelly fleet core.
//
// The registry is the durable, in-memory index of every Shelly device known
// to the fleet, keyed by MAC address (uppercased, no separators). Discovery
// upserts records, the parameter engine writes back name and firmware
// changes, and the group executor reads consistent snapshots for fan-out.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                       Device Registry                        │
//	│                                                              │
//	│  ┌────────────────┐   ┌──────────────────┐   ┌────────────┐ │
//	│  │    Registry    │   │  YAMLRepository  │   │ Validation │ │
//	│  │  (registry.go) │──▶│ (repository.go)  │   │            │ │
//	│  │                │   │                  │   │ MAC checks │ │
//	│  │ • MAC index    │   │ • one YAML file  │   │ Generation │ │
//	│  │ • insertion    │   │   per device     │   │   checks   │ │
//	│  │   order        │   │ • atomic rename  │   └────────────┘ │
//	│  │ • per-device   │   │ • dedupe on load │                  │
//	│  │   op locks     │   └──────────────────┘                  │
//	│  └────────────────┘                                         │
//	└─────────────────────────────────────────────────────────────┘
//
// # Lifecycle
//
// Devices are created by discovery or manual insert, mutated only by a
// subsequent discovery observation of the same MAC or an explicit operation
// writing back new state, and removed only by explicit delete.
//
// # Thread Safety
//
// The index is guarded by a read-write lock; every read returns a deep copy
// so callers never observe a half-updated record. OpLock hands out the
// per-device mutex that serialises wire operations against one device.
package device
