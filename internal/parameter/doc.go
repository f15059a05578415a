// Package parameter is the semantic heart of the Shelly fleet core: it
// resolves a logical parameter name or control verb plus a device into the
// correct wire calls for that device's generation.
//
// # Resolution Order
//
// For a logical name L on device D:
//
//  1. D's capability definition declares L → use its descriptor
//  2. The cross-generation mapping table has L with a branch for D's
//     generation → synthesise an ad-hoc descriptor
//  3. Otherwise the operation fails with unsupported-parameter
//
// # Dialects
//
// The engine is a single code path parameterised by generation:
//
//   - Gen1 reads GET the descriptor's endpoint and descend the dotted
//     parameter path; writes are GETs with query parameters, booleans as
//     lowercase "true"/"false" literals (owned by the coercion layer)
//   - Gen2+ reads pivot the descriptor's Setter to its Getter and descend
//     component key then path; writes nest the value under
//     {"config": ...} with {"id": N} for indexed components
//
// Control verbs are a table (verbs.go), not a class hierarchy; the table is
// extensible without touching the engine.
//
// # Results and Errors
//
// Every operation produces an OperationResult with the fleet error taxonomy
// on ErrorKind. Reboot coordination, read-back clamp detection and firmware
// update polling are layered on the same result.
//
// # Concurrency
//
// Operations on one device are serialised via the registry's per-device
// mutex; a set followed by a get of the same parameter on the same device
// is causal.
package parameter
