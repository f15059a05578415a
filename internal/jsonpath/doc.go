// Package jsonpath evaluates dotted parameter paths over decoded JSON values.
//
// Shelly capability definitions locate a parameter inside an API payload with
// a dotted path such as "mqtt.enable", "switch:0.in_mode" or
// "valves[0].state". This package parses those paths and walks the
// map[string]any / []any trees produced by encoding/json.
//
// # Key Functions
//
//   - Parse: split a path into typed segments
//   - Resolve: descend a payload and return the addressed leaf
//   - Flatten: enumerate every leaf of a payload by its dotted path
//   - LastSegment: the final key, used as a Gen1 query parameter name
//
// No reflection is used; payloads stay as plain decoded JSON values.
package jsonpath
