package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a parsed parameter path.
//
// A segment addresses either an object key or an array element. Keys may
// contain colons (Gen2 component keys such as "switch:0" are single keys,
// not paths), and a key may carry a bracketed index ("valves[0]" descends
// into the "valves" key, then into element 0).
type Segment struct {
	Key      string
	Index    int
	HasIndex bool
}

// Parse splits a dotted parameter path into segments.
//
// Supported forms:
//
//	"mqtt.enable"       → [mqtt, enable]
//	"switch:0.in_mode"  → [switch:0, in_mode]
//	"valves[0].state"   → [valves[0], state]
//
// An empty path yields no segments. Malformed bracket expressions return
// an error.
func Parse(path string) ([]Segment, error) {
	if path == "" {
		return nil, nil
	}

	parts := strings.Split(path, ".")
	segments := make([]Segment, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}

		open := strings.IndexByte(part, '[')
		if open < 0 {
			segments = append(segments, Segment{Key: part})
			continue
		}

		if !strings.HasSuffix(part, "]") {
			return nil, fmt.Errorf("%w: unterminated index in %q", ErrInvalidPath, part)
		}

		key := part[:open]
		idxText := part[open+1 : len(part)-1]
		idx, err := strconv.Atoi(idxText)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: bad index %q in %q", ErrInvalidPath, idxText, part)
		}

		segments = append(segments, Segment{Key: key, Index: idx, HasIndex: true})
	}

	return segments, nil
}

// LastSegment returns the final key of a path, used as the Gen1 query
// parameter name ("mqtt.enable" → "enable"). Bracket indices are stripped.
func LastSegment(path string) string {
	segments, err := Parse(path)
	if err != nil || len(segments) == 0 {
		return path
	}
	return segments[len(segments)-1].Key
}

// Resolve descends a decoded JSON value along the given path.
//
// The value is expected to be the result of encoding/json unmarshalling
// into any: objects are map[string]any, arrays are []any. A missing key or
// out-of-range index returns ErrPathMissing; descending through a leaf
// returns ErrNotTraversable. A literal null leaf resolves to nil without
// error.
func Resolve(value any, path string) (any, error) {
	segments, err := Parse(path)
	if err != nil {
		return nil, err
	}
	return ResolveSegments(value, segments)
}

// ResolveSegments is Resolve for a pre-parsed path.
func ResolveSegments(value any, segments []Segment) (any, error) {
	current := value
	for i, seg := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: segment %q is not an object", ErrNotTraversable, joinSegments(segments[:i]))
		}

		next, exists := obj[seg.Key]
		if !exists {
			return nil, fmt.Errorf("%w: %q", ErrPathMissing, joinSegments(segments[:i+1]))
		}

		if seg.HasIndex {
			arr, ok := next.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: %q is not an array", ErrNotTraversable, seg.Key)
			}
			if seg.Index >= len(arr) {
				return nil, fmt.Errorf("%w: index %d out of range for %q", ErrPathMissing, seg.Index, seg.Key)
			}
			next = arr[seg.Index]
		}

		current = next
	}
	return current, nil
}

// joinSegments renders segments back into dotted-path form for error text.
func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.HasIndex {
			parts = append(parts, fmt.Sprintf("%s[%d]", seg.Key, seg.Index))
		} else {
			parts = append(parts, seg.Key)
		}
	}
	return strings.Join(parts, ".")
}

// Flatten walks a decoded JSON value and returns every leaf keyed by its
// dotted path. Array elements use bracket notation. Object leaves that are
// empty maps are recorded as-is.
//
// Used by capability discovery to harvest parameters from observed device
// payloads.
func Flatten(value any) map[string]any {
	leaves := make(map[string]any)
	flattenInto(leaves, "", value)
	return leaves
}

func flattenInto(leaves map[string]any, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) == 0 {
			if prefix != "" {
				leaves[prefix] = v
			}
			return
		}
		for key, child := range v {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			flattenInto(leaves, path, child)
		}
	case []any:
		if len(v) == 0 {
			if prefix != "" {
				leaves[prefix] = v
			}
			return
		}
		for i, child := range v {
			flattenInto(leaves, fmt.Sprintf("%s[%d]", prefix, i), child)
		}
	default:
		if prefix != "" {
			leaves[prefix] = value
		}
	}
}
