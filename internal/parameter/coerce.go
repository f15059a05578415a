package parameter

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nerrad567/shelly-fleet-core/internal/capability"
)

// Coerce validates and converts a caller-supplied value to the descriptor's
// declared type. The coercion layer owns value strictness: a Gen1 boolean
// write using the literal strings "on"/"off" is rejected here, before
// anything goes on the wire.
func Coerce(value any, desc capability.ParameterDescriptor) (any, error) {
	switch desc.Type {
	case capability.TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %v (%T) is not a boolean", ErrTypeMismatch, value, value)
		}
		return b, nil

	case capability.TypeInteger:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, v)
			}
			return int64(v), nil
		default:
			return nil, fmt.Errorf("%w: %v (%T) is not an integer", ErrTypeMismatch, value, value)
		}

	case capability.TypeFloat:
		switch v := value.(type) {
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		default:
			return nil, fmt.Errorf("%w: %v (%T) is not a number", ErrTypeMismatch, value, value)
		}

	case capability.TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %v (%T) is not a string", ErrTypeMismatch, value, value)
		}
		return s, nil

	case capability.TypeEnum:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %v (%T) is not an enum value", ErrTypeMismatch, value, value)
		}
		if len(desc.EnumValues) > 0 {
			for _, allowed := range desc.EnumValues {
				if s == allowed {
					return s, nil
				}
			}
			return nil, fmt.Errorf("%w: %q is not one of %v", ErrTypeMismatch, s, desc.EnumValues)
		}
		return s, nil

	case capability.TypeNull:
		// A nullable parameter accepts an explicit clear or a compatible
		// literal; the observed type was null so nothing stricter is known.
		switch value.(type) {
		case nil, bool, int, int64, float64, string:
			return value, nil
		default:
			return nil, fmt.Errorf("%w: %T cannot target a nullable parameter", ErrTypeMismatch, value)
		}

	case capability.TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not an object", ErrTypeMismatch, value)
		}
		return obj, nil

	case capability.TypeArray:
		arr, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not an array", ErrTypeMismatch, value)
		}
		return arr, nil

	default:
		return value, nil
	}
}

// CoerceRead converts an observed payload leaf to the descriptor's declared
// type. A literal null leaf on a nullable descriptor yields nil.
func CoerceRead(leaf any, desc capability.ParameterDescriptor) (any, error) {
	if leaf == nil {
		// Nullable descriptors read null as null; everything else treats a
		// null leaf as the declared type's zero signal and surfaces it raw.
		return nil, nil
	}
	if desc.Type == capability.TypeNull {
		return leaf, nil
	}
	return Coerce(leaf, desc)
}

// EncodeGen1 serialises a coerced value for a Gen1 query string.
//
// Booleans become the lowercase literals "true"/"false" (not "on"/"off");
// this is the vendor convention and load-bearing in practice. A nil clears
// the field with the literal "null".
func EncodeGen1(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// valuesEqual compares a requested write value with its read-back, across
// the numeric representations JSON decoding produces.
func valuesEqual(requested, observed any) bool {
	if requested == nil || observed == nil {
		return requested == observed
	}
	if rn, ok := toFloat(requested); ok {
		if on, ok := toFloat(observed); ok {
			return rn == on
		}
		return false
	}
	return requested == observed
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
