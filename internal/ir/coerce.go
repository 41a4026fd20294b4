package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// TypeMismatchError reports a value that cannot be coerced to a field type.
type TypeMismatchError struct {
	Want FieldType
	Got  any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("expected %s, got %T", e.Want, e.Got)
}

// Coerce converts a record value into the IRValue stored for a field of
// type ft. Nil values are handled by the caller; Coerce rejects them.
func Coerce(ft FieldType, v any) (IRValue, error) {
	if v == nil {
		return nil, &TypeMismatchError{Want: ft, Got: v}
	}
	if _, isNull := v.(IRNull); isNull {
		return nil, &TypeMismatchError{Want: ft, Got: v}
	}

	switch ft {
	case FieldString:
		switch s := v.(type) {
		case string:
			return IRString(s), nil
		case IRString:
			return s, nil
		}
	case FieldInt:
		if n, ok := asInt(v); ok {
			return IRInt(n), nil
		}
	case FieldFloat:
		if f, ok := asFloat(v); ok {
			return IRFloat(f), nil
		}
	case FieldBool:
		switch b := v.(type) {
		case bool:
			return IRBool(b), nil
		case IRBool:
			return b, nil
		}
	case FieldObject:
		switch v.(type) {
		case map[string]any, Record, IRObject:
			return FromGo(v)
		}
	case FieldArray:
		switch arr := v.(type) {
		case []any, IRArray:
			return FromGo(v)
		case []Record:
			out := make(IRArray, len(arr))
			for i, rec := range arr {
				obj, err := FromGo(rec)
				if err != nil {
					return nil, fmt.Errorf("[%d]: %w", i, err)
				}
				out[i] = obj
			}
			return out, nil
		}
	case FieldAny:
		return FromGo(v)
	default:
		return nil, fmt.Errorf("unknown field type %q", ft)
	}
	return nil, &TypeMismatchError{Want: ft, Got: v}
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint64:
		return int64(n), n <= math.MaxInt64
	case IRInt:
		return int64(n), true
	case float64:
		return integralFloat(n)
	case float32:
		return integralFloat(float64(n))
	case IRFloat:
		return integralFloat(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return integralFloat(f)
		}
	}
	return 0, false
}

func integralFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), !math.IsNaN(float64(n)) && !math.IsInf(float64(n), 0)
	case IRFloat:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// CanonicalKey normalises a primary-key value for a key field of type ft.
// It returns the typed value stored in the entity's fields and the canonical
// string used as the entity's identity.
//
// Int keys accept any integral number or a decimal string; string keys
// accept strings and integers (formatted in decimal).
func CanonicalKey(ft FieldType, v any) (IRValue, string, error) {
	switch ft {
	case FieldInt:
		if s, ok := v.(string); ok {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, "", &TypeMismatchError{Want: ft, Got: v}
			}
			return IRInt(n), strconv.FormatInt(n, 10), nil
		}
		n, ok := asInt(v)
		if !ok {
			return nil, "", &TypeMismatchError{Want: ft, Got: v}
		}
		return IRInt(n), strconv.FormatInt(n, 10), nil
	case FieldString:
		switch s := v.(type) {
		case string:
			return IRString(s), s, nil
		case IRString:
			return s, string(s), nil
		}
		if _, isBool := v.(bool); !isBool {
			if n, ok := asInt(v); ok {
				str := strconv.FormatInt(n, 10)
				return IRString(str), str, nil
			}
		}
		return nil, "", &TypeMismatchError{Want: ft, Got: v}
	default:
		return nil, "", fmt.Errorf("field type %q cannot be a primary key", ft)
	}
}

// KeyValue converts a canonical key string back to its exported Go value.
func KeyValue(ft FieldType, key string) any {
	if ft == FieldInt {
		if n, err := strconv.ParseInt(key, 10, 64); err == nil {
			return n
		}
	}
	return key
}
