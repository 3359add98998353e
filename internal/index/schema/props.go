package schema

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	errMissing   = errors.New("missing")
	errNotScalar = errors.New("not a scalar value")
	errNotList   = errors.New("not a list of strings")
)

// readProperty reads one property from a parsed document.
//
// Leniency rules: a present but null or empty value of a required property
// reads as the kind's default (empty text, 0, false). Absent optional
// properties read as nil. Flags never fail on absence and read as false.
func readProperty(doc map[string]any, p Property) (any, error) {
	raw, present := doc[p.Key]
	if p.Kind == KindBool {
		return readBool(raw, p)
	}
	if !present {
		if p.Required {
			return nil, &PropertyError{Name: p.Key, Err: errMissing}
		}
		return nil, nil
	}
	if raw == nil {
		if p.Required {
			return defaultValue(p.Kind), nil
		}
		return nil, nil
	}

	s, ok := scalarString(raw)
	if !ok {
		return nil, &PropertyError{Name: p.Key, Err: errNotScalar}
	}
	if s == "" && p.Required {
		return defaultValue(p.Kind), nil
	}

	val, err := parseKind(p.Kind, s)
	if err != nil {
		return nil, &PropertyError{Name: p.Key, Err: err}
	}
	return val, nil
}

func readBool(raw any, p Property) (any, error) {
	switch b := raw.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	case string:
		if b == "" {
			return false, nil
		}
		v, err := strconv.ParseBool(b)
		if err != nil {
			return nil, &PropertyError{Name: p.Key, Err: err}
		}
		return v, nil
	default:
		return nil, &PropertyError{Name: p.Key, Err: fmt.Errorf("expected bool, got %T", raw)}
	}
}

// readStringList reads a list of strings. Absent or null reads as empty.
func readStringList(doc map[string]any, key string) ([]string, error) {
	raw, present := doc[key]
	if !present || raw == nil {
		return []string{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &PropertyError{Name: key, Err: errNotList}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, &PropertyError{Name: key, Err: errNotList}
		}
		out = append(out, s)
	}
	return out, nil
}

// scalarString renders a JSON scalar as the string it would be parsed from.
// Integers stay integral and floats use the shortest representation.
func scalarString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case []any, map[string]any:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

func parseKind(kind Kind, s string) (any, error) {
	switch kind {
	case KindInt:
		return strconv.ParseInt(s, 10, 64)
	case KindReal:
		return strconv.ParseFloat(s, 64)
	case KindBool:
		return strconv.ParseBool(s)
	default:
		return s, nil
	}
}

func defaultValue(kind Kind) any {
	switch kind {
	case KindInt:
		return int64(0)
	case KindReal:
		return float64(0)
	case KindBool:
		return false
	default:
		return ""
	}
}
