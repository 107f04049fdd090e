package ranking

import (
	"fmt"
	"reflect"
	"strconv"
)

const maxEntityIDLength = 64

// IDs adapts a typed id slice to a RankFunc result.
func IDs[T any](ids []T) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// FormatEntityID renders an identifier the way the database renders the
// primary key when cast to text.
func FormatEntityID(v any) (string, error) {
	var s string
	switch id := v.(type) {
	case string:
		s = id
	case int:
		s = strconv.FormatInt(int64(id), 10)
	case int32:
		s = strconv.FormatInt(int64(id), 10)
	case int64:
		s = strconv.FormatInt(id, 10)
	case uint:
		s = strconv.FormatUint(uint64(id), 10)
	case uint32:
		s = strconv.FormatUint(uint64(id), 10)
	case uint64:
		s = strconv.FormatUint(id, 10)
	case fmt.Stringer:
		s = id.String()
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.String:
			s = rv.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			s = strconv.FormatInt(rv.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			s = strconv.FormatUint(rv.Uint(), 10)
		default:
			return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidIdentifier, v)
		}
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if len(s) > maxEntityIDLength {
		return "", fmt.Errorf("%w: %q longer than %d bytes", ErrInvalidIdentifier, s, maxEntityIDLength)
	}
	return s, nil
}
