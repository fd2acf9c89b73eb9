// Package enum holds the parse rule shared by every status domain: a value
// arrives either as its numeric id or as its code string.
package enum

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"ticketflow/internal/shared/apperror"
)

// Set is an ordered list of codes. Ids are 1-based positions.
type Set[T ~string] struct {
	kind   string
	values []T
}

func NewSet[T ~string](kind string, values ...T) Set[T] {
	return Set[T]{kind: kind, values: values}
}

func (s Set[T]) ID(v T) int {
	for i, candidate := range s.values {
		if candidate == v {
			return i + 1
		}
	}
	return 0
}

func (s Set[T]) Valid(v T) bool {
	return s.ID(v) != 0
}

func (s Set[T]) Values() []T {
	return append([]T(nil), s.values...)
}

func (s Set[T]) byID(id int) (T, bool) {
	if id < 1 || id > len(s.values) {
		var zero T
		return zero, false
	}
	return s.values[id-1], true
}

// Parse resolves a numeric id or a case-insensitive code. Unknown values are
// BadRequest errors.
func (s Set[T]) Parse(raw any) (T, error) {
	var zero T

	switch v := raw.(type) {
	case T:
		if s.Valid(v) {
			return v, nil
		}
		return s.parseString(string(v))
	case string:
		return s.parseString(v)
	case int:
		return s.parseID(v, raw)
	case int32:
		return s.parseID(int(v), raw)
	case int64:
		return s.parseID(int(v), raw)
	case uint8:
		return s.parseID(int(v), raw)
	case float64:
		if v != math.Trunc(v) {
			return zero, s.unknown(raw)
		}
		return s.parseID(int(v), raw)
	case json.Number:
		return s.parseString(v.String())
	case nil:
		return zero, apperror.BadRequest(fmt.Sprintf("%s is required", s.kind))
	default:
		return zero, s.unknown(raw)
	}
}

func (s Set[T]) parseString(raw string) (T, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		var zero T
		return zero, apperror.BadRequest(fmt.Sprintf("%s is required", s.kind))
	}
	if id, err := strconv.Atoi(trimmed); err == nil {
		return s.parseID(id, raw)
	}

	code := T(strings.ToUpper(trimmed))
	if s.Valid(code) {
		return code, nil
	}
	var zero T
	return zero, s.unknown(raw)
}

func (s Set[T]) parseID(id int, raw any) (T, error) {
	if v, ok := s.byID(id); ok {
		return v, nil
	}
	var zero T
	return zero, s.unknown(raw)
}

func (s Set[T]) unknown(raw any) error {
	err := apperror.BadRequest(fmt.Sprintf("unknown %s: %v", s.kind, raw))
	err.Meta = apperror.Meta{"allowed": s.values}
	return err
}
