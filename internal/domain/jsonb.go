package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// JSONB stores a typed value in a PostgreSQL jsonb column.
type JSONB[T any] struct {
	Data T
}

// NewJSONB wraps v.
func NewJSONB[T any](v T) JSONB[T] {
	return JSONB[T]{Data: v}
}

// Value implements driver.Valuer.
func (j JSONB[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (j *JSONB[T]) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		var zero T
		j.Data = zero
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type %T for jsonb", value)
	}

	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &j.Data)
}

// MarshalJSON encodes the wrapped value directly.
func (j JSONB[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Data)
}

// UnmarshalJSON decodes into the wrapped value.
func (j *JSONB[T]) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &j.Data)
}

// StringList maps to a PostgreSQL text[] column.
type StringList []string

// Value implements driver.Valuer. A nil list is stored as an empty array.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return pq.StringArray{}.Value()
	}
	return pq.StringArray(s).Value()
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(value any) error {
	var arr pq.StringArray
	if err := arr.Scan(value); err != nil {
		return err
	}
	*s = StringList(arr)
	return nil
}
