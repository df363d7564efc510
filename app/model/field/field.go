package field

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/zeebo/errs"
)

var ErrField = errs.Class("field")

type Status int

const (
	StatusEnable  Status = 1
	StatusDisable Status = 2
)

func (s Status) IsEnable() bool {
	return s == StatusEnable
}

func (s Status) IsDisable() bool {
	return s == StatusDisable
}

// Slices stores a slice as a json column.
type Slices[T any] []T

func (s Slices[T]) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	return string(b), ErrField.Wrap(err)
}

func (s *Slices[T]) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	case nil:
		*s = nil
		return nil
	default:
		return ErrField.New("cannot scan %T into Slices", value)
	}
	if len(b) == 0 {
		*s = nil
		return nil
	}
	return ErrField.Wrap(json.Unmarshal(b, s))
}

func (s Slices[T]) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Map stores a string keyed map as a json column.
type Map[V any] map[string]V

func (m Map[V]) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), ErrField.Wrap(err)
}

func (m *Map[V]) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	case nil:
		*m = nil
		return nil
	default:
		return ErrField.New("cannot scan %T into Map", value)
	}
	if len(b) == 0 {
		*m = nil
		return nil
	}
	return ErrField.Wrap(json.Unmarshal(b, m))
}

func (s Status) String() string {
	switch s {
	case StatusEnable:
		return "enable"
	case StatusDisable:
		return "disable"
	}
	return fmt.Sprintf("status(%d)", int(s))
}
