package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringArray is a custom type to handle JSON array in GORM
type StringArray []string

// Value implements driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	return string(b), err
}

// Scan implements sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	b, err := asBytes(value)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*a = StringArray{}
		return nil
	}
	return json.Unmarshal(b, a)
}

// Contains reports whether s is present.
func (a StringArray) Contains(s string) bool {
	for _, v := range a {
		if v == s {
			return true
		}
	}
	return false
}

// JSONMap is a string map stored as a JSON object.
type JSONMap map[string]string

func (m JSONMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *JSONMap) Scan(value interface{}) error {
	b, err := asBytes(value)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(b, m)
}

func asBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", value)
	}
}
