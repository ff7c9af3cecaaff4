package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a map[string]interface{} that round-trips through a jsonb
// column, implementing sql.Scanner and driver.Valuer
type JSONMap map[string]interface{}

// Value implements driver.Valuer for JSONMap
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONMap
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, (*map[string]interface{})(m))
	case string:
		return json.Unmarshal([]byte(v), (*map[string]interface{})(m))
	default:
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
}

// Clone returns a deep copy via a JSON round-trip. Resolved context maps
// are handed to callers as copies so cache entries stay immutable.
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return JSONMap{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return JSONMap{}
	}
	var out JSONMap
	if err := json.Unmarshal(data, &out); err != nil {
		return JSONMap{}
	}
	return out
}
