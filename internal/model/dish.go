package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DishList is the client-supplied list of dishes. It accepts either a JSON
// array of strings or a single comma-separated string.
type DishList []string

// UnmarshalJSON implements json.Unmarshaler.
func (d *DishList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = nil
		return nil
	}

	switch data[0] {
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("dish must be an array of strings: %w", err)
		}
		*d = items
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = strings.Split(s, ",")
	default:
		return fmt.Errorf("dish must be a string or an array of strings")
	}

	return nil
}
