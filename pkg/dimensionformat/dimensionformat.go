// Package dimensionformat loads dimensionFormat.json (spec §6.2): the
// startup-loaded table mapping each category to the ordered list of
// dimension-key names that category varies over.
package dimensionformat

import (
	"encoding/json"
	"fmt"
	"os"
)

// Entry is one row of dimensionFormat.json.
type Entry struct {
	Key string   `json:"key"`
	Map []string `json:"map"`
}

// Table indexes dimensionFormat.json entries by category; service.New
// turns it into the description model's per-category dimension lists.
type Table struct {
	byCategory map[string][]string
}

// Load reads dimensionFormat.json from path: an array of
// {"key": category, "map": [dim1, dim2, ...]}.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("dimensionformat: parse %s: %w", path, err)
	}
	return fromEntries(entries), nil
}

func fromEntries(entries []Entry) *Table {
	t := &Table{byCategory: make(map[string][]string, len(entries))}
	for _, e := range entries {
		t.byCategory[e.Key] = e.Map
	}
	return t
}

// Empty returns a Table with no entries.
func Empty() *Table {
	return &Table{byCategory: map[string][]string{}}
}

// DimensionOf returns the ordered dimension-key names for category, or nil
// (and false) if category carries no dimension.
func (t *Table) DimensionOf(category string) ([]string, bool) {
	if t == nil {
		return nil, false
	}
	dims, ok := t.byCategory[category]
	return dims, ok
}
