// Package exceptionlist loads exceptionAppList.json (spec §4.1.3, §6.2): the
// startup-loaded allow-list of app ids permitted to see a per-app value for
// an "E" (exception) dbtype key.
package exceptionlist

import (
	"encoding/json"
	"os"
)

// List maps a key to the set of app ids allowed to receive its per-app
// value under the exception dbtype rule.
type List struct {
	allowed map[string]map[string]bool
}

// Load reads exceptionAppList.json from path. The file shape is
// {"<key>": ["appId1", "appId2", ...]}.
func Load(path string) (*List, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed map[string][]string
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return fromMap(parsed), nil
}

func fromMap(parsed map[string][]string) *List {
	allowed := make(map[string]map[string]bool, len(parsed))
	for key, appIDs := range parsed {
		set := make(map[string]bool, len(appIDs))
		for _, id := range appIDs {
			set[id] = true
		}
		allowed[key] = set
	}
	return &List{allowed: allowed}
}

// Empty returns a List with no entries, used when no exceptionAppList.json
// is configured.
func Empty() *List {
	return &List{allowed: map[string]map[string]bool{}}
}

// Allows reports whether appID is on the exception allow-list for key.
func (l *List) Allows(key, appID string) bool {
	if l == nil {
		return false
	}
	set, ok := l.allowed[key]
	if !ok {
		return false
	}
	return set[appID]
}
