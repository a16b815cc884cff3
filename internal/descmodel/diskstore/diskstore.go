// Package diskstore owns the on-disk description artifacts of spec §4.1.8 /
// §6.2: description.bson (base descriptions), override.bson (keyed by
// "<key>@<category-dim>"), and the derived index files
// (description.map.bson, description.categorykeysmap.bson). The ".bson"
// extension is kept for continuity with §6.2's artifact naming; the bytes
// are msgpack (github.com/vmihailenco/msgpack/v5), not BSON — a real
// ecosystem binary codec stands in for the original's hand-rolled indexed
// binary reader.
package diskstore

import (
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"settingsvc/internal/descmodel"
)

// Store is an immutable, indexed set of descriptions loaded from one
// artifact file. It is rebuilt wholesale on load/reload; callers never
// mutate it in place (spec §5 "large cache tables are indexed once at load
// and never mutated in-place").
type Store struct {
	byKey      map[string][]descmodel.Description // may hold >1 per key: country/condition variants
	byType     map[string]map[string]bool          // volatile/perApp/mixed/exception/... -> keyset
	byCategory map[string]map[string]bool          // category -> keyset
}

// Load reads and indexes a msgpack-encoded description artifact at path. A
// missing file yields an empty Store (first-run / no overrides authored
// yet), matching the original implementation tolerating an absent
// override.bson.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("diskstore: read %s: %w", path, err)
	}

	var items []descmodel.Description
	if err := msgpack.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("diskstore: decode %s: %w", path, err)
	}
	return fromItems(items), nil
}

// Empty returns a Store with no entries.
func Empty() *Store {
	return &Store{
		byKey:      map[string][]descmodel.Description{},
		byType:     map[string]map[string]bool{},
		byCategory: map[string]map[string]bool{},
	}
}

// New indexes items into a Store without touching disk, for callers that
// already have descriptions in hand (tests, and in-memory layers seeded
// from something other than a msgpack artifact).
func New(items []descmodel.Description) *Store {
	return fromItems(items)
}

func fromItems(items []descmodel.Description) *Store {
	s := Empty()
	for _, d := range items {
		s.byKey[d.Key] = append(s.byKey[d.Key], d)

		if s.byCategory[d.Category] == nil {
			s.byCategory[d.Category] = map[string]bool{}
		}
		s.byCategory[d.Category][d.Key] = true

		for _, kind := range typeKeysOf(d) {
			if s.byType[kind] == nil {
				s.byType[kind] = map[string]bool{}
			}
			s.byType[kind][d.Key] = true
		}
	}
	return s
}

// typeKeysOf classifies one description into the description.map.bson
// typeset buckets (spec §6.2): volatile, perApp, mixed, exception,
// countryVariant, strictValueCheck.
func typeKeysOf(d descmodel.Description) []string {
	var kinds []string
	if d.Volatile {
		kinds = append(kinds, "volatile")
	}
	switch d.DBType {
	case "P":
		kinds = append(kinds, "perApp")
	case "M":
		kinds = append(kinds, "mixed")
	case "E":
		kinds = append(kinds, "exception")
	}
	if d.Country != "" {
		kinds = append(kinds, "countryVariant")
	}
	if d.ValueCheck {
		kinds = append(kinds, "strictValueCheck")
	}
	return kinds
}

// Save writes items back to path as msgpack, atomically via a temp-file
// rename.
func Save(path string, items []descmodel.Description) error {
	raw, err := msgpack.Marshal(items)
	if err != nil {
		return fmt.Errorf("diskstore: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("diskstore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("diskstore: rename %s: %w", tmp, err)
	}
	return nil
}

// ByKey returns every variant on file for key (callers pick among them via
// descmodel/condition + country matching).
func (s *Store) ByKey(key string) []descmodel.Description {
	if s == nil {
		return nil
	}
	return s.byKey[key]
}

// Keys returns every key known to this artifact.
func (s *Store) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	return keys
}

// Categories returns every category named in this artifact, used at
// startup to resolve each category's dimension signature from
// dimensionFormat.json.
func (s *Store) Categories() []string {
	if s == nil {
		return nil
	}
	cats := make([]string, 0, len(s.byCategory))
	for c := range s.byCategory {
		cats = append(cats, c)
	}
	return cats
}

// KeysOfCategory returns the keys belonging to category.
func (s *Store) KeysOfCategory(category string) []string {
	if s == nil {
		return nil
	}
	set := s.byCategory[category]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}

// KeysOfType returns the keys tagged with the given description.map.bson
// type bucket ("volatile", "perApp", "mixed", "exception", "countryVariant",
// "strictValueCheck").
func (s *Store) KeysOfType(kind string) []string {
	if s == nil {
		return nil
	}
	set := s.byType[kind]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}
