// Package country implements country-variant selection (spec §4.1.2) and
// the "ConservativeButler" modification-preservation mechanism invoked
// during country change (spec §4.1.5, GLOSSARY).
package country

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"settingsvc/internal/define"
)

// Candidate is anything carrying a country-variant tag, selected from among
// siblings for the same (key, appId) (spec §4.1.2).
type Candidate interface {
	CountryTag() string
}

// Select returns the index of the best country match among candidates for
// the active country code: substring match wins, falling back to the
// literal "default" tag, then to an untagged ("" country) candidate. -1
// means no candidate applies.
func Select[T Candidate](candidates []T, countryCode string) int {
	bestIdx, bestRank := -1, -1
	for i, c := range candidates {
		rank := matchRank(c.CountryTag(), countryCode)
		if rank > bestRank {
			bestRank = rank
			bestIdx = i
		}
	}
	return bestIdx
}

// matchRank: 2 = substring match against the live country code, 1 = the
// "default" sentinel, 0 = untagged (applies to every country), -1 = tagged
// for a different country entirely (never selected).
func matchRank(tag, countryCode string) int {
	switch {
	case tag == "":
		return 0
	case tag == define.CountryDefault:
		return 1
	case tag == define.CountryNone:
		return 0
	case countryCode != "" && strings.Contains(countryCode, tag):
		return 2
	default:
		return -1
	}
}

// PropertyPath names one conservative nested property to preserve across a
// country change: (category, key, dot-path within that key's value).
type PropertyPath struct {
	Category string
	Key      string
	Path     string
}

// DefaultAllowlist is the conservative allowlist spec §4.1.5 names
// explicitly: locale UI and keyboards nested fields.
var DefaultAllowlist = []PropertyPath{
	{Category: "option", Key: "localeInfo", Path: "locales.UI"},
	{Category: "option", Key: "localeInfo", Path: "keyboards"},
}

// Captured is one preserved value lifted out of the pre-change main kind,
// ready to be re-applied after country defaults overwrite it.
type Captured struct {
	Path  PropertyPath
	Value string // raw JSON fragment at Path, "" if absent
	Found bool
}

// MainValues maps key -> its current JSON-encoded value object, scoped to
// one category, as read from the main kind before a country change
// overwrites it.
type MainValues map[string]string

// Capture scans mainByCategory for each allowlisted (category, key, path)
// and extracts its current JSON fragment, to be restored after the new
// country's defaults are written (spec §4.1.5 step 2).
func Capture(mainByCategory map[string]MainValues, allowlist []PropertyPath) []Captured {
	captured := make([]Captured, 0, len(allowlist))
	for _, p := range allowlist {
		values, ok := mainByCategory[p.Category]
		if !ok {
			captured = append(captured, Captured{Path: p})
			continue
		}
		raw, ok := values[p.Key]
		if !ok {
			captured = append(captured, Captured{Path: p})
			continue
		}
		result := gjson.Get(raw, p.Path)
		if !result.Exists() {
			captured = append(captured, Captured{Path: p})
			continue
		}
		captured = append(captured, Captured{Path: p, Value: result.Raw, Found: true})
	}
	return captured
}

// Reapply re-applies every Found capture onto newByCategory's matching
// (category, key) JSON value, overwriting whatever the fresh country
// defaults wrote at that path (spec §4.1.5 step 3 "re-applies the
// remembered modifications").
func Reapply(newByCategory map[string]MainValues, captured []Captured) map[string]MainValues {
	out := make(map[string]MainValues, len(newByCategory))
	for cat, values := range newByCategory {
		cp := make(MainValues, len(values))
		for k, v := range values {
			cp[k] = v
		}
		out[cat] = cp
	}

	for _, c := range captured {
		if !c.Found {
			continue
		}
		values, ok := out[c.Path.Category]
		if !ok {
			continue
		}
		raw, ok := values[c.Path.Key]
		if !ok {
			continue
		}
		merged, err := sjson.SetRaw(raw, c.Path.Path, c.Value)
		if err != nil {
			continue
		}
		values[c.Path.Key] = merged
		out[c.Path.Category] = values
	}
	return out
}
