// Package merge implements the §9 design note "deep polymorphic JSON
// property merges → tagged-variant property nodes": each property-merge
// case (scalar/object, array, arrayExt-item) is an explicit function, and
// generic object merging goes through gjson/sjson rather than a generic
// recursive map-walk, so the merge stays a structural fold instead of
// reflection.
package merge

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"settingsvc/internal/descmodel"
)

// Layers folds descriptions left to right: base ← file-country ← default ←
// override ← system (spec §4.1.1). The `key` property is never overridden.
func Layers(layers ...descmodel.Description) descmodel.Description {
	if len(layers) == 0 {
		return descmodel.Description{}
	}
	out := layers[0].Clone()
	for _, next := range layers[1:] {
		out = mergeTwo(out, next)
	}
	return out
}

func mergeTwo(base, over descmodel.Description) descmodel.Description {
	out := base
	if over.Category != "" {
		out.Category = over.Category
	}
	if over.VType != "" {
		out.VType = over.VType
	}
	if over.DBType != "" {
		out.DBType = over.DBType
	}
	if over.AppID != "" {
		out.AppID = over.AppID
	}
	if over.Country != "" {
		out.Country = over.Country
	}
	if len(over.Dimension) > 0 {
		out.Dimension = over.Dimension
	}
	if over.Volatile {
		out.Volatile = true
	}
	if over.ValueCheck {
		out.ValueCheck = true
	}
	out.UI = mergeObject(out.UI, over.UI)
	out.Condition = mergeObject(out.Condition, over.Condition)
	out.Values = mergeValues(out.VType, out.Values, over.Values)
	return out
}

// mergeObject property-wise overrides base with over's top-level keys,
// using sjson.SetRaw/gjson so the merge walks JSON bytes rather than
// reflecting over a generic map[string]any.
func mergeObject(base, over map[string]any) map[string]any {
	if over == nil {
		return base
	}
	if base == nil {
		return over
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return over
	}
	overJSON, err := json.Marshal(over)
	if err != nil {
		return base
	}

	out := string(baseJSON)
	gjson.ParseBytes(overJSON).ForEach(func(key, value gjson.Result) bool {
		var err error
		out, err = sjson.SetRaw(out, key.String(), value.Raw)
		return err == nil
	})

	var merged map[string]any
	if err := json.Unmarshal([]byte(out), &merged); err != nil {
		return over
	}
	return merged
}

// mergeValues merges a description's `values` property. ArrayExt's "array"
// entry gets the matched-item fold of mergeArrayExtItems (spec §4.1.1);
// every other property, including wholesale "Array"-typed lists, follows
// mergeObject's plain property-wise override.
func mergeValues(vtype string, base, over map[string]any) map[string]any {
	if over == nil {
		return base
	}
	if base == nil {
		return over
	}
	if vtype != "ArrayExt" {
		return mergeObject(base, over)
	}

	baseArray, _ := base["array"].([]any)
	overArray, hasOverArray := over["array"].([]any)

	rest := make(map[string]any, len(over))
	for k, v := range over {
		if k != "array" {
			rest[k] = v
		}
	}
	merged := mergeObject(base, rest)

	if hasOverArray {
		merged["array"] = mergeArrayExtItems(baseArray, overArray)
	} else if baseArray != nil {
		merged["array"] = baseArray
	}
	return merged
}

// mergeArrayExtItems matches items by their "value" subfield: a base item
// whose value also appears in over is replaced by the override item;
// override items with no matching base value are discarded; base ordering
// is preserved throughout (spec §4.1.1).
func mergeArrayExtItems(base, over []any) []any {
	overByValue := make(map[any]any, len(over))
	for _, item := range over {
		if m, ok := item.(map[string]any); ok {
			overByValue[m["value"]] = item
		}
	}

	out := make([]any, 0, len(base))
	for _, item := range base {
		m, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		if replacement, found := overByValue[m["value"]]; found {
			out = append(out, replacement)
			continue
		}
		out = append(out, item)
	}
	return out
}
