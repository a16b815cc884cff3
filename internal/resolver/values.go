package resolver

import (
	"fmt"

	"settingsvc/internal/define"
)

// ValuesOp is the operation kind for setSystemSettingValues (spec §4.2.4).
type ValuesOp string

const (
	ValuesOpSet    ValuesOp = "set"
	ValuesOpAdd    ValuesOp = "add"
	ValuesOpRemove ValuesOp = "remove"
	ValuesOpUpdate ValuesOp = "update"
)

// GetValues implements getSystemSettingValues (spec §4.2.4, §6.1): returns
// the vtype and legal-values object of key's description.
func (r *Resolver) GetValues(key, appID string) (vtype string, values map[string]any, err error) {
	d, ok := r.model.Describe(key, requestAppID(appID))
	if !ok {
		return "", nil, fmt.Errorf("resolver: unknown key %q", key)
	}
	return d.VType, d.Values, nil
}

// SetValues implements setSystemSettingValues (spec §4.2.4): mutate the
// `values` object of key's description in place (write-through to the
// owning cache), honoring array semantics by vtype.
//
// Changing category/dimension is out of scope here — callers attempting
// that go through SetDesc, which refuses it per spec §3.2.
func (r *Resolver) SetValues(kind, key, appID string, vtype string, op ValuesOp, values map[string]any) error {
	d, ok := r.model.Describe(key, requestAppID(appID))
	if !ok {
		return fmt.Errorf("resolver: unknown key %q", key)
	}

	switch d.VType {
	case define.VTypeArray, define.VTypeArrayExt:
		next, err := applyArrayOp(d.VType, op, d.Values, values)
		if err != nil {
			return err
		}
		d.Values = next
	default:
		if op != ValuesOpSet {
			return fmt.Errorf("resolver: vtype %q only accepts op=set", d.VType)
		}
		d.Values = values
	}

	r.model.AddKeyDesc(kind, d)
	return nil
}

// applyArrayOp implements §4.2.4's add/remove/update/set semantics.
// ArrayExt item equality is by the "value" subfield; Array equality is by
// direct element match.
func applyArrayOp(vtype string, op ValuesOp, existing, incoming map[string]any) (map[string]any, error) {
	existingArray, _ := existing["array"].([]any)
	incomingArray, _ := incoming["array"].([]any)

	var next []any
	switch op {
	case ValuesOpSet:
		next = incomingArray
	case ValuesOpAdd:
		next = append(append([]any(nil), existingArray...), filterAbsent(vtype, existingArray, incomingArray)...)
	case ValuesOpRemove:
		next = removeMatching(vtype, existingArray, incomingArray)
	case ValuesOpUpdate:
		next = updateMatching(vtype, existingArray, incomingArray)
	default:
		return nil, fmt.Errorf("resolver: unknown values op %q", op)
	}

	out := map[string]any{}
	for k, v := range existing {
		out[k] = v
	}
	out["array"] = next
	return out, nil
}

func itemKey(vtype string, item any) any {
	if vtype == define.VTypeArrayExt {
		if m, ok := item.(map[string]any); ok {
			return m["value"]
		}
	}
	return item
}

func filterAbsent(vtype string, existing, incoming []any) []any {
	present := map[any]bool{}
	for _, e := range existing {
		present[itemKey(vtype, e)] = true
	}
	var out []any
	for _, item := range incoming {
		if !present[itemKey(vtype, item)] {
			out = append(out, item)
		}
	}
	return out
}

func removeMatching(vtype string, existing, toRemove []any) []any {
	remove := map[any]bool{}
	for _, item := range toRemove {
		remove[itemKey(vtype, item)] = true
	}
	var out []any
	for _, item := range existing {
		if !remove[itemKey(vtype, item)] {
			out = append(out, item)
		}
	}
	return out
}

func updateMatching(vtype string, existing, updates []any) []any {
	byKey := map[any]any{}
	for _, item := range updates {
		byKey[itemKey(vtype, item)] = item
	}
	out := make([]any, len(existing))
	for i, item := range existing {
		if replacement, ok := byKey[itemKey(vtype, item)]; ok {
			out[i] = replacement
			continue
		}
		out[i] = item
	}
	return out
}
