package resolver

import (
	"fmt"

	"settingsvc/internal/define"
	"settingsvc/internal/descmodel"
)

// GetDesc implements getSystemSettingDesc (spec §4.2.5, §6.1): the merged,
// effective description for each requested key.
func (r *Resolver) GetDesc(keys []string, appID string) ([]descmodel.Description, []string) {
	resolved := requestAppID(appID)
	out := make([]descmodel.Description, 0, len(keys))
	var missing []string
	for _, k := range keys {
		d, ok := r.model.Describe(k, resolved)
		if !ok {
			missing = append(missing, k)
			continue
		}
		out = append(out, d)
	}
	return out, missing
}

// SetDesc implements setSystemSettingDesc / setSystemSettingFactoryDesc
// (spec §4.2.5): write d through to the "system" or "default" description
// cache. kind must be define.DescKindSystem or define.DescKindDefault.
// Refuses a category or dimension change on an already-known key (spec
// §3.2 "category of a key is immutable after any record has been written
// referencing it").
func (r *Resolver) SetDesc(kind string, d descmodel.Description) error {
	if existing, ok := r.model.Describe(d.Key, d.AppID); ok {
		if d.Category != "" && d.Category != existing.Category {
			return fmt.Errorf("resolver: key %q category is immutable (have %q, got %q)", d.Key, existing.Category, d.Category)
		}
		if len(d.Dimension) > 0 && !sameDimension(existing.Dimension, d.Dimension) {
			return fmt.Errorf("resolver: key %q dimension is immutable once referenced", d.Key)
		}
	}

	r.model.AddKeyDesc(kind, d)
	return nil
}

func sameDimension(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ResetSystemSettingDesc implements resetSystemSettingDesc (spec §4.2.5):
// purges the per-app system-description cache entries for the given keys
// (scoped to category when provided), for appID.
func (r *Resolver) ResetSystemSettingDesc(keys []string, category, appID string) {
	resolved := requestAppID(appID)
	for _, key := range keys {
		if category != "" {
			if cat, ok := r.model.CategoryOf(key); !ok || cat != category {
				continue
			}
		}
		r.model.RemoveKeyDesc(define.DescKindSystem, key, resolved)
	}
}
