package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"settingsvc/internal/define"
	"settingsvc/internal/errs"
	"settingsvc/internal/store"
)

// SetRequest parameterizes setSystemSettings / setSystemSettingFactoryValue
// (spec §4.2.3, §6.1).
type SetRequest struct {
	Category     string
	Dimension    map[string]string
	AppID        string
	Settings     map[string]any
	SetAll       bool
	ValueCheck   bool // caller opt-out lever; true is the §6.1 default
	FactoryWrite bool // targets the "default" kind instead of "main"
	Country      string
}

// SetResult reports per-key outcomes (spec §7 propagation policy).
type SetResult struct {
	ReturnValue bool
	Completed   []string
	ErrorKey    []string
	ErrorText   string
	// StoredPartitions is every category-dim partition a non-volatile key
	// was written into, for the caller to drive §4.4.2 notification.
	StoredPartitions map[string][]string // partition -> keys written there
	VolatileKeys     []string
	DimensionKeys    []string // written keys that are themselves dimension-keys (§4.2.3 step 7)
}

// Set implements spec §4.2.3.
func (r *Resolver) Set(ctx context.Context, req SetRequest) (SetResult, error) {
	if req.SetAll && len(req.Dimension) > 0 {
		return SetResult{ReturnValue: false, ErrorText: r.errText(errs.KindParse, "error.parse_error", nil)}, nil
	}

	appID := requestAppID(req.AppID)
	result := SetResult{ReturnValue: true, StoredPartitions: map[string][]string{}}

	nonVolatile := map[string]any{}
	volatile := map[string]any{}

	for key, value := range req.Settings {
		d, ok := r.model.Describe(key, appID)
		if !ok {
			result.ErrorKey = append(result.ErrorKey, key)
			continue
		}
		if req.ValueCheck {
			if err := CheckValue(d, value); err != nil {
				result.ErrorKey = append(result.ErrorKey, key)
				continue
			}
		}
		if appID != define.GlobalAppID && d.DBType == define.DBTypeGlobal {
			result.ErrorKey = append(result.ErrorKey, key) // per-app write to a global-only key
			continue
		}
		if d.Volatile {
			volatile[key] = value
		} else {
			nonVolatile[key] = value
		}
	}

	kind := define.KindMain
	if req.FactoryWrite {
		kind = define.KindDefault
	}

	if len(nonVolatile) > 0 {
		partitions := r.partitionsFor(req.Category, nonVolatile, appID, req.SetAll, req.Dimension)
		if err := r.writePartitions(ctx, kind, partitions, nonVolatile, appID, req.Country, &result); err != nil {
			return SetResult{}, err
		}
	}

	for key, value := range volatile {
		categoryDim := r.model.BuildCategoryDim(key, req.Dimension)
		r.volatile.Set(categoryDim, appID, key, value)
		result.VolatileKeys = append(result.VolatileKeys, key)
	}

	for key := range req.Settings {
		if !contains(result.ErrorKey, key) {
			result.Completed = append(result.Completed, key)
		}
		if isDimensionKey(r.model, key) {
			result.DimensionKeys = append(result.DimensionKeys, key)
		}
	}
	sort.Strings(result.Completed)

	if len(result.ErrorKey) > 0 && len(result.Completed) == 0 {
		result.ReturnValue = false
	} else if len(result.ErrorKey) > 0 {
		result.ReturnValue = false // partial failure still reports false per §7, with Completed populated
	}
	return result, nil
}

// partitionsFor groups non-volatile keys into their target category-dim
// partitions. setAll expands to every partition via the dimension-key's
// own legal-value list; a non-setAll write targets exactly one partition.
func (r *Resolver) partitionsFor(category string, keys map[string]any, appID string, setAll bool, dim map[string]string) map[string][]string {
	keyNames := make([]string, 0, len(keys))
	for k := range keys {
		keyNames = append(keyNames, k)
	}
	sort.Strings(keyNames)

	if !setAll {
		cd := r.categoryDimFor(category, keyNames, dim)
		return map[string][]string{cd: keyNames}
	}

	valuesOf := func(dimKey string) []string {
		d, ok := r.model.Describe(dimKey, appID)
		if !ok {
			return nil
		}
		arr, _ := d.Values["array"].([]any)
		out := make([]string, 0, len(arr))
		for _, v := range arr {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return r.model.GetCategoryKeyListMapAll(category, keyNames, valuesOf)
}

// writePartitions implements §4.2.3 phases A and B: merge first (updates
// existing rows only), then a single Put across every partition merge
// didn't find a row for (count == 0) — one call with the full slice, so
// the put phase is atomic across partitions rather than committing some
// and failing partway through others.
func (r *Resolver) writePartitions(ctx context.Context, kind string, partitions map[string][]string, values map[string]any, appID, country string, result *SetResult) error {
	var toPut []store.Record
	putKeys := map[string][]string{}

	for categoryDim, keys := range partitions {
		props := map[string]any{}
		for _, k := range keys {
			props[k] = values[k]
		}

		mergeRes, err := r.store.Merge(ctx, store.Query{Kind: kind, Category: categoryDim, AppScoped: true, AppID: appID}, props)
		if err != nil {
			return fmt.Errorf("resolver: set merge %s: %w", categoryDim, err)
		}
		if mergeRes.Count > 1 {
			r.log.Warn("resolver: merge matched multiple rows for one partition", "category", categoryDim, "appId", appID, "count", mergeRes.Count)
		}
		if mergeRes.Count > 0 {
			result.StoredPartitions[categoryDim] = append(result.StoredPartitions[categoryDim], keys...)
			continue
		}

		toPut = append(toPut, store.Record{
			ID:       uuid.NewString(),
			Kind:     kind,
			Category: categoryDim,
			AppID:    appID,
			Value:    props,
			Country:  country,
		})
		putKeys[categoryDim] = keys
	}

	if len(toPut) == 0 {
		return nil
	}
	if _, err := r.store.Put(ctx, toPut); err != nil {
		return fmt.Errorf("resolver: set put: %w", err)
	}
	for _, rec := range toPut {
		result.StoredPartitions[rec.Category] = append(result.StoredPartitions[rec.Category], putKeys[rec.Category]...)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func isDimensionKey(model interface {
	CategoryOf(string) (string, bool)
}, key string) bool {
	cat, ok := model.CategoryOf(key)
	return ok && cat == define.DimensionInfoCategory
}
