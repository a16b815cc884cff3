package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"settingsvc/internal/define"
	"settingsvc/internal/descmodel/country"
	"settingsvc/internal/store"
)

// CountryChangeResult reports which category-dim partitions were rewritten
// with the new country's defaults (spec §4.1.2), and the merged per-key
// values actually stored in each, for the caller to drive notification.
type CountryChangeResult struct {
	Categories []string
	Values     map[string]map[string]any // categoryDim -> key -> value
}

// countryVariant adapts a store.Record to country.Candidate so
// country.Select can pick the best-matching variant among sibling
// default-kind records for one category-dim partition.
type countryVariant struct {
	store.Record
}

func (v countryVariant) CountryTag() string { return v.Country }

// ChangeCountry implements spec §4.1.2's country-change procedure: it
// captures the conservative allowlisted properties out of the current main
// kind (§4.1.5 step 2), updates the model's active country code, re-selects
// the best country-variant default-kind record per category-dim partition,
// re-applies the captured properties over the fresh defaults (§4.1.5 step
// 3), and merges the result back into the main kind atomically per
// partition.
func (r *Resolver) ChangeCountry(ctx context.Context, code string) (CountryChangeResult, error) {
	mainByCategory, err := r.mainValuesByCategory(ctx)
	if err != nil {
		return CountryChangeResult{}, fmt.Errorf("resolver: read main kind for country capture: %w", err)
	}
	captured := country.Capture(mainByCategory, country.DefaultAllowlist)

	r.model.SetCountry(code)

	defaultByCategory, err := r.bestDefaultVariantsByCategory(ctx, code)
	if err != nil {
		return CountryChangeResult{}, fmt.Errorf("resolver: read default kind for country change: %w", err)
	}
	merged := country.Reapply(defaultByCategory, captured)

	categories := make([]string, 0, len(merged))
	stored := make(map[string]map[string]any, len(merged))
	for categoryDim, values := range merged {
		props, err := r.mergeCountryValues(ctx, categoryDim, values)
		if err != nil {
			return CountryChangeResult{}, err
		}
		if len(props) == 0 {
			continue
		}
		categories = append(categories, categoryDim)
		stored[categoryDim] = props
	}
	sort.Strings(categories)
	return CountryChangeResult{Categories: categories, Values: stored}, nil
}

// mainValuesByCategory reads every global main-kind record's value map,
// JSON-encoding each key's value, for the Capture step (§4.1.5).
func (r *Resolver) mainValuesByCategory(ctx context.Context) (map[string]country.MainValues, error) {
	found, err := r.store.Find(ctx, store.Query{Kind: define.KindMain, AppScoped: true, AppID: define.GlobalAppID})
	if err != nil {
		return nil, err
	}
	out := map[string]country.MainValues{}
	for _, rec := range found.Results {
		mv := out[rec.Category]
		if mv == nil {
			mv = country.MainValues{}
		}
		for key, val := range rec.Value {
			raw, merr := json.Marshal(val)
			if merr != nil {
				continue
			}
			mv[key] = string(raw)
		}
		out[rec.Category] = mv
	}
	return out, nil
}

// bestDefaultVariantsByCategory groups default-kind records by category-dim
// partition, then within each partition selects the single best
// country-variant record for code (spec §4.1.2's substring match).
func (r *Resolver) bestDefaultVariantsByCategory(ctx context.Context, code string) (map[string]country.MainValues, error) {
	found, err := r.store.Find(ctx, store.Query{Kind: define.KindDefault, AppScoped: true, AppID: define.GlobalAppID})
	if err != nil {
		return nil, err
	}

	byCategory := map[string][]countryVariant{}
	for _, rec := range found.Results {
		byCategory[rec.Category] = append(byCategory[rec.Category], countryVariant{rec})
	}

	out := map[string]country.MainValues{}
	for categoryDim, variants := range byCategory {
		idx := country.Select(variants, code)
		if idx < 0 {
			continue
		}
		mv := country.MainValues{}
		for key, val := range variants[idx].Value {
			raw, merr := json.Marshal(val)
			if merr != nil {
				continue
			}
			mv[key] = string(raw)
		}
		out[categoryDim] = mv
	}
	return out, nil
}

// mergeCountryValues writes categoryDim's post-reapply values back into the
// main kind, merge-first then put, mirroring writePartitions' pattern, and
// returns the decoded values actually stored.
func (r *Resolver) mergeCountryValues(ctx context.Context, categoryDim string, values country.MainValues) (map[string]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(values))
	for key, raw := range values {
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			continue
		}
		props[key] = decoded
	}
	if len(props) == 0 {
		return nil, nil
	}

	mergeRes, err := r.store.Merge(ctx, store.Query{Kind: define.KindMain, Category: categoryDim, AppScoped: true, AppID: define.GlobalAppID}, props)
	if err != nil {
		return nil, fmt.Errorf("resolver: country-change merge %s: %w", categoryDim, err)
	}
	if mergeRes.Count > 0 {
		return props, nil
	}

	rec := store.Record{
		ID:       uuid.NewString(),
		Kind:     define.KindMain,
		Category: categoryDim,
		AppID:    define.GlobalAppID,
		Value:    props,
	}
	if _, err := r.store.Put(ctx, []store.Record{rec}); err != nil {
		return nil, fmt.Errorf("resolver: country-change put %s: %w", categoryDim, err)
	}
	return props, nil
}
