package resolver

import (
	"context"
	"fmt"

	"settingsvc/internal/define"
	"settingsvc/internal/errs"
	"settingsvc/internal/store"
)

// DeleteRequest parameterizes deleteSystemSettings (spec §4.2.6, §6.1).
type DeleteRequest struct {
	Keys      []string
	Category  string
	Dimension map[string]string
	AppID     string
}

// DeleteResult reports which keys were actually removed.
type DeleteResult struct {
	ReturnValue bool
	Completed   []string
	ErrorText   string
}

// Delete implements deleteSystemSettings (spec §4.2.6): drop keys from the
// matching main-kind partition row, plus any matching volatile entries.
// Default-kind rows are left as they are, so later reads fall back to them.
// Errors if none of the requested keys were present in the main row or the
// volatile map.
func (r *Resolver) Delete(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	appID := requestAppID(req.AppID)
	categoryDim := r.categoryDimFor(req.Category, req.Keys, req.Dimension)

	props := map[string]any{}
	for _, k := range req.Keys {
		props[k] = nil
	}

	query := store.Query{Kind: define.KindMain, Category: categoryDim, AppScoped: true, AppID: appID}
	found, err := r.store.Find(ctx, query)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("resolver: delete find: %w", err)
	}
	var removed []string
	for _, k := range req.Keys {
		_, present := r.volatile.Get(categoryDim, appID, k)
		for _, rec := range found.Results {
			_, inRow := rec.Value[k]
			present = present || inRow
		}
		if present {
			removed = append(removed, k)
		}
	}

	if _, err := r.store.Merge(ctx, query, props); err != nil {
		return DeleteResult{}, fmt.Errorf("resolver: delete merge: %w", err)
	}

	for _, k := range req.Keys {
		r.volatile.Delete(categoryDim, appID, k)
	}

	if len(removed) == 0 {
		return DeleteResult{ReturnValue: false, ErrorText: r.errText(errs.KindEmptyResult, "error.empty_result", map[string]any{"Key": fmt.Sprint(req.Keys)})}, nil
	}
	return DeleteResult{ReturnValue: true, Completed: removed}, nil
}

// ResetRequest parameterizes resetSystemSettings (spec §4.2.6, §6.1).
type ResetRequest struct {
	Keys      []string
	Category  string
	Dimension map[string]string
	AppID     string
	ResetAll  bool
}

// ResetResult reports the keys that fell back to their default value, and
// any keys with no default to fall back to (spec §4.2.6 "report an
// empty-value error for keys that have no default").
type ResetResult struct {
	ReturnValue bool
	Reset       []string
	NoDefault   []string
	ErrorText   string
}

// Reset implements resetSystemSettings (spec §4.2.6): removes keys from
// main (or, with ResetAll, every category-dim partition matching the bare
// category, via the store's CategoryPrefix match) so subsequent reads
// fall through to default.
func (r *Resolver) Reset(ctx context.Context, req ResetRequest) (ResetResult, error) {
	appID := requestAppID(req.AppID)

	if req.ResetAll {
		return r.resetAll(ctx, req.Category, appID)
	}

	categoryDim := r.categoryDimFor(req.Category, req.Keys, req.Dimension)
	props := map[string]any{}
	for _, k := range req.Keys {
		props[k] = nil
	}
	if _, err := r.store.Merge(ctx, store.Query{Kind: define.KindMain, Category: categoryDim, AppScoped: true, AppID: appID}, props); err != nil {
		return ResetResult{}, fmt.Errorf("resolver: reset merge: %w", err)
	}
	for _, k := range req.Keys {
		r.volatile.Delete(categoryDim, appID, k)
	}

	return r.resolveDefaults(ctx, categoryDim, appID, req.Keys)
}

// resetAll removes every row of the main kind whose category-dim is
// category itself or one of its dimensioned partitions (every
// "category$..." row), via the store's CategoryPrefix-matched bulk Del.
func (r *Resolver) resetAll(ctx context.Context, category, appID string) (ResetResult, error) {
	delRes, err := r.store.Del(ctx, store.Query{Kind: define.KindMain, Category: category, AppScoped: true, AppID: appID, CategoryPrefix: true})
	if err != nil {
		return ResetResult{}, fmt.Errorf("resolver: resetAll del: %w", err)
	}
	r.volatile.PurgeCategory(category, appID)
	return ResetResult{ReturnValue: delRes.ReturnValue}, nil
}

// resolveDefaults looks up each reset key's default-kind value (falling
// back to its description's own "default" values entry), splitting into
// keys that resolved and keys with no default anywhere (spec §4.2.6 step
// "report an empty-value error for keys that have no default").
func (r *Resolver) resolveDefaults(ctx context.Context, categoryDim, appID string, keys []string) (ResetResult, error) {
	findRes, err := r.store.Find(ctx, store.Query{Kind: define.KindDefault, Category: categoryDim, AppScoped: true, AppID: define.GlobalAppID})
	if err != nil {
		return ResetResult{}, fmt.Errorf("resolver: reset find default: %w", err)
	}

	defaults := map[string]any{}
	for _, rec := range findRes.Results {
		for k, v := range rec.Value {
			defaults[k] = v
		}
	}

	result := ResetResult{ReturnValue: true}
	for _, k := range keys {
		if _, ok := defaults[k]; ok {
			result.Reset = append(result.Reset, k)
			continue
		}
		if d, ok := r.model.Describe(k, appID); ok {
			if _, ok := d.Values["default"]; ok {
				result.Reset = append(result.Reset, k)
				continue
			}
		}
		result.NoDefault = append(result.NoDefault, k)
	}
	if len(result.NoDefault) > 0 {
		result.ErrorText = r.errText(errs.KindEmptyResult, "error.empty_result", map[string]any{"Key": fmt.Sprint(result.NoDefault)})
	}
	return result, nil
}
