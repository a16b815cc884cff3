package resolver

import (
	"context"
	"fmt"

	"settingsvc/internal/define"
	"settingsvc/internal/errs"
	"settingsvc/internal/store"
)

// GetRequest parameterizes getSystemSettings / getSystemSettingFactoryValue
// (spec §4.2.2, §6.1).
type GetRequest struct {
	Category     string
	Keys         []string
	Dimension    map[string]string
	AppID        string
	FactoryOnly  bool // true for getSystemSettingFactoryValue: read the default kind only
	ForceDBSync  bool // bypass any future read-cache fast path
}

// GetResult is the reply envelope for a get (spec §6.1).
type GetResult struct {
	ReturnValue bool
	Category    string
	Dimension   map[string]string
	AppID       string
	Settings    map[string]any
	ErrorText   string
}

// Get implements spec §4.2.2: validate, split global/per-app, batch-find
// the relevant kinds, merge layers, overlay volatile, filter to the
// requested keys.
func (r *Resolver) Get(ctx context.Context, req GetRequest) (GetResult, error) {
	appID := requestAppID(req.AppID)
	if len(req.Keys) == 0 {
		return GetResult{ReturnValue: false, ErrorText: r.errText(errs.KindParse, "error.get.no_keys", nil)}, nil
	}

	for _, k := range req.Keys {
		if r.model.IsNewKey(k) {
			return GetResult{ReturnValue: false, ErrorText: r.errText(errs.KindUnknownKey, "error.unknown_key", map[string]any{"Key": k})}, nil
		}
	}

	categoryDim := r.categoryDimFor(req.Category, req.Keys, req.Dimension)
	_, perAppKeys := r.model.SplitKeysIntoGlobalOrPerApp(req.Keys, appID)
	wantPerApp := len(perAppKeys) > 0 && appID != define.GlobalAppID

	var kinds []string
	if req.FactoryOnly {
		kinds = []string{define.KindDefault} // getSystemSettingFactoryValue reads the default kind exclusively
	} else {
		kinds = []string{define.KindDefault, define.KindMain}
	}

	var ops []store.BatchOp
	for _, kind := range kinds {
		ops = append(ops, store.BatchOp{Method: "find", Query: store.Query{Kind: kind, Category: categoryDim, AppScoped: true, AppID: define.GlobalAppID}})
		if wantPerApp {
			ops = append(ops, store.BatchOp{Method: "find", Query: store.Query{Kind: kind, Category: categoryDim, AppScoped: true, AppID: appID}})
		}
	}

	reply, err := r.store.Batch(ctx, ops)
	if err != nil {
		return GetResult{}, fmt.Errorf("resolver: get batch find: %w", err)
	}
	if !reply.ReturnValue {
		return GetResult{ReturnValue: false, ErrorText: "resolver: store batch failed"}, nil
	}

	var records []store.Record
	for _, resp := range reply.Responses {
		if resp.Find != nil {
			records = append(records, resp.Find.Results...)
		}
	}

	merged := MergeLayeredRecords(MergeInput{
		Category:   categoryDim,
		Records:    records,
		AppID:      appID,
		DBTypeOf:   r.dbTypeOf,
		Exceptions: r.exceptions,
		Model:      r.model,
	})

	for k, v := range r.volatile.GetAll(categoryDim, appID) {
		merged[k] = v
	}
	if appID != define.GlobalAppID {
		for k, v := range r.volatile.GetAll(categoryDim, define.GlobalAppID) {
			if _, already := merged[k]; !already {
				merged[k] = v
			}
		}
	}

	settings := map[string]any{}
	for _, k := range req.Keys {
		if v, ok := merged[k]; ok {
			settings[k] = v
			continue
		}
		if d, ok := r.model.Describe(k, appID); ok {
			if dv, ok := d.Values["default"]; ok {
				settings[k] = dv
			}
		}
	}

	return GetResult{
		ReturnValue: true,
		Category:    req.Category,
		Dimension:   req.Dimension,
		AppID:       req.AppID,
		Settings:    settings,
	}, nil
}
