package service

import (
	"context"

	"settingsvc/internal/bus"
	"settingsvc/internal/define"
	"settingsvc/internal/descmodel"
	"settingsvc/internal/notify"
	"settingsvc/internal/resolver"
)

// resolveAppID honors the "current_app" convenience field (§6.1): a
// request with no explicit app_id but current_app:true targets whichever
// app the engine's current-app pointer names.
func (s *Service) resolveAppID(params map[string]any) string {
	if appID := paramString(params, "app_id"); appID != "" {
		return appID
	}
	if paramBool(params, "current_app") {
		return s.engine.CurrentApp()
	}
	return ""
}

func (s *Service) handleGet(ctx context.Context, sender string, params map[string]any, factoryOnly bool) bus.Response {
	req := resolver.GetRequest{
		Category:    paramString(params, "category"),
		Keys:        keysParam(params),
		Dimension:   paramStringMap(params, "dimension"),
		AppID:       s.resolveAppID(params),
		FactoryOnly: factoryOnly,
	}
	result, err := s.resolver.Get(ctx, req)
	if err != nil {
		s.log.Error("service: get failed", "error", err)
		return bus.Response{ReturnValue: false, ErrorText: "internal error"}
	}

	if paramBool(params, "subscribe") && result.ReturnValue {
		s.subscribeValues(sender, req.Keys, req.Category, req.AppID, req.Dimension)
	}

	return bus.Response{
		ReturnValue: result.ReturnValue,
		Category:    result.Category,
		Dimension:   result.Dimension,
		AppID:       result.AppID,
		Settings:    result.Settings,
		ErrorText:   result.ErrorText,
	}
}

func (s *Service) subscribeValues(sender string, keys []string, category, appID string, dimension map[string]string) {
	for _, key := range keys {
		categoryDim := s.model.BuildCategoryDim(key, dimension)
		s.reg.SubscribeValue(sender, key, appID, categoryDim, dimension)
	}
}

func (s *Service) handleSet(ctx context.Context, sender string, params map[string]any, factoryWrite bool) bus.Response {
	req := resolver.SetRequest{
		Category:     paramString(params, "category"),
		Dimension:    paramStringMap(params, "dimension"),
		AppID:        s.resolveAppID(params),
		Settings:     paramAnyMap(params, "settings"),
		SetAll:       paramBool(params, "setAll"),
		ValueCheck:   defaultTrue(params, "valueCheck"),
		FactoryWrite: factoryWrite,
		Country:      paramString(params, "country"),
	}
	result, err := s.resolver.Set(ctx, req)
	if err != nil {
		s.log.Error("service: set failed", "error", err)
		return bus.Response{ReturnValue: false, ErrorText: "internal error"}
	}

	if !factoryWrite {
		s.emitWriteChange(ctx, req.Category, req.Dimension, req.AppID, sender, params, result.StoredPartitions, result.VolatileKeys, req.Settings, result.DimensionKeys)
	}

	return bus.Response{ReturnValue: result.ReturnValue, Completed: result.Completed, ErrorKey: result.ErrorKey, ErrorText: result.ErrorText}
}

// emitWriteChange drives notify.Emitter.PostWrite once per category-dim
// partition actually touched, plus volatile keys under the request's own
// partition (§4.4.2).
func (s *Service) emitWriteChange(ctx context.Context, category string, dimension map[string]string, appID, sender string, params map[string]any, partitions map[string][]string, volatileKeys []string, values map[string]any, dimensionKeys []string) {
	notifySelf := defaultTrue(params, "notifySelf")
	isDimKey := func(k string) bool {
		for _, d := range dimensionKeys {
			if d == k {
				return true
			}
		}
		return false
	}

	for categoryDim, keys := range partitions {
		changeValues := map[string]any{}
		for _, k := range keys {
			changeValues[k] = values[k]
		}
		s.emit.PostWrite(ctx, notify.WriteChange{
			Category:       category,
			CategoryDim:    categoryDim,
			Dimension:      dimension,
			AppID:          appID,
			Values:         changeValues,
			DBTypeOf:       s.model.DBTypeOf,
			IsDimensionKey: isDimKey,
			Sender:         sender,
			NotifySelf:     notifySelf,
		})
	}

	if len(volatileKeys) > 0 {
		categoryDim := s.model.BuildCategoryDim(volatileKeys[0], dimension)
		changeValues := map[string]any{}
		for _, k := range volatileKeys {
			changeValues[k] = values[k]
		}
		s.emit.PostWrite(ctx, notify.WriteChange{
			Category:       category,
			CategoryDim:    categoryDim,
			Dimension:      dimension,
			AppID:          appID,
			Values:         changeValues,
			DBTypeOf:       s.model.DBTypeOf,
			IsDimensionKey: isDimKey,
			Sender:         sender,
			NotifySelf:     notifySelf,
		})
	}
}

func defaultTrue(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return true
	}
	b, _ := v.(bool)
	return b
}

func (s *Service) handleGetValues(ctx context.Context, sender string, params map[string]any) bus.Response {
	key := paramString(params, "key")
	appID := s.resolveAppID(params)
	vtype, values, err := s.resolver.GetValues(key, appID)
	if err != nil {
		return bus.Response{ReturnValue: false, ErrorText: err.Error()}
	}
	if paramBool(params, "subscribe") {
		categoryDim := s.model.BuildCategoryDim(key, nil)
		s.reg.SubscribeValue(sender, key, appID, categoryDim, nil)
	}
	return bus.Response{ReturnValue: true, VType: vtype, Values: values}
}

func (s *Service) handleSetValues(ctx context.Context, params map[string]any) bus.Response {
	key := paramString(params, "key")
	appID := s.resolveAppID(params)
	op := resolver.ValuesOp(paramString(params, "op"))
	values := paramAnyMap(params, "values")

	if err := s.resolver.SetValues(define.DescKindSystem, key, appID, paramString(params, "vtype"), op, values); err != nil {
		return bus.Response{ReturnValue: false, ErrorText: err.Error()}
	}
	return bus.Response{ReturnValue: true}
}

func (s *Service) handleGetDesc(sender string, params map[string]any) bus.Response {
	keys := keysParam(params)
	appID := s.resolveAppID(params)
	descs, missing := s.resolver.GetDesc(keys, appID)

	if paramBool(params, "subscribe") {
		for _, k := range keys {
			s.reg.SubscribeDesc(sender, k, appID)
		}
	}

	results := make([]map[string]any, 0, len(descs))
	for _, d := range descs {
		results = append(results, descToMap(d))
	}
	resp := bus.Response{ReturnValue: len(missing) == 0 || len(results) > 0, AppID: appID, Results: results}
	if len(missing) > 0 {
		resp.ErrorKey = missing
	}
	return resp
}

func descToMap(d descmodel.Description) map[string]any {
	return map[string]any{
		"key":        d.Key,
		"category":   d.Category,
		"vtype":      d.VType,
		"values":     d.Values,
		"dimension":  d.Dimension,
		"dbtype":     d.DBType,
		"volatile":   d.Volatile,
		"valueCheck": d.ValueCheck,
		"ui":         d.UI,
		"app_id":     d.AppID,
		"condition":  d.Condition,
	}
}

func (s *Service) handleSetDesc(ctx context.Context, params map[string]any, factory bool) bus.Response {
	kind := define.DescKindSystem
	if factory {
		kind = define.DescKindDefault
	}
	d := descmodel.Description{
		Key:        paramString(params, "key"),
		Category:   paramString(params, "category"),
		VType:      paramString(params, "vtype"),
		Values:     paramAnyMap(params, "values"),
		DBType:     paramString(params, "dbtype"),
		AppID:      s.resolveAppID(params),
		UI:         paramAnyMap(params, "ui"),
		ValueCheck: paramBool(params, "valueCheck"),
	}
	if err := s.resolver.SetDesc(kind, d); err != nil {
		return bus.Response{ReturnValue: false, ErrorText: err.Error()}
	}

	if merged, ok := s.model.Describe(d.Key, d.AppID); ok {
		s.emit.PostDescChange(ctx, d.Key, d.AppID, descToMap(merged))
	}
	return bus.Response{ReturnValue: true}
}

func (s *Service) handleResetDesc(params map[string]any) bus.Response {
	s.resolver.ResetSystemSettingDesc(keysParam(params), paramString(params, "category"), s.resolveAppID(params))
	return bus.Response{ReturnValue: true}
}

func (s *Service) handleDelete(ctx context.Context, sender string, params map[string]any) bus.Response {
	req := resolver.DeleteRequest{
		Keys:      keysParam(params),
		Category:  paramString(params, "category"),
		Dimension: paramStringMap(params, "dimension"),
		AppID:     s.resolveAppID(params),
	}
	result, err := s.resolver.Delete(ctx, req)
	if err != nil {
		s.log.Error("service: delete failed", "error", err)
		return bus.Response{ReturnValue: false, ErrorText: "internal error"}
	}
	if result.ReturnValue {
		fallback, gerr := s.resolver.Get(ctx, resolver.GetRequest{Category: req.Category, Keys: req.Keys, Dimension: req.Dimension, AppID: req.AppID})
		if gerr != nil {
			s.log.Warn("service: post-delete fallback read failed", "error", gerr)
		}
		values := map[string]any{}
		for _, k := range req.Keys {
			values[k] = fallback.Settings[k]
		}
		categoryDim := s.model.BuildCategoryDim(req.Category, req.Dimension)
		if len(req.Keys) > 0 {
			categoryDim = s.model.BuildCategoryDim(req.Keys[0], req.Dimension)
		}
		s.emit.PostWrite(ctx, notify.WriteChange{
			Category:    req.Category,
			CategoryDim: categoryDim,
			Dimension:   req.Dimension,
			AppID:       req.AppID,
			Values:      values,
			DBTypeOf:    s.model.DBTypeOf,
			Sender:      sender,
			NotifySelf:  defaultTrue(params, "notifySelf"),
		})
	}
	return bus.Response{ReturnValue: result.ReturnValue, ErrorText: result.ErrorText}
}

func (s *Service) handleReset(ctx context.Context, sender string, params map[string]any) bus.Response {
	req := resolver.ResetRequest{
		Keys:      keysParam(params),
		Category:  paramString(params, "category"),
		Dimension: paramStringMap(params, "dimension"),
		AppID:     s.resolveAppID(params),
		ResetAll:  paramBool(params, "resetAll"),
	}
	result, err := s.resolver.Reset(ctx, req)
	if err != nil {
		s.log.Error("service: reset failed", "error", err)
		return bus.Response{ReturnValue: false, ErrorText: "internal error"}
	}
	if result.ReturnValue && len(result.Reset) > 0 {
		categoryDim := s.model.BuildCategoryDim(result.Reset[0], req.Dimension)
		fallback, gerr := s.resolver.Get(ctx, resolver.GetRequest{Category: req.Category, Keys: result.Reset, Dimension: req.Dimension, AppID: req.AppID})
		if gerr != nil {
			s.log.Warn("service: post-reset fallback read failed", "error", gerr)
		}
		values := map[string]any{}
		for _, k := range result.Reset {
			values[k] = fallback.Settings[k]
		}
		s.emit.PostWrite(ctx, notify.WriteChange{
			Category:    req.Category,
			CategoryDim: categoryDim,
			Dimension:   req.Dimension,
			AppID:       req.AppID,
			Values:      values,
			DBTypeOf:    s.model.DBTypeOf,
			Sender:      sender,
			NotifySelf:  defaultTrue(params, "notifySelf"),
		})
	}
	return bus.Response{ReturnValue: result.ReturnValue, ErrorText: result.ErrorText}
}
