package service

import (
	"context"
	"fmt"

	"settingsvc/internal/define"
	"settingsvc/internal/notify"
	"settingsvc/internal/resolver"
	"settingsvc/internal/store"
)

// SetCurrentApp updates the engine's current-app pointer (spec §4.3.4). It
// is a host-triggered event, not a client bus method: the embedding host
// process calls this directly when the user's active app changes.
func (s *Service) SetCurrentApp(ctx context.Context, appID string) error {
	return s.engine.SetCurrentApp(ctx, appID)
}

// UninstallApp purges every per-app setting, volatile entry, and
// description owned by appID (spec §4.3.4), dispatched as a mutating task
// so the purge serializes against concurrent reads of the same app.
func (s *Service) UninstallApp(ctx context.Context, appID string) error {
	return s.engine.UninstallApp(ctx, appID, s.purgeApp)
}

// ChangeCountry re-selects country-variant settings for code (spec §4.1.2)
// with conservative-property preservation (§4.1.5), then notifies every
// category-dim partition the change touched. It is a host-triggered event:
// the embedding host calls it when the device's country/locale changes,
// not a client bus method.
func (s *Service) ChangeCountry(ctx context.Context, code string) error {
	val, err := s.engine.ChangeCountry(ctx, code, func(taskCtx context.Context, c string) (any, error) {
		return s.resolver.ChangeCountry(taskCtx, c)
	})
	if err != nil {
		return err
	}
	result, _ := val.(resolver.CountryChangeResult)
	for _, categoryDim := range result.Categories {
		s.emit.PostWrite(ctx, notify.WriteChange{
			Category:    categoryDim,
			CategoryDim: categoryDim,
			AppID:       define.GlobalAppID,
			Values:      result.Values[categoryDim],
			DBTypeOf:    s.model.DBTypeOf,
			NotifySelf:  true,
		})
	}
	return nil
}

func (s *Service) purgeApp(ctx context.Context, appID string) error {
	s.volatile.PurgeApp(appID)

	for _, key := range s.model.KnownKeys() {
		s.model.RemoveKeyDesc(define.DescKindSystem, key, appID)
		s.model.RemoveKeyDesc(define.DescKindDefault, key, appID)
	}

	if _, err := s.store.Del(ctx, store.Query{AppID: appID, AppScoped: true}); err != nil {
		return fmt.Errorf("service: purge app %q records: %w", appID, err)
	}
	return nil
}
