package resolver

import (
	"log/slog"

	"settingsvc/internal/define"
	"settingsvc/internal/descmodel"
	"settingsvc/internal/descmodel/perapp"
	"settingsvc/internal/errs"
	"settingsvc/internal/store"
)

// Resolver owns the read/write composition algorithms of spec §4.2: it
// consumes descmodel.Model's pure queries plus the document store's raw
// result sets and produces effective values, persisting writes under the
// invariants of spec §3.2. It holds no locks of its own — descmodel.Model
// and VolatileMap are each independently safe for concurrent use; ordering
// guarantees (spec §5) are the task engine's job, not this package's.
type Resolver struct {
	store      store.Store
	model      *descmodel.Model
	volatile   *VolatileMap
	exceptions perapp.ExceptionAllower
	loc        errs.Localizer
	log        *slog.Logger
}

// New builds a Resolver. log may be nil. Errors surfaced in ErrorText
// fields are localized through loc (spec §7); pass nil to keep bare
// message keys, which is what tests do.
func New(st store.Store, model *descmodel.Model, volatile *VolatileMap, exceptions perapp.ExceptionAllower, loc errs.Localizer, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{store: st, model: model, volatile: volatile, exceptions: exceptions, loc: loc, log: log}
}

// errText renders a Kind-tagged message key through the resolver's
// localizer for an ErrorText field; the Kind itself travels with callers
// that want it via errs.New directly (e.g. to log structured kinds).
func (r *Resolver) errText(kind errs.Kind, key string, data map[string]any) string {
	err := errs.Newf(kind, r.loc, key, data)
	return err.Error()
}

// dbTypeOf adapts Model.DBTypeOf to the function-value shape MergeInput and
// perapp.Split want.
func (r *Resolver) dbTypeOf(key string) string {
	return r.model.DBTypeOf(key)
}

// categoryDimFor resolves the category-dim partition a request's keys live
// in. Every key sharing the request's category is assumed to share its
// dimension signature (spec §3.1's Dimension is category-scoped); the
// first key with a known description decides it, falling back to the bare
// category when none resolves (legacy/unknown key).
func (r *Resolver) categoryDimFor(category string, keys []string, requestedDim map[string]string) string {
	for _, k := range keys {
		if _, ok := r.model.CategoryOf(k); ok {
			return r.model.BuildCategoryDim(k, requestedDim)
		}
	}
	return category
}

// requestAppID normalizes an empty/global request appId to the sentinel.
func requestAppID(appID string) string {
	if appID == "" {
		return define.GlobalAppID
	}
	return appID
}
