// Package resolver implements the Multi-Layer Resolver and per-operation
// request handlers (spec §4.2): composing effective values from layered
// settings records, persisting writes, and validating against description
// constraints.
package resolver

import (
	"settingsvc/internal/define"
	"settingsvc/internal/descmodel"
	"settingsvc/internal/descmodel/perapp"
	"settingsvc/internal/store"
)

// kindOrder is the fold order of §4.2.1 step 1: later kinds override
// earlier ones. "file" defaults never reach this function — they are
// already composed into the effective Description by descmodel.Describe;
// mergeLayeredRecords only folds document-store kinds.
var kindOrder = []string{define.KindDefault, define.KindOverride, define.KindMain}

// MergeInput bundles mergeLayeredRecords' arguments (spec §4.2.1).
type MergeInput struct {
	Category     string // the category-dim partition these records were read for
	Records      []store.Record
	AppID        string
	FilterMixed  bool
	RequestedDim bool // true when the caller passed an explicit dimension
	DBTypeOf     func(key string) string
	Exceptions   perapp.ExceptionAllower
	// Model disambiguates among sibling records sharing one (kind, appId)
	// bucket by country rank and condition score (spec §4.1.2, §4.1.4).
	// May be nil; a bucket with at most one record never consults it.
	Model *descmodel.Model
}

// recordCandidate adapts a store.Record to descmodel.RecordCandidate.
type recordCandidate struct{ store.Record }

func (c recordCandidate) CountryTag() string              { return c.Country }
func (c recordCandidate) ConditionValues() map[string]any { return c.Condition }

// bestRecord picks the single record that should apply out of a (kind,
// appId) bucket. A bucket with zero or one record needs no disambiguation;
// a bucket with several siblings (alternate country/condition variants of
// the same partition) is resolved via descmodel.BestRecordIndex, and a
// bucket where every sibling is condition-disqualified contributes nothing.
func bestRecord(model *descmodel.Model, records []store.Record) (store.Record, bool) {
	switch len(records) {
	case 0:
		return store.Record{}, false
	case 1:
		return records[0], true
	}
	if model == nil {
		return records[0], true
	}
	candidates := make([]recordCandidate, len(records))
	for i, rec := range records {
		candidates[i] = recordCandidate{rec}
	}
	idx := descmodel.BestRecordIndex(model, candidates)
	if idx < 0 {
		return store.Record{}, false
	}
	return records[idx], true
}

// MergeLayeredRecords composes a flat `{key -> value}` mapping from layered
// settings records (spec §4.2.1): partitions by kind (default -> override
// -> main), then within each kind by app_id (global then per-app),
// resolving each key's final value per its dbtype's P/M/E/G rule.
func MergeLayeredRecords(in MergeInput) map[string]any {
	result := map[string]any{}
	explicitPerApp := map[string]bool{}

	for _, kind := range kindOrder {
		var global, perApp []store.Record
		for _, rec := range in.Records {
			if rec.Kind != kind {
				continue
			}
			if in.RequestedDim && rec.Category != in.Category {
				continue // §4.2.1 step 4: discard records outside the requested partition
			}
			switch rec.AppID {
			case define.GlobalAppID:
				global = append(global, rec)
			case in.AppID:
				if in.AppID != define.GlobalAppID {
					perApp = append(perApp, rec)
				}
			}
		}

		if rec, ok := bestRecord(in.Model, global); ok {
			for k, v := range rec.Value {
				result[k] = v
			}
		}

		if rec, ok := bestRecord(in.Model, perApp); ok {
			for k, v := range rec.Value {
				applyPerAppValue(result, explicitPerApp, in.DBTypeOf, in.Exceptions, in.AppID, k, v)
			}
		}
	}

	if in.FilterMixed {
		for k := range result {
			if in.DBTypeOf(k) == define.DBTypeMixed && !explicitPerApp[k] {
				delete(result, k)
			}
		}
	}

	return result
}

func applyPerAppValue(result map[string]any, explicitPerApp map[string]bool, dbTypeOf func(string) string, exceptions perapp.ExceptionAllower, appID, key string, value any) {
	dbType := define.DBTypeGlobal
	if dbTypeOf != nil {
		dbType = dbTypeOf(key)
	}

	switch dbType {
	case define.DBTypeGlobal:
		// G keys never take a per-app value, even if one was persisted.
		return
	case define.DBTypeException:
		if exceptions == nil || !exceptions.Allows(key, appID) {
			return
		}
	}

	result[key] = value
	explicitPerApp[key] = true
}
