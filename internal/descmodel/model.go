package descmodel

import (
	"sort"
	"strings"
	"sync"

	"settingsvc/internal/define"
	"settingsvc/internal/descmodel/condition"
	"settingsvc/internal/descmodel/dimension"
	"settingsvc/internal/descmodel/diskstore"
	"settingsvc/internal/descmodel/merge"
	"settingsvc/internal/descmodel/perapp"
)

// Model is the process-scoped Description & Dimension Model (spec §4.1):
// the authoritative, read-mostly view of what keys exist, their value
// constraints, their dimension signature, and their storage class. All
// public queries are pure and safe for concurrent callers (spec §4.1.7);
// structural mutation happens only via LoadCaches (which replaces both
// DB-backed caches wholesale) and AddKeyDesc/RemoveKeyDesc (which replace
// one key's entry list), all under one mutex (spec §5).
type Model struct {
	mu sync.RWMutex

	base     *diskstore.Store // description.bson (+ country-specific entries)
	override *diskstore.Store // override.bson

	defaultCache map[string][]Description // desc.default DB kind
	systemCache  map[string][]Description // desc.system DB kind

	categoryDims map[string][]string // category -> ordered dimension-key names
	exceptions   perapp.ExceptionAllower
	scorer       condition.Scorer

	countryCode string
	state       map[string]any // current device condition, scored against Description.Condition (spec §4.1.4)
	dims        *dimension.State
}

// Config carries Model's fixed collaborators, resolved once at startup.
type Config struct {
	Base         *diskstore.Store
	Override     *diskstore.Store
	CategoryDims map[string][]string
	Exceptions   perapp.ExceptionAllower
	Scorer       condition.Scorer
}

// New builds an empty Model; LoadCaches populates the DB-backed layers.
func New(cfg Config) *Model {
	base, override := cfg.Base, cfg.Override
	if base == nil {
		base = diskstore.Empty()
	}
	if override == nil {
		override = diskstore.Empty()
	}
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = condition.DefaultScorer{}
	}
	return &Model{
		base:         base,
		override:     override,
		defaultCache: map[string][]Description{},
		systemCache:  map[string][]Description{},
		categoryDims: cfg.CategoryDims,
		exceptions:   cfg.Exceptions,
		scorer:       scorer,
		dims:         dimension.New(),
	}
}

// LoadCaches replaces the in-memory desc.default / desc.system caches
// wholesale (spec §4.1.1 layers 3 and 5), keyed by key. Called at startup
// and on every country change (spec §3.3).
func (m *Model) LoadCaches(defaultItems, systemItems []Description) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultCache = indexByKey(defaultItems)
	m.systemCache = indexByKey(systemItems)
}

func indexByKey(items []Description) map[string][]Description {
	out := make(map[string][]Description, len(items))
	for _, d := range items {
		out[d.Key] = append(out[d.Key], d)
	}
	return out
}

// SetCountry updates the active country code used for variant selection
// (spec §4.1.2). Callers rebuild caches separately via LoadCaches.
func (m *Model) SetCountry(code string) {
	m.mu.Lock()
	m.countryCode = code
	m.mu.Unlock()
}

// SetDeviceState updates the current device condition scored against
// every candidate's Condition map during layer selection (spec §4.1.4).
// A candidate the configured Scorer disqualifies (score <= 0) against
// this state is never selected, even if it otherwise has the best country
// match.
func (m *Model) SetDeviceState(state map[string]any) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// AddKeyDesc writes d through to the system or default cache (spec §4.2.5
// "addKeyDesc"), replacing any existing entry for (d.Key, d.AppID).
func (m *Model) AddKeyDesc(kind string, d Description) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cache := m.cacheFor(kind)
	filtered := cache[d.Key][:0:0]
	for _, existing := range cache[d.Key] {
		if existing.AppID != d.AppID {
			filtered = append(filtered, existing)
		}
	}
	cache[d.Key] = append(filtered, d)
}

// RemoveKeyDesc purges the (key, appID) entry from kind's cache (spec
// §4.2.5 resetSystemSettingDesc).
func (m *Model) RemoveKeyDesc(kind, key, appID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cache := m.cacheFor(kind)
	filtered := cache[key][:0:0]
	for _, existing := range cache[key] {
		if existing.AppID != appID {
			filtered = append(filtered, existing)
		}
	}
	cache[key] = filtered
}

func (m *Model) cacheFor(kind string) map[string][]Description {
	if kind == define.DescKindDefault {
		return m.defaultCache
	}
	return m.systemCache
}

// Describe resolves the effective description for (key, appId): spec
// §4.1.1's base ← file-country ← default ← override ← system fold, with
// per-app entries in the default/override/system layers shadowing the global entry
// when a per-app one exists (spec §4.1.1 "per-app default shadows global
// main").
func (m *Model) Describe(key, appID string) (Description, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	baseLayer, ok := m.pickBase(m.base.ByKey(key))
	defaultLayer, hasDefault, perAppDefaultFound := m.pickLayer(m.defaultCache[key], appID, false)
	overrideLayer, hasOverride, _ := m.pickLayer(m.override.ByKey(key), appID, false)
	// A per-app default entry shadows the system layer's global entry even
	// when no per-app system entry exists (spec §4.1.1 "per-app default
	// shadows global main"), so the system layer's own global fallback is
	// suppressed whenever the default layer already found one for appID.
	systemLayer, hasSystem, _ := m.pickLayer(m.systemCache[key], appID, perAppDefaultFound)

	if !ok && !hasDefault && !hasOverride && !hasSystem {
		return Description{}, false
	}

	layers := make([]Description, 0, 4)
	if ok {
		layers = append(layers, baseLayer)
	}
	if hasDefault {
		layers = append(layers, defaultLayer)
	}
	if hasOverride {
		layers = append(layers, overrideLayer)
	}
	if hasSystem {
		layers = append(layers, systemLayer)
	}
	if len(layers) == 0 {
		return Description{}, false
	}
	return merge.Layers(layers...), true
}

// pickBase selects the best country variant among a key's base/file
// candidates (spec §4.1.2); the base layer has no per-app concept.
func (m *Model) pickBase(candidates []Description) (Description, bool) {
	if len(candidates) == 0 {
		return Description{}, false
	}
	idx := m.bestCountryIndex(candidates, m.countryCode)
	if idx < 0 {
		return Description{}, false
	}
	return candidates[idx], true
}

// pickLayer selects, among candidates for one DB-backed layer, the per-app
// entry for appID if one exists (it shadows the global entry per §4.1.1),
// else the best-scoring/best-country global entry — unless
// suppressGlobalFallback is set, in which case the global entry is never
// returned (used to let a per-app entry found in one layer shadow the
// global entry of another, spec §4.1.1). The third return reports whether
// a per-app candidate for appID existed at all in this layer, regardless
// of whether a country match was found for it.
func (m *Model) pickLayer(candidates []Description, appID string, suppressGlobalFallback bool) (Description, bool, bool) {
	if len(candidates) == 0 {
		return Description{}, false, false
	}

	var perApp, global []Description
	for _, d := range candidates {
		if appID != define.GlobalAppID && d.AppID == appID {
			perApp = append(perApp, d)
		} else if d.AppID == define.GlobalAppID {
			global = append(global, d)
		}
	}
	hasPerApp := len(perApp) > 0

	if hasPerApp {
		if idx := m.bestCountryIndex(perApp, m.countryCode); idx >= 0 {
			return perApp[idx], true, hasPerApp
		}
	}
	if suppressGlobalFallback {
		return Description{}, false, hasPerApp
	}
	if idx := m.bestCountryIndex(global, m.countryCode); idx >= 0 {
		return global[idx], true, hasPerApp
	}
	return Description{}, false, hasPerApp
}

// bestCountryIndex selects, among candidates for the same (key, appId),
// the one that best matches both countryCode and the model's current
// condition state (spec §4.1.4): a candidate the scorer disqualifies
// (score <= 0) is never selected regardless of country rank, and among
// the surviving candidates the highest country rank wins, ties broken by
// the higher condition score.
func (m *Model) bestCountryIndex(candidates []Description, countryCode string) int {
	best, bestRank, bestScore := -1, -1, -1
	for i, d := range candidates {
		score := m.scorer.Score(m.state, d.Condition)
		if score <= 0 {
			continue
		}
		rank := countryRank(d.Country, countryCode)
		if rank < 0 {
			continue
		}
		if rank > bestRank || (rank == bestRank && score > bestScore) {
			bestRank, bestScore, best = rank, score, i
		}
	}
	return best
}

// RecordCandidate is anything carrying a country tag and a condition map,
// selected among siblings for the same (kind, category, appId) partition
// (spec §4.1.2, §4.1.4). store.Record satisfies it via a thin adapter in
// the resolver package, which is the only caller outside this package.
type RecordCandidate interface {
	CountryTag() string
	ConditionValues() map[string]any
}

// BestRecordIndex picks the single best candidate among sibling records for
// one partition under m's active country code and device state, combining
// country rank with condition score the same way bestCountryIndex does for
// Descriptions. Returns -1 when every candidate is disqualified.
func BestRecordIndex[T RecordCandidate](m *Model, candidates []T) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	best, bestRank, bestScore := -1, -1, -1
	for i, c := range candidates {
		score := m.scorer.Score(m.state, c.ConditionValues())
		if score <= 0 {
			continue
		}
		rank := countryRank(c.CountryTag(), m.countryCode)
		if rank < 0 {
			continue
		}
		if rank > bestRank || (rank == bestRank && score > bestScore) {
			bestRank, bestScore, best = rank, score, i
		}
	}
	return best
}

func countryRank(tag, countryCode string) int {
	switch {
	case tag == "":
		return 0
	case tag == define.CountryDefault:
		return 1
	case tag == define.CountryNone:
		return 0
	case countryCode != "" && strings.Contains(countryCode, tag):
		return 2
	default:
		return -1
	}
}

// describeAny returns the first available layer for key regardless of
// country/app matching, used by queries that only need structural
// properties (category, dbtype, dimension) rather than an effective value.
func (m *Model) describeAny(key string) (Description, bool) {
	if cands := m.base.ByKey(key); len(cands) > 0 {
		return cands[0], true
	}
	if cands := m.defaultCache[key]; len(cands) > 0 {
		return cands[0], true
	}
	if cands := m.systemCache[key]; len(cands) > 0 {
		return cands[0], true
	}
	if cands := m.override.ByKey(key); len(cands) > 0 {
		return cands[0], true
	}
	return Description{}, false
}

// CategoryOf implements spec §4.1.7 categoryOf.
func (m *Model) CategoryOf(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.describeAny(key)
	if !ok {
		return "", false
	}
	return d.Category, true
}

// DimensionsOf implements spec §4.1.7 dimensionsOf.
func (m *Model) DimensionsOf(key string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.describeAny(key); ok {
		return d.Dimension
	}
	return nil
}

// DBTypeOf implements spec §4.1.7 dbTypeOf.
func (m *Model) DBTypeOf(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.describeAny(key); ok {
		return d.DBType
	}
	return define.DBTypeGlobal
}

// IsVolatile implements spec §4.1.7 isVolatile.
func (m *Model) IsVolatile(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.describeAny(key)
	return ok && d.Volatile
}

// IsNewKey implements spec §4.1.7 isNewKey: true when no layer has ever
// heard of key.
func (m *Model) IsNewKey(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.describeAny(key)
	return !ok
}

// CurrentDimension implements spec §4.1.7 currentDimension().
func (m *Model) CurrentDimension() map[string]string {
	return m.dims.Snapshot()
}

// Dimensions exposes the underlying dimension.State for the resolver's
// rebuild-on-dimension-write path (spec §4.1.6, §4.4.2 step 3).
func (m *Model) Dimensions() *dimension.State {
	return m.dims
}

// BuildCategoryDim implements spec §4.1.7 buildCategoryDim(key,
// requestedDimensionCoord): joins the key's dimension values, in category
// order, using requested (falling back to the current resolved value, then
// the wildcard sentinel) for each position.
func (m *Model) BuildCategoryDim(key string, requested map[string]string) string {
	category, ok := m.CategoryOf(key)
	if !ok {
		return key
	}
	dims := m.DimensionsOf(key)
	if len(dims) == 0 {
		return category
	}

	parts := make([]string, len(dims))
	for i, dimKey := range dims {
		if v, ok := requested[dimKey]; ok && v != "" {
			parts[i] = v
			continue
		}
		if v := m.dims.Value(dimKey); v != "" {
			parts[i] = v
			continue
		}
		parts[i] = define.WildcardCoordinate
	}
	return category + "$" + strings.Join(parts, ".")
}

// GetCategoryKeyListMap implements spec §4.1.7: groups keys under the one
// category-dim partition selected by the requested dimension coordinate.
func (m *Model) GetCategoryKeyListMap(category string, requestedDim map[string]string, keys []string) map[string][]string {
	out := map[string][]string{}
	for _, k := range keys {
		cd := m.BuildCategoryDim(k, requestedDim)
		out[cd] = append(out[cd], k)
	}
	return out
}

// DimensionValues resolves the legal value list for one dimension-key,
// used by GetCategoryKeyListMapAll's cross-product expansion. Production
// wiring supplies this from the dimension-key's own description.Values
// (an Array-typed vtype); tests may stub it directly.
type DimensionValues func(dimKey string) []string

// GetCategoryKeyListMapAll implements spec §4.1.7: enumerates every
// category-dim partition by cross-product of each dimension-key's legal
// value list, for category, grouping keys into every partition they could
// occupy.
func (m *Model) GetCategoryKeyListMapAll(category string, keys []string, valuesOf DimensionValues) map[string][]string {
	dims := m.categoryDims[category]
	if len(dims) == 0 {
		out := map[string][]string{}
		for _, k := range keys {
			out[category] = append(out[category], k)
		}
		return out
	}

	coords := crossProduct(dims, valuesOf)
	out := map[string][]string{}
	for _, coord := range coords {
		cd := category + "$" + strings.Join(coord, ".")
		out[cd] = append(out[cd], keys...)
	}
	return out
}

func crossProduct(dims []string, valuesOf DimensionValues) [][]string {
	result := [][]string{{}}
	for _, dimKey := range dims {
		values := valuesOf(dimKey)
		if len(values) == 0 {
			values = []string{define.WildcardCoordinate}
		}
		var next [][]string
		for _, partial := range result {
			for _, v := range values {
				coord := append(append([]string(nil), partial...), v)
				next = append(next, coord)
			}
		}
		result = next
	}
	return result
}

// SplitKeysIntoGlobalOrPerApp implements spec §4.1.7, delegating the per-
// dbtype rule table to the perapp package.
func (m *Model) SplitKeysIntoGlobalOrPerApp(keys []string, appID string) (global, perApp []string) {
	return perapp.Split(keys, appID, m.DBTypeOf)
}

// Visible reports whether a candidate owned by owner is visible to a
// request from requestAppID, for key's dbtype (spec §4.1.3).
func (m *Model) Visible(key, owner, requestAppID string) bool {
	return perapp.Visible(key, m.DBTypeOf(key), owner, requestAppID, m.exceptions)
}

// KnownKeys returns every key known to the base, default or system layer,
// sorted; keys present only in the override layer are not included.
func (m *Model) KnownKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	for _, k := range m.base.Keys() {
		seen[k] = true
	}
	for k := range m.defaultCache {
		seen[k] = true
	}
	for k := range m.systemCache {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
