// Package define holds build-time constants shared across the service.
package define

// AppID identifies the process for config/log/db directory resolution.
const AppID = "settingsvc"

// AppDisplayName appears in log banners and diagnostics.
const AppDisplayName = "System Settings Service"

// DefaultDBFileName is the sqlite file backing the document-store adapter.
const DefaultDBFileName = "settings.db"

// DefaultDescriptionDir holds the on-disk description artifacts named in
// spec §6.2 (description.bson, override.bson, ...).
const DefaultDescriptionDir = "descriptions"

// IsDev reports whether the process was built for development.
func IsDev() bool {
	return Env == "development"
}

// IsProd reports whether the process was built for production.
func IsProd() bool {
	return Env == "production"
}

// GlobalAppID is the sentinel app id for records with no per-app owner
// (spec §3.1).
const GlobalAppID = ""

// Settings-record storage kinds (spec §3.1).
const (
	KindFile     = "file"
	KindDefault  = "default"
	KindMain     = "main"
	KindVolatile = "volatile"
	KindOverride = "override"
)

// Description DB kinds (spec §4.1.1) — distinct namespace from the
// settings-record kinds above.
const (
	DescKindSystem  = "desc.system"
	DescKindDefault = "desc.default"
)

// dbtype tags (spec §3.1, GLOSSARY).
const (
	DBTypeGlobal    = "G"
	DBTypePerApp    = "P"
	DBTypeMixed     = "M"
	DBTypeException = "E"
)

// vtype tags (spec §3.1).
const (
	VTypeArray    = "Array"
	VTypeArrayExt = "ArrayExt"
	VTypeRange    = "Range"
	VTypeDate     = "Date"
	VTypeCallback = "Callback"
	VTypeFile     = "File"
)

// DimensionInfoCategory stores independent dimension-key current values
// (spec §4.1.6).
const DimensionInfoCategory = "dimensionInfo"

// WildcardCoordinate marks a don't-care dimension position in a
// category-dim string (spec §3.1).
const WildcardCoordinate = "x"

// Country sentinels a record's `country` property may carry (spec §4.1.2).
const (
	CountryDefault = "default"
	CountryNone    = "none"
)
