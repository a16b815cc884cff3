package errs

// Kind tags an error with one of the categories enumerated in spec §7, so
// handlers can decide propagation policy (per-key vs. fatal) without
// string-matching messages.
type Kind string

const (
	// KindNotReady — a handler was entered before the description model
	// reported initialized.
	KindNotReady Kind = "service_not_ready"
	// KindParse — malformed DB reply or input that passed schema but
	// failed semantic parse.
	KindParse Kind = "parse_error"
	// KindDB — underlying store call returned returnValue:false or an
	// unexpected shape; transient, surfaced, no local retry.
	KindDB Kind = "db_failure"
	// KindUnknownKey — request referenced keys absent from the
	// description cache.
	KindUnknownKey Kind = "unknown_key"
	// KindValueCheck — value outside the key's values constraint.
	KindValueCheck Kind = "value_check"
	// KindCategoryMismatch — attempted to alter category/dimension of an
	// already-referenced key.
	KindCategoryMismatch Kind = "category_mismatch"
	// KindEmptyResult — delete/reset found no matching key.
	KindEmptyResult Kind = "empty_result"
	// KindPerAppConflict — request mixes per-app-only and global-only
	// keys.
	KindPerAppConflict Kind = "per_app_conflict"
)
