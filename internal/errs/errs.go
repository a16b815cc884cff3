// Package errs implements the service-wide error type described in spec §7:
// a business error carries an i18n message key, a localized message for the
// caller, an optional cause, and a Kind used for propagation policy.
//
// Grounded on the teacher's internal/errs/i18n_error.go (key + localized
// message + cause), backed here by a real go-i18n/v2 bundle instead of a
// hand-rolled map, per SPEC_FULL.md §7.
package errs

import (
	"embed"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

var bundle = mustBuildBundle()

func mustBuildBundle() *i18n.Bundle {
	b := i18n.NewBundle(language.English)
	for _, name := range []string{"catalog/en.yaml", "catalog/zh-CN.yaml"} {
		if _, err := b.LoadMessageFileFS(catalogFS, name); err != nil {
			panic(fmt.Sprintf("errs: load %s: %v", name, err))
		}
	}
	return b
}

// Error is the service-wide business error: Key identifies the failure for
// logs/telemetry, Message is the localized text a caller sees, Cause is the
// wrapped underlying error (may be nil), and Kind drives propagation policy
// (spec §7).
type Error struct {
	Kind    Kind
	Key     string
	Message string
	Cause   error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Cause }

// Localizer resolves a message key (with optional template data) into a
// locale-appropriate string. *Catalog below is the production
// implementation; tests may supply a stub.
type Localizer interface {
	T(key string) string
	Tf(key string, data map[string]any) string
}

// Catalog is a Localizer backed by the embedded go-i18n bundle.
type Catalog struct {
	loc *i18n.Localizer
}

// NewCatalog returns a Catalog resolving messages for the given BCP-47
// locale tags, falling back to English.
func NewCatalog(locales ...string) *Catalog {
	tags := append(locales, "en")
	return &Catalog{loc: i18n.NewLocalizer(bundle, tags...)}
}

func (c *Catalog) T(key string) string {
	msg, err := c.loc.Localize(&i18n.LocalizeConfig{MessageID: key})
	if err != nil {
		return key
	}
	return msg
}

func (c *Catalog) Tf(key string, data map[string]any) string {
	msg, err := c.loc.Localize(&i18n.LocalizeConfig{MessageID: key, TemplateData: data})
	if err != nil {
		return key
	}
	return msg
}

// New builds a Kind-tagged Error from a message key, localizing with loc
// (pass nil to keep the bare key as the message — used in contexts with no
// request locale, e.g. internal invariants).
func New(kind Kind, loc Localizer, key string) error {
	msg := key
	if loc != nil {
		msg = loc.T(key)
	}
	return &Error{Kind: kind, Key: key, Message: msg}
}

// Newf is New with template data substituted into the localized message.
func Newf(kind Kind, loc Localizer, key string, data map[string]any) error {
	msg := key
	if loc != nil {
		msg = loc.Tf(key, data)
	}
	return &Error{Kind: kind, Key: key, Message: msg}
}

// Wrap attaches kind/key/cause, localizing the message the same way New
// does.
func Wrap(kind Kind, loc Localizer, key string, cause error) error {
	e := New(kind, loc, key).(*Error)
	e.Cause = cause
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; returns ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.Kind, true
}
