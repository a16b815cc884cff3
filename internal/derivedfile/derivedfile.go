// Package derivedfile is the one concrete DerivedFileWriter (spec §4.4.5,
// §9 design note): a narrow file-system projection for the handful of
// settings categories that have an on-disk mirror outside the document
// store — locale info and the system PIN. The core only ever calls
// Update; nothing in the service reads these files back.
package derivedfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// CategoryLocale mirrors localeInfo.locales.* to locale.json.
	CategoryLocale = "locale"
	// CategorySystem mirrors the system PIN (option category) to option.json.
	CategorySystem = "option"
)

// Writer projects selected categories to JSON files under Dir, one file
// per category, written atomically via a temp-file rename (the same
// pattern the description disk store uses for its own artifacts).
type Writer struct {
	dir string

	mu sync.Mutex
}

// New constructs a Writer rooted at dir. dir is created if absent.
func New(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("derivedfile: mkdir %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// CategoriesOfInterest implements notify.DerivedFileWriter.
func (w *Writer) CategoriesOfInterest() map[string]bool {
	return map[string]bool{
		CategoryLocale: true,
		CategorySystem: true,
	}
}

// Update implements notify.DerivedFileWriter: it replaces category's
// projection file wholesale with the given post-change values.
func (w *Writer) Update(ctx context.Context, category string, values map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	raw, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("derivedfile: encode %s: %w", category, err)
	}

	path := filepath.Join(w.dir, category+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("derivedfile: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("derivedfile: rename %s: %w", tmp, err)
	}
	return nil
}
