package derivedfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestUpdateWritesJSONFileNamedAfterCategory(t *testing.T) {
	w, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := w.Update(context.Background(), CategoryLocale, map[string]any{"UI": "en-US"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(w.dir, "locale.json"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["UI"] != "en-US" {
		t.Errorf("got = %+v, want UI=en-US", got)
	}
}

func TestCategoriesOfInterestNamesLocaleAndSystem(t *testing.T) {
	w, _ := New(t.TempDir())
	coi := w.CategoriesOfInterest()
	if !coi[CategoryLocale] || !coi[CategorySystem] {
		t.Errorf("CategoriesOfInterest() = %+v, want locale and option", coi)
	}
}

func TestUpdateOverwritesPreviousContent(t *testing.T) {
	w, _ := New(t.TempDir())
	ctx := context.Background()
	_ = w.Update(ctx, CategoryLocale, map[string]any{"UI": "en-US"})
	_ = w.Update(ctx, CategoryLocale, map[string]any{"UI": "fr-FR"})

	raw, _ := os.ReadFile(filepath.Join(w.dir, "locale.json"))
	var got map[string]any
	_ = json.Unmarshal(raw, &got)
	if got["UI"] != "fr-FR" {
		t.Errorf("got = %+v, want UI=fr-FR after second Update", got)
	}
}
