package diskstore

import (
	"path/filepath"
	"testing"

	"settingsvc/internal/descmodel"
)

func sampleItems() []descmodel.Description {
	return []descmodel.Description{
		{Key: "brightness", Category: "picture", VType: "Range", DBType: "G", ValueCheck: true},
		{Key: "arcPerApp", Category: "picture", VType: "Array", DBType: "M"},
		{Key: "pin", Category: "option", VType: "Callback", DBType: "P", Volatile: true},
		{Key: "brightness", Category: "picture", VType: "Range", DBType: "G", Country: "FR"},
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "description.bson")
	items := sampleItems()

	if err := Save(path, items); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	variants := store.ByKey("brightness")
	if len(variants) != 2 {
		t.Fatalf("ByKey(brightness) = %d variants, want 2", len(variants))
	}
}

func TestLoadMissingFileIsEmptyStore(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "does-not-exist.bson"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(store.Keys()) != 0 {
		t.Errorf("Keys() = %v, want empty", store.Keys())
	}
}

func TestKeysOfCategoryAndType(t *testing.T) {
	store := fromItems(sampleItems())

	picture := store.KeysOfCategory("picture")
	if len(picture) != 2 {
		t.Errorf("KeysOfCategory(picture) = %v, want 2 keys", picture)
	}

	volatileKeys := store.KeysOfType("volatile")
	if len(volatileKeys) != 1 || volatileKeys[0] != "pin" {
		t.Errorf("KeysOfType(volatile) = %v, want [pin]", volatileKeys)
	}

	mixedKeys := store.KeysOfType("mixed")
	if len(mixedKeys) != 1 || mixedKeys[0] != "arcPerApp" {
		t.Errorf("KeysOfType(mixed) = %v, want [arcPerApp]", mixedKeys)
	}

	countryKeys := store.KeysOfType("countryVariant")
	if len(countryKeys) != 1 || countryKeys[0] != "brightness" {
		t.Errorf("KeysOfType(countryVariant) = %v, want [brightness]", countryKeys)
	}
}
