package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	settings, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(settings.CoderNames) != 0 {
		t.Errorf("CoderNames = %v, want empty", settings.CoderNames)
	}
}

func TestSetCoderNamePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path)

	if err := store.SetCoderName("1", "Anna"); err != nil {
		t.Fatalf("SetCoderName: %v", err)
	}
	if err := store.SetCoderName("2", "Ben"); err != nil {
		t.Fatalf("SetCoderName: %v", err)
	}

	reopened := NewStore(path)
	settings, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.CoderNames["1"] != "Anna" || settings.CoderNames["2"] != "Ben" {
		t.Errorf("CoderNames = %v", settings.CoderNames)
	}
}

func TestSetCoderNameEmptyRemovesOverride(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))

	if err := store.SetCoderName("1", "Anna"); err != nil {
		t.Fatalf("SetCoderName: %v", err)
	}
	if err := store.SetCoderName("1", ""); err != nil {
		t.Fatalf("SetCoderName: %v", err)
	}

	settings, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := settings.CoderNames["1"]; ok {
		t.Errorf("override not removed: %v", settings.CoderNames)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := NewStore(path).Load()
	if err == nil || !strings.Contains(err.Error(), "parse settings") {
		t.Errorf("error = %v, want parse error", err)
	}
}
