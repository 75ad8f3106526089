package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStores(t *testing.T) {
	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	stores := map[string]DurableStore{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := store.Get("catalog"); err != nil || ok {
				t.Fatalf("Expected missing key, got ok=%v err=%v", ok, err)
			}

			if err := store.Set("catalog", []byte(`[1]`)); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := store.Set("catalog", []byte(`[1,2]`)); err != nil {
				t.Fatalf("Overwrite failed: %v", err)
			}

			value, ok, err := store.Get("catalog")
			if err != nil || !ok {
				t.Fatalf("Expected stored value, got ok=%v err=%v", ok, err)
			}
			if string(value) != `[1,2]` {
				t.Errorf("Expected last write to win, got %s", value)
			}

			if err := store.Delete("catalog"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := store.Delete("catalog"); err != nil {
				t.Fatalf("Deleting a missing key should not fail: %v", err)
			}
			if _, ok, _ := store.Get("catalog"); ok {
				t.Error("Expected key to be gone after delete")
			}
		})
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	value := []byte("abc")
	_ = store.Set("k", value)
	value[0] = 'z'

	got, _, _ := store.Get("k")
	if string(got) != "abc" {
		t.Errorf("Store aliased caller slice: %s", got)
	}
	got[1] = 'z'
	again, _, _ := store.Get("k")
	if string(again) != "abc" {
		t.Errorf("Store leaked internal slice: %s", again)
	}
}

func TestFileStoreRejectsUnsafeKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
		if err := store.Set(key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey for %q, got %v", key, err)
		}
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set("portfolio-images", []byte("[]")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "portfolio-images.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Unexpected directory contents %v", names)
	}
}
