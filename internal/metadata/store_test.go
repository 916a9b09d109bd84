package metadata

import (
	"path/filepath"
	"testing"

	"github.com/hyperjump/mitsuke/internal/models"
)

func TestStore_SetMerges(t *testing.T) {
	s := NewStore()
	s.Set("/img/a.jpg", models.Metadata{"product_id": "p1", "name": "Alma"})
	s.Set("/img/a.jpg", models.Metadata{"name": "Alma v2", "category": "sofa"})

	got := s.Get("/img/a.jpg")
	if got["product_id"] != "p1" {
		t.Errorf("product_id = %v", got["product_id"])
	}
	if got["name"] != "Alma v2" {
		t.Errorf("merge should override, name = %v", got["name"])
	}
	if got["category"] != "sofa" {
		t.Errorf("category = %v", got["category"])
	}
}

func TestStore_GetAbsent(t *testing.T) {
	s := NewStore()
	got := s.Get("/img/missing.jpg")
	if got == nil || len(got) != 0 {
		t.Errorf("absent record should be an empty map, got %v", got)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Set("/img/a.jpg", models.Metadata{"name": "x"})
	got := s.Get("/img/a.jpg")
	got["name"] = "mutated"
	if s.Get("/img/a.jpg")["name"] != "x" {
		t.Error("Get must return a copy")
	}
}

func TestStore_DeleteReset(t *testing.T) {
	s := NewStore()
	s.Set("/img/a.jpg", models.Metadata{"name": "a"})
	s.Set("/img/b.jpg", models.Metadata{"name": "b"})
	s.Delete("/img/a.jpg")
	if s.Len() != 1 {
		t.Errorf("len after delete = %d", s.Len())
	}
	s.Delete("/img/missing.jpg") // no-op
	s.Reset()
	if s.Len() != 0 {
		t.Errorf("len after reset = %d", s.Len())
	}
}

func TestStore_FindPath(t *testing.T) {
	s := NewStore()
	s.Set("/img/a.jpg", models.Metadata{"product_id": "p1"})
	s.Set("/img/b.jpg", models.Metadata{"product_id": "p2"})

	path, ok := s.FindPath(func(_ string, r models.Metadata) bool {
		return r.ProductID("") == "p2"
	})
	if !ok || path != "/img/b.jpg" {
		t.Errorf("FindPath = %s, %v", path, ok)
	}
	if _, ok := s.FindPath(func(_ string, r models.Metadata) bool {
		return r.ProductID("") == "p3"
	}); ok {
		t.Error("unexpected match")
	}
}

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	s := NewStore()
	s.Set("/img/a.jpg", models.Metadata{"product_id": "p1", "category": "sofa"})
	s.Set("/img/b.jpg", models.Metadata{"name": "b"})
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded := NewStore()
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("len = %d", loaded.Len())
	}
	if loaded.Get("/img/a.jpg")["category"] != "sofa" {
		t.Error("category lost in roundtrip")
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := NewStore()
	s.Set("/img/a.jpg", models.Metadata{"name": "a"})
	if err := s.Load(filepath.Join(t.TempDir(), "none.json")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
	if s.Len() != 1 {
		t.Error("store should be unchanged")
	}
}
