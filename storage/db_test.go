package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exercise(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	value := []byte("payload")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("unexpected value %q", got)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exercise(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	exercise(t, db)
}

func exerciseBatch(t *testing.T, db Database) {
	t.Helper()
	if err := db.Put([]byte("stale"), []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	batch := new(Batch)
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Put([]byte("a"), []byte("3"))
	batch.Delete([]byte("stale"))
	if batch.Len() != 4 {
		t.Fatalf("unexpected batch length %d", batch.Len())
	}
	if err := db.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	for key, want := range map[string]string{"a": "3", "b": "2"} {
		got, err := db.Get([]byte(key))
		if err != nil || string(got) != want {
			t.Fatalf("key %s: got %q err %v", key, got, err)
		}
	}
	if _, err := db.Get([]byte("stale")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stale key removed, got %v", err)
	}
	if err := db.Write(nil); err != nil {
		t.Fatalf("nil batch: %v", err)
	}
}

func TestMemDBBatch(t *testing.T) {
	exerciseBatch(t, NewMemDB())
}

func TestLevelDBBatch(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	exerciseBatch(t, db)
}
