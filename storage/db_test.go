package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestMemDBGetPutDelete(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Fatalf("got %q want %q", got, "v")
	}

	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestMemDBGetReturnsCopy(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	if err := db.Put([]byte("k"), []byte("abc")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got[0] = 'z'

	again, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(again, []byte("abc")) {
		t.Fatalf("stored value mutated through returned slice: %q", again)
	}
}

func TestBatchWrite(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	if err := db.Put([]byte("old"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	batch := new(Batch)
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("old"))
	if batch.Len() != 3 {
		t.Fatalf("batch len = %d, want 3", batch.Len())
	}

	if err := db.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		got, err := db.Get([]byte(key))
		if err != nil {
			t.Fatalf("get %q: %v", key, err)
		}
		if string(got) != want {
			t.Fatalf("get %q = %q, want %q", key, got, want)
		}
	}
	if _, err := db.Get([]byte("old")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound for deleted key, got %v", err)
	}
}

func TestBatchCopiesKeys(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	key := []byte("k")
	value := []byte("v")
	batch := new(Batch)
	batch.Put(key, value)
	key[0] = 'x'
	value[0] = 'y'

	if err := db.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Fatalf("batch captured mutated key or value: %q", got)
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}

	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	batch := new(Batch)
	batch.Put([]byte("a"), []byte("1"))
	batch.Delete([]byte("k"))
	if err := db.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	db.Close()

	reopened, err := NewLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen leveldb: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("1")) {
		t.Fatalf("got %q want %q", got, "1")
	}
	if _, err := reopened.Get([]byte("k")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}
