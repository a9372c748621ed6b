package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestMemDBPutGet(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("get = %q/%v, want v", got, err)
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("v")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'x'
	got, err := db.Get([]byte("k"))
	if err != nil || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("stored value shares caller's slice: %q/%v", got, err)
	}
}

func TestMemDBWriteBatch(t *testing.T) {
	db := NewMemDB()
	entries := map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}
	if err := db.WriteBatch(entries); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	for key, want := range entries {
		got, err := db.Get([]byte(key))
		if err != nil || !bytes.Equal(got, want) {
			t.Fatalf("get %q = %q/%v, want %q", key, got, err, want)
		}
	}
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := db.WriteBatch(map[string][]byte{"k": []byte("v")}); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("get = %q/%v, want v", got, err)
	}
}
