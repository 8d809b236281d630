// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package backend_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/lihao628/massa/backend"
	"github.com/lihao628/massa/backend/ldb"
	"github.com/lihao628/massa/backend/pebbledb"
)

type engineFactory struct {
	name string
	open func(directory string) (backend.Engine, error)
}

func getEngineFactories() []engineFactory {
	return []engineFactory{
		{"leveldb", func(directory string) (backend.Engine, error) {
			return ldb.Open(directory, nil)
		}},
		{"pebble", func(directory string) (backend.Engine, error) {
			return pebbledb.Open(directory, pebbledb.Options{})
		}},
	}
}

func forEachEngine(t *testing.T, test func(t *testing.T, factory engineFactory, engine backend.Engine)) {
	for _, factory := range getEngineFactories() {
		factory := factory
		t.Run(factory.name, func(t *testing.T) {
			engine, err := factory.open(filepath.Join(t.TempDir(), "db"))
			if err != nil {
				t.Fatalf("failed to open engine: %v", err)
			}
			defer func() {
				if err := engine.Close(); err != nil {
					t.Errorf("failed to close engine: %v", err)
				}
			}()
			test(t, factory, engine)
		})
	}
}

func write(t *testing.T, engine backend.Engine, fill func(b *backend.Batch)) {
	t.Helper()
	batch := backend.NewBatch()
	fill(batch)
	if err := engine.Write(batch); err != nil {
		t.Fatalf("failed to write batch: %v", err)
	}
}

func collect(t *testing.T, reader backend.Reader, space backend.Space, prefix []byte) []string {
	t.Helper()
	iter, err := reader.NewIterator(space, prefix)
	if err != nil {
		t.Fatalf("failed to create iterator: %v", err)
	}
	defer iter.Release()
	res := []string{}
	for iter.Next() {
		res = append(res, string(iter.Key())+"="+string(iter.Value()))
	}
	if err := iter.Error(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	return res
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEngine_MissingKeyIsNotAnError(t *testing.T) {
	forEachEngine(t, func(t *testing.T, _ engineFactory, engine backend.Engine) {
		value, found, err := engine.Get(backend.StateSpace, []byte("missing"))
		if err != nil || found || value != nil {
			t.Errorf("unexpected result for missing key: %v, %t, %v", value, found, err)
		}
	})
}

func TestEngine_SpacesAreIsolated(t *testing.T) {
	forEachEngine(t, func(t *testing.T, _ engineFactory, engine backend.Engine) {
		write(t, engine, func(b *backend.Batch) {
			b.Put(backend.StateSpace, []byte("k"), []byte("state"))
			b.Put(backend.VersioningSpace, []byte("k"), []byte("versioning"))
			b.Put(backend.MetadataSpace, []byte("k"), []byte("metadata"))
		})
		for space, want := range map[backend.Space]string{
			backend.StateSpace:      "state",
			backend.VersioningSpace: "versioning",
			backend.MetadataSpace:   "metadata",
		} {
			value, found, err := engine.Get(space, []byte("k"))
			if err != nil || !found || string(value) != want {
				t.Errorf("unexpected value in %v: %q, %t, %v", space, value, found, err)
			}
			if got := collect(t, engine, space, nil); !equal(got, []string{"k=" + want}) {
				t.Errorf("unexpected content of %v: %v", space, got)
			}
		}
	})
}

func TestEngine_BatchAppliesPutsAndDeletes(t *testing.T) {
	forEachEngine(t, func(t *testing.T, _ engineFactory, engine backend.Engine) {
		write(t, engine, func(b *backend.Batch) {
			b.Put(backend.StateSpace, []byte("a"), []byte("1"))
			b.Put(backend.StateSpace, []byte("b"), []byte("2"))
		})
		write(t, engine, func(b *backend.Batch) {
			b.Delete(backend.StateSpace, []byte("a"))
			b.Put(backend.StateSpace, []byte("c"), []byte("3"))
		})
		if got, want := collect(t, engine, backend.StateSpace, nil), []string{"b=2", "c=3"}; !equal(got, want) {
			t.Errorf("unexpected content, wanted %v, got %v", want, got)
		}
	})
}

func TestEngine_PrefixIteration(t *testing.T) {
	forEachEngine(t, func(t *testing.T, _ engineFactory, engine backend.Engine) {
		write(t, engine, func(b *backend.Batch) {
			b.Put(backend.StateSpace, []byte("orders/1"), []byte("x"))
			b.Put(backend.StateSpace, []byte("orders/2"), []byte("y"))
			b.Put(backend.StateSpace, []byte("ordersX"), []byte("z"))
			b.Put(backend.StateSpace, []byte("users/1"), []byte("u"))
			b.Put(backend.VersioningSpace, []byte("orders/3"), []byte("v"))
		})
		got := collect(t, engine, backend.StateSpace, []byte("orders/"))
		if want := []string{"orders/1=x", "orders/2=y"}; !equal(got, want) {
			t.Errorf("unexpected prefix content, wanted %v, got %v", want, got)
		}
	})
}

func TestEngine_IteratorPositioning(t *testing.T) {
	forEachEngine(t, func(t *testing.T, _ engineFactory, engine backend.Engine) {
		write(t, engine, func(b *backend.Batch) {
			for _, key := range []string{"b", "d", "f"} {
				b.Put(backend.StateSpace, []byte(key), []byte(key))
			}
		})
		iter, err := engine.NewIterator(backend.StateSpace, nil)
		if err != nil {
			t.Fatalf("failed to create iterator: %v", err)
		}
		defer iter.Release()

		tests := []struct {
			seek    string
			seekKey string // empty if none
			prevKey string // result of SeekForPrev, empty if none
		}{
			{"a", "b", ""},
			{"b", "b", "b"},
			{"c", "d", "b"},
			{"f", "f", "f"},
			{"g", "", "f"},
		}
		for _, test := range tests {
			found := iter.Seek([]byte(test.seek))
			if found != (test.seekKey != "") || (found && string(iter.Key()) != test.seekKey) {
				t.Errorf("unexpected seek result for %q: %t", test.seek, found)
			}
			found = backend.SeekForPrev(iter, []byte(test.seek))
			if found != (test.prevKey != "") || (found && string(iter.Key()) != test.prevKey) {
				t.Errorf("unexpected seek-for-prev result for %q: %t", test.seek, found)
			}
		}
		if !iter.Last() || string(iter.Key()) != "f" {
			t.Errorf("failed to position at last key")
		}
		if !iter.First() || string(iter.Key()) != "b" {
			t.Errorf("failed to position at first key")
		}
	})
}

func TestEngine_SnapshotIsFrozen(t *testing.T) {
	forEachEngine(t, func(t *testing.T, _ engineFactory, engine backend.Engine) {
		write(t, engine, func(b *backend.Batch) {
			b.Put(backend.StateSpace, []byte("k"), []byte("old"))
		})
		snapshot, err := engine.GetSnapshot()
		if err != nil {
			t.Fatalf("failed to create snapshot: %v", err)
		}
		defer snapshot.Release()
		write(t, engine, func(b *backend.Batch) {
			b.Put(backend.StateSpace, []byte("k"), []byte("new"))
			b.Put(backend.StateSpace, []byte("l"), []byte("added"))
		})

		value, _, err := snapshot.Get(backend.StateSpace, []byte("k"))
		if err != nil || !bytes.Equal(value, []byte("old")) {
			t.Errorf("snapshot observed a later write: %q, %v", value, err)
		}
		if got, want := collect(t, snapshot, backend.StateSpace, nil), []string{"k=old"}; !equal(got, want) {
			t.Errorf("unexpected snapshot content, wanted %v, got %v", want, got)
		}
	})
}

func TestEngine_CheckpointCopiesContent(t *testing.T) {
	forEachEngine(t, func(t *testing.T, factory engineFactory, engine backend.Engine) {
		write(t, engine, func(b *backend.Batch) {
			b.Put(backend.StateSpace, []byte("k"), []byte("v"))
			b.Put(backend.MetadataSpace, []byte("m"), []byte("w"))
		})
		directory := filepath.Join(t.TempDir(), "checkpoint")
		if err := engine.Checkpoint(directory); err != nil {
			t.Fatalf("failed to create checkpoint: %v", err)
		}
		if err := engine.Checkpoint(directory); err == nil {
			t.Errorf("creating a checkpoint in an existing directory should fail")
		}

		// Later writes do not affect the checkpoint.
		write(t, engine, func(b *backend.Batch) {
			b.Put(backend.StateSpace, []byte("k"), []byte("changed"))
		})

		copy, err := factory.open(directory)
		if err != nil {
			t.Fatalf("failed to open checkpoint: %v", err)
		}
		defer copy.Close()
		if got, want := collect(t, copy, backend.StateSpace, nil), []string{"k=v"}; !equal(got, want) {
			t.Errorf("unexpected checkpoint content, wanted %v, got %v", want, got)
		}
		if got, want := collect(t, copy, backend.MetadataSpace, nil), []string{"m=w"}; !equal(got, want) {
			t.Errorf("unexpected checkpoint metadata, wanted %v, got %v", want, got)
		}
	})
}
