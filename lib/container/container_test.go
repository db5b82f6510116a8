package container

import (
	"sync"
	"testing"
	"time"
)

func TestMVCCEntryCommit(t *testing.T) {
	dc := NewDataContainer()

	tests := []struct {
		name    string
		prepare func()
		mutate  func(e *MVCCEntry)
		want    []byte
		found   bool
	}{
		{
			name:   "create",
			mutate: func(e *MVCCEntry) { e.SetValue([]byte("v1")); e.SetInternal(InternalMetadata{Version: 1}) },
			want:   []byte("v1"),
			found:  true,
		},
		{
			name:   "read only is not committed",
			mutate: func(e *MVCCEntry) { _ = e.Value() },
			want:   []byte("v1"),
			found:  true,
		},
		{
			name:   "overwrite",
			mutate: func(e *MVCCEntry) { e.SetValue([]byte("v2")); e.SetInternal(e.Internal().Next()) },
			want:   []byte("v2"),
			found:  true,
		},
		{
			name:   "remove",
			mutate: func(e *MVCCEntry) { e.Remove() },
			found:  false,
		},
		{
			name:   "nil value removes",
			mutate: func(e *MVCCEntry) { e.SetValue([]byte("x")); e.SetValue(nil) },
			found:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Wrap("k", dc.Get("k"))
			tt.mutate(e)
			e.Commit(dc)

			got, found := dc.Peek("k")
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if string(got) != string(tt.want) {
				t.Errorf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapMissing(t *testing.T) {
	e := Wrap("missing", nil)
	if e.Exists() || e.Existed() || e.IsChanged() {
		t.Errorf("wrapped missing entry must be empty and unchanged")
	}
	if e.Metadata().Lifespan != Immortal {
		t.Errorf("default lifespan = %d", e.Metadata().Lifespan)
	}
}

func TestPutIgnoresOlderVersion(t *testing.T) {
	dc := NewDataContainer()
	dc.Put("k", &Entry{Value: []byte("new"), Internal: InternalMetadata{Version: 5}})
	dc.Put("k", &Entry{Value: []byte("old"), Internal: InternalMetadata{Version: 4}})

	if v, _ := dc.Peek("k"); string(v) != "new" {
		t.Errorf("older version overwrote newer one: %q", v)
	}
	dc.Put("k", &Entry{Value: []byte("newer"), Internal: InternalMetadata{Version: 6}})
	if v, _ := dc.Peek("k"); string(v) != "newer" {
		t.Errorf("newer version not stored: %q", v)
	}
}

func TestMetadataExpired(t *testing.T) {
	m := NewMetadata(time.Second)
	if m.IsExpired(m.Created) {
		t.Errorf("fresh entry must not be expired")
	}
	if !m.IsExpired(m.Created + 1000) {
		t.Errorf("entry must be expired after its lifespan")
	}
	if NewMetadata(0).IsExpired(1 << 62) {
		t.Errorf("immortal entry must never expire")
	}
}

func TestConcurrentPut(t *testing.T) {
	dc := NewDataContainer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for v := uint64(1); v <= 100; v++ {
				dc.Put("k", &Entry{Value: []byte{byte(i)}, Internal: InternalMetadata{Version: v}})
			}
		}(i)
	}
	wg.Wait()

	if e := dc.Get("k"); e == nil || e.Internal.Version != 100 {
		t.Errorf("final version = %v, want 100", e)
	}
	if keys := dc.Keys(); len(keys) != 1 || keys[0] != "k" {
		t.Errorf("Keys() = %v", keys)
	}
}
