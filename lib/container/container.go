package container

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// DataContainer stores the entries of one node.
type DataContainer struct {
	data *xsync.MapOf[string, *Entry]
}

func NewDataContainer() *DataContainer {
	return &DataContainer{data: xsync.NewMapOf[string, *Entry]()}
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the entry of key or nil.
func (dc *DataContainer) Get(key string) *Entry {
	e, ok := dc.data.Load(key)
	if !ok {
		return nil
	}
	return e
}

// Peek returns the value of key and whether it was found.
func (dc *DataContainer) Peek(key string) ([]byte, bool) {
	e := dc.Get(key)
	if e == nil {
		return nil, false
	}
	return e.Value, true
}

// Size returns the number of entries.
func (dc *DataContainer) Size() int {
	return dc.data.Size()
}

// Keys returns all keys in sorted order.
func (dc *DataContainer) Keys() []string {
	keys := make([]string, 0, dc.data.Size())
	dc.data.Range(func(key string, _ *Entry) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}

// Range calls fn for every entry until fn returns false.
func (dc *DataContainer) Range(fn func(key string, e *Entry) bool) {
	dc.data.Range(fn)
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put stores e under key. Entries with an older version than the stored one
// are ignored, so a delayed backup write can never roll an entry back.
func (dc *DataContainer) Put(key string, e *Entry) {
	dc.data.Compute(key, func(old *Entry, loaded bool) (*Entry, bool) {
		if loaded && old.Internal.Version > e.Internal.Version {
			return old, false
		}
		return e, false
	})
}

// Remove deletes key.
func (dc *DataContainer) Remove(key string) {
	dc.data.Delete(key)
}

// Clear removes all entries.
func (dc *DataContainer) Clear() {
	dc.data.Clear()
}
