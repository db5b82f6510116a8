package container

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

// Immortal is the lifespan of entries that never expire.
const Immortal int64 = -1

// Metadata holds the user visible metadata of an entry.
type Metadata struct {
	Lifespan int64 // lifespan in milliseconds, Immortal if the entry never expires
	Created  int64 // creation time in unix milliseconds
}

// NewMetadata creates metadata for an entry created now.
func NewMetadata(lifespan time.Duration) Metadata {
	m := Metadata{Lifespan: Immortal, Created: time.Now().UnixMilli()}
	if lifespan > 0 {
		m.Lifespan = lifespan.Milliseconds()
	}
	return m
}

// IsExpired reports whether the entry is expired at now (unix milliseconds).
func (m Metadata) IsExpired(now int64) bool {
	return m.Lifespan >= 0 && now >= m.Created+m.Lifespan
}

// InternalMetadata is the replication bookkeeping of an entry.
type InternalMetadata struct {
	Version uint64
}

// Next returns the metadata of the following version.
func (m InternalMetadata) Next() InternalMetadata {
	return InternalMetadata{Version: m.Version + 1}
}

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Entry is an immutable snapshot of a stored value.
type Entry struct {
	Value    []byte
	Metadata Metadata
	Internal InternalMetadata
}

func (e *Entry) String() string {
	return fmt.Sprintf("Entry{Value: %q, Lifespan: %d, Version: %d}", e.Value, e.Metadata.Lifespan, e.Internal.Version)
}

// --------------------------------------------------------------------------
// MVCC Entry
// --------------------------------------------------------------------------

// MVCCEntry is a private, mutable copy of an entry used while a command runs.
// It is not safe for concurrent use.
type MVCCEntry struct {
	key      string
	value    []byte
	metadata Metadata
	internal InternalMetadata
	existed  bool
	changed  bool
	removed  bool
}

// Wrap creates a mutable copy of e (nil if the key does not exist).
func Wrap(key string, e *Entry) *MVCCEntry {
	m := &MVCCEntry{key: key, metadata: Metadata{Lifespan: Immortal}}
	if e != nil {
		m.value = e.Value
		m.metadata = e.Metadata
		m.internal = e.Internal
		m.existed = true
	}
	return m
}

func (m *MVCCEntry) Key() string {
	return m.key
}

// Value returns the current value, nil if the entry does not exist.
func (m *MVCCEntry) Value() []byte {
	if m.removed {
		return nil
	}
	return m.value
}

// Exists reports whether the entry has a value.
func (m *MVCCEntry) Exists() bool {
	return !m.removed && m.value != nil
}

// SetValue sets the value. A nil value removes the entry.
func (m *MVCCEntry) SetValue(value []byte) {
	if value == nil {
		m.Remove()
		return
	}
	if !m.Exists() {
		m.metadata.Created = time.Now().UnixMilli()
	}
	m.value = value
	m.removed = false
	m.changed = true
}

// Remove marks the entry as removed.
func (m *MVCCEntry) Remove() {
	m.value = nil
	m.removed = true
	m.changed = true
}

func (m *MVCCEntry) Metadata() Metadata {
	return m.metadata
}

func (m *MVCCEntry) SetMetadata(md Metadata) {
	m.metadata = md
	m.changed = true
}

func (m *MVCCEntry) Internal() InternalMetadata {
	return m.internal
}

func (m *MVCCEntry) SetInternal(im InternalMetadata) {
	m.internal = im
}

// IsChanged reports whether the entry must be committed.
func (m *MVCCEntry) IsChanged() bool {
	return m.changed
}

func (m *MVCCEntry) IsRemoved() bool {
	return m.removed
}

// Existed reports whether the key was present when the entry was wrapped.
func (m *MVCCEntry) Existed() bool {
	return m.existed
}

// Commit writes the entry back into dc. Unchanged entries are skipped.
func (m *MVCCEntry) Commit(dc *DataContainer) {
	if !m.changed {
		return
	}
	if m.removed {
		dc.Remove(m.key)
		return
	}
	dc.Put(m.key, &Entry{Value: m.value, Metadata: m.metadata, Internal: m.internal})
}
