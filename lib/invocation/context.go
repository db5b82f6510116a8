package invocation

import (
	"time"

	"github.com/ValentinKolb/tKV/lib/container"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// Context is the invocation context of one command execution.
type Context struct {
	originLocal bool
	origin      topology.Address
	entries     map[string]*container.MVCCEntry
}

// NewLocalContext creates the context of a command started on this node.
func NewLocalContext(local topology.Address) *Context {
	return &Context{originLocal: true, origin: local, entries: make(map[string]*container.MVCCEntry)}
}

// NewRemoteContext creates the context of a command received from origin.
func NewRemoteContext(origin topology.Address) *Context {
	return &Context{origin: origin, entries: make(map[string]*container.MVCCEntry)}
}

func (c *Context) IsOriginLocal() bool {
	return c.originLocal
}

func (c *Context) Origin() topology.Address {
	return c.origin
}

func (c *Context) LookupEntry(key string) *container.MVCCEntry {
	return c.entries[key]
}

// Entries returns the wrapped entries by key.
func (c *Context) Entries() map[string]*container.MVCCEntry {
	return c.entries
}

// wrap copies the entry of key into the context. Unless expired is set, an
// expired entry is wrapped as absent, as Pipeline.Read sees it, but keeps its
// version.
func (c *Context) wrap(dc *container.DataContainer, key string, expired bool) {
	if _, ok := c.entries[key]; ok {
		return
	}
	e := dc.Get(key)
	if !expired && e != nil && e.Metadata.IsExpired(time.Now().UnixMilli()) {
		absent := container.Wrap(key, nil)
		absent.SetInternal(e.Internal)
		c.entries[key] = absent
		return
	}
	c.entries[key] = container.Wrap(key, e)
}
