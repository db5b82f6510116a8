package commands

import (
	"github.com/ValentinKolb/tKV/lib/codec"
	"github.com/ValentinKolb/tKV/lib/container"
	"github.com/ValentinKolb/tKV/lib/matcher"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// --------------------------------------------------------------------------
// Put Map
// --------------------------------------------------------------------------

// PutMapCommand stores several values at once.
type PutMapCommand struct {
	multiWrite
	entries   map[string][]byte
	metadata  container.Metadata
	forwarded bool
}

func NewPutMapCommand(id InvocationID, entries map[string][]byte, md container.Metadata, flags Flags) *PutMapCommand {
	return &PutMapCommand{
		multiWrite: multiWrite{baseWrite: newBaseWrite(id, flags, matcher.MatchAlways)},
		entries:    entries,
		metadata:   md,
	}
}

func (c *PutMapCommand) Entries() map[string][]byte { return c.entries }
func (c *PutMapCommand) Metadata() container.Metadata { return c.metadata }
func (c *PutMapCommand) AffectedKeys() []string { return sortedKeys(c.entries) }
func (c *PutMapCommand) IsConditional() bool { return false }
func (c *PutMapCommand) CommandID() CommandType { return TypePutMap }

// IsForwarded reports whether the command was forwarded by a primary owner to
// its backups.
func (c *PutMapCommand) IsForwarded() bool { return c.forwarded }
func (c *PutMapCommand) SetForwarded(f bool) { c.forwarded = f }

func (c *PutMapCommand) LoadType() LoadType {
	if c.IsReturnValueExpected() {
		return Primary
	}
	return DontLoad
}

func (c *PutMapCommand) Subset(keys []string) MultiKeyWriteCommand {
	cp := &PutMapCommand{
		multiWrite: c.multiWrite.subset(keys),
		entries:    make(map[string][]byte, len(keys)),
		metadata:   c.metadata,
		forwarded:  c.forwarded,
	}
	for _, k := range keys {
		if v, ok := c.entries[k]; ok {
			cp.entries[k] = v
		}
	}
	return cp
}

// Perform returns the previous values if return values are expected.
func (c *PutMapCommand) Perform(ctx InvocationContext) (interface{}, error) {
	var previous map[string][]byte
	if c.IsReturnValueExpected() {
		previous = make(map[string][]byte, len(c.entries))
	}
	for _, key := range sortedKeys(c.entries) {
		e, err := lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		prev := e.Value()
		if !c.matcher.Matches(prev, nil, c.entries[key]) {
			continue
		}
		if previous != nil && prev != nil {
			previous[key] = prev
		}
		e.SetValue(c.entries[key])
		e.SetMetadata(c.metadata)
		c.stamp(e)
	}
	if previous == nil {
		return nil, nil
	}
	return previous, nil
}

func (c *PutMapCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitPutMap(origin, c)
}

func (c *PutMapCommand) WriteTo(enc *codec.Encoder) {
	c.writeMulti(enc)
	enc.WriteBytesMap(c.entries)
	writeMetadata(enc, c.metadata)
	enc.WriteBool(c.forwarded)
}

func (c *PutMapCommand) ReadFrom(dec *codec.Decoder) error {
	c.readMulti(dec)
	c.entries = dec.ReadBytesMap()
	c.metadata = readMetadata(dec)
	c.forwarded = dec.ReadBool()
	return dec.Err()
}

// --------------------------------------------------------------------------
// Functional Many Keys
// --------------------------------------------------------------------------

// ReadWriteManyCommand applies one entry function with one argument to many
// keys and returns the per key results.
type ReadWriteManyCommand struct {
	multiWrite
	keys     []string
	function string
	arg      []byte
}

func NewReadWriteManyCommand(id InvocationID, keys []string, function string, arg []byte, flags Flags) *ReadWriteManyCommand {
	return &ReadWriteManyCommand{
		multiWrite: multiWrite{baseWrite: newBaseWrite(id, flags, matcher.MatchAlways)},
		keys:       keys,
		function:   function,
		arg:        arg,
	}
}

func (c *ReadWriteManyCommand) Function() string { return c.function }
func (c *ReadWriteManyCommand) Arg() []byte { return c.arg }
func (c *ReadWriteManyCommand) AffectedKeys() []string { return c.keys }
func (c *ReadWriteManyCommand) IsConditional() bool { return false }
func (c *ReadWriteManyCommand) LoadType() LoadType { return Owner }
func (c *ReadWriteManyCommand) CommandID() CommandType { return TypeReadWriteMany }

func (c *ReadWriteManyCommand) Subset(keys []string) MultiKeyWriteCommand {
	return &ReadWriteManyCommand{multiWrite: c.multiWrite.subset(keys), keys: keys, function: c.function, arg: c.arg}
}

func (c *ReadWriteManyCommand) Perform(ctx InvocationContext) (interface{}, error) {
	return performMany(ctx, c.keys, c.function, func(string) []byte { return c.arg }, true, c.stamp)
}

func (c *ReadWriteManyCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitReadWriteMany(origin, c)
}

func (c *ReadWriteManyCommand) WriteTo(enc *codec.Encoder) {
	c.writeMulti(enc)
	enc.WriteStrings(c.keys)
	enc.WriteString(c.function)
	enc.WriteBytes(c.arg)
}

func (c *ReadWriteManyCommand) ReadFrom(dec *codec.Decoder) error {
	c.readMulti(dec)
	c.keys = dec.ReadStrings()
	c.function = dec.ReadString()
	c.arg = dec.ReadBytes()
	return dec.Err()
}

// WriteOnlyManyCommand applies one entry function with one argument to many
// keys. It returns nothing.
type WriteOnlyManyCommand struct {
	multiWrite
	keys     []string
	function string
	arg      []byte
}

func NewWriteOnlyManyCommand(id InvocationID, keys []string, function string, arg []byte, flags Flags) *WriteOnlyManyCommand {
	return &WriteOnlyManyCommand{
		multiWrite: multiWrite{baseWrite: newBaseWrite(id, flags, matcher.MatchAlways)},
		keys:       keys,
		function:   function,
		arg:        arg,
	}
}

func (c *WriteOnlyManyCommand) Function() string { return c.function }
func (c *WriteOnlyManyCommand) Arg() []byte { return c.arg }
func (c *WriteOnlyManyCommand) AffectedKeys() []string { return c.keys }
func (c *WriteOnlyManyCommand) IsConditional() bool { return false }
func (c *WriteOnlyManyCommand) LoadType() LoadType { return DontLoad }
func (c *WriteOnlyManyCommand) IsReturnValueExpected() bool { return false }
func (c *WriteOnlyManyCommand) CommandID() CommandType { return TypeWriteOnlyMany }

func (c *WriteOnlyManyCommand) Subset(keys []string) MultiKeyWriteCommand {
	return &WriteOnlyManyCommand{multiWrite: c.multiWrite.subset(keys), keys: keys, function: c.function, arg: c.arg}
}

func (c *WriteOnlyManyCommand) Perform(ctx InvocationContext) (interface{}, error) {
	_, err := performMany(ctx, c.keys, c.function, func(string) []byte { return c.arg }, false, c.stamp)
	return nil, err
}

func (c *WriteOnlyManyCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitWriteOnlyMany(origin, c)
}

func (c *WriteOnlyManyCommand) WriteTo(enc *codec.Encoder) {
	c.writeMulti(enc)
	enc.WriteStrings(c.keys)
	enc.WriteString(c.function)
	enc.WriteBytes(c.arg)
}

func (c *WriteOnlyManyCommand) ReadFrom(dec *codec.Decoder) error {
	c.readMulti(dec)
	c.keys = dec.ReadStrings()
	c.function = dec.ReadString()
	c.arg = dec.ReadBytes()
	return dec.Err()
}

// ReadWriteManyEntriesCommand applies one entry function to many keys, every
// key with its own argument, and returns the per key results.
type ReadWriteManyEntriesCommand struct {
	multiWrite
	entries  map[string][]byte
	function string
}

func NewReadWriteManyEntriesCommand(id InvocationID, entries map[string][]byte, function string, flags Flags) *ReadWriteManyEntriesCommand {
	return &ReadWriteManyEntriesCommand{
		multiWrite: multiWrite{baseWrite: newBaseWrite(id, flags, matcher.MatchAlways)},
		entries:    entries,
		function:   function,
	}
}

func (c *ReadWriteManyEntriesCommand) Function() string { return c.function }
func (c *ReadWriteManyEntriesCommand) Entries() map[string][]byte { return c.entries }
func (c *ReadWriteManyEntriesCommand) AffectedKeys() []string { return sortedKeys(c.entries) }
func (c *ReadWriteManyEntriesCommand) IsConditional() bool { return false }
func (c *ReadWriteManyEntriesCommand) LoadType() LoadType { return Owner }
func (c *ReadWriteManyEntriesCommand) CommandID() CommandType { return TypeReadWriteManyEntries }

func (c *ReadWriteManyEntriesCommand) Subset(keys []string) MultiKeyWriteCommand {
	return &ReadWriteManyEntriesCommand{multiWrite: c.multiWrite.subset(keys), entries: subsetMap(c.entries, keys), function: c.function}
}

func (c *ReadWriteManyEntriesCommand) Perform(ctx InvocationContext) (interface{}, error) {
	return performMany(ctx, sortedKeys(c.entries), c.function, func(k string) []byte { return c.entries[k] }, true, c.stamp)
}

func (c *ReadWriteManyEntriesCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitReadWriteManyEntries(origin, c)
}

func (c *ReadWriteManyEntriesCommand) WriteTo(enc *codec.Encoder) {
	c.writeMulti(enc)
	enc.WriteBytesMap(c.entries)
	enc.WriteString(c.function)
}

func (c *ReadWriteManyEntriesCommand) ReadFrom(dec *codec.Decoder) error {
	c.readMulti(dec)
	c.entries = dec.ReadBytesMap()
	c.function = dec.ReadString()
	return dec.Err()
}

// WriteOnlyManyEntriesCommand applies one entry function to many keys, every
// key with its own argument. It returns nothing.
type WriteOnlyManyEntriesCommand struct {
	multiWrite
	entries  map[string][]byte
	function string
}

func NewWriteOnlyManyEntriesCommand(id InvocationID, entries map[string][]byte, function string, flags Flags) *WriteOnlyManyEntriesCommand {
	return &WriteOnlyManyEntriesCommand{
		multiWrite: multiWrite{baseWrite: newBaseWrite(id, flags, matcher.MatchAlways)},
		entries:    entries,
		function:   function,
	}
}

func (c *WriteOnlyManyEntriesCommand) Function() string { return c.function }
func (c *WriteOnlyManyEntriesCommand) Entries() map[string][]byte { return c.entries }
func (c *WriteOnlyManyEntriesCommand) AffectedKeys() []string { return sortedKeys(c.entries) }
func (c *WriteOnlyManyEntriesCommand) IsConditional() bool { return false }
func (c *WriteOnlyManyEntriesCommand) LoadType() LoadType { return DontLoad }
func (c *WriteOnlyManyEntriesCommand) IsReturnValueExpected() bool { return false }
func (c *WriteOnlyManyEntriesCommand) CommandID() CommandType { return TypeWriteOnlyManyEntries }

func (c *WriteOnlyManyEntriesCommand) Subset(keys []string) MultiKeyWriteCommand {
	return &WriteOnlyManyEntriesCommand{multiWrite: c.multiWrite.subset(keys), entries: subsetMap(c.entries, keys), function: c.function}
}

func (c *WriteOnlyManyEntriesCommand) Perform(ctx InvocationContext) (interface{}, error) {
	_, err := performMany(ctx, sortedKeys(c.entries), c.function, func(k string) []byte { return c.entries[k] }, false, c.stamp)
	return nil, err
}

func (c *WriteOnlyManyEntriesCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitWriteOnlyManyEntries(origin, c)
}

func (c *WriteOnlyManyEntriesCommand) WriteTo(enc *codec.Encoder) {
	c.writeMulti(enc)
	enc.WriteBytesMap(c.entries)
	enc.WriteString(c.function)
}

func (c *WriteOnlyManyEntriesCommand) ReadFrom(dec *codec.Decoder) error {
	c.readMulti(dec)
	c.entries = dec.ReadBytesMap()
	c.function = dec.ReadString()
	return dec.Err()
}

// performMany runs an entry function for every key and collects the non nil
// results.
func performMany(ctx InvocationContext, keys []string, function string, argOf func(string) []byte, readable bool, stamp func(*container.MVCCEntry)) (interface{}, error) {
	results := make(map[string][]byte)
	for _, key := range keys {
		r, err := performEntryFunction(ctx, key, function, argOf(key), readable, stamp)
		if err != nil {
			return nil, err
		}
		if b, ok := r.([]byte); ok {
			results[key] = b
		}
	}
	return results, nil
}
