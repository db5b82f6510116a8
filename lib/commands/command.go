package commands

import (
	"fmt"

	"github.com/ValentinKolb/tKV/lib/codec"
	"github.com/ValentinKolb/tKV/lib/container"
	"github.com/ValentinKolb/tKV/lib/matcher"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// --------------------------------------------------------------------------
// Interfaces
// --------------------------------------------------------------------------

// ReplicableCommand is a command that can be sent to another node.
type ReplicableCommand interface {
	// CommandID returns the type tag of the command.
	CommandID() CommandType

	// WriteTo encodes the command (without its type tag).
	WriteTo(enc *codec.Encoder)

	// ReadFrom decodes the command (without its type tag).
	ReadFrom(dec *codec.Decoder) error

	// Accept dispatches the command to the matching visitor method.
	Accept(origin topology.Address, v Visitor) error
}

// InvocationContext is the context a write command is performed in. It is
// implemented by the invocation pipeline.
type InvocationContext interface {
	// IsOriginLocal reports whether the command was started on this node.
	IsOriginLocal() bool

	// Origin returns the node that sent the command.
	Origin() topology.Address

	// LookupEntry returns the wrapped entry of key. Keys not affected by the
	// command return nil.
	LookupEntry(key string) *container.MVCCEntry
}

// WriteCommand is a mutation of one or more keys.
type WriteCommand interface {
	ReplicableCommand

	InvocationID() InvocationID
	Flags() Flags
	SetFlags(f Flags)
	TopologyID() int
	SetTopologyID(id int)

	// ValueMatcher returns the policy deciding whether the write applies.
	ValueMatcher() matcher.ValueMatcher
	SetValueMatcher(m matcher.ValueMatcher)

	// IsSuccessful reports the outcome of the last Perform.
	IsSuccessful() bool
	// Fail marks the command as not applied. It is never undone by Perform.
	Fail()

	// IsConditional reports whether the outcome depends on the previous value.
	IsConditional() bool
	LoadType() LoadType
	IsReturnValueExpected() bool

	// AffectedKeys returns the keys the command writes.
	AffectedKeys() []string

	// InternalMetadata returns the replication metadata assigned to key by
	// the primary owner, nil if none has been assigned yet.
	InternalMetadata(key string) *container.InternalMetadata
	SetInternalMetadata(key string, md container.InternalMetadata)

	// Perform executes the command against the entries of ctx.
	Perform(ctx InvocationContext) (interface{}, error)

	// Retry prepares the command for another attempt under topologyID: the
	// matcher is replaced by its retry matcher, the outcome is reset and the
	// command is flagged as retry. All of it happens in one step.
	Retry(topologyID int)
}

// DataWriteCommand is a write of a single key.
type DataWriteCommand interface {
	WriteCommand
	Key() string
	Segment() int
}

// MultiKeyWriteCommand is a write of several keys.
type MultiKeyWriteCommand interface {
	WriteCommand

	// Subset returns a copy of the command restricted to keys. The copy shares
	// invocation id, flags, matcher and topology id.
	Subset(keys []string) MultiKeyWriteCommand
}

// --------------------------------------------------------------------------
// Visitor
// --------------------------------------------------------------------------

// Visitor has one method per command type. origin is the sender of the command.
type Visitor interface {
	VisitPutKeyValue(origin topology.Address, cmd *PutKeyValueCommand) error
	VisitRemove(origin topology.Address, cmd *RemoveCommand) error
	VisitRemoveExpired(origin topology.Address, cmd *RemoveExpiredCommand) error
	VisitReplace(origin topology.Address, cmd *ReplaceCommand) error
	VisitCompute(origin topology.Address, cmd *ComputeCommand) error
	VisitComputeIfAbsent(origin topology.Address, cmd *ComputeIfAbsentCommand) error
	VisitReadWriteKey(origin topology.Address, cmd *ReadWriteKeyCommand) error
	VisitWriteOnlyKey(origin topology.Address, cmd *WriteOnlyKeyCommand) error
	VisitPutMap(origin topology.Address, cmd *PutMapCommand) error
	VisitReadWriteMany(origin topology.Address, cmd *ReadWriteManyCommand) error
	VisitReadWriteManyEntries(origin topology.Address, cmd *ReadWriteManyEntriesCommand) error
	VisitWriteOnlyMany(origin topology.Address, cmd *WriteOnlyManyCommand) error
	VisitWriteOnlyManyEntries(origin topology.Address, cmd *WriteOnlyManyEntriesCommand) error
	VisitGetKeyValue(origin topology.Address, cmd *GetKeyValueCommand) error

	VisitBackupWrite(origin topology.Address, cmd *BackupWriteCommand) error
	VisitBackupMultiKeyWrite(origin topology.Address, cmd *BackupMultiKeyWriteCommand) error

	VisitPrimaryAck(origin topology.Address, cmd *PrimaryAckCommand) error
	VisitPrimaryMultiKeyAck(origin topology.Address, cmd *PrimaryMultiKeyAckCommand) error
	VisitBackupAck(origin topology.Address, cmd *BackupAckCommand) error
	VisitBackupMultiKeyAck(origin topology.Address, cmd *BackupMultiKeyAckCommand) error
	VisitExceptionAck(origin topology.Address, cmd *ExceptionAckCommand) error
}

// --------------------------------------------------------------------------
// Base Write Command
// --------------------------------------------------------------------------

// baseWrite holds the state shared by all write commands.
type baseWrite struct {
	id         InvocationID
	flags      Flags
	topologyID int
	matcher    matcher.ValueMatcher
	successful bool
}

func newBaseWrite(id InvocationID, flags Flags, m matcher.ValueMatcher) baseWrite {
	return baseWrite{id: id, flags: flags, topologyID: topology.NoTopology, matcher: m, successful: true}
}

func (c *baseWrite) InvocationID() InvocationID {
	return c.id
}

func (c *baseWrite) Flags() Flags {
	return c.flags
}

func (c *baseWrite) SetFlags(f Flags) {
	c.flags = f
}

func (c *baseWrite) TopologyID() int {
	return c.topologyID
}

func (c *baseWrite) SetTopologyID(id int) {
	c.topologyID = id
}

func (c *baseWrite) ValueMatcher() matcher.ValueMatcher {
	return c.matcher
}

func (c *baseWrite) SetValueMatcher(m matcher.ValueMatcher) {
	c.matcher = m
}

func (c *baseWrite) IsSuccessful() bool {
	return c.successful
}

func (c *baseWrite) Fail() {
	c.successful = false
}

func (c *baseWrite) IsReturnValueExpected() bool {
	return !c.flags.Has(IgnoreReturnValues)
}

func (c *baseWrite) retry(topologyID int) {
	c.matcher = c.matcher.MatcherForRetry()
	c.successful = true
	c.topologyID = topologyID
	c.flags = c.flags.With(CommandRetry)
}

func (c *baseWrite) writeBase(enc *codec.Encoder) {
	c.id.writeTo(enc)
	enc.WriteUint64(uint64(c.flags))
	enc.WriteInt32(int32(c.topologyID))
	enc.WriteUint8(uint8(c.matcher))
}

func (c *baseWrite) readBase(dec *codec.Decoder) {
	c.id = readInvocationID(dec)
	c.flags = Flags(dec.ReadUint64())
	c.topologyID = int(dec.ReadInt32())
	c.matcher = matcher.ValueMatcher(dec.ReadUint8())
	c.successful = true
	if dec.Err() == nil && !c.matcher.Valid() {
		dec.Fail(errInvalidMatcher(c.matcher))
	}
}

// --------------------------------------------------------------------------
// Single Key Base
// --------------------------------------------------------------------------

// dataWrite is the base of single key write commands.
type dataWrite struct {
	baseWrite
	key      string
	segment  int
	internal *container.InternalMetadata
}

func (c *dataWrite) Key() string {
	return c.key
}

func (c *dataWrite) Segment() int {
	return c.segment
}

func (c *dataWrite) AffectedKeys() []string {
	return []string{c.key}
}

func (c *dataWrite) InternalMetadata(key string) *container.InternalMetadata {
	if key != c.key {
		return nil
	}
	return c.internal
}

func (c *dataWrite) SetInternalMetadata(key string, md container.InternalMetadata) {
	if key == c.key {
		c.internal = &md
	}
}

func (c *dataWrite) Retry(topologyID int) {
	c.retry(topologyID)
	c.internal = nil
}

// stamp assigns the internal metadata of a successful write to entry. Backups
// receive the metadata from the primary, a primary derives the next version.
func (c *dataWrite) stamp(entry *container.MVCCEntry) {
	if c.internal != nil {
		entry.SetInternal(*c.internal)
		return
	}
	next := entry.Internal().Next()
	entry.SetInternal(next)
	c.internal = &next
}

func (c *dataWrite) writeData(enc *codec.Encoder) {
	c.writeBase(enc)
	enc.WriteString(c.key)
	enc.WriteInt32(int32(c.segment))
	writeInternal(enc, c.internal)
}

func (c *dataWrite) readData(dec *codec.Decoder) {
	c.readBase(dec)
	c.key = dec.ReadString()
	c.segment = int(dec.ReadInt32())
	c.internal = readInternal(dec)
}

// --------------------------------------------------------------------------
// Multi Key Base
// --------------------------------------------------------------------------

// multiWrite is the base of multi key write commands.
type multiWrite struct {
	baseWrite
	internal map[string]container.InternalMetadata
}

func (c *multiWrite) InternalMetadata(key string) *container.InternalMetadata {
	md, ok := c.internal[key]
	if !ok {
		return nil
	}
	return &md
}

func (c *multiWrite) SetInternalMetadata(key string, md container.InternalMetadata) {
	if c.internal == nil {
		c.internal = make(map[string]container.InternalMetadata)
	}
	c.internal[key] = md
}

func (c *multiWrite) Retry(topologyID int) {
	c.retry(topologyID)
	c.internal = nil
}

func (c *multiWrite) stamp(entry *container.MVCCEntry) {
	if md := c.InternalMetadata(entry.Key()); md != nil {
		entry.SetInternal(*md)
		return
	}
	next := entry.Internal().Next()
	entry.SetInternal(next)
	c.SetInternalMetadata(entry.Key(), next)
}

// subset copies the base state restricted to keys.
func (c *multiWrite) subset(keys []string) multiWrite {
	cp := multiWrite{baseWrite: c.baseWrite}
	for _, k := range keys {
		if md, ok := c.internal[k]; ok {
			cp.SetInternalMetadata(k, md)
		}
	}
	return cp
}

func (c *multiWrite) writeMulti(enc *codec.Encoder) {
	c.writeBase(enc)
	writeInternalMap(enc, c.internal)
}

func (c *multiWrite) readMulti(dec *codec.Decoder) {
	c.readBase(dec)
	c.internal = readInternalMap(dec)
}

// --------------------------------------------------------------------------
// Encoding Helpers
// --------------------------------------------------------------------------

func writeInternal(enc *codec.Encoder, md *container.InternalMetadata) {
	enc.WriteBool(md != nil)
	if md != nil {
		enc.WriteUint64(md.Version)
	}
}

func readInternal(dec *codec.Decoder) *container.InternalMetadata {
	if !dec.ReadBool() {
		return nil
	}
	return &container.InternalMetadata{Version: dec.ReadUint64()}
}

func writeInternalMap(enc *codec.Encoder, m map[string]container.InternalMetadata) {
	keys := sortedKeys(m)
	enc.WriteUint32(uint32(len(keys)))
	for _, k := range keys {
		enc.WriteString(k)
		enc.WriteUint64(m[k].Version)
	}
}

func readInternalMap(dec *codec.Decoder) map[string]container.InternalMetadata {
	n := int(dec.ReadUint32())
	if n == 0 || dec.Err() != nil {
		return nil
	}
	if n > dec.Remaining() {
		dec.Fail(fmt.Errorf("%w: invalid metadata count %d", codec.ErrShortBuffer, n))
		return nil
	}
	m := make(map[string]container.InternalMetadata, n)
	for i := 0; i < n && dec.Err() == nil; i++ {
		k := dec.ReadString()
		m[k] = container.InternalMetadata{Version: dec.ReadUint64()}
	}
	return m
}

func writeMetadata(enc *codec.Encoder, md container.Metadata) {
	enc.WriteInt64(md.Lifespan)
	enc.WriteInt64(md.Created)
}

func readMetadata(dec *codec.Decoder) container.Metadata {
	return container.Metadata{Lifespan: dec.ReadInt64(), Created: dec.ReadInt64()}
}
