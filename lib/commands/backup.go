package commands

import (
	"fmt"

	"github.com/ValentinKolb/tKV/lib/codec"
	"github.com/ValentinKolb/tKV/lib/container"
	"github.com/ValentinKolb/tKV/lib/matcher"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// backupFlags are added to every write rebuilt on a backup owner: the primary
// already serialized the writes and decided their outcome.
const backupFlags = SkipLocking | IgnoreReturnValues

// backupHeader is shared by the single and multi key backup commands.
type backupHeader struct {
	id         InvocationID
	topologyID int
	flags      Flags
	segment    int
	sequence   uint64
}

func (h *backupHeader) InvocationID() InvocationID { return h.id }
func (h *backupHeader) TopologyID() int { return h.topologyID }
func (h *backupHeader) Flags() Flags { return h.flags }
func (h *backupHeader) Segment() int { return h.segment }

// Sequence is the position of the command in the stream of backup commands
// the primary sends for its segment under its topology.
func (h *backupHeader) Sequence() uint64 { return h.sequence }

func (h *backupHeader) writeHeader(enc *codec.Encoder) {
	h.id.writeTo(enc)
	enc.WriteInt32(int32(h.topologyID))
	enc.WriteUint64(uint64(h.flags))
	enc.WriteInt32(int32(h.segment))
	enc.WriteUint64(h.sequence)
}

func (h *backupHeader) readHeader(dec *codec.Decoder) {
	h.id = readInvocationID(dec)
	h.topologyID = int(dec.ReadInt32())
	h.flags = Flags(dec.ReadUint64())
	h.segment = int(dec.ReadInt32())
	h.sequence = dec.ReadUint64()
}

// --------------------------------------------------------------------------
// Single Key Backup
// --------------------------------------------------------------------------

// BackupOperation is the kind of write a single key backup carries.
type BackupOperation uint8

const (
	BackupWrite BackupOperation = iota
	BackupRemove
	BackupRemoveExpired
	BackupReplace
)

func (o BackupOperation) String() string {
	switch o {
	case BackupWrite:
		return "WRITE"
	case BackupRemove:
		return "REMOVE"
	case BackupRemoveExpired:
		return "REMOVE_EXPIRED"
	case BackupReplace:
		return "REPLACE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(o))
	}
}

// BackupWriteCommand replicates a single key write to a backup owner.
type BackupWriteCommand struct {
	backupHeader
	key       string
	operation BackupOperation
	value     []byte
	metadata  container.Metadata
	lifespan  int64
	internal  container.InternalMetadata
}

// NewBackupWrite creates the backup of cmd after the primary performed it.
// entry is the entry of the key as the primary left it.
func NewBackupWrite(cmd DataWriteCommand, entry *container.MVCCEntry, sequence uint64) *BackupWriteCommand {
	b := &BackupWriteCommand{
		backupHeader: backupHeader{
			id:         cmd.InvocationID(),
			topologyID: cmd.TopologyID(),
			flags:      cmd.Flags(),
			segment:    cmd.Segment(),
			sequence:   sequence,
		},
		key:      cmd.Key(),
		internal: entry.Internal(),
		lifespan: container.Immortal,
	}

	switch c := cmd.(type) {
	case *PutKeyValueCommand:
		b.operation, b.value, b.metadata = BackupWrite, c.value, c.metadata
	case *RemoveCommand:
		b.operation = BackupRemove
	case *RemoveExpiredCommand:
		b.operation, b.value, b.lifespan = BackupRemoveExpired, c.value, c.lifespan
	case *ReplaceCommand:
		b.operation, b.value, b.metadata = BackupReplace, c.newValue, c.metadata
	default:
		b.setState(entry)
	}
	return b
}

// NewBackupWriteOfState creates a backup that replicates the current state of
// entry, whatever command produced it.
func NewBackupWriteOfState(cmd DataWriteCommand, entry *container.MVCCEntry, sequence uint64) *BackupWriteCommand {
	b := &BackupWriteCommand{
		backupHeader: backupHeader{
			id:         cmd.InvocationID(),
			topologyID: cmd.TopologyID(),
			flags:      cmd.Flags(),
			segment:    cmd.Segment(),
			sequence:   sequence,
		},
		key:      cmd.Key(),
		internal: entry.Internal(),
		lifespan: container.Immortal,
	}
	b.setState(entry)
	return b
}

func (c *BackupWriteCommand) setState(entry *container.MVCCEntry) {
	if !entry.Exists() {
		c.operation = BackupRemove
		return
	}
	c.operation, c.value, c.metadata = BackupWrite, entry.Value(), entry.Metadata()
}

func (c *BackupWriteCommand) Key() string { return c.key }
func (c *BackupWriteCommand) Operation() BackupOperation { return c.operation }
func (c *BackupWriteCommand) Value() []byte { return c.value }
func (c *BackupWriteCommand) CommandID() CommandType { return TypeBackupWrite }

// Command rebuilds the write to execute on the backup owner. It always matches
// and skips locking.
func (c *BackupWriteCommand) Command() (DataWriteCommand, error) {
	flags := c.flags.With(backupFlags)
	var cmd DataWriteCommand
	switch c.operation {
	case BackupWrite:
		cmd = NewPutKeyValueCommand(c.id, c.key, c.segment, c.value, c.metadata, false, flags)
	case BackupRemove:
		cmd = NewRemoveCommand(c.id, c.key, c.segment, nil, flags)
	case BackupRemoveExpired:
		// the primary checked the lifespan
		cmd = NewRemoveExpiredCommand(c.id, c.key, c.segment, c.value, -1, flags)
	case BackupReplace:
		cmd = NewReplaceCommand(c.id, c.key, c.segment, nil, c.value, c.metadata, flags)
	default:
		return nil, fmt.Errorf("backup of %s: unknown operation %s", c.id, c.operation)
	}
	cmd.SetValueMatcher(matcher.MatchAlways)
	cmd.SetTopologyID(c.topologyID)
	cmd.SetInternalMetadata(c.key, c.internal)
	return cmd, nil
}

func (c *BackupWriteCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitBackupWrite(origin, c)
}

func (c *BackupWriteCommand) WriteTo(enc *codec.Encoder) {
	c.writeHeader(enc)
	enc.WriteString(c.key)
	enc.WriteUint8(uint8(c.operation))
	enc.WriteBytes(c.value)
	writeMetadata(enc, c.metadata)
	enc.WriteInt64(c.lifespan)
	enc.WriteUint64(c.internal.Version)
}

func (c *BackupWriteCommand) ReadFrom(dec *codec.Decoder) error {
	c.readHeader(dec)
	c.key = dec.ReadString()
	c.operation = BackupOperation(dec.ReadUint8())
	c.value = dec.ReadBytes()
	c.metadata = readMetadata(dec)
	c.lifespan = dec.ReadInt64()
	c.internal = container.InternalMetadata{Version: dec.ReadUint64()}
	return dec.Err()
}

// --------------------------------------------------------------------------
// Multi Key Backup
// --------------------------------------------------------------------------

// MultiKeyOperation tags the payload of a multi key backup.
type MultiKeyOperation uint8

const (
	OpPutMap MultiKeyOperation = iota
	OpWriteOnly
	OpWriteOnlyEntries
	OpReadWrite
	OpReadWriteEntries
)

func (o MultiKeyOperation) String() string {
	switch o {
	case OpPutMap:
		return "PUT_MAP"
	case OpWriteOnly:
		return "WRITE_ONLY"
	case OpWriteOnlyEntries:
		return "WRITE_ONLY_ENTRIES"
	case OpReadWrite:
		return "READ_WRITE"
	case OpReadWriteEntries:
		return "READ_WRITE_ENTRIES"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(o))
	}
}

// MultiKeyPayload is one variant of the multi key backup payload.
type MultiKeyPayload interface {
	Operation() MultiKeyOperation
	AffectedKeys() []string
	command(id InvocationID, flags Flags) MultiKeyWriteCommand
	writeTo(enc *codec.Encoder)
	readFrom(dec *codec.Decoder)
}

// PutMapPayload carries the values of a put map.
type PutMapPayload struct {
	Entries  map[string][]byte
	Metadata container.Metadata
}

// KeysPayload carries the keys and the shared argument of a many key function.
// It is the payload of OpWriteOnly and OpReadWrite.
type KeysPayload struct {
	ReadWrite bool
	Keys      []string
	Function  string
	Arg       []byte
}

// EntriesPayload carries the per key arguments of a many key function. It is
// the payload of OpWriteOnlyEntries and OpReadWriteEntries.
type EntriesPayload struct {
	ReadWrite bool
	Entries   map[string][]byte
	Function  string
}

func (p *PutMapPayload) Operation() MultiKeyOperation { return OpPutMap }
func (p *PutMapPayload) AffectedKeys() []string { return sortedKeys(p.Entries) }

func (p *PutMapPayload) command(id InvocationID, flags Flags) MultiKeyWriteCommand {
	cmd := NewPutMapCommand(id, p.Entries, p.Metadata, flags)
	cmd.SetForwarded(true)
	return cmd
}

func (p *PutMapPayload) writeTo(enc *codec.Encoder) {
	enc.WriteBytesMap(p.Entries)
	writeMetadata(enc, p.Metadata)
}

func (p *PutMapPayload) readFrom(dec *codec.Decoder) {
	p.Entries = dec.ReadBytesMap()
	p.Metadata = readMetadata(dec)
}

func (p *KeysPayload) Operation() MultiKeyOperation {
	if p.ReadWrite {
		return OpReadWrite
	}
	return OpWriteOnly
}

func (p *KeysPayload) AffectedKeys() []string { return p.Keys }

func (p *KeysPayload) command(id InvocationID, flags Flags) MultiKeyWriteCommand {
	if p.ReadWrite {
		return NewReadWriteManyCommand(id, p.Keys, p.Function, p.Arg, flags)
	}
	return NewWriteOnlyManyCommand(id, p.Keys, p.Function, p.Arg, flags)
}

func (p *KeysPayload) writeTo(enc *codec.Encoder) {
	enc.WriteStrings(p.Keys)
	enc.WriteString(p.Function)
	enc.WriteBytes(p.Arg)
}

func (p *KeysPayload) readFrom(dec *codec.Decoder) {
	p.Keys = dec.ReadStrings()
	p.Function = dec.ReadString()
	p.Arg = dec.ReadBytes()
}

func (p *EntriesPayload) Operation() MultiKeyOperation {
	if p.ReadWrite {
		return OpReadWriteEntries
	}
	return OpWriteOnlyEntries
}

func (p *EntriesPayload) AffectedKeys() []string { return sortedKeys(p.Entries) }

func (p *EntriesPayload) command(id InvocationID, flags Flags) MultiKeyWriteCommand {
	if p.ReadWrite {
		return NewReadWriteManyEntriesCommand(id, p.Entries, p.Function, flags)
	}
	return NewWriteOnlyManyEntriesCommand(id, p.Entries, p.Function, flags)
}

func (p *EntriesPayload) writeTo(enc *codec.Encoder) {
	enc.WriteBytesMap(p.Entries)
	enc.WriteString(p.Function)
}

func (p *EntriesPayload) readFrom(dec *codec.Decoder) {
	p.Entries = dec.ReadBytesMap()
	p.Function = dec.ReadString()
}

func newPayload(op MultiKeyOperation) (MultiKeyPayload, error) {
	switch op {
	case OpPutMap:
		return &PutMapPayload{}, nil
	case OpWriteOnly:
		return &KeysPayload{}, nil
	case OpReadWrite:
		return &KeysPayload{ReadWrite: true}, nil
	case OpWriteOnlyEntries:
		return &EntriesPayload{}, nil
	case OpReadWriteEntries:
		return &EntriesPayload{ReadWrite: true}, nil
	default:
		return nil, fmt.Errorf("multi key backup: unknown operation %s", op)
	}
}

// BackupMultiKeyWriteCommand replicates the keys of one segment touched by a
// multi key write to a backup owner.
type BackupMultiKeyWriteCommand struct {
	backupHeader
	payload  MultiKeyPayload
	internal map[string]container.InternalMetadata
}

// NewBackupMultiKeyWrite creates the backup of cmd, which must already be
// restricted to the keys of segment.
func NewBackupMultiKeyWrite(cmd MultiKeyWriteCommand, segment int, sequence uint64) (*BackupMultiKeyWriteCommand, error) {
	var payload MultiKeyPayload
	switch c := cmd.(type) {
	case *PutMapCommand:
		payload = &PutMapPayload{Entries: c.entries, Metadata: c.metadata}
	case *WriteOnlyManyCommand:
		payload = &KeysPayload{Keys: c.keys, Function: c.function, Arg: c.arg}
	case *ReadWriteManyCommand:
		payload = &KeysPayload{ReadWrite: true, Keys: c.keys, Function: c.function, Arg: c.arg}
	case *WriteOnlyManyEntriesCommand:
		payload = &EntriesPayload{Entries: c.entries, Function: c.function}
	case *ReadWriteManyEntriesCommand:
		payload = &EntriesPayload{ReadWrite: true, Entries: c.entries, Function: c.function}
	default:
		return nil, fmt.Errorf("multi key backup of %T: %w", cmd, ErrUnknownCommand)
	}
	return newBackupMultiKey(cmd, segment, sequence, payload), nil
}

// NewBackupMultiKeyWriteOfState creates a backup that replicates the current
// state of entries (keyed by key, a non existing entry removes the key).
func NewBackupMultiKeyWriteOfState(cmd MultiKeyWriteCommand, segment int, sequence uint64, entries map[string]*container.MVCCEntry) *BackupMultiKeyWriteCommand {
	values := make(map[string][]byte, len(entries))
	for k, e := range entries {
		values[k] = e.Value()
	}
	b := newBackupMultiKey(cmd, segment, sequence, &EntriesPayload{Entries: values, Function: FnSet})
	for k, e := range entries {
		if b.internal == nil {
			b.internal = make(map[string]container.InternalMetadata, len(entries))
		}
		b.internal[k] = e.Internal()
	}
	return b
}

func newBackupMultiKey(cmd MultiKeyWriteCommand, segment int, sequence uint64, payload MultiKeyPayload) *BackupMultiKeyWriteCommand {
	b := &BackupMultiKeyWriteCommand{
		backupHeader: backupHeader{
			id:         cmd.InvocationID(),
			topologyID: cmd.TopologyID(),
			flags:      cmd.Flags(),
			segment:    segment,
			sequence:   sequence,
		},
		payload: payload,
	}
	for _, k := range payload.AffectedKeys() {
		if md := cmd.InternalMetadata(k); md != nil {
			if b.internal == nil {
				b.internal = make(map[string]container.InternalMetadata)
			}
			b.internal[k] = *md
		}
	}
	return b
}

func (c *BackupMultiKeyWriteCommand) Payload() MultiKeyPayload { return c.payload }
func (c *BackupMultiKeyWriteCommand) Operation() MultiKeyOperation { return c.payload.Operation() }
func (c *BackupMultiKeyWriteCommand) CommandID() CommandType { return TypeBackupMultiKeyWrite }

// Command rebuilds the write to execute on the backup owner. It always matches
// and skips locking, a put map is marked as forwarded.
func (c *BackupMultiKeyWriteCommand) Command() MultiKeyWriteCommand {
	cmd := c.payload.command(c.id, c.flags.With(backupFlags))
	cmd.SetValueMatcher(matcher.MatchAlways)
	cmd.SetTopologyID(c.topologyID)
	for k, md := range c.internal {
		cmd.SetInternalMetadata(k, md)
	}
	return cmd
}

func (c *BackupMultiKeyWriteCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitBackupMultiKeyWrite(origin, c)
}

func (c *BackupMultiKeyWriteCommand) WriteTo(enc *codec.Encoder) {
	c.writeHeader(enc)
	enc.WriteUint8(uint8(c.payload.Operation()))
	c.payload.writeTo(enc)
	writeInternalMap(enc, c.internal)
}

func (c *BackupMultiKeyWriteCommand) ReadFrom(dec *codec.Decoder) error {
	c.readHeader(dec)
	op := MultiKeyOperation(dec.ReadUint8())
	if err := dec.Err(); err != nil {
		return err
	}
	payload, err := newPayload(op)
	if err != nil {
		return err
	}
	payload.readFrom(dec)
	c.payload = payload
	c.internal = readInternalMap(dec)
	return dec.Err()
}
