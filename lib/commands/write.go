package commands

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ValentinKolb/tKV/lib/codec"
	"github.com/ValentinKolb/tKV/lib/container"
	"github.com/ValentinKolb/tKV/lib/matcher"
	"github.com/ValentinKolb/tKV/lib/topology"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("commands")

// lookup returns the entry of key or fails if the pipeline did not wrap it.
func lookup(ctx InvocationContext, key string) (*container.MVCCEntry, error) {
	e := ctx.LookupEntry(key)
	if e == nil {
		return nil, fmt.Errorf("entry %q not wrapped in invocation context", key)
	}
	return e, nil
}

// --------------------------------------------------------------------------
// Put
// --------------------------------------------------------------------------

// PutKeyValueCommand stores a value, optionally only if the key is absent.
type PutKeyValueCommand struct {
	dataWrite
	value       []byte
	metadata    container.Metadata
	putIfAbsent bool
}

func NewPutKeyValueCommand(id InvocationID, key string, segment int, value []byte, md container.Metadata, putIfAbsent bool, flags Flags) *PutKeyValueCommand {
	m := matcher.MatchAlways
	if putIfAbsent {
		m = matcher.MatchExpected
	}
	return &PutKeyValueCommand{
		dataWrite:   dataWrite{baseWrite: newBaseWrite(id, flags, m), key: key, segment: segment},
		value:       value,
		metadata:    md,
		putIfAbsent: putIfAbsent,
	}
}

func (c *PutKeyValueCommand) Value() []byte { return c.value }
func (c *PutKeyValueCommand) Metadata() container.Metadata { return c.metadata }
func (c *PutKeyValueCommand) IsPutIfAbsent() bool { return c.putIfAbsent }
func (c *PutKeyValueCommand) IsConditional() bool { return c.putIfAbsent }
func (c *PutKeyValueCommand) CommandID() CommandType { return TypePutKeyValue }

func (c *PutKeyValueCommand) LoadType() LoadType {
	if c.IsConditional() || c.IsReturnValueExpected() {
		return Primary
	}
	return DontLoad
}

// Perform returns the previous value. A put if absent returns nil when it was
// applied and the existing value when it was not.
func (c *PutKeyValueCommand) Perform(ctx InvocationContext) (interface{}, error) {
	e, err := lookup(ctx, c.key)
	if err != nil {
		return nil, err
	}
	prev := e.Value()
	if !c.matcher.Matches(prev, nil, c.value) {
		c.Fail()
		return prev, nil
	}

	e.SetValue(c.value)
	e.SetMetadata(c.metadata)
	c.stamp(e)
	if c.putIfAbsent {
		return nil, nil
	}
	return prev, nil
}

func (c *PutKeyValueCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitPutKeyValue(origin, c)
}

func (c *PutKeyValueCommand) WriteTo(enc *codec.Encoder) {
	c.writeData(enc)
	enc.WriteBytes(c.value)
	writeMetadata(enc, c.metadata)
	enc.WriteBool(c.putIfAbsent)
}

func (c *PutKeyValueCommand) ReadFrom(dec *codec.Decoder) error {
	c.readData(dec)
	c.value = dec.ReadBytes()
	c.metadata = readMetadata(dec)
	c.putIfAbsent = dec.ReadBool()
	return dec.Err()
}

// --------------------------------------------------------------------------
// Remove
// --------------------------------------------------------------------------

// RemoveCommand removes a key, optionally only if it holds an expected value.
type RemoveCommand struct {
	dataWrite
	value       []byte // expected value, nil for an unconditional remove
	nonExistent bool
}

func NewRemoveCommand(id InvocationID, key string, segment int, expected []byte, flags Flags) *RemoveCommand {
	m := matcher.MatchAlways
	if expected != nil {
		m = matcher.MatchExpected
	}
	return &RemoveCommand{
		dataWrite: dataWrite{baseWrite: newBaseWrite(id, flags, m), key: key, segment: segment},
		value:     expected,
	}
}

func (c *RemoveCommand) Value() []byte { return c.value }
func (c *RemoveCommand) IsConditional() bool { return c.value != nil }
func (c *RemoveCommand) CommandID() CommandType { return TypeRemove }

// IsNonExistent reports whether the key did not exist when the command ran.
func (c *RemoveCommand) IsNonExistent() bool { return c.nonExistent }

func (c *RemoveCommand) LoadType() LoadType {
	if c.IsConditional() || c.IsReturnValueExpected() {
		return Primary
	}
	return DontLoad
}

func (c *RemoveCommand) Retry(topologyID int) {
	c.dataWrite.Retry(topologyID)
	c.nonExistent = false
}

// ShouldReplicate reports whether the outcome must be sent to the backups. A
// remove of a missing key is a no-op and is only replicated if a flag forces
// it or the remote caller requires it.
func (c *RemoveCommand) ShouldReplicate(ctx InvocationContext, requireReplicateIfRemote bool) bool {
	return shouldReplicate(&c.baseWrite, c.nonExistent, ctx, requireReplicateIfRemote)
}

func shouldReplicate(c *baseWrite, nonExistent bool, ctx InvocationContext, requireReplicateIfRemote bool) bool {
	if !c.successful {
		return false
	}
	return !nonExistent ||
		c.flags.HasAny(SkipCacheLoad|ForXSiteBackup) ||
		(requireReplicateIfRemote && !ctx.IsOriginLocal())
}

// Perform returns the previous value for an unconditional remove and a bool
// for a conditional one.
func (c *RemoveCommand) Perform(ctx InvocationContext) (interface{}, error) {
	e, err := lookup(ctx, c.key)
	if err != nil {
		return nil, err
	}

	if !e.Exists() {
		c.nonExistent = true
		if !c.matcher.Matches(nil, c.value, nil) {
			c.Fail()
			return false, nil
		}
		e.Remove()
		if c.IsConditional() {
			return true, nil
		}
		return nil, nil
	}

	prev := e.Value()
	if !c.matcher.Matches(prev, c.value, nil) {
		c.Fail()
		if c.IsConditional() {
			return false, nil
		}
		return nil, nil
	}

	e.Remove()
	c.stamp(e)
	if c.IsConditional() {
		return true, nil
	}
	return prev, nil
}

func (c *RemoveCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitRemove(origin, c)
}

func (c *RemoveCommand) WriteTo(enc *codec.Encoder) {
	c.writeData(enc)
	enc.WriteBytes(c.value)
}

func (c *RemoveCommand) ReadFrom(dec *codec.Decoder) error {
	c.readData(dec)
	c.value = dec.ReadBytes()
	return dec.Err()
}

// --------------------------------------------------------------------------
// Remove Expired
// --------------------------------------------------------------------------

// RemoveExpiredCommand removes an entry that expired. It only applies if the
// entry still holds the value and lifespan the expiration was detected for.
type RemoveExpiredCommand struct {
	dataWrite
	value       []byte // nil matches any value
	lifespan    int64  // negative matches any lifespan
	nonExistent bool
}

func NewRemoveExpiredCommand(id InvocationID, key string, segment int, value []byte, lifespan int64, flags Flags) *RemoveExpiredCommand {
	return &RemoveExpiredCommand{
		dataWrite: dataWrite{baseWrite: newBaseWrite(id, flags, matcher.MatchExpectedOrNull), key: key, segment: segment},
		value:     value,
		lifespan:  lifespan,
	}
}

func (c *RemoveExpiredCommand) Value() []byte { return c.value }
func (c *RemoveExpiredCommand) Lifespan() int64 { return c.lifespan }
func (c *RemoveExpiredCommand) IsConditional() bool { return true }
func (c *RemoveExpiredCommand) LoadType() LoadType { return Owner }
func (c *RemoveExpiredCommand) CommandID() CommandType { return TypeRemoveExpired }
func (c *RemoveExpiredCommand) ReadsExpired() bool { return true }

func (c *RemoveExpiredCommand) Retry(topologyID int) {
	c.dataWrite.Retry(topologyID)
	c.nonExistent = false
}

func (c *RemoveExpiredCommand) ShouldReplicate(ctx InvocationContext, requireReplicateIfRemote bool) bool {
	return shouldReplicate(&c.baseWrite, c.nonExistent, ctx, requireReplicateIfRemote)
}

// Perform returns true if the entry was removed.
func (c *RemoveExpiredCommand) Perform(ctx InvocationContext) (interface{}, error) {
	e, err := lookup(ctx, c.key)
	if err != nil {
		return nil, err
	}

	if !e.Exists() {
		c.nonExistent = true
		// an earlier attempt of this command may have removed it already
		if c.flags.Has(CommandRetry) {
			return true, nil
		}
		c.Fail()
		return false, nil
	}

	if c.value != nil && !c.matcher.Matches(e.Value(), c.value, nil) {
		c.Fail()
		return false, nil
	}
	if c.lifespan >= 0 && e.Metadata().Lifespan != c.lifespan {
		c.Fail()
		return false, nil
	}

	e.Remove()
	c.stamp(e)
	return true, nil
}

// OnLockTimeout handles a lock acquisition timeout. With a zero lock
// acquisition timeout the expiration is best effort and the timeout is
// suppressed.
func (c *RemoveExpiredCommand) OnLockTimeout(err error) error {
	if c.flags.Has(ZeroLockAcquisitionTimeout) {
		log.Debugf("skipping expiration of %q, entry is locked: %v", c.key, err)
		return nil
	}
	log.Errorf("expiration of %q timed out: %v", c.key, err)
	return err
}

func (c *RemoveExpiredCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitRemoveExpired(origin, c)
}

func (c *RemoveExpiredCommand) WriteTo(enc *codec.Encoder) {
	c.writeData(enc)
	enc.WriteBytes(c.value)
	enc.WriteInt64(c.lifespan)
}

func (c *RemoveExpiredCommand) ReadFrom(dec *codec.Decoder) error {
	c.readData(dec)
	c.value = dec.ReadBytes()
	c.lifespan = dec.ReadInt64()
	return dec.Err()
}

// --------------------------------------------------------------------------
// Replace
// --------------------------------------------------------------------------

// ReplaceCommand replaces the value of an existing key, optionally only if it
// holds an expected value.
type ReplaceCommand struct {
	dataWrite
	oldValue []byte // expected value, nil for an unconditional replace
	newValue []byte
	metadata container.Metadata
}

func NewReplaceCommand(id InvocationID, key string, segment int, oldValue, newValue []byte, md container.Metadata, flags Flags) *ReplaceCommand {
	m := matcher.MatchNonNull
	if oldValue != nil {
		m = matcher.MatchExpected
	}
	return &ReplaceCommand{
		dataWrite: dataWrite{baseWrite: newBaseWrite(id, flags, m), key: key, segment: segment},
		oldValue:  oldValue,
		newValue:  newValue,
		metadata:  md,
	}
}

func (c *ReplaceCommand) OldValue() []byte { return c.oldValue }
func (c *ReplaceCommand) NewValue() []byte { return c.newValue }
func (c *ReplaceCommand) Metadata() container.Metadata { return c.metadata }
func (c *ReplaceCommand) IsConditional() bool { return true }
func (c *ReplaceCommand) LoadType() LoadType { return Primary }
func (c *ReplaceCommand) CommandID() CommandType { return TypeReplace }

// Perform returns the previous value for an unconditional replace and a bool
// for a conditional one.
func (c *ReplaceCommand) Perform(ctx InvocationContext) (interface{}, error) {
	e, err := lookup(ctx, c.key)
	if err != nil {
		return nil, err
	}
	prev := e.Value()
	if !c.matcher.Matches(prev, c.oldValue, c.newValue) {
		c.Fail()
		if c.oldValue != nil {
			return false, nil
		}
		return nil, nil
	}

	e.SetValue(c.newValue)
	e.SetMetadata(c.metadata)
	c.stamp(e)
	if c.oldValue != nil {
		return true, nil
	}
	return prev, nil
}

func (c *ReplaceCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitReplace(origin, c)
}

func (c *ReplaceCommand) WriteTo(enc *codec.Encoder) {
	c.writeData(enc)
	enc.WriteBytes(c.oldValue)
	enc.WriteBytes(c.newValue)
	writeMetadata(enc, c.metadata)
}

func (c *ReplaceCommand) ReadFrom(dec *codec.Decoder) error {
	c.readData(dec)
	c.oldValue = dec.ReadBytes()
	c.newValue = dec.ReadBytes()
	c.metadata = readMetadata(dec)
	if dec.Err() == nil && c.newValue == nil {
		return errors.New("replace command without new value")
	}
	return dec.Err()
}

// --------------------------------------------------------------------------
// Compute
// --------------------------------------------------------------------------

// ComputeCommand sets the value to the result of a registered compute function.
// A nil result removes the key.
type ComputeCommand struct {
	dataWrite
	function         string
	arg              []byte
	metadata         container.Metadata
	computeIfPresent bool
}

func NewComputeCommand(id InvocationID, key string, segment int, function string, arg []byte, md container.Metadata, computeIfPresent bool, flags Flags) *ComputeCommand {
	m := matcher.MatchAlways
	if computeIfPresent {
		m = matcher.MatchNonNull
	}
	return &ComputeCommand{
		dataWrite:        dataWrite{baseWrite: newBaseWrite(id, flags, m), key: key, segment: segment},
		function:         function,
		arg:              arg,
		metadata:         md,
		computeIfPresent: computeIfPresent,
	}
}

func (c *ComputeCommand) Function() string { return c.function }
func (c *ComputeCommand) IsComputeIfPresent() bool { return c.computeIfPresent }
func (c *ComputeCommand) IsConditional() bool { return c.computeIfPresent }
func (c *ComputeCommand) LoadType() LoadType { return Owner }
func (c *ComputeCommand) CommandID() CommandType { return TypeCompute }

// Perform returns the computed value.
func (c *ComputeCommand) Perform(ctx InvocationContext) (interface{}, error) {
	fn, err := LookupCompute(c.function)
	if err != nil {
		return nil, err
	}
	e, err := lookup(ctx, c.key)
	if err != nil {
		return nil, err
	}
	prev := e.Value()
	if !c.matcher.Matches(prev, nil, nil) {
		c.Fail()
		return nil, nil
	}

	result := fn(c.key, prev, c.arg)
	switch {
	case result == nil && prev == nil:
		return nil, nil
	case result == nil:
		e.Remove()
	case bytes.Equal(result, prev):
		return result, nil
	default:
		e.SetValue(result)
		e.SetMetadata(c.metadata)
	}
	c.stamp(e)
	return result, nil
}

func (c *ComputeCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitCompute(origin, c)
}

func (c *ComputeCommand) WriteTo(enc *codec.Encoder) {
	c.writeData(enc)
	enc.WriteString(c.function)
	enc.WriteBytes(c.arg)
	writeMetadata(enc, c.metadata)
	enc.WriteBool(c.computeIfPresent)
}

func (c *ComputeCommand) ReadFrom(dec *codec.Decoder) error {
	c.readData(dec)
	c.function = dec.ReadString()
	c.arg = dec.ReadBytes()
	c.metadata = readMetadata(dec)
	c.computeIfPresent = dec.ReadBool()
	return dec.Err()
}

// --------------------------------------------------------------------------
// Compute If Absent
// --------------------------------------------------------------------------

// ComputeIfAbsentCommand sets the value of a missing key to the result of a
// registered compute function (called with a nil current value).
type ComputeIfAbsentCommand struct {
	dataWrite
	function string
	arg      []byte
	metadata container.Metadata
}

func NewComputeIfAbsentCommand(id InvocationID, key string, segment int, function string, arg []byte, md container.Metadata, flags Flags) *ComputeIfAbsentCommand {
	return &ComputeIfAbsentCommand{
		dataWrite: dataWrite{baseWrite: newBaseWrite(id, flags, matcher.MatchAlways), key: key, segment: segment},
		function:  function,
		arg:       arg,
		metadata:  md,
	}
}

func (c *ComputeIfAbsentCommand) Function() string { return c.function }
func (c *ComputeIfAbsentCommand) IsConditional() bool { return false }
func (c *ComputeIfAbsentCommand) LoadType() LoadType { return Owner }
func (c *ComputeIfAbsentCommand) CommandID() CommandType { return TypeComputeIfAbsent }

// Perform returns the existing value if the key is present, the computed value
// otherwise.
func (c *ComputeIfAbsentCommand) Perform(ctx InvocationContext) (interface{}, error) {
	fn, err := LookupCompute(c.function)
	if err != nil {
		return nil, err
	}
	e, err := lookup(ctx, c.key)
	if err != nil {
		return nil, err
	}
	if e.Exists() {
		c.Fail()
		return e.Value(), nil
	}

	result := fn(c.key, nil, c.arg)
	if result == nil {
		c.Fail()
		return nil, nil
	}
	e.SetValue(result)
	e.SetMetadata(c.metadata)
	c.stamp(e)
	return result, nil
}

func (c *ComputeIfAbsentCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitComputeIfAbsent(origin, c)
}

func (c *ComputeIfAbsentCommand) WriteTo(enc *codec.Encoder) {
	c.writeData(enc)
	enc.WriteString(c.function)
	enc.WriteBytes(c.arg)
	writeMetadata(enc, c.metadata)
}

func (c *ComputeIfAbsentCommand) ReadFrom(dec *codec.Decoder) error {
	c.readData(dec)
	c.function = dec.ReadString()
	c.arg = dec.ReadBytes()
	c.metadata = readMetadata(dec)
	return dec.Err()
}

// --------------------------------------------------------------------------
// Functional Single Key
// --------------------------------------------------------------------------

// ReadWriteKeyCommand applies a registered entry function to one key and
// returns the function result.
type ReadWriteKeyCommand struct {
	dataWrite
	function string
	arg      []byte
}

func NewReadWriteKeyCommand(id InvocationID, key string, segment int, function string, arg []byte, flags Flags) *ReadWriteKeyCommand {
	return &ReadWriteKeyCommand{
		dataWrite: dataWrite{baseWrite: newBaseWrite(id, flags, matcher.MatchAlways), key: key, segment: segment},
		function:  function,
		arg:       arg,
	}
}

func (c *ReadWriteKeyCommand) Function() string { return c.function }
func (c *ReadWriteKeyCommand) IsConditional() bool { return false }
func (c *ReadWriteKeyCommand) LoadType() LoadType { return Owner }
func (c *ReadWriteKeyCommand) CommandID() CommandType { return TypeReadWriteKey }

func (c *ReadWriteKeyCommand) Perform(ctx InvocationContext) (interface{}, error) {
	return performEntryFunction(ctx, c.key, c.function, c.arg, true, c.stamp)
}

func (c *ReadWriteKeyCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitReadWriteKey(origin, c)
}

func (c *ReadWriteKeyCommand) WriteTo(enc *codec.Encoder) {
	c.writeData(enc)
	enc.WriteString(c.function)
	enc.WriteBytes(c.arg)
}

func (c *ReadWriteKeyCommand) ReadFrom(dec *codec.Decoder) error {
	c.readData(dec)
	c.function = dec.ReadString()
	c.arg = dec.ReadBytes()
	return dec.Err()
}

// WriteOnlyKeyCommand applies a registered entry function to one key without
// exposing the previous value. It returns nothing.
type WriteOnlyKeyCommand struct {
	dataWrite
	function string
	arg      []byte
}

func NewWriteOnlyKeyCommand(id InvocationID, key string, segment int, function string, arg []byte, flags Flags) *WriteOnlyKeyCommand {
	return &WriteOnlyKeyCommand{
		dataWrite: dataWrite{baseWrite: newBaseWrite(id, flags, matcher.MatchAlways), key: key, segment: segment},
		function:  function,
		arg:       arg,
	}
}

func (c *WriteOnlyKeyCommand) Function() string { return c.function }
func (c *WriteOnlyKeyCommand) IsConditional() bool { return false }
func (c *WriteOnlyKeyCommand) LoadType() LoadType { return DontLoad }
func (c *WriteOnlyKeyCommand) IsReturnValueExpected() bool { return false }
func (c *WriteOnlyKeyCommand) CommandID() CommandType { return TypeWriteOnlyKey }

func (c *WriteOnlyKeyCommand) Perform(ctx InvocationContext) (interface{}, error) {
	_, err := performEntryFunction(ctx, c.key, c.function, c.arg, false, c.stamp)
	return nil, err
}

func (c *WriteOnlyKeyCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitWriteOnlyKey(origin, c)
}

func (c *WriteOnlyKeyCommand) WriteTo(enc *codec.Encoder) {
	c.writeData(enc)
	enc.WriteString(c.function)
	enc.WriteBytes(c.arg)
}

func (c *WriteOnlyKeyCommand) ReadFrom(dec *codec.Decoder) error {
	c.readData(dec)
	c.function = dec.ReadString()
	c.arg = dec.ReadBytes()
	return dec.Err()
}

// performEntryFunction runs a registered entry function against the entry of
// key. Entries the function changed are stamped.
func performEntryFunction(ctx InvocationContext, key, function string, arg []byte, readable bool, stamp func(*container.MVCCEntry)) (interface{}, error) {
	fn, err := LookupEntryFunction(function)
	if err != nil {
		return nil, err
	}
	e, err := lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	view := &EntryView{entry: e, readable: readable}
	result := fn(view, arg)
	if e.IsChanged() {
		stamp(e)
	}
	if result == nil {
		return nil, nil
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Get
// --------------------------------------------------------------------------

// GetKeyValueCommand reads a key from its primary owner.
type GetKeyValueCommand struct {
	id         InvocationID
	key        string
	segment    int
	topologyID int
}

func NewGetKeyValueCommand(id InvocationID, key string, segment, topologyID int) *GetKeyValueCommand {
	return &GetKeyValueCommand{id: id, key: key, segment: segment, topologyID: topologyID}
}

func (c *GetKeyValueCommand) InvocationID() InvocationID { return c.id }
func (c *GetKeyValueCommand) Key() string { return c.key }
func (c *GetKeyValueCommand) Segment() int { return c.segment }
func (c *GetKeyValueCommand) TopologyID() int { return c.topologyID }
func (c *GetKeyValueCommand) CommandID() CommandType { return TypeGetKeyValue }

func (c *GetKeyValueCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitGetKeyValue(origin, c)
}

func (c *GetKeyValueCommand) WriteTo(enc *codec.Encoder) {
	c.id.writeTo(enc)
	enc.WriteString(c.key)
	enc.WriteInt32(int32(c.segment))
	enc.WriteInt32(int32(c.topologyID))
}

func (c *GetKeyValueCommand) ReadFrom(dec *codec.Decoder) error {
	c.id = readInvocationID(dec)
	c.key = dec.ReadString()
	c.segment = int(dec.ReadInt32())
	c.topologyID = int(dec.ReadInt32())
	return dec.Err()
}
