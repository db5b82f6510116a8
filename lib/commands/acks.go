package commands

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/tKV/lib/codec"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// ackHeader identifies the operation an acknowledgment belongs to.
type ackHeader struct {
	id         InvocationID
	topologyID int
}

func (h *ackHeader) InvocationID() InvocationID { return h.id }
func (h *ackHeader) TopologyID() int { return h.topologyID }

func (h *ackHeader) writeHeader(enc *codec.Encoder) {
	h.id.writeTo(enc)
	enc.WriteInt32(int32(h.topologyID))
}

func (h *ackHeader) readHeader(dec *codec.Decoder) {
	h.id = readInvocationID(dec)
	h.topologyID = int(dec.ReadInt32())
}

// --------------------------------------------------------------------------
// Primary Ack
// --------------------------------------------------------------------------

// ResponseType is the encoding of the return value in a primary ack.
type ResponseType uint8

const (
	SuccessWithReturnValue ResponseType = iota
	SuccessWithBool
	SuccessWithoutReturnValue
	UnsuccessfulWithReturnValue
	UnsuccessfulWithBool
	UnsuccessfulWithoutReturnValue
)

func (r ResponseType) successful() bool {
	return r <= SuccessWithoutReturnValue
}

// PrimaryAckCommand is sent by the primary owner to the originator after it
// performed a single key command.
type PrimaryAckCommand struct {
	ackHeader
	responseType ResponseType
	value        []byte
	flag         bool
}

// NewPrimaryAck creates the ack of a command with outcome successful and
// result. Previous values are only sent if the caller expects them, booleans
// of conditional commands are always sent.
func NewPrimaryAck(id InvocationID, topologyID int, successful bool, result interface{}, returnValueExpected bool) *PrimaryAckCommand {
	c := &PrimaryAckCommand{ackHeader: ackHeader{id: id, topologyID: topologyID}}

	var kind ResponseType
	switch r := result.(type) {
	case bool:
		kind, c.flag = SuccessWithBool, r
	case []byte:
		if returnValueExpected && r != nil {
			kind, c.value = SuccessWithReturnValue, r
		} else {
			kind = SuccessWithoutReturnValue
		}
	default:
		kind = SuccessWithoutReturnValue
	}
	if !successful {
		kind += UnsuccessfulWithReturnValue
	}
	c.responseType = kind
	return c
}

func (c *PrimaryAckCommand) ResponseType() ResponseType { return c.responseType }
func (c *PrimaryAckCommand) IsSuccessful() bool { return c.responseType.successful() }
func (c *PrimaryAckCommand) CommandID() CommandType { return TypePrimaryAck }

// Result returns the return value: []byte, bool or nil depending on the
// response type.
func (c *PrimaryAckCommand) Result() interface{} {
	switch c.responseType {
	case SuccessWithReturnValue, UnsuccessfulWithReturnValue:
		return c.value
	case SuccessWithBool, UnsuccessfulWithBool:
		return c.flag
	default:
		return nil
	}
}

func (c *PrimaryAckCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitPrimaryAck(origin, c)
}

func (c *PrimaryAckCommand) WriteTo(enc *codec.Encoder) {
	c.writeHeader(enc)
	enc.WriteUint8(uint8(c.responseType))
	switch c.responseType {
	case SuccessWithReturnValue, UnsuccessfulWithReturnValue:
		enc.WriteBytes(c.value)
	case SuccessWithBool, UnsuccessfulWithBool:
		enc.WriteBool(c.flag)
	}
}

func (c *PrimaryAckCommand) ReadFrom(dec *codec.Decoder) error {
	c.readHeader(dec)
	c.responseType = ResponseType(dec.ReadUint8())
	switch c.responseType {
	case SuccessWithReturnValue, UnsuccessfulWithReturnValue:
		c.value = dec.ReadBytes()
	case SuccessWithBool, UnsuccessfulWithBool:
		c.flag = dec.ReadBool()
	case SuccessWithoutReturnValue, UnsuccessfulWithoutReturnValue:
	default:
		if dec.Err() == nil {
			return fmt.Errorf("primary ack %s: unknown response type %d", c.id, c.responseType)
		}
	}
	return dec.Err()
}

// PrimaryMultiKeyAckCommand is sent by a primary owner to the originator after
// it performed its part of a multi key command.
type PrimaryMultiKeyAckCommand struct {
	ackHeader
	returns map[string][]byte
}

func NewPrimaryMultiKeyAck(id InvocationID, topologyID int, result interface{}) *PrimaryMultiKeyAckCommand {
	c := &PrimaryMultiKeyAckCommand{ackHeader: ackHeader{id: id, topologyID: topologyID}}
	if m, ok := result.(map[string][]byte); ok && len(m) > 0 {
		c.returns = m
	}
	return c
}

// Returns returns the per key return values, nil if there are none.
func (c *PrimaryMultiKeyAckCommand) Returns() map[string][]byte { return c.returns }
func (c *PrimaryMultiKeyAckCommand) CommandID() CommandType { return TypePrimaryMultiKeyAck }

func (c *PrimaryMultiKeyAckCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitPrimaryMultiKeyAck(origin, c)
}

func (c *PrimaryMultiKeyAckCommand) WriteTo(enc *codec.Encoder) {
	c.writeHeader(enc)
	enc.WriteBytesMap(c.returns)
}

func (c *PrimaryMultiKeyAckCommand) ReadFrom(dec *codec.Decoder) error {
	c.readHeader(dec)
	c.returns = dec.ReadBytesMap()
	return dec.Err()
}

// --------------------------------------------------------------------------
// Backup Acks
// --------------------------------------------------------------------------

// BackupAckCommand is sent by a backup owner to the originator after it
// applied a single key backup.
type BackupAckCommand struct {
	ackHeader
}

func NewBackupAck(id InvocationID, topologyID int) *BackupAckCommand {
	return &BackupAckCommand{ackHeader{id: id, topologyID: topologyID}}
}

func (c *BackupAckCommand) CommandID() CommandType { return TypeBackupAck }

func (c *BackupAckCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitBackupAck(origin, c)
}

func (c *BackupAckCommand) WriteTo(enc *codec.Encoder) {
	c.writeHeader(enc)
}

func (c *BackupAckCommand) ReadFrom(dec *codec.Decoder) error {
	c.readHeader(dec)
	return dec.Err()
}

// BackupMultiKeyAckCommand is sent by a backup owner to the originator after it
// applied the multi key backups of some segments.
type BackupMultiKeyAckCommand struct {
	ackHeader
	segments []int
}

func NewBackupMultiKeyAck(id InvocationID, topologyID int, segments []int) *BackupMultiKeyAckCommand {
	return &BackupMultiKeyAckCommand{ackHeader: ackHeader{id: id, topologyID: topologyID}, segments: segments}
}

func (c *BackupMultiKeyAckCommand) Segments() []int { return c.segments }
func (c *BackupMultiKeyAckCommand) CommandID() CommandType { return TypeBackupMultiKeyAck }

func (c *BackupMultiKeyAckCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitBackupMultiKeyAck(origin, c)
}

func (c *BackupMultiKeyAckCommand) WriteTo(enc *codec.Encoder) {
	c.writeHeader(enc)
	enc.WriteInts(c.segments)
}

func (c *BackupMultiKeyAckCommand) ReadFrom(dec *codec.Decoder) error {
	c.readHeader(dec)
	c.segments = dec.ReadInts()
	return dec.Err()
}

// --------------------------------------------------------------------------
// Exception Ack
// --------------------------------------------------------------------------

// ExceptionAckCommand reports that a primary or backup owner failed to execute
// a command.
type ExceptionAckCommand struct {
	ackHeader
	kind    ErrorKind
	message string
}

func NewExceptionAck(id InvocationID, topologyID int, err error) *ExceptionAckCommand {
	kind := KindGeneric
	switch {
	case errors.Is(err, ErrOutdatedTopology):
		kind = KindOutdatedTopology
	case errors.Is(err, ErrTimeout):
		kind = KindTimeout
	}
	return &ExceptionAckCommand{ackHeader: ackHeader{id: id, topologyID: topologyID}, kind: kind, message: err.Error()}
}

func (c *ExceptionAckCommand) Kind() ErrorKind { return c.kind }
func (c *ExceptionAckCommand) Message() string { return c.message }
func (c *ExceptionAckCommand) CommandID() CommandType { return TypeExceptionAck }

// Err returns the reported error as it is seen on the receiving node.
func (c *ExceptionAckCommand) Err(origin topology.Address) error {
	return &RemoteError{Origin: origin, Kind: c.kind, Message: c.message}
}

func (c *ExceptionAckCommand) Accept(origin topology.Address, v Visitor) error {
	return v.VisitExceptionAck(origin, c)
}

func (c *ExceptionAckCommand) WriteTo(enc *codec.Encoder) {
	c.writeHeader(enc)
	enc.WriteUint8(uint8(c.kind))
	enc.WriteString(c.message)
}

func (c *ExceptionAckCommand) ReadFrom(dec *codec.Decoder) error {
	c.readHeader(dec)
	c.kind = ErrorKind(dec.ReadUint8())
	c.message = dec.ReadString()
	return dec.Err()
}
