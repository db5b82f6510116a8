package serializer

import (
	"fmt"

	"github.com/ValentinKolb/tKV/lib/codec"
	"github.com/ValentinKolb/tKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	1 byte MsgType | 2 bytes flags | present fields in declaration order
//
// Only fields with a flag set are written, Ok is carried by its flag alone.
type binarySerializerImpl struct{}

// Bit flags to indicate which optional fields are present
const (
	hasKey      uint16 = 1 << 0
	hasValue    uint16 = 1 << 1
	hasExpected uint16 = 1 << 2
	hasFunction uint16 = 1 << 3
	hasLifespan uint16 = 1 << 4
	hasEntries  uint16 = 1 << 5
	hasOk       uint16 = 1 << 6
	hasErr      uint16 = 1 << 7
	hasMeta     uint16 = 1 << 8
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	flags := b.flags(msg)

	enc := codec.NewEncoder(b.sizeBytes(msg))
	enc.WriteUint8(uint8(msg.MsgType))
	enc.WriteUint8(uint8(flags >> 8))
	enc.WriteUint8(uint8(flags))

	if flags&hasKey != 0 {
		enc.WriteString(msg.Key)
	}
	if flags&hasValue != 0 {
		enc.WriteBytes(msg.Value)
	}
	if flags&hasExpected != 0 {
		enc.WriteBytes(msg.Expected)
	}
	if flags&hasFunction != 0 {
		enc.WriteString(msg.Function)
	}
	if flags&hasLifespan != 0 {
		enc.WriteUint64(msg.Lifespan)
	}
	if flags&hasEntries != 0 {
		enc.WriteBytesMap(msg.Entries)
	}
	if flags&hasErr != 0 {
		enc.WriteString(msg.Err)
	}
	if flags&hasMeta != 0 {
		enc.WriteBytes(msg.Meta)
	}
	return enc.Bytes(), nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	dec := codec.NewDecoder(data)
	*msg = common.Message{MsgType: common.MessageType(dec.ReadUint8())}
	flags := uint16(dec.ReadUint8())<<8 | uint16(dec.ReadUint8())

	if flags&hasKey != 0 {
		msg.Key = dec.ReadString()
	}
	if flags&hasValue != 0 {
		msg.Value = dec.ReadBytes()
	}
	if flags&hasExpected != 0 {
		msg.Expected = dec.ReadBytes()
	}
	if flags&hasFunction != 0 {
		msg.Function = dec.ReadString()
	}
	if flags&hasLifespan != 0 {
		msg.Lifespan = dec.ReadUint64()
	}
	if flags&hasEntries != 0 {
		msg.Entries = dec.ReadBytesMap()
	}
	msg.Ok = flags&hasOk != 0
	if flags&hasErr != 0 {
		msg.Err = dec.ReadString()
	}
	if flags&hasMeta != 0 {
		msg.Meta = dec.ReadBytes()
	}

	if err := dec.Err(); err != nil {
		return fmt.Errorf("decoding %s message: %w", msg.MsgType, err)
	}
	if dec.Remaining() != 0 {
		return fmt.Errorf("decoding %s message: %d trailing bytes", msg.MsgType, dec.Remaining())
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (b binarySerializerImpl) flags(msg common.Message) uint16 {
	var flags uint16
	if msg.Key != "" {
		flags |= hasKey
	}
	if msg.Value != nil {
		flags |= hasValue
	}
	if msg.Expected != nil {
		flags |= hasExpected
	}
	if msg.Function != "" {
		flags |= hasFunction
	}
	if msg.Lifespan > 0 {
		flags |= hasLifespan
	}
	if msg.Entries != nil {
		flags |= hasEntries
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Err != "" {
		flags |= hasErr
	}
	if msg.Meta != nil {
		flags |= hasMeta
	}
	return flags
}

// sizeBytes estimates the serialized size so the encoder allocates once
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize
	size += 4 + len(msg.Key)
	size += 5 + len(msg.Value)
	size += 5 + len(msg.Expected)
	size += 4 + len(msg.Function)
	size += 8
	for k, v := range msg.Entries {
		size += 4 + len(k) + 5 + len(v)
	}
	size += 4 + len(msg.Err)
	size += 5 + len(msg.Meta)
	return size
}
