package commands

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/tKV/lib/codec"
)

// CommandType is the type tag of a command on the wire.
type CommandType uint8

const (
	TypePutKeyValue CommandType = iota + 1
	TypeRemove
	TypeRemoveExpired
	TypeReplace
	TypeCompute
	TypeComputeIfAbsent
	TypeReadWriteKey
	TypeWriteOnlyKey
	TypePutMap
	TypeReadWriteMany
	TypeReadWriteManyEntries
	TypeWriteOnlyMany
	TypeWriteOnlyManyEntries
	TypeGetKeyValue
	TypeBackupWrite
	TypeBackupMultiKeyWrite
	TypePrimaryAck
	TypePrimaryMultiKeyAck
	TypeBackupAck
	TypeBackupMultiKeyAck
	TypeExceptionAck
)

var typeNames = map[CommandType]string{
	TypePutKeyValue:          "PutKeyValue",
	TypeRemove:               "Remove",
	TypeRemoveExpired:        "RemoveExpired",
	TypeReplace:              "Replace",
	TypeCompute:              "Compute",
	TypeComputeIfAbsent:      "ComputeIfAbsent",
	TypeReadWriteKey:         "ReadWriteKey",
	TypeWriteOnlyKey:         "WriteOnlyKey",
	TypePutMap:               "PutMap",
	TypeReadWriteMany:        "ReadWriteMany",
	TypeReadWriteManyEntries: "ReadWriteManyEntries",
	TypeWriteOnlyMany:        "WriteOnlyMany",
	TypeWriteOnlyManyEntries: "WriteOnlyManyEntries",
	TypeGetKeyValue:          "GetKeyValue",
	TypeBackupWrite:          "BackupWrite",
	TypeBackupMultiKeyWrite:  "BackupMultiKeyWrite",
	TypePrimaryAck:           "PrimaryAck",
	TypePrimaryMultiKeyAck:   "PrimaryMultiKeyAck",
	TypeBackupAck:            "BackupAck",
	TypeBackupMultiKeyAck:    "BackupMultiKeyAck",
	TypeExceptionAck:         "ExceptionAck",
}

func (t CommandType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// New returns an empty command of type t, ready for ReadFrom.
func New(t CommandType) (ReplicableCommand, error) {
	switch t {
	case TypePutKeyValue:
		return &PutKeyValueCommand{}, nil
	case TypeRemove:
		return &RemoveCommand{}, nil
	case TypeRemoveExpired:
		return &RemoveExpiredCommand{}, nil
	case TypeReplace:
		return &ReplaceCommand{}, nil
	case TypeCompute:
		return &ComputeCommand{}, nil
	case TypeComputeIfAbsent:
		return &ComputeIfAbsentCommand{}, nil
	case TypeReadWriteKey:
		return &ReadWriteKeyCommand{}, nil
	case TypeWriteOnlyKey:
		return &WriteOnlyKeyCommand{}, nil
	case TypePutMap:
		return &PutMapCommand{}, nil
	case TypeReadWriteMany:
		return &ReadWriteManyCommand{}, nil
	case TypeReadWriteManyEntries:
		return &ReadWriteManyEntriesCommand{}, nil
	case TypeWriteOnlyMany:
		return &WriteOnlyManyCommand{}, nil
	case TypeWriteOnlyManyEntries:
		return &WriteOnlyManyEntriesCommand{}, nil
	case TypeGetKeyValue:
		return &GetKeyValueCommand{}, nil
	case TypeBackupWrite:
		return &BackupWriteCommand{}, nil
	case TypeBackupMultiKeyWrite:
		return &BackupMultiKeyWriteCommand{}, nil
	case TypePrimaryAck:
		return &PrimaryAckCommand{}, nil
	case TypePrimaryMultiKeyAck:
		return &PrimaryMultiKeyAckCommand{}, nil
	case TypeBackupAck:
		return &BackupAckCommand{}, nil
	case TypeBackupMultiKeyAck:
		return &BackupMultiKeyAckCommand{}, nil
	case TypeExceptionAck:
		return &ExceptionAckCommand{}, nil
	default:
		return nil, fmt.Errorf("type %d: %w", uint8(t), ErrUnknownCommand)
	}
}

// Marshal encodes cmd prefixed with its type tag.
func Marshal(cmd ReplicableCommand) []byte {
	enc := codec.NewEncoder(64)
	enc.WriteUint8(uint8(cmd.CommandID()))
	cmd.WriteTo(enc)
	return enc.Bytes()
}

// Unmarshal decodes a command encoded by Marshal.
func Unmarshal(data []byte) (ReplicableCommand, error) {
	dec := codec.NewDecoder(data)
	t := CommandType(dec.ReadUint8())
	if err := dec.Err(); err != nil {
		return nil, err
	}
	cmd, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := cmd.ReadFrom(dec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", t, err)
	}
	if dec.Remaining() != 0 {
		return nil, fmt.Errorf("decoding %s: %d trailing bytes", t, dec.Remaining())
	}
	return cmd, nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func subsetMap(m map[string][]byte, keys []string) map[string][]byte {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}
