package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key      string            `json:"key,omitempty"`      // Used for: all single key operations, Command (origin node)
	Value    []byte            `json:"value,omitempty"`    // Used for: Put, Replace, Compute (argument) requests, value responses
	Expected []byte            `json:"expected,omitempty"` // Used for: RemoveIf, ReplaceIf
	Function string            `json:"function,omitempty"` // Used for: Compute
	Lifespan uint64            `json:"lifespan,omitempty"` // Used for: Put, PutIfAbsent, Replace, Compute, PutAll (milliseconds)
	Entries  map[string][]byte `json:"entries,omitempty"`  // Used for: PutAll (request and response)

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Used for: Get, PutIfAbsent, RemoveIf, Replace, ReplaceIf responses
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Command (marshalled command), Stats response
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

func withErr(msg *Message, err error) *Message {
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewPutRequest creates a new Put request
func NewPutRequest(key string, value []byte, lifespan uint64) *Message {
	return &Message{MsgType: MsgTPut, Key: key, Value: value, Lifespan: lifespan}
}

// NewPutResponse creates a new Put response carrying the previous value
func NewPutResponse(previous []byte, err error) *Message {
	return withErr(&Message{MsgType: MsgTPut, Value: previous, Ok: previous != nil}, err)
}

// NewPutIfAbsentRequest creates a new PutIfAbsent request
func NewPutIfAbsentRequest(key string, value []byte, lifespan uint64) *Message {
	return &Message{MsgType: MsgTPutIfAbsent, Key: key, Value: value, Lifespan: lifespan}
}

// NewPutIfAbsentResponse creates a new PutIfAbsent response. Ok is set if the
// value was stored, otherwise Value holds the existing value.
func NewPutIfAbsentResponse(existing []byte, ok bool, err error) *Message {
	return withErr(&Message{MsgType: MsgTPutIfAbsent, Value: existing, Ok: ok}, err)
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{MsgType: MsgTGet, Key: key}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	return withErr(&Message{MsgType: MsgTGet, Value: value, Ok: ok}, err)
}

// NewRemoveRequest creates a new Remove request
func NewRemoveRequest(key string) *Message {
	return &Message{MsgType: MsgTRemove, Key: key}
}

// NewRemoveResponse creates a new Remove response carrying the previous value
func NewRemoveResponse(previous []byte, err error) *Message {
	return withErr(&Message{MsgType: MsgTRemove, Value: previous, Ok: previous != nil}, err)
}

// NewRemoveIfRequest creates a new conditional Remove request
func NewRemoveIfRequest(key string, expected []byte) *Message {
	return &Message{MsgType: MsgTRemoveIf, Key: key, Expected: expected}
}

// NewRemoveIfResponse creates a new conditional Remove response
func NewRemoveIfResponse(ok bool, err error) *Message {
	return withErr(&Message{MsgType: MsgTRemoveIf, Ok: ok}, err)
}

// NewReplaceRequest creates a new Replace request
func NewReplaceRequest(key string, value []byte, lifespan uint64) *Message {
	return &Message{MsgType: MsgTReplace, Key: key, Value: value, Lifespan: lifespan}
}

// NewReplaceResponse creates a new Replace response
func NewReplaceResponse(previous []byte, ok bool, err error) *Message {
	return withErr(&Message{MsgType: MsgTReplace, Value: previous, Ok: ok}, err)
}

// NewReplaceIfRequest creates a new conditional Replace request
func NewReplaceIfRequest(key string, expected, value []byte, lifespan uint64) *Message {
	return &Message{MsgType: MsgTReplaceIf, Key: key, Expected: expected, Value: value, Lifespan: lifespan}
}

// NewReplaceIfResponse creates a new conditional Replace response
func NewReplaceIfResponse(ok bool, err error) *Message {
	return withErr(&Message{MsgType: MsgTReplaceIf, Ok: ok}, err)
}

// NewComputeRequest creates a new Compute request for the registered function fn
func NewComputeRequest(key, fn string, arg []byte, lifespan uint64) *Message {
	return &Message{MsgType: MsgTCompute, Key: key, Function: fn, Value: arg, Lifespan: lifespan}
}

// NewComputeResponse creates a new Compute response carrying the new value
func NewComputeResponse(value []byte, err error) *Message {
	return withErr(&Message{MsgType: MsgTCompute, Value: value, Ok: value != nil}, err)
}

// NewPutAllRequest creates a new PutAll request
func NewPutAllRequest(entries map[string][]byte, lifespan uint64) *Message {
	return &Message{MsgType: MsgTPutAll, Entries: entries, Lifespan: lifespan}
}

// NewPutAllResponse creates a new PutAll response carrying the previous values
func NewPutAllResponse(previous map[string][]byte, err error) *Message {
	return withErr(&Message{MsgType: MsgTPutAll, Entries: previous}, err)
}

// NewStatsRequest creates a new Stats request
func NewStatsRequest() *Message {
	return &Message{MsgType: MsgTStats}
}

// NewStatsResponse creates a new Stats response, the rendered stats are stored in Meta
func NewStatsResponse(stats []byte, err error) *Message {
	return withErr(&Message{MsgType: MsgTStats, Meta: stats}, err)
}

// NewCommandRequest creates a new Command message sent from node origin to
// another node of the cluster
func NewCommandRequest(origin string, payload []byte) *Message {
	return &Message{MsgType: MsgTCommand, Key: origin, Meta: payload}
}

// NewCommandResponse creates a new Command response
func NewCommandResponse(err error) *Message {
	return withErr(&Message{MsgType: MsgTCommand}, err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSuccess:
		return "success"
	case MsgTError:
		return "error"
	case MsgTPut:
		return "put"
	case MsgTPutIfAbsent:
		return "putIfAbsent"
	case MsgTGet:
		return "get"
	case MsgTRemove:
		return "remove"
	case MsgTRemoveIf:
		return "removeIf"
	case MsgTReplace:
		return "replace"
	case MsgTReplaceIf:
		return "replaceIf"
	case MsgTCompute:
		return "compute"
	case MsgTPutAll:
		return "putAll"
	case MsgTStats:
		return "stats"
	case MsgTCommand:
		return "command"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for candidate := MsgTSuccess; candidate <= MsgTCommand; candidate++ {
		if candidate.String() == s {
			*t = candidate
			return nil
		}
	}
	if s == MsgTUnknown.String() {
		*t = MsgTUnknown
		return nil
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Cache operations

	MsgTPut         // Store a value, returns the previous value
	MsgTPutIfAbsent // Store a value if the key does not exist
	MsgTGet         // Get a value by key
	MsgTRemove      // Remove a key, returns the previous value
	MsgTRemoveIf    // Remove a key if it holds the expected value
	MsgTReplace     // Replace the value of an existing key
	MsgTReplaceIf   // Replace the value if the key holds the expected value
	MsgTCompute     // Apply a registered compute function
	MsgTPutAll      // Store many values
	MsgTStats       // Node statistics

	// Cluster operations

	MsgTCommand // Replication command between nodes
)
