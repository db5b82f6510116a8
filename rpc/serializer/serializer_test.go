package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/tKV/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Put request
		{
			MsgType:  common.MsgTPut,
			Key:      "test-key",
			Value:    []byte("test-value"),
			Lifespan: 1500,
		},

		// Get response
		{
			MsgType: common.MsgTGet,
			Value:   []byte("test-value"),
			Ok:      true,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// PutAll request
		{
			MsgType: common.MsgTPutAll,
			Entries: map[string][]byte{"a": []byte("1"), "b": []byte("2")},
		},

		// Command between nodes
		{
			MsgType: common.MsgTCommand,
			Key:     "node-1",
			Meta:    []byte{3, 0, 0, 0, 1, 42},
		},

		// Message with all fields filled
		{
			MsgType:  common.MsgTReplaceIf,
			Key:      "test-replace-key",
			Value:    []byte("new-value"),
			Expected: []byte("old-value"),
			Function: "append",
			Lifespan: 300,
			Entries:  map[string][]byte{"k": []byte("v")},
			Ok:       true,
			Err:      "",
			Meta:     []byte("test-meta-data"),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTCommand; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with empty strings and zero values",
			msg: common.Message{
				MsgType:  common.MsgTPut,
				Key:      "",
				Lifespan: 0,
				Value:    []byte{},
				Ok:       false,
				Err:      "",
				Meta:     []byte{},
			},
		},
		{
			name: "Message with empty strings but Ok=true",
			msg: common.Message{
				MsgType: common.MsgTGet,
				Key:     "",
				Ok:      true,
				Value:   nil,
			},
		},
		{
			name: "Message with empty value slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTPut,
				Key:     "test",
				Value:   []byte{},
			},
		},
		{
			name: "Message with empty expected slice but not nil",
			msg: common.Message{
				MsgType:  common.MsgTRemoveIf,
				Key:      "test",
				Expected: []byte{},
			},
		},
		{
			name: "Message with empty and nil entries",
			msg: common.Message{
				MsgType: common.MsgTPutAll,
				Entries: map[string][]byte{"empty": {}, "nil": nil},
			},
		},
		{
			name: "Message with empty meta slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTCommand,
				Meta:    []byte{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// Verify key
			if tc.msg.Key != result.Key {
				t.Errorf("Key mismatch: expected '%s', got '%s'", tc.msg.Key, result.Key)
			}

			// Verify Lifespan
			if tc.msg.Lifespan != result.Lifespan {
				t.Errorf("Lifespan mismatch: expected %d, got %d", tc.msg.Lifespan, result.Lifespan)
			}

			// Verify Ok
			if tc.msg.Ok != result.Ok {
				t.Errorf("Ok mismatch: expected %v, got %v", tc.msg.Ok, result.Ok)
			}

			// Verify Err
			if tc.msg.Err != result.Err {
				t.Errorf("Err mismatch: expected '%s', got '%s'", tc.msg.Err, result.Err)
			}

			// Verify MsgType
			if tc.msg.MsgType != result.MsgType {
				t.Errorf("MsgType mismatch: expected %v, got %v", tc.msg.MsgType, result.MsgType)
			}

			// byte slices and maps must keep the difference between nil and empty
			compareBytes(t, "Value", tc.msg.Value, result.Value)
			compareBytes(t, "Expected", tc.msg.Expected, result.Expected)
			compareBytes(t, "Meta", tc.msg.Meta, result.Meta)
			if (tc.msg.Entries == nil) != (result.Entries == nil) || len(tc.msg.Entries) != len(result.Entries) {
				t.Errorf("Entries mismatch: expected %v, got %v", tc.msg.Entries, result.Entries)
			}
			for k, v := range tc.msg.Entries {
				compareBytes(t, "Entries["+k+"]", v, result.Entries[k])
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1}, // Only message type, no flags
			expectError: true,
		},
		{
			name:        "Too short flags",
			data:        []byte{1, 0}, // Message type and one flag byte
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 2, 1, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Ok carried by flag only",
			data:        []byte{4, 0, 64},
			expectError: false,
		},
		{
			name:        "Trailing bytes",
			data:        []byte{1, 0, 0, 9},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func compareBytes(t *testing.T, field string, expected, got []byte) {
	t.Helper()
	if (expected == nil) != (got == nil) {
		t.Errorf("%s nil/non-nil mismatch: expected %v, got %v", field, expected, got)
		return
	}
	if string(expected) != string(got) {
		t.Errorf("%s content mismatch: expected %v, got %v", field, expected, got)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"json", false},
		{"gob", false},
		{"binary", false},
		{"xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Errorf("New(%q) returned nil serializer", tt.name)
			}
		})
	}
}

// TestJSONMessageTypeNames checks that message types are written by name
func TestJSONMessageTypeNames(t *testing.T) {
	data, err := NewJSONSerializer().Serialize(common.Message{MsgType: common.MsgTPutIfAbsent})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	if string(data) != `{"msg_type":"putIfAbsent"}` {
		t.Errorf("unexpected json %s", data)
	}

	var msg common.Message
	if err := NewJSONSerializer().Deserialize([]byte(`{"msg_type":"lock"}`), &msg); err == nil {
		t.Errorf("expected error for unknown message type")
	}
}
