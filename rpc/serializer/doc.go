// Package serializer converts common.Message values to bytes and back. Client
// requests and node to node commands use the same serializer, configured once
// per process.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format built on lib/codec. A flag word
//     marks the present fields, only those are written. Nil and empty byte slices
//     stay distinct.
//
//   - jsonSerializerImpl: JSON encoding, useful for debugging. Message types are
//     written by name, empty byte slices decode as nil.
//
//   - gobSerializerImpl: Go's gob encoding. It carries a type description with
//     every message and is the slowest and largest of the three.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	s, err := serializer.New("binary")
//	data, err := s.Serialize(message)
//	// ... send data ...
//	var receivedMsg common.Message
//	err = s.Deserialize(receivedData, &receivedMsg)
package serializer
