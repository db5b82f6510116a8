package commands

import (
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/tKV/lib/codec"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// InvocationID identifies one logical write across all network hops and retries.
type InvocationID struct {
	Address topology.Address // originating node
	ID      uint64
}

func (id InvocationID) String() string {
	return fmt.Sprintf("%s:%d", id.Address, id.ID)
}

// IsZero reports whether id was never assigned.
func (id InvocationID) IsZero() bool {
	return id.Address == "" && id.ID == 0
}

func (id InvocationID) writeTo(enc *codec.Encoder) {
	enc.WriteString(string(id.Address))
	enc.WriteUint64(id.ID)
}

func readInvocationID(dec *codec.Decoder) InvocationID {
	return InvocationID{Address: topology.Address(dec.ReadString()), ID: dec.ReadUint64()}
}

// IDGenerator creates the invocation ids of one node.
type IDGenerator struct {
	address topology.Address
	counter atomic.Uint64
}

func NewIDGenerator(address topology.Address) *IDGenerator {
	return &IDGenerator{address: address}
}

// Next returns a new id, never returned before by this generator.
func (g *IDGenerator) Next() InvocationID {
	return InvocationID{Address: g.address, ID: g.counter.Add(1)}
}
