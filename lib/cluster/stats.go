package cluster

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/tKV/lib/ack"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// Stats is a snapshot of the state of a node.
type Stats struct {
	Address    topology.Address
	TopologyID int
	Entries    int
	Records    int
	Retries    uint64
	Forwarded  uint64
	Acks       ack.Stats
}

// Stats returns a snapshot of the node counters.
func (n *Node) Stats() Stats {
	return Stats{
		Address:    n.address,
		TopologyID: n.topology.TopologyID(),
		Entries:    n.pipeline.Container().Size(),
		Records:    n.records.Len(),
		Retries:    n.retries.Get(),
		Forwarded:  n.forwarded.Get(),
		Acks:       n.collector.Stats(),
	}
}

func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Node:\n")
	fmt.Fprintf(&b, "  Address:     %s\n", s.Address)
	fmt.Fprintf(&b, "  Topology:    %d\n", s.TopologyID)
	fmt.Fprintf(&b, "  Entries:     %d\n", s.Entries)
	fmt.Fprintf(&b, "  Records:     %d\n", s.Records)
	fmt.Fprintf(&b, "Writes:\n")
	fmt.Fprintf(&b, "  Forwarded:   %d\n", s.Forwarded)
	fmt.Fprintf(&b, "  Retries:     %d\n", s.Retries)
	fmt.Fprintf(&b, "Acks:\n")
	fmt.Fprintf(&b, "  Pending:     %d\n", s.Acks.Pending)
	fmt.Fprintf(&b, "  Completed:   %d\n", s.Acks.Completed)
	fmt.Fprintf(&b, "  Outdated:    %d\n", s.Acks.Outdated)
	fmt.Fprintf(&b, "  Failed:      %d\n", s.Acks.Failed)
	fmt.Fprintf(&b, "  Timed out:   %d\n", s.Acks.TimedOut)
	fmt.Fprintf(&b, "  Stale:       %d\n", s.Acks.Stale)
	fmt.Fprintf(&b, "  Duplicate:   %d\n", s.Acks.Duplicate)
	fmt.Fprintf(&b, "  Mean:        %s\n", s.Acks.MeanLatency)
	fmt.Fprintf(&b, "  P99:         %s\n", s.Acks.P99Latency)
	return b.String()
}
