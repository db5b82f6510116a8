package topology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ValentinKolb/tKV/lib/util"
	"github.com/google/uuid"
)

// Address identifies a node in the cluster.
type Address string

// NewAddress generates a random, unique node address.
func NewAddress() Address {
	return Address(uuid.NewString())
}

// NoTopology is used by commands that were never bound to a topology.
const NoTopology = -1

const segmentSeed = 0

// CacheTopology is an immutable snapshot of the ownership of all segments.
type CacheTopology struct {
	TopologyID int
	Members    []Address
	owners     [][]Address
}

// NewCacheTopology creates a topology where segment s is owned by numOwners
// consecutive members (in sorted order) starting at member s mod len(members).
func NewCacheTopology(topologyID int, members []Address, numSegments, numOwners int) (*CacheTopology, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("topology %d: no members", topologyID)
	}
	if numSegments <= 0 {
		return nil, fmt.Errorf("topology %d: invalid number of segments %d", topologyID, numSegments)
	}
	if numOwners <= 0 {
		return nil, fmt.Errorf("topology %d: invalid number of owners %d", topologyID, numOwners)
	}

	sorted := append([]Address(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if numOwners > len(sorted) {
		numOwners = len(sorted)
	}

	owners := make([][]Address, numSegments)
	for s := 0; s < numSegments; s++ {
		owners[s] = make([]Address, numOwners)
		for i := 0; i < numOwners; i++ {
			owners[s][i] = sorted[(s+i)%len(sorted)]
		}
	}
	return &CacheTopology{TopologyID: topologyID, Members: sorted, owners: owners}, nil
}

// NewCacheTopologyWithOwners creates a topology with an explicit owner list per
// segment, e.g. to describe a rebalance.
func NewCacheTopologyWithOwners(topologyID int, members []Address, owners [][]Address) (*CacheTopology, error) {
	if len(owners) == 0 {
		return nil, fmt.Errorf("topology %d: no segments", topologyID)
	}
	memberSet := make(map[Address]bool, len(members))
	for _, m := range members {
		memberSet[m] = true
	}
	copied := make([][]Address, len(owners))
	for s, list := range owners {
		if len(list) == 0 {
			return nil, fmt.Errorf("topology %d: segment %d has no owner", topologyID, s)
		}
		for _, a := range list {
			if !memberSet[a] {
				return nil, fmt.Errorf("topology %d: owner %s of segment %d is not a member", topologyID, a, s)
			}
		}
		copied[s] = append([]Address(nil), list...)
	}
	return &CacheTopology{TopologyID: topologyID, Members: append([]Address(nil), members...), owners: copied}, nil
}

// NumSegments returns the number of segments.
func (t *CacheTopology) NumSegments() int {
	return len(t.owners)
}

// Segment returns the segment a key belongs to.
func (t *CacheTopology) Segment(key string) int {
	return util.Bucket(util.HashString(key, segmentSeed), len(t.owners))
}

// Owners returns the write owners of a segment, primary first.
func (t *CacheTopology) Owners(segment int) []Address {
	return t.owners[segment]
}

// IsMember reports whether a is part of this topology.
func (t *CacheTopology) IsMember(a Address) bool {
	for _, m := range t.Members {
		if m == a {
			return true
		}
	}
	return false
}

// Distribution returns the distribution of key as seen from local.
func (t *CacheTopology) Distribution(key string, local Address) DistributionInfo {
	return t.DistributionForSegment(t.Segment(key), local)
}

// DistributionForSegment returns the distribution of a segment as seen from local.
func (t *CacheTopology) DistributionForSegment(segment int, local Address) DistributionInfo {
	return DistributionInfo{
		segment: segment,
		owners:  t.owners[segment],
		local:   local,
	}
}

// String returns a compact description, e.g. "topology 3 [a b c] 16 segments".
func (t *CacheTopology) String() string {
	names := make([]string, len(t.Members))
	for i, m := range t.Members {
		names[i] = string(m)
	}
	return fmt.Sprintf("topology %d [%s] %d segments", t.TopologyID, strings.Join(names, " "), len(t.owners))
}

// --------------------------------------------------------------------------
// Distribution Info
// --------------------------------------------------------------------------

// DistributionInfo describes the owners of one segment relative to a node.
type DistributionInfo struct {
	segment int
	owners  []Address
	local   Address
}

func (d DistributionInfo) Segment() int {
	return d.segment
}

func (d DistributionInfo) Primary() Address {
	return d.owners[0]
}

// WriteBackups returns the write owners except the primary.
func (d DistributionInfo) WriteBackups() []Address {
	return d.owners[1:]
}

func (d DistributionInfo) WriteOwners() []Address {
	return d.owners
}

func (d DistributionInfo) IsPrimary() bool {
	return d.owners[0] == d.local
}

func (d DistributionInfo) IsWriteBackup() bool {
	for _, a := range d.owners[1:] {
		if a == d.local {
			return true
		}
	}
	return false
}

func (d DistributionInfo) IsWriteOwner() bool {
	return d.IsPrimary() || d.IsWriteBackup()
}
