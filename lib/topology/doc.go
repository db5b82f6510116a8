// Package topology describes cluster membership and key ownership.
//
// A CacheTopology is an immutable snapshot identified by a monotonically
// increasing topology id. Keys map onto a fixed number of segments, every
// segment has an ordered list of write owners: the first owner is the primary
// owner, the remaining ones are the backup owners.
//
// The Manager holds the current topology and notifies listeners when a newer
// topology is installed. The acknowledgment collector registers such a listener
// to invalidate operations that were started under an older topology.
package topology
