// Package cluster wires the replication protocol of a node.
//
// Every write is routed in a triangle: the originator registers the expected
// acknowledgments with its collector and forwards the write to the primary
// owner of the key. The primary owner locks the key, performs the write, takes
// the next sequence number of the segment and sends one backup command to the
// backup owners. It then answers the originator with a primary ack. The backup
// owners apply the backup commands in sequence order and acknowledge directly
// to the originator.
//
//	originator --write--> primary --backup--> backups
//	     ^                   |                   |
//	     +----primary ack----+                   |
//	     +-------------backup ack----------------+
//
// If the originator is the primary owner the first leg is local. Multi key
// writes are split by primary owner on the originator and by segment on the
// primary owners.
//
// Writes that fail with commands.ErrOutdatedTopology are retried under a
// topology newer than the one that failed, the originator waits for it if it
// has not installed it yet. A primary owner receiving a write of a topology
// it has not installed waits for it before rejecting the write. Retried writes that already completed on the primary owner
// are answered from its invocation records and the current state of the keys
// is replicated again.
//
// Nodes talk to each other through a Transport. LocalNetwork connects nodes of
// one process, package rpc/peer adapts the rpc transports.
package cluster
