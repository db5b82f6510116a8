// Package peer carries the replication commands of a cluster node over the
// rpc transports.
//
// A Peer implements cluster.Transport. Commands are marshalled and wrapped in a
// Command message with the address of the sending node. Every destination has
// one link with a lock-free queue and a single sending goroutine, so the
// commands for one node leave in the order they were sent. The rpc server of
// the receiving node passes the payload to Peer.Receive, which hands the
// command to the node on one goroutine in arrival order.
//
// Sends never block the node. A command that can not be delivered is dropped
// and logged, the originator notices the missing acks and retries.
package peer
