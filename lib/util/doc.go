// Package util provides small building blocks shared by the protocol packages.
//
// The package contains:
//   - functions: seeded FNV-1a hashing used for key to segment mapping
//   - lockfreempsc: a lock-free Multi-Producer Single-Consumer (MPSC) queue used
//     by the in-memory transport to hand messages to a node's inbound worker
package util
