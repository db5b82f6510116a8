// Package commands contains every command exchanged by the nodes of a cluster.
//
// Command families:
//
//   - Write commands: one mutation each (put, remove, replace, compute,
//     compute if absent, remove expired, put map and the functional read-write
//     and write-only variants). A write command carries its invocation id,
//     its key(s) and segment, behavioral flags, a value matcher and the topology
//     id it was created under. Executing a write command against a local entry
//     is done by Perform, the invocation pipeline calls it.
//
//   - Backup commands: sent by the primary owner to the backup owners after it
//     executed a write. They carry a sequence number per segment, so backups
//     apply writes in the order the primary decided. On the backup a backup
//     command rebuilds an equivalent write command that always matches and
//     skips locking.
//
//   - Acknowledgment commands: replies of the primary owner and of the backup
//     owners, routed to the node that started the operation (the originator).
//
//   - Get: a read routed to the primary owner, answered with a primary ack.
//
// Every command implements ReplicableCommand: it has a type tag and writes
// itself to (and reads itself from) the codec. Marshal and Unmarshal prefix
// the encoding with the type tag so any command can be decoded without knowing
// its type in advance.
//
// Commands are dispatched through the Visitor interface, which has one method
// per command type. The set of commands is closed: adding a new command means
// adding a type tag, a factory case and a visitor method.
package commands
