package cluster

import (
	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/invocation"
	"github.com/ValentinKolb/tKV/lib/order"
)

// applyBackup is called by the receiver in sequence order per segment. It
// applies a backup command and acknowledges it to the originator.
func (n *Node) applyBackup(s order.Sequenced) {
	switch c := s.(type) {
	case *commands.BackupWriteCommand:
		id := c.InvocationID()
		cmd, err := c.Command()
		if err == nil {
			_, err = n.pipeline.Apply(invocation.NewRemoteContext(id.Address), cmd)
		}
		if err != nil {
			log.Errorf("%s: applying backup %s of %q: %v", n.address, id, c.Key(), err)
			n.send(id.Address, commands.NewExceptionAck(id, c.TopologyID(), err))
			return
		}
		n.send(id.Address, commands.NewBackupAck(id, c.TopologyID()))

	case *commands.BackupMultiKeyWriteCommand:
		id := c.InvocationID()
		if _, err := n.pipeline.Apply(invocation.NewRemoteContext(id.Address), c.Command()); err != nil {
			log.Errorf("%s: applying backup %s of segment %d: %v", n.address, id, c.Segment(), err)
			n.send(id.Address, commands.NewExceptionAck(id, c.TopologyID(), err))
			return
		}
		n.send(id.Address, commands.NewBackupMultiKeyAck(id, c.TopologyID(), []int{c.Segment()}))

	default:
		log.Errorf("%s: unexpected backup command %T", n.address, s)
	}
}
