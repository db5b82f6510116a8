package cluster

import (
	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/invocation"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// inbound dispatches received commands to the role of the node.
type inbound struct {
	n *Node
}

// --------------------------------------------------------------------------
// Writes (primary owner)
// --------------------------------------------------------------------------

func (v inbound) VisitPutKeyValue(origin topology.Address, cmd *commands.PutKeyValueCommand) error {
	v.n.onWrite(origin, cmd)
	return nil
}

func (v inbound) VisitRemove(origin topology.Address, cmd *commands.RemoveCommand) error {
	v.n.onWrite(origin, cmd)
	return nil
}

func (v inbound) VisitRemoveExpired(origin topology.Address, cmd *commands.RemoveExpiredCommand) error {
	v.n.onWrite(origin, cmd)
	return nil
}

func (v inbound) VisitReplace(origin topology.Address, cmd *commands.ReplaceCommand) error {
	v.n.onWrite(origin, cmd)
	return nil
}

func (v inbound) VisitCompute(origin topology.Address, cmd *commands.ComputeCommand) error {
	v.n.onWrite(origin, cmd)
	return nil
}

func (v inbound) VisitComputeIfAbsent(origin topology.Address, cmd *commands.ComputeIfAbsentCommand) error {
	v.n.onWrite(origin, cmd)
	return nil
}

func (v inbound) VisitReadWriteKey(origin topology.Address, cmd *commands.ReadWriteKeyCommand) error {
	v.n.onWrite(origin, cmd)
	return nil
}

func (v inbound) VisitWriteOnlyKey(origin topology.Address, cmd *commands.WriteOnlyKeyCommand) error {
	v.n.onWrite(origin, cmd)
	return nil
}

func (v inbound) VisitPutMap(origin topology.Address, cmd *commands.PutMapCommand) error {
	v.n.onMultiWrite(origin, cmd)
	return nil
}

func (v inbound) VisitReadWriteMany(origin topology.Address, cmd *commands.ReadWriteManyCommand) error {
	v.n.onMultiWrite(origin, cmd)
	return nil
}

func (v inbound) VisitReadWriteManyEntries(origin topology.Address, cmd *commands.ReadWriteManyEntriesCommand) error {
	v.n.onMultiWrite(origin, cmd)
	return nil
}

func (v inbound) VisitWriteOnlyMany(origin topology.Address, cmd *commands.WriteOnlyManyCommand) error {
	v.n.onMultiWrite(origin, cmd)
	return nil
}

func (v inbound) VisitWriteOnlyManyEntries(origin topology.Address, cmd *commands.WriteOnlyManyEntriesCommand) error {
	v.n.onMultiWrite(origin, cmd)
	return nil
}

func (v inbound) VisitGetKeyValue(origin topology.Address, cmd *commands.GetKeyValueCommand) error {
	n := v.n
	// executeGet may wait for a newer topology
	n.async(func() {
		value, err := n.executeGet(cmd)
		if err != nil {
			n.send(origin, commands.NewExceptionAck(cmd.InvocationID(), cmd.TopologyID(), err))
			return
		}
		n.send(origin, commands.NewPrimaryAck(cmd.InvocationID(), cmd.TopologyID(), true, value, true))
	})
	return nil
}

// --------------------------------------------------------------------------
// Backups
// --------------------------------------------------------------------------

func (v inbound) VisitBackupWrite(_ topology.Address, cmd *commands.BackupWriteCommand) error {
	v.n.receiver.Deliver(cmd)
	return nil
}

func (v inbound) VisitBackupMultiKeyWrite(_ topology.Address, cmd *commands.BackupMultiKeyWriteCommand) error {
	v.n.receiver.Deliver(cmd)
	return nil
}

// --------------------------------------------------------------------------
// Acks (originator)
// --------------------------------------------------------------------------

func (v inbound) VisitPrimaryAck(_ topology.Address, cmd *commands.PrimaryAckCommand) error {
	v.n.collector.PrimaryResult(cmd.InvocationID(), cmd.TopologyID(), cmd.Result(), cmd.IsSuccessful())
	return nil
}

func (v inbound) VisitPrimaryMultiKeyAck(origin topology.Address, cmd *commands.PrimaryMultiKeyAckCommand) error {
	v.n.collector.PrimaryMultiKeyResult(cmd.InvocationID(), origin, cmd.TopologyID(), cmd.Returns())
	return nil
}

func (v inbound) VisitBackupAck(origin topology.Address, cmd *commands.BackupAckCommand) error {
	v.n.collector.BackupAck(cmd.InvocationID(), origin, cmd.TopologyID())
	return nil
}

func (v inbound) VisitBackupMultiKeyAck(origin topology.Address, cmd *commands.BackupMultiKeyAckCommand) error {
	v.n.collector.MultiKeyBackupAck(cmd.InvocationID(), origin, cmd.TopologyID(), cmd.Segments())
	return nil
}

func (v inbound) VisitExceptionAck(origin topology.Address, cmd *commands.ExceptionAckCommand) error {
	v.n.collector.ExceptionAck(cmd.InvocationID(), origin, cmd.TopologyID(), cmd.Err(origin))
	return nil
}

// --------------------------------------------------------------------------
// Remote Primary
// --------------------------------------------------------------------------

// onWrite performs a write forwarded by the originator origin and answers with
// a primary ack or an exception ack.
func (n *Node) onWrite(origin topology.Address, cmd commands.DataWriteCommand) {
	n.async(func() {
		id := cmd.InvocationID()
		result, replicated, err := n.executeWrite(invocation.NewRemoteContext(origin), cmd)
		if err != nil {
			log.Debugf("%s: %s from %s failed: %v", n.address, id, origin, err)
			n.send(origin, commands.NewExceptionAck(id, cmd.TopologyID(), err))
			return
		}
		n.send(origin, commands.NewPrimaryAck(id, cmd.TopologyID(), replicated, result, cmd.IsReturnValueExpected()))
	})
}

// onMultiWrite performs the part of a multi key write the originator origin
// forwarded to this node.
func (n *Node) onMultiWrite(origin topology.Address, cmd commands.MultiKeyWriteCommand) {
	n.async(func() {
		id := cmd.InvocationID()
		returns, err := n.executeMultiWrite(invocation.NewRemoteContext(origin), cmd)
		if err != nil {
			log.Debugf("%s: %s from %s failed: %v", n.address, id, origin, err)
			n.send(origin, commands.NewExceptionAck(id, cmd.TopologyID(), err))
			return
		}
		n.send(origin, commands.NewPrimaryMultiKeyAck(id, cmd.TopologyID(), returns))
	})
}
