package cluster

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/tKV/lib/commands"
	"github.com/ValentinKolb/tKV/lib/container"
	"github.com/ValentinKolb/tKV/lib/invocation"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// replicationAware is implemented by writes that are successful without
// changing anything, e.g. the removal of a missing key.
type replicationAware interface {
	ShouldReplicate(ctx commands.InvocationContext, requireReplicateIfRemote bool) bool
}

func shouldReplicate(ctx commands.InvocationContext, cmd commands.WriteCommand) bool {
	if r, ok := cmd.(replicationAware); ok {
		return r.ShouldReplicate(ctx, false)
	}
	return cmd.IsSuccessful()
}

// --------------------------------------------------------------------------
// Single Key
// --------------------------------------------------------------------------

// executeWrite performs cmd as primary owner and replicates it to the backup
// owners while the key is locked. replicated reports whether the originator
// has to wait for backup acks, it is false for writes that were not applied.
func (n *Node) executeWrite(ctx *invocation.Context, cmd commands.DataWriteCommand) (result interface{}, replicated bool, err error) {
	t, err := n.checkTopology(cmd.TopologyID())
	if err != nil {
		return nil, false, err
	}
	info := t.DistributionForSegment(cmd.Segment(), n.address)
	if !info.IsPrimary() {
		return nil, false, fmt.Errorf("%s: not primary of segment %d: %w", n.address, cmd.Segment(), commands.ErrOutdatedTopology)
	}
	backups := info.WriteBackups()

	if cmd.Flags().Has(commands.CommandRetry) {
		if rec, ok := n.records.Load(cmd.InvocationID()); ok {
			return n.replayWrite(ctx, cmd, backups, rec)
		}
	}

	result, err = n.pipeline.Invoke(ctx, cmd, func(ictx *invocation.Context, _ commands.WriteCommand, rv interface{}) error {
		replicated = shouldReplicate(ictx, cmd)
		n.records.Store(cmd.InvocationID(), invocation.Record{Successful: replicated, Result: rv})
		if replicated && len(backups) > 0 {
			seq := n.sequencer.Next(cmd.Segment(), cmd.TopologyID())
			backup := commands.NewBackupWrite(cmd, ictx.LookupEntry(cmd.Key()), seq)
			log.Debugf("%s: %s segment=%d seq=%d %s to %v",
				n.address, cmd.InvocationID(), cmd.Segment(), seq, backup.Operation(), backups)
			for _, b := range backups {
				n.send(b, backup)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, replicated, nil
}

// replayWrite answers a retried write that already completed with the recorded
// result and replicates the current state of the key.
func (n *Node) replayWrite(ctx *invocation.Context, cmd commands.DataWriteCommand, backups []topology.Address, rec invocation.Record) (interface{}, bool, error) {
	log.Debugf("%s: %s already completed, replaying", n.address, cmd.InvocationID())
	if !rec.Successful || len(backups) == 0 {
		return rec.Result, rec.Successful, nil
	}
	sent := false
	err := n.pipeline.Locked(ctx, cmd, func(ictx *invocation.Context) error {
		seq := n.sequencer.Next(cmd.Segment(), cmd.TopologyID())
		backup := commands.NewBackupWriteOfState(cmd, ictx.LookupEntry(cmd.Key()), seq)
		for _, b := range backups {
			n.send(b, backup)
		}
		sent = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rec.Result, sent, nil
}

// --------------------------------------------------------------------------
// Multi Key
// --------------------------------------------------------------------------

// executeMultiWrite performs cmd as primary owner of all its keys and sends one
// backup command per segment to the backup owners of the segment.
func (n *Node) executeMultiWrite(ctx *invocation.Context, cmd commands.MultiKeyWriteCommand) (map[string][]byte, error) {
	t, err := n.checkTopology(cmd.TopologyID())
	if err != nil {
		return nil, err
	}
	bySegment := make(map[int][]string)
	for _, key := range cmd.AffectedKeys() {
		info := t.Distribution(key, n.address)
		if !info.IsPrimary() {
			return nil, fmt.Errorf("%s: not primary of %q: %w", n.address, key, commands.ErrOutdatedTopology)
		}
		bySegment[info.Segment()] = append(bySegment[info.Segment()], key)
	}
	segments := make([]int, 0, len(bySegment))
	for s := range bySegment {
		segments = append(segments, s)
	}
	sort.Ints(segments)

	if cmd.Flags().Has(commands.CommandRetry) {
		if rec, ok := n.records.Load(cmd.InvocationID()); ok {
			return n.replayMultiWrite(ctx, cmd, t, segments, bySegment, rec)
		}
	}

	rv, err := n.pipeline.Invoke(ctx, cmd, func(_ *invocation.Context, _ commands.WriteCommand, rv interface{}) error {
		n.records.Store(cmd.InvocationID(), invocation.Record{Successful: true, Result: rv})
		for _, s := range segments {
			backups := t.DistributionForSegment(s, n.address).WriteBackups()
			if len(backups) == 0 {
				continue
			}
			seq := n.sequencer.Next(s, cmd.TopologyID())
			backup, err := commands.NewBackupMultiKeyWrite(cmd.Subset(bySegment[s]), s, seq)
			if err != nil {
				return err
			}
			log.Debugf("%s: %s segment=%d seq=%d %s to %v",
				n.address, cmd.InvocationID(), s, seq, backup.Operation(), backups)
			for _, b := range backups {
				n.send(b, backup)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	returns, _ := rv.(map[string][]byte)
	return returns, nil
}

func (n *Node) replayMultiWrite(ctx *invocation.Context, cmd commands.MultiKeyWriteCommand, t *topology.CacheTopology,
	segments []int, bySegment map[int][]string, rec invocation.Record) (map[string][]byte, error) {
	log.Debugf("%s: %s already completed, replaying", n.address, cmd.InvocationID())
	err := n.pipeline.Locked(ctx, cmd, func(ictx *invocation.Context) error {
		for _, s := range segments {
			backups := t.DistributionForSegment(s, n.address).WriteBackups()
			if len(backups) == 0 {
				continue
			}
			entries := make(map[string]*container.MVCCEntry, len(bySegment[s]))
			for _, key := range bySegment[s] {
				entries[key] = ictx.LookupEntry(key)
			}
			seq := n.sequencer.Next(s, cmd.TopologyID())
			backup := commands.NewBackupMultiKeyWriteOfState(cmd.Subset(bySegment[s]), s, seq, entries)
			for _, b := range backups {
				n.send(b, backup)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	returns, _ := rec.Result.(map[string][]byte)
	return returns, nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// executeGet reads key as primary owner.
func (n *Node) executeGet(cmd *commands.GetKeyValueCommand) ([]byte, error) {
	t, err := n.checkTopology(cmd.TopologyID())
	if err != nil {
		return nil, err
	}
	if !t.DistributionForSegment(cmd.Segment(), n.address).IsPrimary() {
		return nil, fmt.Errorf("%s: not primary of segment %d: %w", n.address, cmd.Segment(), commands.ErrOutdatedTopology)
	}
	v, _ := n.pipeline.Read(cmd.Key())
	return v, nil
}
