package order

import (
	"github.com/puzpuzpuz/xsync/v3"
)

type stream struct {
	topologyID int
	last       uint64
}

// Sequencer assigns the sequence numbers of the backup commands of a primary.
type Sequencer struct {
	streams *xsync.MapOf[int, stream]
}

func NewSequencer() *Sequencer {
	return &Sequencer{streams: xsync.NewMapOf[int, stream]()}
}

// Next returns the next sequence of segment under topologyID. A newer topology
// restarts the stream at 1.
func (s *Sequencer) Next(segment, topologyID int) uint64 {
	st, _ := s.streams.Compute(segment, func(old stream, loaded bool) (stream, bool) {
		if !loaded || topologyID > old.topologyID {
			return stream{topologyID: topologyID, last: 1}, false
		}
		old.last++
		return old, false
	})
	return st.last
}
