package signaling

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meetlink/internal/core"
	"github.com/dkeye/meetlink/internal/domain"
)

// peerLink is the signaling state with one remote participant.
// It is only touched from the dispatch goroutine.
type peerLink struct {
	peer  domain.UserID
	phase domain.PeerPhase
	gen   uint64

	conn      core.MediaConnection
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// buffer appends c, dropping the oldest candidate once limit is reached.
// It reports whether a candidate was dropped.
func (l *peerLink) buffer(c webrtc.ICECandidateInit, limit int) bool {
	dropped := false
	if limit > 0 && len(l.pending) >= limit {
		copy(l.pending, l.pending[1:])
		l.pending = l.pending[:len(l.pending)-1]
		dropped = true
	}
	l.pending = append(l.pending, c)
	return dropped
}

// takePending returns the buffered candidates in arrival order and clears the buffer.
func (l *peerLink) takePending() []webrtc.ICECandidateInit {
	out := l.pending
	l.pending = nil
	return out
}

func (l *peerLink) info() domain.PeerInfo {
	return domain.PeerInfo{PeerID: l.peer, Phase: l.phase, Pending: len(l.pending)}
}
