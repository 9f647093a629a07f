package presence

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/meetlink/internal/domain"
	"github.com/dkeye/meetlink/internal/wire"
)

func online(ids ...domain.UserID) []domain.Participant {
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Participant{UserID: id, Online: true})
	}
	return out
}

func TestTracker_SnapshotThenLeave(t *testing.T) {
	req := require.New(t)
	tr := NewTracker()

	m, err := wire.Decode([]byte(`{"type":"presence_update","data":{"online_users":[
		{"user_id":"u1","online":true},{"user_id":"u2","online":true}]}}`))
	req.NoError(err)
	ev, err := EventFromMessage(m)
	req.NoError(err)

	roster := tr.Apply(ev)
	req.Equal([]domain.UserID{"u1", "u2"}, roster.IDs())
	req.Equal(2, tr.Count())

	m, err = wire.Decode([]byte(`{"type":"meeting_leave","data":{"user_id":"u2"}}`))
	req.NoError(err)
	ev, err = EventFromMessage(m)
	req.NoError(err)

	roster = tr.Apply(ev)
	req.Equal([]domain.UserID{"u1"}, roster.IDs())
	req.Equal(1, tr.Count())
	req.False(tr.IsOnline("u2"))
}

func TestTracker_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	tr := NewTracker()
	tr.Seed([]domain.Participant{{UserID: "u1", Online: false, Role: "host"}})

	tr.Apply(Join("u1"))
	roster := tr.Apply(Join("u1"))

	req.Equal(1, roster.Count())
	req.Equal(domain.Participant{UserID: "u1", Online: true, Role: "host"}, roster["u1"])
}

func TestTracker_LeaveAbsentIsNoop(t *testing.T) {
	req := require.New(t)
	tr := NewTracker()
	tr.Apply(Join("u1"))

	roster := tr.Apply(Leave("ghost"))
	req.Equal([]domain.UserID{"u1"}, roster.IDs())
}

func TestTracker_SnapshotReplacesRoster(t *testing.T) {
	req := require.New(t)
	tr := NewTracker()
	tr.Apply(Join("u1"))
	tr.Apply(Join("u9"))

	roster := tr.Apply(Snapshot(online("u2", "u3")))
	req.Equal([]domain.UserID{"u2", "u3"}, roster.IDs())
}

func TestTracker_ReturnedRosterIsASnapshot(t *testing.T) {
	req := require.New(t)
	tr := NewTracker()
	roster := tr.Apply(Join("u1"))
	delete(roster, "u1")

	req.True(tr.IsOnline("u1"))
}

// The final roster equals the last snapshot patched by the incremental events after it.
func TestTracker_Convergence(t *testing.T) {
	ids := []domain.UserID{"a", "b", "c", "d", "e"}
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		tr := NewTracker()
		var events []Event
		for i := 0; i < 30; i++ {
			switch rng.Intn(3) {
			case 0:
				events = append(events, Join(ids[rng.Intn(len(ids))]))
			case 1:
				events = append(events, Leave(ids[rng.Intn(len(ids))]))
			default:
				var snap []domain.UserID
				for _, id := range ids {
					if rng.Intn(2) == 0 {
						snap = append(snap, id)
					}
				}
				events = append(events, Snapshot(online(snap...)))
			}
		}

		var got domain.Roster
		for _, ev := range events {
			got = tr.Apply(ev)
		}

		want := map[domain.UserID]bool{}
		last := -1
		for i, ev := range events {
			if ev.Kind == EventSnapshot {
				last = i
			}
		}
		if last >= 0 {
			for _, p := range events[last].Participants {
				want[p.UserID] = true
			}
		}
		for _, ev := range events[last+1:] {
			switch ev.Kind {
			case EventJoin:
				want[ev.UserID] = true
			case EventLeave:
				delete(want, ev.UserID)
			}
		}

		require.Len(t, got, len(want), "round %d", round)
		for id := range want {
			require.True(t, got.IsOnline(id), "round %d id %s", round, id)
		}
	}
}

func TestEventFromMessage_Rejects(t *testing.T) {
	req := require.New(t)
	_, err := EventFromMessage(wire.Ping())
	req.ErrorIs(err, ErrNotPresenceEvent)

	m, err := wire.Decode([]byte(`{"type":"meeting_join","data":{}}`))
	req.NoError(err)
	_, err = EventFromMessage(m)
	req.ErrorIs(err, wire.ErrMissingUser)
}
