// Package presence keeps the converged roster of a meeting room.
//
// Tracker is a pure reducer: it is driven by a single dispatch goroutine and holds no lock.
package presence

import (
	"errors"
	"fmt"

	"github.com/dkeye/meetlink/internal/domain"
	"github.com/dkeye/meetlink/internal/wire"
)

var ErrNotPresenceEvent = errors.New("not a presence event")

type EventKind int

const (
	EventJoin EventKind = iota
	EventLeave
	EventSnapshot
)

type Event struct {
	Kind         EventKind
	UserID       domain.UserID
	Participants []domain.Participant
}

func Join(id domain.UserID) Event  { return Event{Kind: EventJoin, UserID: id} }
func Leave(id domain.UserID) Event { return Event{Kind: EventLeave, UserID: id} }

func Snapshot(ps []domain.Participant) Event {
	return Event{Kind: EventSnapshot, Participants: ps}
}

// EventFromMessage maps meeting_join, meeting_leave and presence_update to an Event.
func EventFromMessage(m wire.Message) (Event, error) {
	switch m.Type {
	case wire.TypeMeetingJoin:
		id, err := m.User()
		if err != nil {
			return Event{}, err
		}
		return Join(id), nil
	case wire.TypeMeetingLeave:
		id, err := m.User()
		if err != nil {
			return Event{}, err
		}
		return Leave(id), nil
	case wire.TypePresenceUpdate:
		ps, err := m.Presence()
		if err != nil {
			return Event{}, err
		}
		return Snapshot(ps), nil
	}
	return Event{}, fmt.Errorf("%w: %s", ErrNotPresenceEvent, m.Type)
}

type Tracker struct {
	roster domain.Roster
}

func NewTracker() *Tracker {
	return &Tracker{roster: make(domain.Roster)}
}

// Apply folds ev into the roster and returns the updated snapshot.
func (t *Tracker) Apply(ev Event) domain.Roster {
	switch ev.Kind {
	case EventJoin:
		p := t.roster[ev.UserID]
		p.UserID = ev.UserID
		p.Online = true
		t.roster[ev.UserID] = p
	case EventLeave:
		delete(t.roster, ev.UserID)
	case EventSnapshot:
		next := make(domain.Roster, len(ev.Participants))
		for _, p := range ev.Participants {
			next[p.UserID] = p
		}
		t.roster = next
	}
	return t.roster.Clone()
}

// Seed applies the participant list fetched at join time as a snapshot.
func (t *Tracker) Seed(ps []domain.Participant) domain.Roster {
	return t.Apply(Snapshot(ps))
}

func (t *Tracker) Count() int { return t.roster.Count() }

func (t *Tracker) IsOnline(id domain.UserID) bool { return t.roster.IsOnline(id) }

func (t *Tracker) Snapshot() domain.Roster { return t.roster.Clone() }

// Reset empties the roster, used when the session ends.
func (t *Tracker) Reset() { t.roster = make(domain.Roster) }
