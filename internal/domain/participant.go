package domain

import "sort"

// Participant represents one entry of a room roster.
// No transport or lifecycle logic here.
type Participant struct {
	UserID UserID `json:"user_id"`
	Online bool   `json:"online"`
	Role   string `json:"role,omitempty"`
}

// Roster is an immutable view of who is in the room, keyed by user id.
// Holders must not mutate it; Clone before changing.
type Roster map[UserID]Participant

func (r Roster) Clone() Roster {
	out := make(Roster, len(r))
	for id, p := range r {
		out[id] = p
	}
	return out
}

func (r Roster) Count() int { return len(r) }

func (r Roster) IsOnline(id UserID) bool {
	p, ok := r[id]
	return ok && p.Online
}

// IDs returns the roster keys in lexicographic order.
func (r Roster) IDs() []UserID {
	out := make([]UserID, 0, len(r))
	for id := range r {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// List returns the participants sorted by user id.
func (r Roster) List() []Participant {
	out := make([]Participant, 0, len(r))
	for _, id := range r.IDs() {
		out = append(out, r[id])
	}
	return out
}

// RosterDiff lists the ids that appeared and disappeared between two rosters.
type RosterDiff struct {
	Joined []UserID
	Left   []UserID
}

func (d RosterDiff) Empty() bool { return len(d.Joined) == 0 && len(d.Left) == 0 }

// DiffRosters compares prev and next. Both slices are sorted.
func DiffRosters(prev, next Roster) RosterDiff {
	var d RosterDiff
	for _, id := range next.IDs() {
		if _, ok := prev[id]; !ok {
			d.Joined = append(d.Joined, id)
		}
	}
	for _, id := range prev.IDs() {
		if _, ok := next[id]; !ok {
			d.Left = append(d.Left, id)
		}
	}
	return d
}
