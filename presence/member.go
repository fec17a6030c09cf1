package presence

import (
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"golang.org/x/exp/slices"
)

// Member is a room member plus the presentation state this client keeps for it.
type Member struct {
	wire.MemberRecord
	Color string `json:"color"`
	// nil until the first cursor event for this member
	Cursor *wire.Cursor `json:"cursor,omitempty"`
}

func newMember(rec wire.MemberRecord) Member {
	return Member{
		MemberRecord: rec,
		Color:        ColorFor(rec.MemberID),
	}
}

// Members is an ordered roster. Rosters handed out by RoomState are never modified afterwards:
// every change builds a new slice.
type Members []Member

func (ms Members) index(memberID int64) int {
	return slices.IndexFunc(ms, func(m Member) bool {
		return m.MemberID == memberID
	})
}

// Get returns the member with this id.
func (ms Members) Get(memberID int64) (Member, bool) {
	i := ms.index(memberID)
	if i < 0 {
		return Member{}, false
	}
	return ms[i], true
}

func (ms Members) Has(memberID int64) bool {
	return ms.index(memberID) >= 0
}

// IDs returns member ids in roster order.
func (ms Members) IDs() []int64 {
	ids := make([]int64, len(ms))
	for i := range ms {
		ids[i] = ms[i].MemberID
	}
	return ids
}

func (ms Members) clone() Members {
	out := make(Members, len(ms))
	copy(out, ms)
	return out
}

func (ms Members) withMember(m Member) Members {
	out := make(Members, 0, len(ms)+1)
	out = append(out, ms...)
	return append(out, m)
}

func (ms Members) withoutMember(memberID int64) Members {
	i := ms.index(memberID)
	if i < 0 {
		return ms
	}
	out := make(Members, 0, len(ms)-1)
	out = append(out, ms[:i]...)
	return append(out, ms[i+1:]...)
}

// withCursor returns a copy of the roster with the cursor of member i replaced.
func (ms Members) withCursor(i int, cursor wire.Cursor) Members {
	out := ms.clone()
	out[i].Cursor = &cursor
	return out
}

func (ms Members) hasDuplicates() bool {
	seen := make(map[int64]struct{}, len(ms))
	for _, m := range ms {
		if _, ok := seen[m.MemberID]; ok {
			return true
		}
		seen[m.MemberID] = struct{}{}
	}
	return false
}
