package presence

import (
	"testing"

	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
)

func TestMembersCopyOnWrite(t *testing.T) {
	base := Members{newMember(alice), newMember(bob)}

	added := base.withMember(newMember(carol))
	assertIDs(t, added, alice.MemberID, bob.MemberID, carol.MemberID)
	assertIDs(t, base, alice.MemberID, bob.MemberID)

	removed := added.withoutMember(bob.MemberID)
	assertIDs(t, removed, alice.MemberID, carol.MemberID)
	assertIDs(t, added, alice.MemberID, bob.MemberID, carol.MemberID)

	// removing an unknown id hands back the same roster
	same := removed.withoutMember(999)
	if &same[0] != &removed[0] {
		t.Fatalf("withoutMember of an absent id should not copy")
	}

	// appending to a roster we handed out must not reach into our backing array
	leaked := append(added, newMember(wire.MemberRecord{MemberID: 99}))
	leaked[0].Name = "Mallory"
	if added[0].Name != alice.Name {
		t.Fatalf("caller append modified the roster")
	}
}

func TestMembersLookup(t *testing.T) {
	ms := Members{newMember(alice), newMember(bob)}
	if !ms.Has(bob.MemberID) || ms.Has(carol.MemberID) {
		t.Fatalf("Has returned the wrong answer")
	}
	m, ok := ms.Get(bob.MemberID)
	if !ok || m.UserID != bob.UserID {
		t.Fatalf("Get(bob) got %+v %v", m, ok)
	}
	if _, ok := ms.Get(carol.MemberID); ok {
		t.Fatalf("Get(carol) should miss")
	}
	if ms.hasDuplicates() {
		t.Fatalf("no duplicates expected")
	}
	if !append(ms.clone(), newMember(wire.MemberRecord{MemberID: bob.MemberID})).hasDuplicates() {
		t.Fatalf("duplicate not detected")
	}
}

func TestMembersWithCursor(t *testing.T) {
	base := Members{newMember(alice), newMember(bob)}
	moved := base.withCursor(1, wire.Cursor{RangeStart: 4, RangeEnd: 4})
	if moved[1].Cursor == nil || *moved[1].Cursor != (wire.Cursor{RangeStart: 4, RangeEnd: 4}) {
		t.Fatalf("cursor not set: %+v", moved[1].Cursor)
	}
	if base[1].Cursor != nil {
		t.Fatalf("withCursor modified the original roster")
	}
	again := moved.withCursor(1, wire.Cursor{RangeStart: 9, RangeEnd: 9})
	if moved[1].Cursor.RangeStart != 4 || again[1].Cursor.RangeStart != 9 {
		t.Fatalf("cursor pointer shared between rosters: %d %d", moved[1].Cursor.RangeStart, again[1].Cursor.RangeStart)
	}
}
