// Package m holds matchers for asserting on a client's view of a room.
package m

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/RaghhavDTurki/realtime-collab-editor/presence"
	"github.com/RaghhavDTurki/realtime-collab-editor/wire"
	"golang.org/x/exp/slices"
)

type RoomMatcher func(rs *presence.RoomState) error
type MemberMatcher func(member presence.Member) error

const AnsiRedForeground = "\x1b[31m"
const AnsiResetForeground = "\x1b[39m"

// LogRoom builds a matcher that always succeeds. As a side-effect, it pretty-prints
// the room roster to the test log. This is useful when debugging a test.
func LogRoom(t *testing.T) RoomMatcher {
	return func(rs *presence.RoomState) error {
		dump, _ := json.MarshalIndent(rs.Members(), "", "    ")
		t.Logf("member %d at v%d sees: %s", rs.Self().MemberID, rs.Version(), dump)
		return nil
	}
}

func MatchVersion(version int64) RoomMatcher {
	return func(rs *presence.RoomState) error {
		if got := rs.Version(); got != version {
			return fmt.Errorf("MatchVersion: got v%d want v%d", got, version)
		}
		return nil
	}
}

// MatchMemberIDs checks the roster holds exactly these member ids, in any order.
func MatchMemberIDs(wantIDs ...int64) RoomMatcher {
	return func(rs *presence.RoomState) error {
		got := rs.Members().IDs()
		slices.Sort(got)
		want := slices.Clone(wantIDs)
		slices.Sort(want)
		if !slices.Equal(got, want) {
			return fmt.Errorf("MatchMemberIDs: got %v want %v", got, want)
		}
		return nil
	}
}

// MatchRoster checks the roster holds the same members as a server snapshot.
func MatchRoster(records []wire.MemberRecord) RoomMatcher {
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.MemberID)
	}
	return MatchMemberIDs(ids...)
}

// MatchEveryMember runs the matchers against every member of the roster.
func MatchEveryMember(matchers ...MemberMatcher) RoomMatcher {
	return func(rs *presence.RoomState) error {
		for _, member := range rs.Members() {
			if err := CheckMember(member, matchers...); err != nil {
				return fmt.Errorf("member %d: %w", member.MemberID, err)
			}
		}
		return nil
	}
}

// MatchMember runs the matchers against one member, which must be in the roster.
func MatchMember(memberID int64, matchers ...MemberMatcher) RoomMatcher {
	return func(rs *presence.RoomState) error {
		member, ok := rs.Members().Get(memberID)
		if !ok {
			return fmt.Errorf("MatchMember: member %d not in roster %v", memberID, rs.Members().IDs())
		}
		if err := CheckMember(member, matchers...); err != nil {
			return fmt.Errorf("member %d: %w", memberID, err)
		}
		return nil
	}
}

// MatchPaletteColor checks the member carries the palette color for its id.
func MatchPaletteColor() MemberMatcher {
	return func(member presence.Member) error {
		if want := presence.ColorFor(member.MemberID); member.Color != want {
			return fmt.Errorf("MatchPaletteColor: got %s want %s", member.Color, want)
		}
		return nil
	}
}

func MatchCursor(want wire.Cursor) MemberMatcher {
	return func(member presence.Member) error {
		if member.Cursor == nil {
			return fmt.Errorf("MatchCursor: no cursor, want %+v", want)
		}
		if *member.Cursor != want {
			return fmt.Errorf("MatchCursor: got %+v want %+v", *member.Cursor, want)
		}
		return nil
	}
}

func CheckMember(member presence.Member, matchers ...MemberMatcher) error {
	for _, m := range matchers {
		if err := m(member); err != nil {
			return err
		}
	}
	return nil
}

// CheckRoom returns the first matcher failure, or nil. Use it when polling for convergence.
func CheckRoom(rs *presence.RoomState, matchers ...RoomMatcher) error {
	for _, m := range matchers {
		if err := m(rs); err != nil {
			return err
		}
	}
	return nil
}

func MatchRoom(t *testing.T, rs *presence.RoomState, matchers ...RoomMatcher) {
	t.Helper()
	for _, m := range matchers {
		err := m(rs)
		if err != nil {
			b, _ := json.MarshalIndent(rs.Members(), "", "    ")
			t.Errorf("%vMatchRoom: member %d: %s\n%s%v", AnsiRedForeground, rs.Self().MemberID, err, string(b), AnsiResetForeground)
		}
	}
}
