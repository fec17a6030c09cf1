package presence

import "testing"

func TestColorFor(t *testing.T) {
	n := int64(len(Palette))
	testCases := []struct {
		memberID int64
		want     string
	}{
		{memberID: 0, want: "#F94144"},
		{memberID: 1, want: "#F3722C"},
		{memberID: n - 1, want: "#37474F"},
		{memberID: n, want: "#F94144"},
		{memberID: n + 9, want: "#277DA1"},
		{memberID: -1, want: "#37474F"},
	}
	for _, tc := range testCases {
		if got := ColorFor(tc.memberID); got != tc.want {
			t.Errorf("ColorFor(%d): got %s want %s", tc.memberID, got, tc.want)
		}
	}
	if n != 75 {
		t.Fatalf("palette has %d colors, want 75", n)
	}
}
