package user

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roster(usernames ...string) []RosterEntry {
	entries := make([]RosterEntry, 0, len(usernames))
	for _, u := range usernames {
		entries = append(entries, RosterEntry{Username: u, Fullname: "Full " + u})
	}
	return entries
}

func usernames(entries []RosterEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Username)
	}
	return out
}

func TestSortRosterFriendsFirstInFriendOrder(t *testing.T) {
	got := SortRoster([]string{"bob", "cara"}, roster("dave", "bob", "erin", "cara"))

	require.Equal(t, []string{"bob", "cara", "dave", "erin"}, usernames(got))
	// Friends keep their full roster entries.
	require.Equal(t, "Full bob", got[0].Fullname)
}

func TestSortRosterFriendMissingFromRoster(t *testing.T) {
	got := SortRoster([]string{"bob", "zara"}, roster("bob", "erin"))

	require.Equal(t, []string{"bob", "zara", "erin"}, usernames(got))
	// zara has no roster entry: bare username, no display name.
	require.Equal(t, RosterEntry{Username: "zara"}, got[1])
}

func TestSortRosterEmptyFriendList(t *testing.T) {
	full := roster("dave", "bob", "erin")

	got := SortRoster(nil, full)

	require.Equal(t, full, got)
}

func TestSortRosterEmptyRoster(t *testing.T) {
	got := SortRoster([]string{"bob"}, nil)

	require.Equal(t, []RosterEntry{{Username: "bob"}}, got)
}

// The sort tolerates duplicate friend entries; deduplication belongs to the
// write boundary, not here.
func TestSortRosterDuplicateFriends(t *testing.T) {
	got := SortRoster([]string{"bob", "bob"}, roster("bob", "erin"))

	require.Equal(t, []string{"bob", "bob", "erin"}, usernames(got))
}
