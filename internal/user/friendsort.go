package user

import "github.com/samber/lo"

// SortRoster orders the full user roster for the "add friends" page: the
// caller's friends come first, in friend-list order, then bare-username
// entries for friends whose accounts are missing from the roster, then the
// remaining roster in its original order.
//
// Pure function, duplicate-tolerant: enforcing set semantics on the friend
// list is the job of the write boundary (AddFriend), not this sort.
func SortRoster(friends []string, roster []RosterEntry) []RosterEntry {
	matched := make([]RosterEntry, 0, len(friends))
	var missing []RosterEntry
	inRoster := make(map[string]bool, len(friends))

	for _, friend := range friends {
		entry, found := lo.Find(roster, func(e RosterEntry) bool {
			return e.Username == friend
		})
		if found {
			matched = append(matched, entry)
			inRoster[friend] = true
		} else {
			missing = append(missing, RosterEntry{Username: friend})
		}
	}

	rest := lo.Filter(roster, func(e RosterEntry, _ int) bool {
		return !inRoster[e.Username]
	})

	out := make([]RosterEntry, 0, len(matched)+len(missing)+len(rest))
	out = append(out, matched...)
	out = append(out, missing...)
	out = append(out, rest...)
	return out
}
