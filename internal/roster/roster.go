// Package roster holds the confirmed/waitlist rules for game rosters.
//
// A roster is an ordered list of player IDs where insertion order is priority
// order. The first Capacity entries are confirmed, the rest are waitlisted.
// Capacity partitions the list for display and priority only; appends are
// never rejected for being over capacity.
package roster

import (
	"slices"
	"time"
)

type GameType string

const (
	Standard   GameType = "standard"
	Elevens    GameType = "elevens"
	Tournament GameType = "tournament"
)

// TeamCount is the number of team buckets in a tournament game.
const TeamCount = 4

// CancellationThreshold is how long before kick-off a cancellation starts
// counting as a shame record.
const CancellationThreshold = 12 * time.Hour

var capacities = map[GameType]int{
	Standard:   16,
	Elevens:    24,
	Tournament: 8, // per team
}

// Valid reports whether t is a known game type.
func (t GameType) Valid() bool {
	_, ok := capacities[t]
	return ok
}

// Capacity returns the confirmed-player count for a game type. Tournament
// capacity is per team. Unknown types fall back to the standard capacity.
func Capacity(t GameType) int {
	if c, ok := capacities[t]; ok {
		return c
	}
	return capacities[Standard]
}

// Ceiling returns the aggregate confirmed-player count for a game with the
// given number of team buckets.
func Ceiling(t GameType, teams int) int {
	if t == Tournament {
		if teams <= 0 {
			teams = TeamCount
		}
		return Capacity(t) * teams
	}
	return Capacity(t)
}

// Roster is an ordered list of player IDs.
type Roster []string

// Confirmed returns the players inside the capacity boundary.
func (r Roster) Confirmed(capacity int) Roster {
	if capacity < 0 {
		capacity = 0
	}
	if len(r) <= capacity {
		return r[:len(r):len(r)]
	}
	return r[:capacity:capacity]
}

// Waitlist returns the players beyond the capacity boundary.
func (r Roster) Waitlist(capacity int) Roster {
	if capacity < 0 {
		capacity = 0
	}
	if len(r) <= capacity {
		return Roster{}
	}
	return r[capacity:]
}

// Index returns the position of id, or -1.
func (r Roster) Index(id string) int {
	return slices.Index(r, id)
}

// Contains reports whether id is on the roster.
func (r Roster) Contains(id string) bool {
	return r.Index(id) >= 0
}

// IsConfirmed reports whether id holds a confirmed spot.
func (r Roster) IsConfirmed(id string, capacity int) bool {
	idx := r.Index(id)
	return idx >= 0 && idx < capacity
}

// Add appends id unless it is already present. The returned bool reports
// whether the roster changed. r is never modified.
func (r Roster) Add(id string) (Roster, bool) {
	if r.Contains(id) {
		return slices.Clone(r), false
	}
	out := make(Roster, len(r), len(r)+1)
	copy(out, r)
	return append(out, id), true
}

// Remove drops the first occurrence of id and returns the new roster with the
// pre-removal index of id (-1 when id was absent). Relative order of the
// remaining players is unchanged. r is never modified.
func (r Roster) Remove(id string) (Roster, int) {
	idx := r.Index(id)
	if idx < 0 {
		return slices.Clone(r), -1
	}
	out := make(Roster, 0, len(r)-1)
	out = append(out, r[:idx]...)
	out = append(out, r[idx+1:]...)
	return out, idx
}

// IsShameful reports whether a cancellation at now is late for a game starting
// at start. Cancelling exactly at start-CancellationThreshold is not late.
func IsShameful(now, start time.Time, bypass bool) bool {
	if bypass {
		return false
	}
	return now.After(start.Add(-CancellationThreshold))
}

// Promotion identifies the player who moves into the confirmed range when the
// player at preIndex is removed from pre. ceiling is the aggregate confirmed
// count. It returns "" when nobody crosses the boundary: the removed player
// was already waitlisted, or there was no waitlist to draw from. The rule is
// the same for self-cancellation and admin removal.
func Promotion(pre Roster, preIndex, ceiling int) string {
	if preIndex < 0 || preIndex >= len(pre) || ceiling <= 0 {
		return ""
	}
	if preIndex >= ceiling || len(pre) <= ceiling {
		return ""
	}
	// After removal everyone behind preIndex shifts left by one, so the new
	// occupant of the last confirmed slot sits at pre[ceiling].
	return pre[ceiling]
}
