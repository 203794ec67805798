package roster

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func players(n int) Roster {
	r := make(Roster, n)
	for i := range r {
		r[i] = fmt.Sprintf("p%02d", i)
	}
	return r
}

func TestCapacity(t *testing.T) {
	assert.Equal(t, 16, Capacity(Standard))
	assert.Equal(t, 24, Capacity(Elevens))
	assert.Equal(t, 8, Capacity(Tournament))
	assert.Equal(t, 16, Capacity(GameType("futsal")))

	assert.Equal(t, 16, Ceiling(Standard, 0))
	assert.Equal(t, 32, Ceiling(Tournament, 4))
	assert.Equal(t, 32, Ceiling(Tournament, 0))
	assert.Equal(t, 16, Ceiling(Tournament, 2))
}

func TestConfirmedAndWaitlistSplit(t *testing.T) {
	for _, size := range []int{0, 1, 2, 15, 16, 17, 30} {
		for _, capacity := range []int{0, 2, 16} {
			t.Run(fmt.Sprintf("len=%d/cap=%d", size, capacity), func(t *testing.T) {
				r := players(size)
				confirmed := r.Confirmed(capacity)
				waitlist := r.Waitlist(capacity)

				assert.Len(t, confirmed, min(size, capacity))
				assert.Len(t, waitlist, max(0, size-capacity))

				joined := append(append(Roster{}, confirmed...), waitlist...)
				assert.Equal(t, append(Roster{}, r...), joined)
			})
		}
	}
}

func TestConfirmedDoesNotAliasAppends(t *testing.T) {
	r := Roster{"a", "b", "c"}
	confirmed := r.Confirmed(2)
	_ = append(confirmed, "x")
	assert.Equal(t, Roster{"a", "b", "c"}, r)
}

func TestAddIsIdempotent(t *testing.T) {
	r := Roster{"a", "b"}

	added, changed := r.Add("c")
	assert.True(t, changed)
	assert.Equal(t, Roster{"a", "b", "c"}, added)

	again, changed := added.Add("b")
	assert.False(t, changed)
	assert.Equal(t, added, again)

	assert.Equal(t, Roster{"a", "b"}, r, "input must not be modified")
}

func TestAddBeyondCapacityLandsOnWaitlist(t *testing.T) {
	r := players(16)
	r, _ = r.Add("late")

	assert.Equal(t, Roster{"late"}, r.Waitlist(Capacity(Standard)))
	assert.False(t, r.IsConfirmed("late", Capacity(Standard)))
}

func TestRemovePreservesOrder(t *testing.T) {
	r := Roster{"a", "b", "c", "d", "e"}

	out, idx := r.Remove("c")
	assert.Equal(t, 2, idx)
	assert.Equal(t, Roster{"a", "b", "d", "e"}, out)

	out, idx = out.Remove("zz")
	assert.Equal(t, -1, idx)
	assert.Equal(t, Roster{"a", "b", "d", "e"}, out)
}

func TestRemoveDropsExactlyOneOccurrence(t *testing.T) {
	r := Roster{"a", "b", "a"}
	out, idx := r.Remove("a")
	assert.Equal(t, 0, idx)
	assert.Equal(t, Roster{"b", "a"}, out)
}

func TestIsShamefulThresholdBoundary(t *testing.T) {
	start := time.Date(2026, 10, 14, 19, 0, 0, 0, time.UTC)
	boundary := start.Add(-12 * time.Hour)

	assert.False(t, IsShameful(boundary.Add(-time.Minute), start, false))
	assert.False(t, IsShameful(boundary, start, false))
	assert.True(t, IsShameful(boundary.Add(time.Second), start, false))
	assert.True(t, IsShameful(start.Add(time.Hour), start, false))
	assert.False(t, IsShameful(boundary.Add(time.Second), start, true))
}

func TestPromotion(t *testing.T) {
	tests := []struct {
		name     string
		pre      Roster
		remove   string
		ceiling  int
		promoted string
	}{
		{"confirmed player with waitlist", Roster{"A", "B", "C", "D"}, "A", 2, "C"},
		{"waitlisted player", Roster{"A", "B", "C", "D"}, "D", 2, ""},
		{"no waitlist", Roster{"A", "B"}, "A", 2, ""},
		{"last confirmed slot", Roster{"A", "B", "C"}, "B", 2, "C"},
		{"absent player", Roster{"A", "B", "C"}, "Z", 2, ""},
		{"empty ceiling", Roster{"A", "B"}, "A", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post, idx := tt.pre.Remove(tt.remove)
			got := Promotion(tt.pre, idx, tt.ceiling)
			assert.Equal(t, tt.promoted, got)
			if got != "" {
				assert.Equal(t, got, post[tt.ceiling-1], "promoted player must occupy the last confirmed slot")
			}
		})
	}
}

func TestStandardGameAdminCancelScenario(t *testing.T) {
	r := players(18)
	capacity := Capacity(Standard)
	require.Len(t, r.Waitlist(capacity), 2)

	// Waitlisted player at index 16: nobody crosses the boundary.
	_, idx := r.Remove("p16")
	assert.Equal(t, 16, idx)
	assert.Empty(t, Promotion(r, idx, capacity))

	// Confirmed player at index 4: the player at index 16 moves to index 15.
	post, idx := r.Remove("p04")
	promoted := Promotion(r, idx, capacity)
	assert.Equal(t, "p16", promoted)
	assert.Equal(t, 15, post.Index("p16"))
	assert.True(t, post.IsConfirmed("p16", capacity))
}
