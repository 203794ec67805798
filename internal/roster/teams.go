package roster

// Teams is the tournament view of a roster: one ordered bucket per team.
// It is always derived from the flat roster and never edited directly.
type Teams []Roster

// RebuildTeams distributes r round-robin across count buckets: player k goes
// to bucket k mod count. Relative order within every bucket follows r, and
// the first Capacity(Tournament) entries of each bucket are exactly the first
// Ceiling(Tournament, count) players of r.
func RebuildTeams(r Roster, count int) Teams {
	if count <= 0 {
		count = TeamCount
	}
	teams := make(Teams, count)
	for i := range teams {
		teams[i] = Roster{}
	}
	for k, id := range r {
		teams[k%count] = append(teams[k%count], id)
	}
	return teams
}

// Flatten interleaves the buckets back into priority order. It is the inverse
// of RebuildTeams for any Teams produced by it.
func (t Teams) Flatten() Roster {
	out := Roster{}
	for row := 0; ; row++ {
		added := false
		for _, bucket := range t {
			if row < len(bucket) {
				out = append(out, bucket[row])
				added = true
			}
		}
		if !added {
			return out
		}
	}
}

// Confirmed returns each bucket's confirmed players.
func (t Teams) Confirmed() Teams {
	capacity := Capacity(Tournament)
	out := make(Teams, len(t))
	for i, bucket := range t {
		out[i] = bucket.Confirmed(capacity)
	}
	return out
}

// Waitlist returns each bucket's waitlisted players.
func (t Teams) Waitlist() Teams {
	capacity := Capacity(Tournament)
	out := make(Teams, len(t))
	for i, bucket := range t {
		out[i] = bucket.Waitlist(capacity)
	}
	return out
}

// Len returns the number of players across all buckets.
func (t Teams) Len() int {
	n := 0
	for _, bucket := range t {
		n += len(bucket)
	}
	return n
}

// ToSlices converts to the plain representation stored in documents.
func (t Teams) ToSlices() [][]string {
	out := make([][]string, len(t))
	for i, bucket := range t {
		out[i] = append([]string{}, bucket...)
	}
	return out
}

// TeamsFromSlices wraps stored buckets.
func TeamsFromSlices(buckets [][]string) Teams {
	out := make(Teams, len(buckets))
	for i, bucket := range buckets {
		out[i] = Roster(bucket)
	}
	return out
}
