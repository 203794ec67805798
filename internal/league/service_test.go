package league

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/Kickabout/internal/clock"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/notify"
	"github.com/codr1/Kickabout/internal/roster"
	"github.com/codr1/Kickabout/internal/testutil"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recordingNotifier) Enqueue(msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingNotifier) take() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.msgs
	r.msgs = nil
	return out
}

type fixture struct {
	store    *db.SQLiteStore
	notifier *recordingNotifier
	clock    *clock.ManualClock
	svc      *Service
}

// Kick-off used by most tests: Tuesday 20 October 2026, 19:00 UTC.
var kickoff = time.Date(2026, 10, 20, 19, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    testutil.NewTestDB(t),
		notifier: &recordingNotifier{},
		clock:    clock.NewManualClock(kickoff.Add(-48 * time.Hour)),
	}
	f.svc = NewService(f.store, f.notifier, f.clock, time.UTC)
	_, err := f.store.SetSignupOpen(context.Background(), true)
	require.NoError(t, err)
	return f
}

func (f *fixture) users(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		u := testutil.SeedUser(t, f.store, &db.User{
			Name:  fmt.Sprintf("Player %02d", i),
			Phone: fmt.Sprintf("+1555555%04d", i),
		})
		ids[i] = u.ID
	}
	return ids
}

func (f *fixture) game(t *testing.T, typ roster.GameType, players []string) *db.Game {
	t.Helper()
	return testutil.SeedGame(t, f.store, &db.Game{
		Name:     "Tuesday Night",
		Day:      "tuesday",
		Date:     "2026-10-20",
		Time:     "19:00",
		Location: "Pitch 2",
		Type:     typ,
		Players:  append([]string{}, players...),
	})
}

func TestSignup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.users(t, 2)
	game := f.game(t, roster.Standard, nil)

	post, err := f.svc.Signup(ctx, SignupRequest{GameID: game.ID, UserID: ids[0]})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0]}, post.Players)

	post, err = f.svc.Signup(ctx, SignupRequest{GameID: game.ID, UserID: ids[0]})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0]}, post.Players, "second signup is a no-op")

	_, err = f.svc.Signup(ctx, SignupRequest{GameID: "missing", UserID: ids[1]})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestSignupGates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.users(t, 1)

	cancelled := f.game(t, roster.Standard, nil)
	yes := true
	_, err := f.store.UpdateGame(ctx, cancelled.ID, db.GameUpdate{Cancelled: &yes})
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, SignupRequest{GameID: cancelled.ID, UserID: ids[0]})
	assert.ErrorIs(t, err, ErrGameCancelled)

	hidden := f.game(t, roster.Standard, nil)
	_, err = f.store.UpdateGame(ctx, hidden.ID, db.GameUpdate{Hidden: &yes})
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, SignupRequest{GameID: hidden.ID, UserID: ids[0]})
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = f.svc.Signup(ctx, SignupRequest{GameID: hidden.ID, UserID: ids[0], ByAdmin: true})
	assert.NoError(t, err)

	ladies := f.game(t, roster.Standard, nil)
	female := db.GenderFemale
	_, err = f.store.UpdateGame(ctx, ladies.ID, db.GameUpdate{Gender: &female})
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, SignupRequest{GameID: ladies.ID, UserID: ids[0]})
	assert.ErrorIs(t, err, ErrGenderRestricted)

	open := f.game(t, roster.Standard, nil)
	_, err = f.store.SetSignupOpen(ctx, false)
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, SignupRequest{GameID: open.ID, UserID: ids[0]})
	assert.ErrorIs(t, err, ErrSignupClosed)
	_, err = f.svc.Signup(ctx, SignupRequest{GameID: open.ID, UserID: ids[0], ByAdmin: true})
	assert.NoError(t, err, "admins add players while signups are closed")
}

func TestSignupTournamentRebuildsTeams(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.users(t, 5)
	game := f.game(t, roster.Tournament, ids[:4])

	post, err := f.svc.Signup(ctx, SignupRequest{GameID: game.ID, UserID: ids[4]})
	require.NoError(t, err)
	want := roster.RebuildTeams(roster.Roster(ids), roster.TeamCount).ToSlices()
	assert.Equal(t, want, post.Teams)

	stored, err := f.store.GetGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Teams)
}

func TestCancelShameThreshold(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		bypass   bool
		shameful bool
	}{
		{"two days out", kickoff.Add(-48 * time.Hour), false, false},
		{"exactly twelve hours", kickoff.Add(-12 * time.Hour), false, false},
		{"one second inside", kickoff.Add(-12*time.Hour + time.Second), false, true},
		{"inside but waived", kickoff.Add(-time.Hour), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			ids := f.users(t, 2)
			game := f.game(t, roster.Standard, ids)
			f.clock.Set(tt.now)

			res, err := f.svc.Cancel(ctx, CancelRequest{GameID: game.ID, UserID: ids[0], Bypass: tt.bypass})
			require.NoError(t, err)
			assert.Equal(t, tt.shameful, res.Shameful)
			assert.Equal(t, []string{ids[1]}, res.Game.Players)

			user, err := f.store.GetUser(ctx, ids[0])
			require.NoError(t, err)
			if tt.shameful {
				assert.Equal(t, []db.ShameRecord{{GameID: game.ID, Date: "2026-10-20"}}, user.Shame)
			} else {
				assert.Empty(t, user.Shame)
			}
		})
	}
}

func TestCancelNotOnRoster(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.users(t, 2)
	game := f.game(t, roster.Standard, ids[:1])

	_, err := f.svc.Cancel(ctx, CancelRequest{GameID: game.ID, UserID: ids[1]})
	assert.ErrorIs(t, err, ErrNotOnRoster)

	_, err = f.svc.Cancel(ctx, CancelRequest{GameID: game.ID, UserID: ids[0], Date: "20/10/2026"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "date", verr.Field)

	stored, err := f.store.GetGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[:1], stored.Players, "failed cancellation leaves the roster alone")
}

func TestCancelRequestedDate(t *testing.T) {
	tests := []struct {
		name     string
		weekly   bool
		date     string
		byAdmin  bool
		errField string
		shameful bool
	}{
		{"no date", false, "", false, "", true},
		{"scheduled date", false, "2026-10-20", false, "", true},
		{"far future date", false, "2030-01-01", false, "date", false},
		{"following week", false, "2026-10-27", false, "date", false},
		{"weekly game this week", true, "2026-10-20", false, "", true},
		{"weekly game next week", true, "2026-10-27", false, "date", false},
		{"admin names another week", false, "2026-10-27", true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			ids := f.users(t, 2)
			game := f.game(t, roster.Standard, ids)
			if tt.weekly {
				game = testutil.SeedGame(t, f.store, &db.Game{
					Name:    "Tuesday Night",
					Day:     "tuesday",
					Time:    "19:00",
					Type:    roster.Standard,
					Players: append([]string{}, ids...),
				})
			}
			f.clock.Set(kickoff.Add(-8 * time.Hour))

			res, err := f.svc.Cancel(ctx, CancelRequest{GameID: game.ID, UserID: ids[0], Date: tt.date, ByAdmin: tt.byAdmin})
			if tt.errField != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.errField, verr.Field)

				stored, err := f.store.GetGame(ctx, game.ID)
				require.NoError(t, err)
				assert.Equal(t, ids, stored.Players, "rejected cancellation leaves the roster alone")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.shameful, res.Shameful)
			}

			user, err := f.store.GetUser(ctx, ids[0])
			require.NoError(t, err)
			if tt.shameful {
				assert.Equal(t, []db.ShameRecord{{GameID: game.ID, Date: "2026-10-20"}}, user.Shame)
			} else {
				assert.Empty(t, user.Shame)
			}
		})
	}
}

func TestCancelPromotesFirstWaitlistedPlayer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.users(t, 18)
	game := f.game(t, roster.Standard, ids)

	res, err := f.svc.Cancel(ctx, CancelRequest{GameID: game.ID, UserID: ids[3]})
	require.NoError(t, err)
	assert.Equal(t, ids[16], res.Promoted)
	assert.Equal(t, ids[16], res.Game.Players[15])

	msgs := f.notifier.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.KindPromoted, msgs[0].Kind)
	assert.Equal(t, ids[16], msgs[0].UserID)
	assert.Equal(t, "+15555550016", msgs[0].Phone)
	assert.Equal(t, "Tuesday Night", msgs[0].GameName)
}

func TestCancelWaitlistedPlayerPromotesNobody(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.users(t, 17)
	game := f.game(t, roster.Standard, ids)

	res, err := f.svc.Cancel(ctx, CancelRequest{GameID: game.ID, UserID: ids[16]})
	require.NoError(t, err)
	assert.Empty(t, res.Promoted)
	assert.Empty(t, f.notifier.take())
}

func TestAdminBumpScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.users(t, 18)
	game := f.game(t, roster.Standard, ids)
	f.clock.Set(kickoff.Add(-time.Hour))

	// Bumping the first waitlisted player: only they hear about it.
	res, err := f.svc.Cancel(ctx, CancelRequest{GameID: game.ID, UserID: ids[16], AdminInitiated: true})
	require.NoError(t, err)
	assert.Empty(t, res.Promoted)
	assert.False(t, res.Shameful, "bumps are never shameful")
	msgs := f.notifier.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.KindBumped, msgs[0].Kind)
	assert.Equal(t, ids[16], msgs[0].UserID)

	// Fresh 18-player roster; bump a confirmed player instead.
	game = f.game(t, roster.Standard, ids)

	res, err = f.svc.Cancel(ctx, CancelRequest{GameID: game.ID, UserID: ids[4], AdminInitiated: true})
	require.NoError(t, err)
	assert.Equal(t, ids[16], res.Promoted)
	assert.Equal(t, 15, roster.Roster(res.Game.Players).Index(ids[16]))

	msgs = f.notifier.take()
	require.Len(t, msgs, 2)
	assert.Equal(t, notify.KindBumped, msgs[0].Kind)
	assert.Equal(t, ids[4], msgs[0].UserID)
	assert.Equal(t, notify.KindPromoted, msgs[1].Kind)
	assert.Equal(t, ids[16], msgs[1].UserID)

	user, err := f.store.GetUser(ctx, ids[4])
	require.NoError(t, err)
	assert.Empty(t, user.Shame)
}

func TestConcurrentCancellationsNameDistinctPromotions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.users(t, 20)
	game := f.game(t, roster.Standard, ids)

	var wg sync.WaitGroup
	results := make([]*CancelResult, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Cancel(ctx, CancelRequest{GameID: game.ID, UserID: ids[i]})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	promoted := []string{}
	for _, res := range results {
		require.NotNil(t, res)
		promoted = append(promoted, res.Promoted)
	}
	assert.ElementsMatch(t, []string{ids[16], ids[17], ids[18]}, promoted)

	stored, err := f.store.GetGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[3:], stored.Players)
}

func TestCancelTournamentRebuildsTeams(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.users(t, 34)
	game := f.game(t, roster.Tournament, ids)

	res, err := f.svc.Cancel(ctx, CancelRequest{GameID: game.ID, UserID: ids[0]})
	require.NoError(t, err)
	assert.Equal(t, ids[32], res.Promoted)

	stored, err := f.store.GetGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, roster.RebuildTeams(roster.Roster(ids[1:]), roster.TeamCount).ToSlices(), stored.Teams)
}

func TestGameStartFallsBackToNextWeeklySlot(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC))

	start, err := f.svc.GameStart(&db.Game{Day: "tuesday", Time: "19:00"}, "")
	require.NoError(t, err)
	assert.Equal(t, kickoff, start)

	start, err = f.svc.GameStart(&db.Game{Day: "tuesday", Time: "19:00"}, "2026-10-27")
	require.NoError(t, err)
	assert.Equal(t, kickoff.AddDate(0, 0, 7), start)
}
