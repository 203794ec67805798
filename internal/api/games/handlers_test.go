package games

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/Kickabout/internal/api/authz"
	"github.com/codr1/Kickabout/internal/clock"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/league"
	"github.com/codr1/Kickabout/internal/notify"
	"github.com/codr1/Kickabout/internal/roster"
	"github.com/codr1/Kickabout/internal/testutil"
)

type gamesFixture struct {
	store    *db.SQLiteStore
	notifier *testutil.RecordingNotifier
	mux      *http.ServeMux
	admin    *authz.AuthUser
}

func newGamesFixture(t *testing.T) gamesFixture {
	t.Helper()
	store := testutil.NewTestDB(t)
	notifier := &testutil.RecordingNotifier{}
	now := clock.StaticClock{Time: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	svc := league.NewService(store, notifier, now, time.UTC)

	mux := http.NewServeMux()
	NewHandler(svc).Register(mux)

	admin := testutil.SeedUser(t, store, &db.User{Name: "Admin", Phone: "+15550009999", Role: db.RoleAdmin})
	return gamesFixture{
		store:    store,
		notifier: notifier,
		mux:      mux,
		admin:    &authz.AuthUser{ID: admin.ID, Role: db.RoleAdmin},
	}
}

func (f gamesFixture) player(t *testing.T, i int) *authz.AuthUser {
	t.Helper()
	u := testutil.SeedUser(t, f.store, &db.User{
		Name:  fmt.Sprintf("Player %02d", i),
		Phone: fmt.Sprintf("+1555000%04d", i),
	})
	return &authz.AuthUser{ID: u.ID, Role: db.RoleOrdinary}
}

func (f gamesFixture) game(t *testing.T, players ...string) *db.Game {
	t.Helper()
	return testutil.SeedGame(t, f.store, &db.Game{
		Name:     "Tuesday Night",
		Day:      "tuesday",
		Date:     "2026-10-20",
		Time:     "19:00",
		Location: "Pitch 2",
		Type:     roster.Standard,
		Players:  players,
	})
}

func (f gamesFixture) openSignups(t *testing.T) {
	t.Helper()
	_, err := f.store.SetSignupOpen(context.Background(), true)
	require.NoError(t, err)
}

func TestGetGames(t *testing.T) {
	f := newGamesFixture(t)
	visible := f.game(t)
	testutil.SeedGame(t, f.store, &db.Game{Name: "Secret", Day: "friday", Time: "18:00", Hidden: true})

	rec, env := testutil.Serve(t, f.mux, http.MethodGet, "/requests/games/get", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []league.GameView
	env.DecodeData(t, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, visible.ID, listed[0].ID)

	rec, env = testutil.Serve(t, f.mux, http.MethodGet, "/requests/games/get", "", f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	env.DecodeData(t, &listed)
	assert.Len(t, listed, 2)

	rec, env = testutil.Serve(t, f.mux, http.MethodGet, "/requests/games/get?id="+visible.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var one league.GameView
	env.DecodeData(t, &one)
	assert.Equal(t, "Tuesday Night", one.Name)

	rec, env = testutil.Serve(t, f.mux, http.MethodGet, "/requests/games/get?id=missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, env.Error)
}

func TestCreateGameRequiresAdmin(t *testing.T) {
	f := newGamesFixture(t)
	body := `{"name":"Saturday Elevens","date":"2026-10-24","time":"10:00","type":"elevens","location":"Main Pitch"}`

	rec, _ := testutil.Serve(t, f.mux, http.MethodPost, "/requests/games/create", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = testutil.Serve(t, f.mux, http.MethodPost, "/requests/games/create", body, f.player(t, 1))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/create", body, f.admin)
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	var view league.GameView
	env.DecodeData(t, &view)
	assert.Equal(t, "saturday", view.Day)
	assert.Equal(t, roster.Elevens, view.Type)
	assert.Equal(t, 24, view.Capacity)

	rec, env = testutil.Serve(t, f.mux, http.MethodPost, "/requests/games/create", `{"name":"No time","day":"monday"}`, f.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "time", env.Field)
}

func TestSignupAction(t *testing.T) {
	f := newGamesFixture(t)
	game := f.game(t)
	player := f.player(t, 1)
	body := fmt.Sprintf(`{"id":%q,"action":"signup"}`, game.ID)

	rec, _ := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", body, player)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Signups are currently closed", env.Message)

	f.openSignups(t)
	rec, env = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", body, player)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var view league.GameView
	env.DecodeData(t, &view)
	require.Len(t, view.Confirmed, 1)
	assert.Equal(t, player.ID, view.Confirmed[0].ID)

	other := f.player(t, 2)
	forOther := fmt.Sprintf(`{"id":%q,"action":"signup","user_id":%q}`, game.ID, other.ID)
	rec, _ = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", forOther, player)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", forOther, f.admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	stored, err := f.store.GetGame(context.Background(), game.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{player.ID, other.ID}, stored.Players)
}

func TestCancelAction(t *testing.T) {
	f := newGamesFixture(t)
	player := f.player(t, 1)
	game := f.game(t, player.ID)

	bypass := fmt.Sprintf(`{"id":%q,"action":"cancel","bypass":true}`, game.ID)
	rec, _ := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", bypass, player)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body := fmt.Sprintf(`{"id":%q,"action":"cancel"}`, game.ID)
	rec, env := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", body, player)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var resp cancelResponse
	env.DecodeData(t, &resp)
	assert.False(t, resp.Shameful, "more than 12 hours before kick-off")
	assert.Empty(t, resp.Game.Confirmed)

	rec, env = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", body, player)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "You are not signed up for this game", env.Message)
}

// lateGame kicks off eight hours after the fixture clock.
func (f gamesFixture) lateGame(t *testing.T, players ...string) *db.Game {
	t.Helper()
	return testutil.SeedGame(t, f.store, &db.Game{
		Name:     "Friday Night",
		Day:      "friday",
		Date:     "2026-10-16",
		Time:     "20:00",
		Location: "Pitch 1",
		Type:     roster.Standard,
		Players:  players,
	})
}

func TestLateCancellation(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		date     string
		byAdmin  bool
		status   int
		field    string
		shameful bool
		message  string
	}{
		{"player without date", "cancel", "", false, http.StatusOK, "", true, "You've been removed from the game. Cancelling within 12 hours of kick-off counts as a late cancellation"},
		{"player names scheduled date", "cancel", "2026-10-16", false, http.StatusOK, "", true, ""},
		{"player names later date", "cancel", "2030-01-01", false, http.StatusBadRequest, "date", false, ""},
		{"player names following week", "cancel", "2026-10-23", false, http.StatusBadRequest, "date", false, ""},
		{"admin removes player", "remove", "", true, http.StatusOK, "", false, "Player removed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGamesFixture(t)
			player := f.player(t, 1)
			game := f.lateGame(t, player.ID)

			caller := player
			if tt.byAdmin {
				caller = f.admin
			}
			body := fmt.Sprintf(`{"id":%q,"action":%q,"user_id":%q,"date":%q}`, game.ID, tt.action, player.ID, tt.date)
			rec, env := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", body, caller)
			require.Equal(t, tt.status, rec.Code, env.Message)
			assert.Equal(t, tt.field, env.Field)
			if tt.message != "" {
				assert.Equal(t, tt.message, env.Message)
			}

			stored, err := f.store.GetUser(context.Background(), player.ID)
			require.NoError(t, err)
			if tt.shameful {
				assert.Equal(t, []db.ShameRecord{{GameID: game.ID, Date: "2026-10-16"}}, stored.Shame)
			} else {
				assert.Empty(t, stored.Shame)
			}

			storedGame, err := f.store.GetGame(context.Background(), game.ID)
			require.NoError(t, err)
			if tt.status == http.StatusOK {
				assert.Empty(t, storedGame.Players)
			} else {
				assert.Equal(t, []string{player.ID}, storedGame.Players)
			}

			msgs := f.notifier.Take()
			if tt.action == "remove" {
				require.Len(t, msgs, 1)
				assert.Equal(t, notify.KindBumped, msgs[0].Kind)
				assert.Equal(t, player.ID, msgs[0].UserID)
			} else {
				assert.Empty(t, msgs)
			}
		})
	}
}

func TestRemoveActionNotifiesPlayer(t *testing.T) {
	f := newGamesFixture(t)
	players := make([]string, 17)
	for i := range players {
		players[i] = f.player(t, i).ID
	}
	game := f.game(t, players...)

	body := fmt.Sprintf(`{"id":%q,"action":"remove","user_id":%q}`, game.ID, players[0])
	rec, _ := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", body, &authz.AuthUser{ID: players[1]})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", body, f.admin)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.Equal(t, "Player removed", env.Message)

	var resp cancelResponse
	env.DecodeData(t, &resp)
	assert.Equal(t, players[16], resp.Promoted)
	assert.False(t, resp.Shameful)

	msgs := f.notifier.Take()
	require.Len(t, msgs, 2)
	assert.Equal(t, notify.KindBumped, msgs[0].Kind)
	assert.Equal(t, players[0], msgs[0].UserID)
	assert.Equal(t, notify.KindPromoted, msgs[1].Kind)
	assert.Equal(t, players[16], msgs[1].UserID)
}

func TestCancelGameAndEditActions(t *testing.T) {
	f := newGamesFixture(t)
	player := f.player(t, 1)
	game := f.game(t, player.ID)

	edit := fmt.Sprintf(`{"id":%q,"action":"edit","game":{"location":"Pitch 5"}}`, game.ID)
	rec, env := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", edit, f.admin)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var view league.GameView
	env.DecodeData(t, &view)
	assert.Equal(t, "Pitch 5", view.Location)

	missing := fmt.Sprintf(`{"id":%q,"action":"edit"}`, game.ID)
	rec, env = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", missing, f.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "game", env.Field)

	cancel := fmt.Sprintf(`{"id":%q,"action":"cancel_game"}`, game.ID)
	rec, _ = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", cancel, player)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", cancel, f.admin)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	env.DecodeData(t, &view)
	assert.True(t, view.Cancelled)

	msgs := f.notifier.Take()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.KindGameCancelled, msgs[0].Kind)
}

func TestUpdateRejectsBadInput(t *testing.T) {
	f := newGamesFixture(t)
	game := f.game(t)
	player := f.player(t, 1)

	rec, env := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", fmt.Sprintf(`{"id":%q,"action":"dance"}`, game.ID), player)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "action", env.Field)

	rec, env = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/update", `{"action":"signup"}`, player)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id", env.Field)

	rec, _ = testutil.Serve(t, f.mux, http.MethodGet, "/requests/games/update", "", player)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDeleteAndReset(t *testing.T) {
	f := newGamesFixture(t)
	player := f.player(t, 1)
	keep := f.game(t, player.ID)
	drop := f.game(t)

	rec, _ := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/delete", fmt.Sprintf(`{"id":%q}`, drop.ID), player)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/delete", fmt.Sprintf(`{"id":%q}`, drop.ID), f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := f.store.GetGame(context.Background(), drop.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	rec, _ = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/games/reset", "", f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := f.store.GetGame(context.Background(), keep.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Players)
}
