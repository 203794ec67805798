package me

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/Kickabout/internal/api/authz"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/league"
	"github.com/codr1/Kickabout/internal/testutil"
)

func TestGetMe(t *testing.T) {
	store := testutil.NewTestDB(t)
	mux := http.NewServeMux()
	NewHandler(store, league.NewService(store, nil, nil, nil)).Register(mux)

	ids := make([]string, 17)
	for i := range ids {
		u := testutil.SeedUser(t, store, &db.User{
			Name:         fmt.Sprintf("Player %02d", i),
			Phone:        fmt.Sprintf("+1555000%04d", i),
			PasswordHash: "secret-hash",
		})
		ids[i] = u.ID
	}
	game := testutil.SeedGame(t, store, &db.Game{Name: "Tuesday Night", Day: "tuesday", Time: "19:00", Players: ids})
	_, err := store.SetSignupOpen(context.Background(), true)
	require.NoError(t, err)

	rec, _ := testutil.Serve(t, mux, http.MethodGet, "/requests/me/get", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := testutil.Serve(t, mux, http.MethodGet, "/requests/me/get", "", &authz.AuthUser{ID: ids[16]})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, string(env.Data), "secret-hash")

	var resp meResponse
	env.DecodeData(t, &resp)
	assert.Equal(t, "Player 16", resp.User.Name)
	assert.True(t, resp.SignupOpen)
	require.Len(t, resp.Games, 1)
	assert.Equal(t, league.Status{GameID: game.ID, State: league.StateWaitlisted, Position: 17}, resp.Games[0])

	rec, _ = testutil.Serve(t, mux, http.MethodGet, "/requests/me/get", "", &authz.AuthUser{ID: "deleted"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
