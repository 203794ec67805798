package users

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
	"github.com/codr1/Kickabout/internal/testutil"
)

type usersFixture struct {
	store *db.SQLiteStore
	mux   *http.ServeMux
	admin *authz.AuthUser
}

func newUsersFixture(t *testing.T) usersFixture {
	t.Helper()
	store := testutil.NewTestDB(t)
	svc := league.NewService(store, &testutil.RecordingNotifier{}, clock.StaticClock{Time: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}, time.UTC)

	mux := http.NewServeMux()
	NewHandler(store, svc).Register(mux)

	admin := testutil.SeedUser(t, store, &db.User{Name: "Zed Admin", Phone: "+15550009999", Role: db.RoleAdmin, PasswordHash: "secret-hash"})
	return usersFixture{store: store, mux: mux, admin: &authz.AuthUser{ID: admin.ID, Role: db.RoleAdmin}}
}

func TestGetUsersRequiresAdmin(t *testing.T) {
	f := newUsersFixture(t)
	player := testutil.SeedUser(t, f.store, &db.User{Name: "Alex", Phone: "+15550000001"})

	rec, _ := testutil.Serve(t, f.mux, http.MethodGet, "/requests/users/get", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = testutil.Serve(t, f.mux, http.MethodGet, "/requests/users/get", "", &authz.AuthUser{ID: player.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetUsersSearch(t *testing.T) {
	f := newUsersFixture(t)
	for i, name := range []string{"Morgan Lee", "Alex Morgan", "Blair Chen"} {
		testutil.SeedUser(t, f.store, &db.User{Name: name, Phone: fmt.Sprintf("+1555000000%d", i)})
	}

	rec, env := testutil.Serve(t, f.mux, http.MethodGet, "/requests/users/get", "", f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, string(env.Data), "password")
	assert.NotContains(t, string(env.Data), "secret-hash")

	var all []league.Account
	env.DecodeData(t, &all)
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.Name
	}
	assert.Equal(t, []string{"Alex Morgan", "Blair Chen", "Morgan Lee", "Zed Admin"}, names)

	rec, env = testutil.Serve(t, f.mux, http.MethodGet, "/requests/users/get?q=morgan", "", f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var matches []league.Account
	env.DecodeData(t, &matches)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Contains(t, m.Name, "Morgan")
	}

	rec, _ = testutil.Serve(t, f.mux, http.MethodGet, "/requests/users/get?id=missing", "", f.admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateUserLedgerAndRole(t *testing.T) {
	f := newUsersFixture(t)
	player := testutil.SeedUser(t, f.store, &db.User{Name: "Alex", Phone: "+15550000001"})

	body := fmt.Sprintf(`{"id":%q,"role":"admin","missed_payment":{"game_id":"g1","day":"tuesday","time":"19:00","date":"2026-10-13"},"shame":{"game_id":"g1","date":"2026-10-13"}}`, player.ID)
	rec, env := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/users/update", body, f.admin)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	var account league.Account
	env.DecodeData(t, &account)
	assert.Equal(t, db.RoleAdmin, account.Role)
	assert.Len(t, account.MissedPayments, 1)
	assert.Len(t, account.Shame, 1)

	rec, env = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/users/update", fmt.Sprintf(`{"id":%q,"shame":{"game_id":"g1","date":"13/10/2026"}}`, player.ID), f.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "date", env.Field)

	rec, env = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/users/update", fmt.Sprintf(`{"id":%q}`, player.ID), f.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "body", env.Field)

	rec, env = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/users/update", fmt.Sprintf(`{"id":%q,"role":"ordinary"}`, f.admin.ID), f.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "role", env.Field)
}

func TestDeleteUser(t *testing.T) {
	f := newUsersFixture(t)
	player := testutil.SeedUser(t, f.store, &db.User{Name: "Alex", Phone: "+15550000001"})
	game := testutil.SeedGame(t, f.store, &db.Game{Name: "Tuesday Night", Day: "tuesday", Time: "19:00", Players: []string{player.ID}})

	rec, env := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/users/delete", fmt.Sprintf(`{"id":%q}`, f.admin.ID), f.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id", env.Field)

	rec, _ = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/users/delete", fmt.Sprintf(`{"id":%q}`, player.ID), f.admin)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := f.store.GetUser(context.Background(), player.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
	stored, err := f.store.GetGame(context.Background(), game.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Players)
}

func TestResetLedgers(t *testing.T) {
	f := newUsersFixture(t)
	ctx := context.Background()
	player := testutil.SeedUser(t, f.store, &db.User{Name: "Alex", Phone: "+15550000001"})
	require.NoError(t, f.store.AppendShame(ctx, player.ID, db.ShameRecord{GameID: "g1", Date: "2026-10-13"}))
	require.NoError(t, f.store.AppendMissedPayment(ctx, player.ID, db.MissedPayment{GameID: "g1", Date: "2026-10-13"}))

	rec, _ := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/users/reset", `{"ledger":"shame"}`, f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := f.store.GetUser(ctx, player.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Shame)
	assert.Len(t, stored.MissedPayments, 1)

	rec, env := testutil.Serve(t, f.mux, http.MethodPatch, "/requests/users/reset", `{"ledger":"karma"}`, f.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ledger", env.Field)

	rec, _ = testutil.Serve(t, f.mux, http.MethodPatch, "/requests/users/reset", `{}`, f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err = f.store.GetUser(ctx, player.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.MissedPayments)
}
