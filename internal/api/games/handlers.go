// internal/api/games/handlers.go
package games

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/api/apiutil"
	"github.com/codr1/Kickabout/internal/api/authz"
	"github.com/codr1/Kickabout/internal/league"
)

const (
	actionSignup     = "signup"
	actionCancel     = "cancel"
	actionRemove     = "remove"
	actionCancelGame = "cancel_game"
	actionEdit       = "edit"
)

type Handler struct {
	league *league.Service
}

func NewHandler(svc *league.Service) *Handler {
	return &Handler{league: svc}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /requests/games/get", h.HandleGet)
	mux.HandleFunc("POST /requests/games/create", h.HandleCreate)
	mux.HandleFunc("PATCH /requests/games/create", h.HandleCreate)
	mux.HandleFunc("PATCH /requests/games/update", h.HandleUpdate)
	mux.HandleFunc("PATCH /requests/games/delete", h.HandleDelete)
	mux.HandleFunc("PATCH /requests/games/reset", h.HandleReset)
}

// GET /requests/games/get[?id=]
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	admin := authz.IsAdmin(authz.UserFromContext(r.Context()))

	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		game, err := h.league.GetGame(r.Context(), id, admin)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		apiutil.WriteData(w, r, http.StatusOK, game)
		return
	}

	games, err := h.league.ListGames(r.Context(), admin)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteData(w, r, http.StatusOK, games)
}

// POST|PATCH /requests/games/create
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var in league.GameInput
	if err := apiutil.DecodeJSON(r, &in); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	game, err := h.league.CreateGame(r.Context(), in)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	view, err := h.league.GetGame(r.Context(), game.ID, true)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteData(w, r, http.StatusCreated, view)
}

type updateRequest struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	// UserID names the player an admin acts on. Players act on themselves.
	UserID string `json:"user_id"`
	// Date picks the occurrence for cancellations (YYYY-MM-DD). Players may
	// only name the game's scheduled occurrence.
	Date   string            `json:"date"`
	Bypass bool              `json:"bypass"`
	Game   *league.GameInput `json:"game"`
}

type cancelResponse struct {
	Game     *league.GameView `json:"game"`
	Shameful bool             `json:"shameful"`
	Promoted string           `json:"promoted,omitempty"`
}

// PATCH /requests/games/update
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req updateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	gameID, err := apiutil.Required(req.ID, "id", "Game ID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	admin := authz.IsAdmin(caller)

	ctx := r.Context()
	logger := log.Ctx(ctx).With().Str("game_id", gameID).Str("action", req.Action).Logger()
	ctx = logger.WithContext(ctx)
	r = r.WithContext(ctx)

	switch req.Action {
	case actionSignup:
		target, err := h.target(caller, req.UserID)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		if _, err := h.league.Signup(ctx, league.SignupRequest{GameID: gameID, UserID: target, ByAdmin: admin}); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		h.writeGame(w, r, gameID, admin, "You're signed up")

	case actionCancel:
		target, err := h.target(caller, req.UserID)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		if req.Bypass && !admin {
			apiutil.WriteError(w, r, authz.ErrForbidden)
			return
		}
		h.cancel(w, r, league.CancelRequest{
			GameID:  gameID,
			UserID:  target,
			Date:    req.Date,
			Bypass:  req.Bypass,
			ByAdmin: admin,
		})

	case actionRemove:
		if !admin {
			apiutil.WriteError(w, r, authz.ErrForbidden)
			return
		}
		target, err := apiutil.Required(req.UserID, "user_id", "Player")
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		h.cancel(w, r, league.CancelRequest{
			GameID:         gameID,
			UserID:         target,
			Date:           req.Date,
			AdminInitiated: true,
			ByAdmin:        true,
		})

	case actionCancelGame:
		if !admin {
			apiutil.WriteError(w, r, authz.ErrForbidden)
			return
		}
		if _, err := h.league.CancelGame(ctx, gameID); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		h.writeGame(w, r, gameID, admin, "Game cancelled")

	case actionEdit:
		if !admin {
			apiutil.WriteError(w, r, authz.ErrForbidden)
			return
		}
		if req.Game == nil {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "game", Reason: "Game details are required"})
			return
		}
		if _, err := h.league.EditGame(ctx, gameID, *req.Game); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		h.writeGame(w, r, gameID, admin, "Game saved")

	default:
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "action", Reason: "Unknown action"})
	}
}

// target is the player an action applies to. Only admins may name someone
// other than themselves.
func (h *Handler) target(caller *authz.AuthUser, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || userID == caller.ID {
		return caller.ID, nil
	}
	if !authz.IsAdmin(caller) {
		return "", authz.ErrForbidden
	}
	return userID, nil
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, req league.CancelRequest) {
	result, err := h.league.Cancel(r.Context(), req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	view, err := h.league.GetGame(r.Context(), req.GameID, req.ByAdmin)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	message := "You've been removed from the game"
	switch {
	case req.AdminInitiated:
		message = "Player removed"
	case result.Shameful:
		message = "You've been removed from the game. Cancelling within 12 hours of kick-off counts as a late cancellation"
	}
	apiutil.WriteMessage(w, r, cancelResponse{Game: view, Shameful: result.Shameful, Promoted: result.Promoted}, message)
}

func (h *Handler) writeGame(w http.ResponseWriter, r *http.Request, gameID string, admin bool, message string) {
	view, err := h.league.GetGame(r.Context(), gameID, admin)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteMessage(w, r, view, message)
}

type idRequest struct {
	ID string `json:"id"`
}

// PATCH /requests/games/delete
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req idRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	id, err := apiutil.Required(req.ID, "id", "Game ID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	if err := h.league.DeleteGame(r.Context(), id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteMessage(w, r, map[string]string{"id": id}, "Game deleted")
}

// PATCH /requests/games/reset
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	n, err := h.league.ResetGames(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteMessage(w, r, map[string]int64{"games": n}, "Rosters cleared")
}
