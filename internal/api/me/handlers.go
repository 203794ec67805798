// internal/api/me/handlers.go
package me

import (
	"net/http"

	"github.com/codr1/Kickabout/internal/api/apiutil"
	"github.com/codr1/Kickabout/internal/api/authz"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/league"
)

type Handler struct {
	store  db.Store
	league *league.Service
}

func NewHandler(store db.Store, svc *league.Service) *Handler {
	return &Handler{store: store, league: svc}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /requests/me/get", h.HandleGet)
}

type meResponse struct {
	User       league.Account  `json:"user"`
	Games      []league.Status `json:"games"`
	SignupOpen bool            `json:"signup_open"`
}

// GET /requests/me/get
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	user, err := h.store.GetUser(r.Context(), caller.ID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	statuses, err := h.league.StatusesFor(r.Context(), user.ID, user.IsAdmin())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	settings, err := h.league.Settings(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	apiutil.WriteData(w, r, http.StatusOK, meResponse{
		User:       league.AccountOf(user),
		Games:      statuses,
		SignupOpen: settings.SignupOpen,
	})
}
