// internal/api/admin/handlers.go
package admin

import (
	"net/http"

	"github.com/codr1/Kickabout/internal/api/apiutil"
	"github.com/codr1/Kickabout/internal/api/authz"
	"github.com/codr1/Kickabout/internal/league"
)

type Handler struct {
	league *league.Service
}

func NewHandler(svc *league.Service) *Handler {
	return &Handler{league: svc}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /requests/admin/get", h.HandleGet)
	mux.HandleFunc("PATCH /requests/admin/update", h.HandleUpdate)
}

// GET /requests/admin/get
//
// Any signed-in player may read the settings so the client can show whether
// signups are open.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireUser(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	settings, err := h.league.Settings(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteData(w, r, http.StatusOK, settings)
}

type updateRequest struct {
	SignupOpen *bool `json:"signup_open"`
}

// PATCH /requests/admin/update
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req updateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if req.SignupOpen == nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "signup_open", Reason: "Signup open is required"})
		return
	}

	settings, err := h.league.SetSignupOpen(r.Context(), *req.SignupOpen)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	message := "Signups closed"
	if settings.SignupOpen {
		message = "Signups opened"
	}
	apiutil.WriteMessage(w, r, settings, message)
}
