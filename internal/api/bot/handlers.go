// internal/api/bot/handlers.go
package bot

import (
	"net/http"
	"strconv"

	"github.com/codr1/Kickabout/internal/api/apiutil"
	"github.com/codr1/Kickabout/internal/api/authz"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/league"
)

const (
	defaultFailureLimit = 50
	maxFailureLimit     = 500
)

type Handler struct {
	store  db.Store
	league *league.Service
}

func NewHandler(store db.Store, svc *league.Service) *Handler {
	return &Handler{store: store, league: svc}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /bot/send", h.HandleSend)
	mux.HandleFunc("GET /bot/failures", h.HandleFailures)
}

type sendRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// POST /bot/send
//
// The message is queued; delivery failures land in the notification
// failure log rather than in this response.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req sendRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	userID, err := apiutil.Required(req.UserID, "user_id", "Recipient")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	if err := h.league.SendMessage(r.Context(), userID, req.Message); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteData(w, r, http.StatusAccepted, map[string]string{"user_id": userID})
}

// GET /bot/failures[?limit=]
func (h *Handler) HandleFailures(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	limit := defaultFailureLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apiutil.WriteError(w, r, apiutil.FieldError{Field: "limit", Reason: "Limit must be a positive number"})
			return
		}
		limit = min(n, maxFailureLimit)
	}

	failures, err := h.store.ListNotificationFailures(r.Context(), limit)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if failures == nil {
		failures = []db.NotificationFailure{}
	}
	apiutil.WriteData(w, r, http.StatusOK, failures)
}
