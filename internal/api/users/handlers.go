// internal/api/users/handlers.go
package users

import (
	"net/http"
	"strings"

	"github.com/codr1/Kickabout/internal/api/apiutil"
	"github.com/codr1/Kickabout/internal/api/authz"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/league"
)

// Handler serves the admin user management routes.
type Handler struct {
	store  db.Store
	league *league.Service
}

func NewHandler(store db.Store, svc *league.Service) *Handler {
	return &Handler{store: store, league: svc}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /requests/users/get", h.HandleGet)
	mux.HandleFunc("PATCH /requests/users/update", h.HandleUpdate)
	mux.HandleFunc("PATCH /requests/users/delete", h.HandleDelete)
	mux.HandleFunc("PATCH /requests/users/reset", h.HandleReset)
}

// GET /requests/users/get[?id=][&q=]
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	query := r.URL.Query()
	if id := strings.TrimSpace(query.Get("id")); id != "" {
		user, err := h.store.GetUser(r.Context(), id)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		apiutil.WriteData(w, r, http.StatusOK, league.AccountOf(user))
		return
	}

	accounts, err := h.league.SearchUsers(r.Context(), query.Get("q"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteData(w, r, http.StatusOK, accounts)
}

type updateRequest struct {
	ID            string                     `json:"id"`
	Role          *db.Role                   `json:"role"`
	MissedPayment *league.MissedPaymentInput `json:"missed_payment"`
	Shame         *league.ShameInput         `json:"shame"`
}

// PATCH /requests/users/update
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := authz.RequireAdmin(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req updateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	id, err := apiutil.Required(req.ID, "id", "User ID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if req.Role == nil && req.MissedPayment == nil && req.Shame == nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "body", Reason: "Nothing to update"})
		return
	}
	if req.Role != nil && id == caller.ID && *req.Role != db.RoleAdmin {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "role", Reason: "You cannot remove your own admin role"})
		return
	}

	ctx := r.Context()
	var user *db.User
	if req.Role != nil {
		if user, err = h.league.SetRole(ctx, id, *req.Role); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
	}
	if req.MissedPayment != nil {
		if user, err = h.league.AddMissedPayment(ctx, id, *req.MissedPayment); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
	}
	if req.Shame != nil {
		if user, err = h.league.AddShame(ctx, id, *req.Shame); err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
	}
	apiutil.WriteMessage(w, r, league.AccountOf(user), "User updated")
}

type deleteRequest struct {
	ID string `json:"id"`
}

// PATCH /requests/users/delete
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := authz.RequireAdmin(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req deleteRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	id, err := apiutil.Required(req.ID, "id", "User ID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if id == caller.ID {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "id", Reason: "You cannot delete your own account"})
		return
	}

	if err := h.league.DeleteUser(r.Context(), id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteMessage(w, r, map[string]string{"id": id}, "User deleted")
}

type resetRequest struct {
	// Ledger is shame, missed_payments, or empty for both.
	Ledger string `json:"ledger"`
}

type resetResponse struct {
	Shame          int64 `json:"shame"`
	MissedPayments int64 `json:"missed_payments"`
}

// PATCH /requests/users/reset
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireAdmin(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req resetRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ledgers := []db.Ledger{db.LedgerShame, db.LedgerMissedPayments}
	if l := strings.TrimSpace(req.Ledger); l != "" {
		ledgers = []db.Ledger{db.Ledger(l)}
	}

	var resp resetResponse
	for _, ledger := range ledgers {
		n, err := h.league.ClearLedger(r.Context(), ledger)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		switch ledger {
		case db.LedgerShame:
			resp.Shame = n
		case db.LedgerMissedPayments:
			resp.MissedPayments = n
		}
	}
	apiutil.WriteMessage(w, r, resp, "Ledger cleared")
}
