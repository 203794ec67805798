package auth

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/api/authz"
	"github.com/codr1/Kickabout/internal/db"
)

// UserFromRequest resolves the caller from the access cookie. When the access
// token is missing or expired, a valid refresh cookie re-issues it with the
// role currently stored for the user. It returns nil for anonymous callers.
func (h *Handler) UserFromRequest(w http.ResponseWriter, r *http.Request) (*authz.AuthUser, error) {
	if cookie, err := r.Cookie(AccessCookieName); err == nil {
		claims, err := h.tokens.Parse(cookie.Value, KindAccess)
		if err == nil {
			return &authz.AuthUser{ID: claims.Subject, Role: claims.Role}, nil
		}
		log.Ctx(r.Context()).Debug().Err(err).Msg("Access token rejected")
	}

	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return nil, nil
	}
	claims, err := h.tokens.Parse(cookie.Value, KindRefresh)
	if err != nil {
		log.Ctx(r.Context()).Debug().Err(err).Msg("Refresh token rejected")
		h.cookies.Clear(w)
		return nil, nil
	}

	user, err := h.store.GetUser(r.Context(), claims.Subject)
	if errors.Is(err, db.ErrNotFound) {
		h.cookies.Clear(w)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	access, err := h.tokens.Access(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	h.cookies.SetAccess(w, access, h.tokens.AccessTTL())
	log.Ctx(r.Context()).Debug().Str("user_id", user.ID).Msg("Access token refreshed")

	return &authz.AuthUser{ID: user.ID, Role: user.Role}, nil
}
