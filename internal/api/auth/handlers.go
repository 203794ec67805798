package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/api/apiutil"
	"github.com/codr1/Kickabout/internal/api/authz"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/league"
	"github.com/codr1/Kickabout/internal/ratelimit"
	"github.com/codr1/Kickabout/internal/verify"
)

var errBadCredentials = apiutil.HandlerError{
	Status:  http.StatusUnauthorized,
	Message: "Incorrect phone number or password",
}

type Handler struct {
	store   db.Store
	tokens  *Tokens
	cookies Cookies
	// requirePhone makes registration and phone changes present a phone
	// verification token.
	requirePhone bool
}

func NewHandler(store db.Store, tokens *Tokens, cookies Cookies, requirePhone bool) *Handler {
	return &Handler{store: store, tokens: tokens, cookies: cookies, requirePhone: requirePhone}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.HandleLogin)
	mux.HandleFunc("POST /auth/register", h.HandleRegister)
	mux.HandleFunc("POST /auth/logout", h.HandleLogout)
	mux.HandleFunc("POST /auth/update", h.HandleUpdate)
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if _, err := apiutil.Required(req.Phone, "phone", "Phone number"); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if _, err := apiutil.Required(req.Password, "password", "Password"); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	phone := verify.NormalizePhone(req.Phone)
	if phone == "" {
		apiutil.WriteError(w, r, errBadCredentials)
		return
	}

	user, err := h.store.GetUserByPhone(r.Context(), phone)
	if errors.Is(err, db.ErrNotFound) {
		log.Ctx(r.Context()).Info().Str("phone", ratelimit.SanitizeIdentifier(phone)).Msg("Login for unknown phone")
		apiutil.WriteError(w, r, errBadCredentials)
		return
	}
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if !VerifyPassword(user.PasswordHash, req.Password) {
		log.Ctx(r.Context()).Info().Str("user_id", user.ID).Msg("Login with wrong password")
		apiutil.WriteError(w, r, errBadCredentials)
		return
	}

	if err := h.startSession(w, user); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	log.Ctx(r.Context()).Info().Str("user_id", user.ID).Msg("User logged in")
	apiutil.WriteData(w, r, http.StatusOK, league.AccountOf(user))
}

type registerRequest struct {
	Name              string `json:"name"`
	Phone             string `json:"phone"`
	Password          string `json:"password"`
	Gender            string `json:"gender"`
	VerificationToken string `json:"verification_token"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	name, err := apiutil.Required(req.Name, "name", "Name")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	phone, err := normalizePhone(req.Phone)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := validPassword(req.Password); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	gender, err := validGender(req.Gender)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	verified, err := h.checkPhoneToken(req.VerificationToken, phone)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	user := &db.User{
		Name:          name,
		Phone:         phone,
		PasswordHash:  hash,
		Role:          db.RoleOrdinary,
		Gender:        gender,
		PhoneVerified: verified,
	}
	if err := h.store.InsertUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			err = apiutil.FieldError{Field: "phone", Reason: "An account with this phone number already exists"}
		}
		apiutil.WriteError(w, r, err)
		return
	}

	if err := h.startSession(w, user); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	log.Ctx(r.Context()).Info().Str("user_id", user.ID).Bool("phone_verified", verified).Msg("User registered")
	apiutil.WriteData(w, r, http.StatusCreated, league.AccountOf(user))
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	apiutil.WriteMessage(w, r, nil, "Logged out")
}

type updateRequest struct {
	Name              *string `json:"name"`
	Phone             *string `json:"phone"`
	Password          *string `json:"password"`
	CurrentPassword   string  `json:"current_password"`
	Gender            *string `json:"gender"`
	Avatar            *string `json:"avatar"`
	VerificationToken string  `json:"verification_token"`
}

// HandleUpdate edits the caller's own account. Changing the password needs
// the current one.
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

	current, err := h.store.GetUser(r.Context(), caller.ID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	update, err := h.accountUpdate(req, current)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	user, err := h.store.UpdateUser(r.Context(), caller.ID, update)
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			err = apiutil.FieldError{Field: "phone", Reason: "An account with this phone number already exists"}
		}
		apiutil.WriteError(w, r, err)
		return
	}

	log.Ctx(r.Context()).Info().Str("user_id", user.ID).Msg("Account updated")
	apiutil.WriteMessage(w, r, league.AccountOf(user), "Your details have been saved")
}

func (h *Handler) accountUpdate(req updateRequest, current *db.User) (db.UserUpdate, error) {
	var update db.UserUpdate

	if req.Name != nil {
		name, err := apiutil.Required(*req.Name, "name", "Name")
		if err != nil {
			return update, err
		}
		update.Name = &name
	}
	if req.Phone != nil {
		phone, err := normalizePhone(*req.Phone)
		if err != nil {
			return update, err
		}
		if phone != current.Phone {
			verified, err := h.checkPhoneToken(req.VerificationToken, phone)
			if err != nil {
				return update, err
			}
			update.Phone = &phone
			update.PhoneVerified = &verified
		}
	}
	if req.Password != nil {
		if !VerifyPassword(current.PasswordHash, req.CurrentPassword) {
			return update, apiutil.FieldError{Field: "current_password", Reason: "Your current password is incorrect"}
		}
		if err := validPassword(*req.Password); err != nil {
			return update, err
		}
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return update, err
		}
		update.PasswordHash = &hash
	}
	if req.Gender != nil {
		gender, err := validGender(*req.Gender)
		if err != nil {
			return update, err
		}
		update.Gender = &gender
	}
	if req.Avatar != nil {
		avatar := strings.TrimSpace(*req.Avatar)
		update.Avatar = &avatar
	}
	return update, nil
}

// checkPhoneToken reports whether token proves phone was verified. A missing
// token is only an error when verification is required.
func (h *Handler) checkPhoneToken(token, phone string) (bool, error) {
	if token == "" {
		if h.requirePhone {
			return false, apiutil.FieldError{Field: "verification_token", Reason: "Please verify your phone number"}
		}
		return false, nil
	}
	claims, err := h.tokens.Parse(token, KindPhone)
	if err != nil || claims.Phone != phone {
		return false, apiutil.FieldError{Field: "verification_token", Reason: "Phone verification has expired, please verify again"}
	}
	return true, nil
}

func (h *Handler) startSession(w http.ResponseWriter, user *db.User) error {
	access, err := h.tokens.Access(user.ID, user.Role)
	if err != nil {
		return err
	}
	refresh, err := h.tokens.Refresh(user.ID)
	if err != nil {
		return err
	}
	h.cookies.SetAccess(w, access, h.tokens.AccessTTL())
	h.cookies.SetRefresh(w, refresh, h.tokens.RefreshTTL())
	return nil
}

func normalizePhone(raw string) (string, error) {
	if _, err := apiutil.Required(raw, "phone", "Phone number"); err != nil {
		return "", err
	}
	phone := verify.NormalizePhone(raw)
	if phone == "" {
		return "", verify.ErrInvalidPhone
	}
	return phone, nil
}

func validGender(raw string) (string, error) {
	gender := strings.ToLower(strings.TrimSpace(raw))
	switch gender {
	case db.GenderAny, db.GenderMale, db.GenderFemale:
		return gender, nil
	}
	return "", apiutil.FieldError{Field: "gender", Reason: "Gender must be male, female or empty"}
}
