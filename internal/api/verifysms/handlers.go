// internal/api/verifysms/handlers.go
package verifysms

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/api/apiutil"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/ratelimit"
	"github.com/codr1/Kickabout/internal/verify"
)

// PhoneTokenIssuer signs proof that a phone number was verified.
type PhoneTokenIssuer interface {
	Phone(phone string) (string, error)
}

type Handler struct {
	verifier   verify.Verifier
	limiter    *ratelimit.Limiter
	tokens     PhoneTokenIssuer
	store      db.Store
	trustProxy bool
}

func NewHandler(verifier verify.Verifier, limiter *ratelimit.Limiter, tokens PhoneTokenIssuer, store db.Store, trustProxy bool) *Handler {
	return &Handler{
		verifier:   verifier,
		limiter:    limiter,
		tokens:     tokens,
		store:      store,
		trustProxy: trustProxy,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /verify-sms/send-code", h.HandleSendCode)
	mux.HandleFunc("POST /verify-sms/verify-code", h.HandleVerifyCode)
}

type sendCodeRequest struct {
	Phone string `json:"phone"`
}

type sendCodeResponse struct {
	Phone   string `json:"phone"`
	Session string `json:"session"`
}

// POST /verify-sms/send-code
func (h *Handler) HandleSendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	phone := verify.NormalizePhone(strings.TrimSpace(req.Phone))
	if phone == "" {
		apiutil.WriteError(w, r, verify.ErrInvalidPhone)
		return
	}

	ip := ratelimit.ClientIP(r, h.trustProxy)
	if decision := h.limiter.CheckSend(phone, ip); !decision.Allowed {
		ratelimit.LogExceeded("send", phone, ip, decision)
		apiutil.WriteError(w, r, decision.Err())
		return
	}

	session, err := h.verifier.SendCode(r.Context(), phone)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	h.limiter.RecordSend(phone, ip)

	log.Ctx(r.Context()).Info().Str("phone", ratelimit.SanitizeIdentifier(phone)).Msg("Verification code sent")
	apiutil.WriteMessage(w, r, sendCodeResponse{Phone: phone, Session: session}, "We've texted you a code")
}

type verifyCodeRequest struct {
	Phone   string `json:"phone"`
	Session string `json:"session"`
	Code    string `json:"code"`
}

type verifyCodeResponse struct {
	Phone             string `json:"phone"`
	VerificationToken string `json:"verification_token"`
}

// POST /verify-sms/verify-code
func (h *Handler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	phone := verify.NormalizePhone(strings.TrimSpace(req.Phone))
	if phone == "" {
		apiutil.WriteError(w, r, verify.ErrInvalidPhone)
		return
	}
	session, err := apiutil.Required(req.Session, "session", "Session")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	code, err := apiutil.Required(req.Code, "code", "Code")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ip := ratelimit.ClientIP(r, h.trustProxy)
	if decision := h.limiter.CheckVerify(phone, ip); !decision.Allowed {
		ratelimit.LogExceeded("verify", phone, ip, decision)
		apiutil.WriteError(w, r, decision.Err())
		return
	}

	if err := h.verifier.VerifyCode(r.Context(), phone, session, code); err != nil {
		if errors.Is(err, verify.ErrCodeMismatch) && h.limiter.RecordFailedVerify(phone, ip) {
			log.Ctx(r.Context()).Warn().Str("phone", ratelimit.SanitizeIdentifier(phone)).Msg("Phone locked out after repeated wrong codes")
		}
		apiutil.WriteError(w, r, err)
		return
	}
	h.limiter.RecordVerified(phone, ip)

	token, err := h.tokens.Phone(phone)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	h.markVerified(r, phone)

	log.Ctx(r.Context()).Info().Str("phone", ratelimit.SanitizeIdentifier(phone)).Msg("Phone verified")
	apiutil.WriteMessage(w, r, verifyCodeResponse{Phone: phone, VerificationToken: token}, "Phone number verified")
}

// markVerified flags an existing account with this phone as verified.
func (h *Handler) markVerified(r *http.Request, phone string) {
	if h.store == nil {
		return
	}
	user, err := h.store.GetUserByPhone(r.Context(), phone)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Ctx(r.Context()).Error().Err(err).Msg("Failed to look up verified phone")
		}
		return
	}
	if user.PhoneVerified {
		return
	}
	verified := true
	if _, err := h.store.UpdateUser(r.Context(), user.ID, db.UserUpdate{PhoneVerified: &verified}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("user_id", user.ID).Msg("Failed to mark phone verified")
	}
}
