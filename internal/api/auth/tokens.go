package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codr1/Kickabout/internal/clock"
	"github.com/codr1/Kickabout/internal/config"
	"github.com/codr1/Kickabout/internal/db"
)

const (
	Issuer = "kickabout"

	PhoneTokenTTL = 15 * time.Minute
)

// TokenKind separates the three token uses so one can never stand in for
// another.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
	KindPhone   TokenKind = "phone"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Kind  TokenKind `json:"kind"`
	Role  db.Role   `json:"role,omitempty"`
	Phone string    `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and parses HS256 tokens with the app secret.
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clock.Clock
}

func NewTokens(secret string, cfg config.AuthConfig, clk clock.Clock) *Tokens {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Tokens{
		secret:     []byte(secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      clk,
	}
}

func (t *Tokens) AccessTTL() time.Duration  { return t.accessTTL }
func (t *Tokens) RefreshTTL() time.Duration { return t.refreshTTL }

// Access issues a short-lived token naming the user and their role.
func (t *Tokens) Access(userID string, role db.Role) (string, error) {
	return t.sign(Claims{Kind: KindAccess, Role: role}, userID, t.accessTTL)
}

// Refresh issues a long-lived token that only names the user. The role is
// reloaded from the store when it is exchanged.
func (t *Tokens) Refresh(userID string) (string, error) {
	return t.sign(Claims{Kind: KindRefresh}, userID, t.refreshTTL)
}

// Phone issues a token proving the holder verified phone by SMS.
func (t *Tokens) Phone(phone string) (string, error) {
	return t.sign(Claims{Kind: KindPhone, Phone: phone}, phone, PhoneTokenTTL)
}

func (t *Tokens) sign(claims Claims, subject string, ttl time.Duration) (string, error) {
	now := t.clock.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Kind, err)
	}
	return signed, nil
}

// Parse validates raw and checks it is of the wanted kind.
func (t *Tokens) Parse(raw string, kind TokenKind) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: got %s token, want %s", ErrInvalidToken, claims.Kind, kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &claims, nil
}
