// Package verify sends and checks one-time SMS codes that prove a player owns
// a phone number.
package verify

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/cognito"
	"github.com/codr1/Kickabout/internal/ratelimit"
)

var (
	ErrInvalidPhone = errors.New("please enter a valid phone number")
	ErrCodeMismatch = errors.New("the code you entered is incorrect")
	ErrCodeExpired  = errors.New("the code has expired, please request a new one")
	ErrThrottled    = errors.New("too many verification requests")
)

type Verifier interface {
	// SendCode texts a code to phone and returns the session that VerifyCode
	// needs.
	SendCode(ctx context.Context, phone string) (string, error)
	VerifyCode(ctx context.Context, phone, session, code string) error
}

// SMSOTPClient is implemented by *cognito.CognitoClient.
type SMSOTPClient interface {
	InitiateSMSOTP(ctx context.Context, phone string) (string, error)
	VerifySMSOTP(ctx context.Context, session, phone, code string) error
	CreateUser(ctx context.Context, phone string) error
}

// CognitoVerifier delivers codes through a Cognito user pool configured for
// passwordless SMS sign-in. Pool users are created on first use.
type CognitoVerifier struct {
	client SMSOTPClient
}

func NewCognitoVerifier(client SMSOTPClient) *CognitoVerifier {
	return &CognitoVerifier{client: client}
}

func (v *CognitoVerifier) SendCode(ctx context.Context, phone string) (string, error) {
	session, err := v.client.InitiateSMSOTP(ctx, phone)
	if errors.Is(err, cognito.ErrCognitoUserNotFound) {
		log.Ctx(ctx).Info().Str("phone", ratelimit.SanitizeIdentifier(phone)).Msg("Creating verification user")
		if err := v.client.CreateUser(ctx, phone); err != nil && !errors.Is(err, cognito.ErrCognitoUserExists) {
			return "", mapError(err)
		}
		session, err = v.client.InitiateSMSOTP(ctx, phone)
	}
	if err != nil {
		return "", mapError(err)
	}
	return session, nil
}

func (v *CognitoVerifier) VerifyCode(ctx context.Context, phone, session, code string) error {
	return mapError(v.client.VerifySMSOTP(ctx, session, phone, code))
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cognito.ErrCognitoCodeMismatch):
		return ErrCodeMismatch
	case errors.Is(err, cognito.ErrCognitoExpiredCode), errors.Is(err, cognito.ErrCognitoNotAuthorized):
		// An expired session surfaces as NotAuthorized.
		return ErrCodeExpired
	case errors.Is(err, cognito.ErrCognitoThrottled):
		return fmt.Errorf("%w: %v", ErrThrottled, err)
	default:
		return fmt.Errorf("sms verification: %w", err)
	}
}

// DevSession is the session handed out by DevVerifier.
const DevSession = "dev-session"

// DevVerifier accepts a fixed code and logs instead of texting. Development
// only.
type DevVerifier struct {
	Code string
}

func (v DevVerifier) SendCode(ctx context.Context, phone string) (string, error) {
	log.Ctx(ctx).Info().
		Str("phone", ratelimit.SanitizeIdentifier(phone)).
		Str("code", v.Code).
		Msg("Development verification code")
	return DevSession, nil
}

func (v DevVerifier) VerifyCode(_ context.Context, _, session, code string) error {
	if session != DevSession {
		return ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(v.Code)) != 1 {
		return ErrCodeMismatch
	}
	return nil
}
