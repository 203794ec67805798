package league

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/notify"
)

const maxMessageLength = 480

// Settings returns the league-wide admin settings. Signups are closed until
// an admin opens them.
func (s *Service) Settings(ctx context.Context) (*db.Admin, error) {
	return s.store.GetAdmin(ctx)
}

func (s *Service) SetSignupOpen(ctx context.Context, open bool) (*db.Admin, error) {
	settings, err := s.store.SetSignupOpen(ctx, open)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Bool("signup_open", open).Msg("Signup gate changed")
	return settings, nil
}

// SendMessage queues a free-text bot message to one user.
func (s *Service) SendMessage(ctx context.Context, userID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return invalid("message", "Message is required")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return invalid("message", "Message must be at most 480 characters")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Phone == "" {
		return invalid("user_id", "This user has no phone number")
	}
	if s.notifier == nil {
		return ErrNotifierDisabled
	}

	s.notifier.Enqueue(notify.Message{
		Kind:   notify.KindCustom,
		UserID: user.ID,
		Name:   user.Name,
		Phone:  user.Phone,
		Text:   text,
	})
	log.Ctx(ctx).Info().Str("user_id", user.ID).Int("length", len(text)).Msg("Custom message queued")
	return nil
}
