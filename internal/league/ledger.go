package league

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/roster"
)

type MissedPaymentInput struct {
	GameID string `json:"game_id"`
	Day    string `json:"day"`
	Time   string `json:"time"`
	Date   string `json:"date"`
}

type ShameInput struct {
	GameID string `json:"game_id"`
	Date   string `json:"date"`
}

// AddMissedPayment appends a missed payment to the user's ledger. Day and time
// default to the referenced game's schedule.
func (s *Service) AddMissedPayment(ctx context.Context, userID string, in MissedPaymentInput) (*db.User, error) {
	date, err := s.validDate(in.Date)
	if err != nil {
		return nil, err
	}
	record := db.MissedPayment{
		GameID: strings.TrimSpace(in.GameID),
		Day:    strings.ToLower(strings.TrimSpace(in.Day)),
		Time:   strings.TrimSpace(in.Time),
		Date:   date,
	}
	if record.GameID != "" && (record.Day == "" || record.Time == "") {
		game, err := s.store.GetGame(ctx, record.GameID)
		if err != nil {
			return nil, err
		}
		if record.Day == "" {
			record.Day = game.Day
		}
		if record.Time == "" {
			record.Time = game.Time
		}
	}
	if record.Day == "" {
		parsed, _ := roster.ParseDate(date, s.loc)
		record.Day = strings.ToLower(parsed.Weekday().String())
	}

	if err := s.store.AppendMissedPayment(ctx, userID, record); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("user_id", userID).Str("date", date).Msg("Missed payment recorded")
	return s.store.GetUser(ctx, userID)
}

// AddShame appends a shame record, e.g. for a no-show.
func (s *Service) AddShame(ctx context.Context, userID string, in ShameInput) (*db.User, error) {
	date, err := s.validDate(in.Date)
	if err != nil {
		return nil, err
	}
	gameID := strings.TrimSpace(in.GameID)
	if gameID == "" {
		return nil, invalid("game_id", "Game is required")
	}
	if err := s.store.AppendShame(ctx, userID, db.ShameRecord{GameID: gameID, Date: date}); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("user_id", userID).Str("game_id", gameID).Str("date", date).Msg("Shame recorded")
	return s.store.GetUser(ctx, userID)
}

// ClearLedger empties one ledger for every user. Records are never removed
// individually.
func (s *Service) ClearLedger(ctx context.Context, ledger db.Ledger) (int64, error) {
	if ledger != db.LedgerShame && ledger != db.LedgerMissedPayments {
		return 0, invalid("ledger", "Ledger must be shame or missed_payments")
	}
	n, err := s.store.ClearLedger(ctx, ledger)
	if err != nil {
		return 0, err
	}
	log.Ctx(ctx).Info().Str("ledger", string(ledger)).Int64("users", n).Msg("Ledger cleared")
	return n, nil
}

// SetRole changes a user's role.
func (s *Service) SetRole(ctx context.Context, userID string, role db.Role) (*db.User, error) {
	if !role.Valid() {
		return nil, invalid("role", "Role must be ordinary or admin")
	}
	user, err := s.store.UpdateUser(ctx, userID, db.UserUpdate{Role: &role})
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("user_id", userID).Str("role", string(role)).Msg("Role updated")
	return user, nil
}

// DeleteUser takes the user off every roster, promoting waitlisted players as
// usual, then deletes the account.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return err
	}
	games, err := s.store.ListGames(ctx)
	if err != nil {
		return err
	}
	for _, g := range games {
		if !g.Roster().Contains(userID) {
			continue
		}
		_, err := s.Cancel(ctx, CancelRequest{GameID: g.ID, UserID: userID, Bypass: true, ByAdmin: true})
		if err != nil && !IsNotFound(err) && !errors.Is(err, ErrNotOnRoster) {
			return err
		}
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("user_id", userID).Msg("User deleted")
	return nil
}

func (s *Service) validDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if _, err := roster.ParseDate(raw, s.loc); err != nil {
		return "", invalid("date", err.Error())
	}
	return raw, nil
}
