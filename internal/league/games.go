package league

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/notify"
	"github.com/codr1/Kickabout/internal/roster"
)

// GameInput carries the admin-editable game fields. Nil fields are not set.
type GameInput struct {
	Name      *string `json:"name"`
	Day       *string `json:"day"`
	Date      *string `json:"date"`
	Time      *string `json:"time"`
	Location  *string `json:"location"`
	Address   *string `json:"address"`
	MapLink   *string `json:"map_link"`
	Type      *string `json:"type"`
	Gender    *string `json:"gender"`
	Hidden    *bool   `json:"hidden"`
	Cancelled *bool   `json:"cancelled"`
}

// normalize validates the provided fields and converts them to a store
// update. Day is stored as a lower-case weekday name and is derived from
// Date when only a date is given.
func (in GameInput) normalize(s *Service) (db.GameUpdate, error) {
	var u db.GameUpdate

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return u, invalid("name", "Name is required")
		}
		u.Name = &name
	}
	if in.Date != nil {
		date := strings.TrimSpace(*in.Date)
		if date != "" {
			parsed, err := roster.ParseDate(date, s.loc)
			if err != nil {
				return u, invalid("date", err.Error())
			}
			if in.Day == nil {
				day := strings.ToLower(parsed.Weekday().String())
				u.Day = &day
			}
		}
		u.Date = &date
	}
	if in.Day != nil {
		weekday, err := roster.ParseWeekday(*in.Day)
		if err != nil {
			return u, invalid("day", "Day must be a day of the week")
		}
		day := strings.ToLower(weekday.String())
		u.Day = &day
	}
	if in.Time != nil {
		t := strings.TrimSpace(*in.Time)
		if _, err := roster.StartOn("2000-01-01", t, s.loc); err != nil {
			return u, invalid("time", "Time must be formatted HH:MM")
		}
		u.Time = &t
	}
	if in.Location != nil {
		loc := strings.TrimSpace(*in.Location)
		u.Location = &loc
	}
	if in.Address != nil {
		addr := strings.TrimSpace(*in.Address)
		u.Address = &addr
	}
	if in.MapLink != nil {
		link := strings.TrimSpace(*in.MapLink)
		u.MapLink = &link
	}
	if in.Type != nil {
		t := roster.GameType(strings.ToLower(strings.TrimSpace(*in.Type)))
		if !t.Valid() {
			return u, invalid("type", "Type must be standard, elevens or tournament")
		}
		u.Type = &t
	}
	if in.Gender != nil {
		g := strings.ToLower(strings.TrimSpace(*in.Gender))
		if g != db.GenderAny && g != db.GenderMale && g != db.GenderFemale {
			return u, invalid("gender", "Gender must be male, female or empty")
		}
		u.Gender = &g
	}
	u.Hidden = in.Hidden
	u.Cancelled = in.Cancelled
	return u, nil
}

// CreateGame validates input and stores a new game with an empty roster.
func (s *Service) CreateGame(ctx context.Context, in GameInput) (*db.Game, error) {
	update, err := in.normalize(s)
	if err != nil {
		return nil, err
	}
	if update.Name == nil {
		return nil, invalid("name", "Name is required")
	}
	if update.Day == nil {
		return nil, invalid("day", "Day or date is required")
	}
	if update.Time == nil {
		return nil, invalid("time", "Time is required")
	}

	game := &db.Game{}
	update.Apply(game)
	if err := s.store.InsertGame(ctx, game); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("game_id", game.ID).Str("type", string(game.Type)).Msg("Game created")
	return game, nil
}

// EditGame applies admin edits. Changing the game type rebuilds or drops the
// team buckets. Cancelling goes through CancelGame so players are told.
func (s *Service) EditGame(ctx context.Context, id string, in GameInput) (*db.Game, error) {
	update, err := in.normalize(s)
	if err != nil {
		return nil, err
	}
	if update.Cancelled != nil && *update.Cancelled {
		return nil, invalid("cancelled", "Use the cancel game action to cancel a game")
	}

	before, err := s.store.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	game, err := s.store.UpdateGame(ctx, id, update)
	if err != nil {
		return nil, err
	}

	switch {
	case game.IsTournament() && !before.IsTournament():
		s.rebuildTeams(ctx, game)
	case !game.IsTournament() && len(game.Teams) > 0:
		if _, err := s.store.SetTeams(ctx, game.ID, game.Players, nil); err != nil {
			return nil, err
		}
		game.Teams = nil
	}

	log.Ctx(ctx).Info().Str("game_id", game.ID).Msg("Game updated")
	return game, nil
}

// CancelGame marks the game cancelled and tells every rostered player.
// Cancelling an already cancelled game sends nothing.
func (s *Service) CancelGame(ctx context.Context, id string) (*db.Game, error) {
	before, err := s.store.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	cancelled := true
	game, err := s.store.UpdateGame(ctx, id, db.GameUpdate{Cancelled: &cancelled})
	if err != nil {
		return nil, err
	}
	if before.Cancelled {
		return game, nil
	}

	log.Ctx(ctx).Info().Str("game_id", game.ID).Int("players", len(game.Players)).Msg("Game cancelled")

	if s.notifier == nil || len(game.Players) == 0 {
		return game, nil
	}
	users, err := s.userMap(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("game_id", game.ID).Msg("Failed to load players for cancellation notices")
		return game, nil
	}
	for _, playerID := range game.Players {
		user, ok := users[playerID]
		if !ok {
			continue
		}
		s.notifier.Enqueue(gameMessage(notify.KindGameCancelled, game, &user))
	}
	return game, nil
}

func (s *Service) DeleteGame(ctx context.Context, id string) error {
	if err := s.store.DeleteGame(ctx, id); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("game_id", id).Msg("Game deleted")
	return nil
}

// ResetGames clears every roster and reinstates cancelled games for the next
// week.
func (s *Service) ResetGames(ctx context.Context) (int64, error) {
	n, err := s.store.ResetGames(ctx)
	if err != nil {
		return 0, err
	}
	log.Ctx(ctx).Info().Int64("games", n).Msg("Game rosters reset")
	return n, nil
}

func (s *Service) userMap(ctx context.Context) (map[string]db.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]db.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}
