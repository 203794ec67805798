// Package league applies the roster, cancellation and ledger rules on top of
// the document store.
//
// Each roster change is one atomic single-document update. Tournament teams
// are rebuilt from the resulting roster, and notifications are enqueued only
// after the roster change has been stored.
package league

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/clock"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/notify"
	"github.com/codr1/Kickabout/internal/roster"
)

type Service struct {
	store    db.Store
	notifier notify.Enqueuer
	clock    clock.Clock
	loc      *time.Location
}

func NewService(store db.Store, notifier notify.Enqueuer, clk clock.Clock, loc *time.Location) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, notifier: notifier, clock: clk, loc: loc}
}

// Location is the league timezone used for kick-off times.
func (s *Service) Location() *time.Location {
	return s.loc
}

type SignupRequest struct {
	GameID string
	UserID string
	// ByAdmin skips the signup gate and the gender restriction.
	ByAdmin bool
}

// Signup adds the player to the game's roster. Signing up twice is a no-op.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*db.Game, error) {
	game, err := s.visibleGame(ctx, req.GameID, req.ByAdmin)
	if err != nil {
		return nil, err
	}
	if game.Cancelled {
		return nil, ErrGameCancelled
	}

	player, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if !req.ByAdmin {
		settings, err := s.store.GetAdmin(ctx)
		if err != nil {
			return nil, err
		}
		if !settings.SignupOpen {
			return nil, ErrSignupClosed
		}
		if game.Gender != db.GenderAny && player.Gender != game.Gender {
			return nil, ErrGenderRestricted
		}
	}

	post, err := s.store.AddPlayer(ctx, game.ID, player.ID)
	if err != nil {
		return nil, err
	}
	if post.IsTournament() {
		s.rebuildTeams(ctx, post)
	}

	log.Ctx(ctx).Info().
		Str("game_id", post.ID).
		Str("user_id", player.ID).
		Int("position", post.Roster().Index(player.ID)).
		Bool("by_admin", req.ByAdmin).
		Msg("Player signed up")

	return post, nil
}

type CancelRequest struct {
	GameID string
	UserID string
	// Date selects the occurrence being cancelled (YYYY-MM-DD). Empty means
	// the game's own date, or its next weekly kick-off. Players may only name
	// that occurrence; admins may name any date.
	Date string
	// Bypass waives the late-cancellation shame record.
	Bypass bool
	// AdminInitiated marks an admin removal: no shame is recorded and the
	// removed player is told they were bumped.
	AdminInitiated bool
	// ByAdmin allows acting on hidden games.
	ByAdmin bool
}

type CancelResult struct {
	Game     *db.Game
	Start    time.Time
	Shameful bool
	// Promoted is the player who moved into the last confirmed slot, if any.
	Promoted string
}

// Cancel removes the player from the roster. The promoted player is derived
// from the roster as it was at the instant of the atomic removal, so
// concurrent cancellations each see their own pre-image.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	logger := log.Ctx(ctx).With().Str("game_id", req.GameID).Str("user_id", req.UserID).Logger()

	game, err := s.visibleGame(ctx, req.GameID, req.ByAdmin || req.AdminInitiated)
	if err != nil {
		return nil, err
	}
	if !game.Roster().Contains(req.UserID) {
		return nil, ErrNotOnRoster
	}

	waived := req.Bypass || req.AdminInitiated || game.Cancelled
	start, err := s.cancelStart(game, req.Date, req.ByAdmin || req.AdminInitiated)
	var verr *ValidationError
	if errors.As(err, &verr) {
		return nil, err
	}
	if err != nil && !waived {
		return nil, err
	}
	shameful := err == nil && roster.IsShameful(s.clock.Now(), start, waived)

	pre, err := s.store.PullPlayer(ctx, game.ID, req.UserID)
	if err != nil {
		return nil, err
	}
	preRoster := pre.Roster()
	preIndex := preRoster.Index(req.UserID)
	if preIndex < 0 {
		// Someone else removed the player between the read and the pull.
		return nil, ErrNotOnRoster
	}
	postRoster, _ := preRoster.Remove(req.UserID)

	post := *pre
	post.Players = []string(postRoster)

	if shameful {
		record := db.ShameRecord{GameID: game.ID, Date: start.In(s.loc).Format(roster.DateLayout)}
		if err := s.store.AppendShame(ctx, req.UserID, record); err != nil {
			// The roster change is already stored; the penalty is reported
			// but does not undo it.
			logger.Error().Err(err).Msg("Failed to record shame for late cancellation")
		}
	}

	if post.IsTournament() {
		s.rebuildTeams(ctx, &post)
	}

	promoted := roster.Promotion(preRoster, preIndex, pre.Ceiling())

	logger.Info().
		Int("position", preIndex).
		Bool("shameful", shameful).
		Bool("admin_initiated", req.AdminInitiated).
		Str("promoted", promoted).
		Msg("Player cancelled")

	if req.AdminInitiated {
		s.notifyUser(ctx, notify.KindBumped, &post, req.UserID)
	}
	if promoted != "" {
		s.notifyUser(ctx, notify.KindPromoted, &post, promoted)
	}

	return &CancelResult{Game: &post, Start: start, Shameful: shameful, Promoted: promoted}, nil
}

// GameStart resolves the kick-off of the occurrence named by date. An empty
// date falls back to the game's fixed date, then to its next weekly slot.
func (s *Service) GameStart(game *db.Game, date string) (time.Time, error) {
	if date == "" {
		date = game.Date
	}
	if date != "" {
		start, err := roster.StartOn(date, game.Time, s.loc)
		if err != nil {
			return time.Time{}, invalid("date", err.Error())
		}
		return start, nil
	}
	weekday, err := roster.ParseWeekday(game.Day)
	if err != nil {
		return time.Time{}, fmt.Errorf("game %s: %w", game.ID, err)
	}
	start, err := roster.NextStart(weekday, game.Time, s.clock.Now(), s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("game %s: %w", game.ID, err)
	}
	return start, nil
}

// cancelStart is the kick-off a cancellation is judged against. A player's
// date must name the scheduled occurrence, so it cannot push the kick-off
// past the shame threshold.
func (s *Service) cancelStart(game *db.Game, date string, admin bool) (time.Time, error) {
	if date == "" || admin {
		return s.GameStart(game, date)
	}
	requested, err := roster.StartOn(date, game.Time, s.loc)
	if err != nil {
		return time.Time{}, invalid("date", err.Error())
	}
	scheduled, err := s.GameStart(game, "")
	if err != nil {
		return time.Time{}, err
	}
	if !requested.Equal(scheduled) {
		return time.Time{}, invalid("date", "Date does not match the game's next kick-off")
	}
	return scheduled, nil
}

// visibleGame loads a game, hiding hidden games from non-admins.
func (s *Service) visibleGame(ctx context.Context, id string, admin bool) (*db.Game, error) {
	game, err := s.store.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if game.Hidden && !admin {
		return nil, fmt.Errorf("game %s: %w", id, db.ErrNotFound)
	}
	return game, nil
}

// rebuildTeams derives the team buckets from g.Players and stores them. A
// concurrent roster change wins; it stores its own rebuild.
func (s *Service) rebuildTeams(ctx context.Context, g *db.Game) {
	teams := roster.RebuildTeams(g.Roster(), roster.TeamCount).ToSlices()
	g.Teams = teams

	ok, err := s.store.SetTeams(ctx, g.ID, g.Players, teams)
	switch {
	case err != nil:
		log.Ctx(ctx).Error().Err(err).Str("game_id", g.ID).Msg("Failed to store rebuilt teams")
	case !ok:
		log.Ctx(ctx).Debug().Str("game_id", g.ID).Msg("Roster changed before teams were stored")
	}
}

func (s *Service) notifyUser(ctx context.Context, kind notify.Kind, game *db.Game, userID string) {
	if s.notifier == nil {
		return
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Str("kind", string(kind)).Msg("Skipping notification for unknown user")
		return
	}
	s.notifier.Enqueue(gameMessage(kind, game, user))
}

func gameMessage(kind notify.Kind, game *db.Game, user *db.User) notify.Message {
	return notify.Message{
		Kind:     kind,
		UserID:   user.ID,
		Name:     user.Name,
		Phone:    user.Phone,
		GameID:   game.ID,
		GameName: game.Name,
		Day:      game.Day,
		Time:     game.Time,
		Location: game.Location,
	}
}

// IsNotFound reports whether err means a missing game or user.
func IsNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
