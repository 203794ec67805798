package league

import (
	"context"
	"time"

	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/roster"
)

// PlayerView is the public face of a rostered player.
type PlayerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Gender string `json:"gender,omitempty"`
	Shame  int    `json:"shame"`
}

type TeamView struct {
	Confirmed []PlayerView `json:"confirmed"`
	Waitlist  []PlayerView `json:"waitlist"`
}

// GameView is a game with its roster resolved into confirmed and waitlisted
// players. It is computed on every read and never stored.
type GameView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Day       string          `json:"day"`
	Date      string          `json:"date,omitempty"`
	Time      string          `json:"time"`
	Start     *time.Time      `json:"start,omitempty"`
	Location  string          `json:"location"`
	Address   string          `json:"address,omitempty"`
	MapLink   string          `json:"map_link,omitempty"`
	Type      roster.GameType `json:"type"`
	Gender    string          `json:"gender,omitempty"`
	Cancelled bool            `json:"cancelled"`
	Hidden    bool            `json:"hidden"`
	Capacity  int             `json:"capacity"`
	Confirmed []PlayerView    `json:"confirmed"`
	Waitlist  []PlayerView    `json:"waitlist"`
	Teams     []TeamView      `json:"teams,omitempty"`
}

// Status is a player's place on one roster.
type Status struct {
	GameID   string `json:"game_id"`
	State    string `json:"state"`
	Position int    `json:"position"`
}

const (
	StateConfirmed  = "confirmed"
	StateWaitlisted = "waitlisted"
)

// ListGames returns every game the viewer may see, resolved against a single
// listing of users.
func (s *Service) ListGames(ctx context.Context, admin bool) ([]GameView, error) {
	games, err := s.store.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.userMap(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]GameView, 0, len(games))
	for i := range games {
		if games[i].Hidden && !admin {
			continue
		}
		views = append(views, s.view(&games[i], users))
	}
	return views, nil
}

// GetGame returns one game view.
func (s *Service) GetGame(ctx context.Context, id string, admin bool) (*GameView, error) {
	game, err := s.visibleGame(ctx, id, admin)
	if err != nil {
		return nil, err
	}
	users, err := s.userMap(ctx)
	if err != nil {
		return nil, err
	}
	view := s.view(game, users)
	return &view, nil
}

func (s *Service) view(g *db.Game, users map[string]db.User) GameView {
	v := GameView{
		ID:        g.ID,
		Name:      g.Name,
		Day:       g.Day,
		Date:      g.Date,
		Time:      g.Time,
		Location:  g.Location,
		Address:   g.Address,
		MapLink:   g.MapLink,
		Type:      g.Type,
		Gender:    g.Gender,
		Cancelled: g.Cancelled,
		Hidden:    g.Hidden,
		Capacity:  g.Ceiling(),
	}
	if start, err := s.GameStart(g, ""); err == nil {
		v.Start = &start
	}

	r := g.Roster()
	v.Confirmed = resolve(r.Confirmed(g.Ceiling()), users)
	v.Waitlist = resolve(r.Waitlist(g.Ceiling()), users)

	if g.IsTournament() {
		teams := roster.TeamsFromSlices(g.Teams)
		if teams.Len() != len(r) {
			teams = roster.RebuildTeams(r, roster.TeamCount)
		}
		confirmed, waitlist := teams.Confirmed(), teams.Waitlist()
		v.Teams = make([]TeamView, len(teams))
		for i := range teams {
			v.Teams[i] = TeamView{
				Confirmed: resolve(confirmed[i], users),
				Waitlist:  resolve(waitlist[i], users),
			}
		}
	}
	return v
}

func resolve(ids roster.Roster, users map[string]db.User) []PlayerView {
	out := make([]PlayerView, 0, len(ids))
	for _, id := range ids {
		u, ok := users[id]
		if !ok {
			out = append(out, PlayerView{ID: id, Name: "Unknown player"})
			continue
		}
		out = append(out, PlayerView{
			ID:     u.ID,
			Name:   u.Name,
			Avatar: u.Avatar,
			Gender: u.Gender,
			Shame:  len(u.Shame),
		})
	}
	return out
}

// StatusesFor lists where userID stands on every visible game's roster.
// Positions are 1-based.
func (s *Service) StatusesFor(ctx context.Context, userID string, admin bool) ([]Status, error) {
	games, err := s.store.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	out := []Status{}
	for i := range games {
		g := &games[i]
		if g.Hidden && !admin {
			continue
		}
		idx := g.Roster().Index(userID)
		if idx < 0 {
			continue
		}
		state := StateWaitlisted
		if idx < g.Ceiling() {
			state = StateConfirmed
		}
		out = append(out, Status{GameID: g.ID, State: state, Position: idx + 1})
	}
	return out, nil
}
