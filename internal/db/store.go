package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/codr1/Kickabout/internal/roster"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate document")
)

// Store is the document store consumed by the service layer. Every mutation
// touches a single document and is atomic on its own; nothing spans documents.
type Store interface {
	GetGame(ctx context.Context, id string) (*Game, error)
	ListGames(ctx context.Context) ([]Game, error)
	InsertGame(ctx context.Context, game *Game) error
	UpdateGame(ctx context.Context, id string, update GameUpdate) (*Game, error)
	// AddPlayer adds userID to the roster unless present and returns the
	// game as it is after the update.
	AddPlayer(ctx context.Context, gameID, userID string) (*Game, error)
	// PullPlayer removes userID from the roster and returns the game as it
	// was immediately before the update.
	PullPlayer(ctx context.Context, gameID, userID string) (*Game, error)
	// SetTeams stores teams only while the roster still equals players. It
	// reports false when a concurrent mutation got there first.
	SetTeams(ctx context.Context, gameID string, players []string, teams [][]string) (bool, error)
	DeleteGame(ctx context.Context, id string) error
	// ResetGames empties every roster and clears cancellations.
	ResetGames(ctx context.Context) (int64, error)

	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	InsertUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, id string) error
	AppendShame(ctx context.Context, userID string, record ShameRecord) error
	AppendMissedPayment(ctx context.Context, userID string, record MissedPayment) error
	// ClearLedger empties one ledger on every user.
	ClearLedger(ctx context.Context, ledger Ledger) (int64, error)

	GetAdmin(ctx context.Context) (*Admin, error)
	SetSignupOpen(ctx context.Context, open bool) (*Admin, error)

	RecordNotificationFailure(ctx context.Context, failure *NotificationFailure) error
	ListNotificationFailures(ctx context.Context, limit int) ([]NotificationFailure, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func prepareGame(g *Game) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	if g.Players == nil {
		g.Players = []string{}
	}
	if g.Type == "" {
		g.Type = roster.Standard
	}
	if g.IsTournament() && len(g.Teams) == 0 {
		g.Teams = roster.RebuildTeams(g.Roster(), roster.TeamCount).ToSlices()
	}
}

func prepareUser(u *User) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = RoleOrdinary
	}
	if u.Shame == nil {
		u.Shame = []ShameRecord{}
	}
	if u.MissedPayments == nil {
		u.MissedPayments = []MissedPayment{}
	}
}

func prepareFailure(f *NotificationFailure) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
}

func emptyTeams() [][]string {
	return roster.RebuildTeams(nil, roster.TeamCount).ToSlices()
}
