package db

import (
	"time"

	"github.com/codr1/Kickabout/internal/roster"
)

type Role string

const (
	RoleOrdinary Role = "ordinary"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleOrdinary || r == RoleAdmin
}

// Gender values used for game restrictions. An empty restriction admits anyone.
const (
	GenderAny    = ""
	GenderMale   = "male"
	GenderFemale = "female"
)

// AdminID is the identifier of the admin settings singleton.
const AdminID = "settings"

// Game is a weekly (or one-off) fixture. Players is the priority-ordered
// roster; Teams is derived from it for tournament games and never edited on
// its own.
type Game struct {
	ID        string          `bson:"_id" json:"id"`
	Name      string          `bson:"name" json:"name"`
	Day       string          `bson:"day" json:"day"`
	Date      string          `bson:"date,omitempty" json:"date,omitempty"`
	Time      string          `bson:"time" json:"time"`
	Location  string          `bson:"location" json:"location"`
	Address   string          `bson:"address,omitempty" json:"address,omitempty"`
	MapLink   string          `bson:"map_link,omitempty" json:"map_link,omitempty"`
	Type      roster.GameType `bson:"type" json:"type"`
	Gender    string          `bson:"gender,omitempty" json:"gender,omitempty"`
	Players   []string        `bson:"players" json:"players"`
	Teams     [][]string      `bson:"teams,omitempty" json:"teams,omitempty"`
	Cancelled bool            `bson:"cancelled" json:"cancelled"`
	Hidden    bool            `bson:"hidden" json:"hidden"`
	CreatedAt time.Time       `bson:"created_at" json:"created_at"`
}

func (g *Game) Roster() roster.Roster {
	return roster.Roster(g.Players)
}

func (g *Game) IsTournament() bool {
	return g.Type == roster.Tournament
}

// Ceiling is the aggregate confirmed-player count for the game.
func (g *Game) Ceiling() int {
	teams := len(g.Teams)
	if teams == 0 {
		teams = roster.TeamCount
	}
	return roster.Ceiling(g.Type, teams)
}

type ShameRecord struct {
	GameID string `bson:"game_id" json:"game_id"`
	Date   string `bson:"date" json:"date"`
}

type MissedPayment struct {
	GameID string `bson:"game_id,omitempty" json:"game_id,omitempty"`
	Day    string `bson:"day" json:"day"`
	Time   string `bson:"time" json:"time"`
	Date   string `bson:"date" json:"date"`
}

// User is a registered player. The stored form includes the password hash, so
// API responses must never encode a User directly.
type User struct {
	ID             string          `bson:"_id" json:"id"`
	Name           string          `bson:"name" json:"name"`
	Phone          string          `bson:"phone" json:"phone"`
	PasswordHash   string          `bson:"password_hash" json:"password_hash"`
	Role           Role            `bson:"role" json:"role"`
	Gender         string          `bson:"gender,omitempty" json:"gender,omitempty"`
	Shame          []ShameRecord   `bson:"shame" json:"shame"`
	MissedPayments []MissedPayment `bson:"missed_payments" json:"missed_payments"`
	Avatar         string          `bson:"avatar,omitempty" json:"avatar,omitempty"`
	PhoneVerified  bool            `bson:"phone_verified" json:"phone_verified"`
	CreatedAt      time.Time       `bson:"created_at" json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type Admin struct {
	ID         string `bson:"_id" json:"id"`
	SignupOpen bool   `bson:"signup_open" json:"signup_open"`
}

// NotificationFailure is one undelivered bot message.
type NotificationFailure struct {
	ID        string    `bson:"_id" json:"id"`
	Kind      string    `bson:"kind" json:"kind"`
	UserID    string    `bson:"user_id" json:"user_id"`
	GameID    string    `bson:"game_id,omitempty" json:"game_id,omitempty"`
	Error     string    `bson:"error" json:"error"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// GameUpdate lists the editable game fields. Nil fields are left unchanged.
type GameUpdate struct {
	Name      *string
	Day       *string
	Date      *string
	Time      *string
	Location  *string
	Address   *string
	MapLink   *string
	Type      *roster.GameType
	Gender    *string
	Cancelled *bool
	Hidden    *bool
}

func (u GameUpdate) Apply(g *Game) {
	setString(&g.Name, u.Name)
	setString(&g.Day, u.Day)
	setString(&g.Date, u.Date)
	setString(&g.Time, u.Time)
	setString(&g.Location, u.Location)
	setString(&g.Address, u.Address)
	setString(&g.MapLink, u.MapLink)
	setString(&g.Gender, u.Gender)
	if u.Type != nil {
		g.Type = *u.Type
	}
	if u.Cancelled != nil {
		g.Cancelled = *u.Cancelled
	}
	if u.Hidden != nil {
		g.Hidden = *u.Hidden
	}
}

// UserUpdate lists the editable user fields. Nil fields are left unchanged.
type UserUpdate struct {
	Name          *string
	Phone         *string
	PasswordHash  *string
	Role          *Role
	Gender        *string
	Avatar        *string
	PhoneVerified *bool
}

func (u UserUpdate) Apply(user *User) {
	setString(&user.Name, u.Name)
	setString(&user.Phone, u.Phone)
	setString(&user.PasswordHash, u.PasswordHash)
	setString(&user.Gender, u.Gender)
	setString(&user.Avatar, u.Avatar)
	if u.Role != nil {
		user.Role = *u.Role
	}
	if u.PhoneVerified != nil {
		user.PhoneVerified = *u.PhoneVerified
	}
}

// Ledger names one of the per-user penalty lists.
type Ledger string

const (
	LedgerShame          Ledger = "shame"
	LedgerMissedPayments Ledger = "missed_payments"
)

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
