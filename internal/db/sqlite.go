package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store with one JSON document per row in
// per-collection tables. Every mutation is a read-modify-write inside a single
// immediate transaction, which gives the same single-document atomicity as
// the MongoDB update operators.
type SQLiteStore struct {
	DB *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.DB.Close()
}

func mapSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func getDoc(ctx context.Context, q queryer, table, id string, dest any) error {
	var data string
	err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, table), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func listDocs[T any](ctx context.Context, q queryer, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var doc T
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func putGame(ctx context.Context, q queryer, g *Game) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO games (id, created_at, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		g.ID, g.CreatedAt.UnixNano(), string(data),
	)
	return mapSQLiteError(err)
}

func putUser(ctx context.Context, q queryer, u *User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO users (id, phone, name, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET phone = excluded.phone, name = excluded.name, data = excluded.data`,
		u.ID, u.Phone, u.Name, string(data),
	)
	return mapSQLiteError(err)
}

// modifyGame applies fn to the stored game and returns the documents from
// before and after the change.
func (s *SQLiteStore) modifyGame(ctx context.Context, id string, fn func(*Game) error) (pre, post *Game, err error) {
	err = s.RunInTx(ctx, func(tx *sql.Tx) error {
		pre, post = &Game{}, &Game{}
		if err := getDoc(ctx, tx, "games", id, pre); err != nil {
			return err
		}
		if err := getDoc(ctx, tx, "games", id, post); err != nil {
			return err
		}
		if err := fn(post); err != nil {
			return err
		}
		return putGame(ctx, tx, post)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("update game %s: %w", id, err)
	}
	return pre, post, nil
}

func (s *SQLiteStore) modifyUser(ctx context.Context, id string, fn func(*User) error) (*User, error) {
	user := &User{}
	err := s.RunInTx(ctx, func(tx *sql.Tx) error {
		if err := getDoc(ctx, tx, "users", id, user); err != nil {
			return err
		}
		if err := fn(user); err != nil {
			return err
		}
		return putUser(ctx, tx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", id, err)
	}
	return user, nil
}

func (s *SQLiteStore) GetGame(ctx context.Context, id string) (*Game, error) {
	var game Game
	if err := getDoc(ctx, s.DB, "games", id, &game); err != nil {
		return nil, fmt.Errorf("get game %s: %w", id, err)
	}
	return &game, nil
}

func (s *SQLiteStore) ListGames(ctx context.Context) ([]Game, error) {
	games, err := listDocs[Game](ctx, s.DB, `SELECT data FROM games ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

func (s *SQLiteStore) InsertGame(ctx context.Context, game *Game) error {
	prepareGame(game)
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO games (id, created_at, data) VALUES (?, ?, ?)`,
		game.ID, game.CreatedAt.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("insert game: %w", mapSQLiteError(err))
	}
	return nil
}

func (s *SQLiteStore) UpdateGame(ctx context.Context, id string, update GameUpdate) (*Game, error) {
	_, post, err := s.modifyGame(ctx, id, func(g *Game) error {
		update.Apply(g)
		return nil
	})
	return post, err
}

func (s *SQLiteStore) AddPlayer(ctx context.Context, gameID, userID string) (*Game, error) {
	_, post, err := s.modifyGame(ctx, gameID, func(g *Game) error {
		if !slices.Contains(g.Players, userID) {
			g.Players = append(g.Players, userID)
		}
		return nil
	})
	return post, err
}

func (s *SQLiteStore) PullPlayer(ctx context.Context, gameID, userID string) (*Game, error) {
	pre, _, err := s.modifyGame(ctx, gameID, func(g *Game) error {
		players, _ := g.Roster().Remove(userID)
		g.Players = []string(players)
		return nil
	})
	return pre, err
}

var errRosterChanged = errors.New("roster changed")

func (s *SQLiteStore) SetTeams(ctx context.Context, gameID string, players []string, teams [][]string) (bool, error) {
	_, _, err := s.modifyGame(ctx, gameID, func(g *Game) error {
		if !slices.Equal(g.Players, players) {
			return errRosterChanged
		}
		g.Teams = teams
		return nil
	})
	if errors.Is(err, errRosterChanged) || errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) DeleteGame(ctx context.Context, id string) error {
	return deleteDoc(ctx, s.DB, "games", id)
}

func (s *SQLiteStore) ResetGames(ctx context.Context) (int64, error) {
	var n int64
	err := s.RunInTx(ctx, func(tx *sql.Tx) error {
		games, err := listDocs[Game](ctx, tx, `SELECT data FROM games`)
		if err != nil {
			return err
		}
		for i := range games {
			g := &games[i]
			g.Players = []string{}
			g.Cancelled = false
			g.Teams = nil
			if g.IsTournament() {
				g.Teams = emptyTeams()
			}
			if err := putGame(ctx, tx, g); err != nil {
				return err
			}
		}
		n = int64(len(games))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reset games: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := getDoc(ctx, s.DB, "users", id, &user); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	users, err := listDocs[User](ctx, s.DB, `SELECT data FROM users WHERE phone = ?`, phone)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("get user: %w", ErrNotFound)
	}
	return &users[0], nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	users, err := listDocs[User](ctx, s.DB, `SELECT data FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *SQLiteStore) InsertUser(ctx context.Context, user *User) error {
	prepareUser(user)
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO users (id, phone, name, data) VALUES (?, ?, ?, ?)`,
		user.ID, user.Phone, user.Name, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", mapSQLiteError(err))
	}
	return nil
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error) {
	return s.modifyUser(ctx, id, func(u *User) error {
		update.Apply(u)
		return nil
	})
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	return deleteDoc(ctx, s.DB, "users", id)
}

func (s *SQLiteStore) AppendShame(ctx context.Context, userID string, record ShameRecord) error {
	_, err := s.modifyUser(ctx, userID, func(u *User) error {
		u.Shame = append(u.Shame, record)
		return nil
	})
	return err
}

func (s *SQLiteStore) AppendMissedPayment(ctx context.Context, userID string, record MissedPayment) error {
	_, err := s.modifyUser(ctx, userID, func(u *User) error {
		u.MissedPayments = append(u.MissedPayments, record)
		return nil
	})
	return err
}

func (s *SQLiteStore) ClearLedger(ctx context.Context, ledger Ledger) (int64, error) {
	if ledger != LedgerShame && ledger != LedgerMissedPayments {
		return 0, fmt.Errorf("unknown ledger %q", ledger)
	}
	var n int64
	err := s.RunInTx(ctx, func(tx *sql.Tx) error {
		users, err := listDocs[User](ctx, tx, `SELECT data FROM users`)
		if err != nil {
			return err
		}
		for i := range users {
			u := &users[i]
			switch ledger {
			case LedgerShame:
				if len(u.Shame) == 0 {
					continue
				}
				u.Shame = []ShameRecord{}
			case LedgerMissedPayments:
				if len(u.MissedPayments) == 0 {
					continue
				}
				u.MissedPayments = []MissedPayment{}
			}
			if err := putUser(ctx, tx, u); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", ledger, err)
	}
	return n, nil
}

func (s *SQLiteStore) GetAdmin(ctx context.Context) (*Admin, error) {
	admin := &Admin{ID: AdminID}
	err := getDoc(ctx, s.DB, "admin", AdminID, admin)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get admin settings: %w", err)
	}
	return admin, nil
}

func (s *SQLiteStore) SetSignupOpen(ctx context.Context, open bool) (*Admin, error) {
	admin := &Admin{ID: AdminID, SignupOpen: open}
	data, err := json.Marshal(admin)
	if err != nil {
		return nil, fmt.Errorf("set signup_open: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO admin (id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		AdminID, string(data),
	)
	if err != nil {
		return nil, fmt.Errorf("set signup_open: %w", err)
	}
	return admin, nil
}

func (s *SQLiteStore) RecordNotificationFailure(ctx context.Context, failure *NotificationFailure) error {
	prepareFailure(failure)
	data, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("record notification failure: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO notification_failures (id, created_at, data) VALUES (?, ?, ?)`,
		failure.ID, failure.CreatedAt.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("record notification failure: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListNotificationFailures(ctx context.Context, limit int) ([]NotificationFailure, error) {
	if limit <= 0 {
		limit = -1
	}
	failures, err := listDocs[NotificationFailure](ctx, s.DB,
		`SELECT data FROM notification_failures ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list notification failures: %w", err)
	}
	return failures, nil
}

func deleteDoc(ctx context.Context, q queryer, table, id string) error {
	result, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("delete %s %s: %w", table, id, ErrNotFound)
	}
	return nil
}
