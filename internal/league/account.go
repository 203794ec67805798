package league

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/codr1/Kickabout/internal/db"
)

// Account is a user as returned over the API. It never carries the password
// hash.
type Account struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Phone          string             `json:"phone"`
	Role           db.Role            `json:"role"`
	Gender         string             `json:"gender,omitempty"`
	Avatar         string             `json:"avatar,omitempty"`
	PhoneVerified  bool               `json:"phone_verified"`
	Shame          []db.ShameRecord   `json:"shame"`
	MissedPayments []db.MissedPayment `json:"missed_payments"`
	CreatedAt      time.Time          `json:"created_at"`
}

func AccountOf(u *db.User) Account {
	a := Account{
		ID:             u.ID,
		Name:           u.Name,
		Phone:          u.Phone,
		Role:           u.Role,
		Gender:         u.Gender,
		Avatar:         u.Avatar,
		PhoneVerified:  u.PhoneVerified,
		Shame:          u.Shame,
		MissedPayments: u.MissedPayments,
		CreatedAt:      u.CreatedAt,
	}
	if a.Shame == nil {
		a.Shame = []db.ShameRecord{}
	}
	if a.MissedPayments == nil {
		a.MissedPayments = []db.MissedPayment{}
	}
	return a
}

// SearchUsers lists users sorted by name. A non-empty query keeps only names
// that fuzzily match it, closest match first.
func (s *Service) SearchUsers(ctx context.Context, query string) ([]Account, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		slices.SortFunc(users, func(a, b db.User) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
		out := make([]Account, 0, len(users))
		for i := range users {
			out = append(out, AccountOf(&users[i]))
		}
		return out, nil
	}

	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Name
	}
	ranks := fuzzy.RankFindFold(query, names)
	slices.SortStableFunc(ranks, func(a, b fuzzy.Rank) int {
		if n := cmp.Compare(a.Distance, b.Distance); n != 0 {
			return n
		}
		return cmp.Compare(strings.ToLower(a.Target), strings.ToLower(b.Target))
	})

	out := make([]Account, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, AccountOf(&users[r.OriginalIndex]))
	}
	return out, nil
}
