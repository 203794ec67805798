package email

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/codr1/Kickabout/internal/db"
)

const digestTimeout = 30 * time.Second

// EmailSender delivers a plain-text message. recipient may list several
// addresses separated by commas.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

type LedgerDigest struct {
	Subject string
	Body    string
	// Empty is true when no user has a ledger entry.
	Empty bool
}

type ledgerLine struct {
	name    string
	count   int
	entries []string
}

// BuildLedgerDigest summarises every user's missed payments and shame
// records for the league admin. Users are listed most entries first.
func BuildLedgerDigest(leagueName string, users []db.User, games []db.Game, now time.Time) LedgerDigest {
	gameNames := make(map[string]string, len(games))
	for _, g := range games {
		gameNames[g.ID] = g.Name
	}
	gameName := func(id string) string {
		if name, ok := gameNames[id]; ok {
			return name
		}
		if id == "" {
			return "unlisted game"
		}
		return "deleted game"
	}

	var payments, shame []ledgerLine
	for _, u := range users {
		if len(u.MissedPayments) > 0 {
			line := ledgerLine{name: u.Name, count: len(u.MissedPayments)}
			for _, p := range u.MissedPayments {
				entry := fmt.Sprintf("%s on %s", gameName(p.GameID), p.Date)
				if p.Time != "" {
					entry += " at " + p.Time
				}
				line.entries = append(line.entries, entry)
			}
			payments = append(payments, line)
		}
		if len(u.Shame) > 0 {
			line := ledgerLine{name: u.Name, count: len(u.Shame)}
			for _, s := range u.Shame {
				line.entries = append(line.entries, fmt.Sprintf("%s on %s", gameName(s.GameID), s.Date))
			}
			shame = append(shame, line)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s ledger as of %s\n", leagueName, now.Format("Monday, Jan 2, 2006"))
	writeSection(&b, "Missed payments", payments)
	writeSection(&b, "Late cancellations and no-shows", shame)

	return LedgerDigest{
		Subject: fmt.Sprintf("%s ledger: %d missed payments, %d shame records", leagueName, total(payments), total(shame)),
		Body:    b.String(),
		Empty:   len(payments) == 0 && len(shame) == 0,
	}
}

func writeSection(b *strings.Builder, title string, lines []ledgerLine) {
	fmt.Fprintf(b, "\n%s\n", title)
	if len(lines) == 0 {
		b.WriteString("  none\n")
		return
	}
	slices.SortFunc(lines, func(a, c ledgerLine) int {
		if n := cmp.Compare(c.count, a.count); n != 0 {
			return n
		}
		return cmp.Compare(a.name, c.name)
	})
	for _, l := range lines {
		fmt.Fprintf(b, "  %s (%d): %s\n", l.name, l.count, strings.Join(l.entries, "; "))
	}
}

func total(lines []ledgerLine) int {
	n := 0
	for _, l := range lines {
		n += l.count
	}
	return n
}

// SendLedgerDigest delivers digest without inheriting the caller's
// cancellation.
func SendLedgerDigest(ctx context.Context, sender EmailSender, recipient string, digest LedgerDigest) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), digestTimeout)
	defer cancel()
	return sender.Send(sendCtx, recipient, digest.Subject, digest.Body)
}
