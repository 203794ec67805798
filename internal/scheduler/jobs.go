package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/clock"
	"github.com/codr1/Kickabout/internal/config"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/email"
	"github.com/codr1/Kickabout/internal/ratelimit"
)

const (
	WeeklyResetJob    = "weekly_reset"
	LedgerDigestJob   = "ledger_digest"
	RateLimitSweepJob = "ratelimit_sweep"

	jobTimeout        = 2 * time.Minute
	rateLimitInterval = 5 * time.Minute
)

type GameResetter interface {
	ResetGames(ctx context.Context) (int64, error)
}

// LeagueJobs holds what the recurring league jobs need. A nil Email or an
// empty DigestRecipient disables the digest; a nil Limiter disables the sweep.
type LeagueJobs struct {
	Config          config.SchedulerConfig
	LeagueName      string
	Games           GameResetter
	Store           db.Store
	Email           email.EmailSender
	DigestRecipient string
	Limiter         *ratelimit.Limiter
	Clock           clock.Clock
}

// RegisterLeagueJobs adds the league jobs to the singleton scheduler. Jobs
// with an empty cron expression are skipped.
func RegisterLeagueJobs(jobs LeagueJobs) error {
	if jobs.Clock == nil {
		jobs.Clock = clock.RealClock{}
	}

	if jobs.Config.WeeklyReset != "" {
		if _, err := AddJob(WeeklyResetJob, jobs.Config.WeeklyReset, jobs.weeklyReset); err != nil {
			return err
		}
	} else {
		log.Info().Str("job_name", WeeklyResetJob).Msg("Scheduler job disabled")
	}

	switch {
	case jobs.Config.LedgerDigest == "":
		log.Info().Str("job_name", LedgerDigestJob).Msg("Scheduler job disabled")
	case jobs.Email == nil || jobs.DigestRecipient == "":
		log.Warn().Str("job_name", LedgerDigestJob).Msg("Ledger digest scheduled but email is not configured")
	default:
		if _, err := AddJob(LedgerDigestJob, jobs.Config.LedgerDigest, jobs.ledgerDigest); err != nil {
			return err
		}
	}

	if jobs.Limiter != nil {
		if _, err := AddIntervalJob(RateLimitSweepJob, rateLimitInterval, jobs.sweepRateLimits); err != nil {
			return err
		}
	}
	return nil
}

func (j LeagueJobs) jobContext(name string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	logger := log.With().Str("component", name+"_job").Logger()
	return logger.WithContext(ctx), cancel
}

func (j LeagueJobs) weeklyReset() {
	ctx, cancel := j.jobContext(WeeklyResetJob)
	defer cancel()

	n, err := j.Games.ResetGames(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Weekly reset failed")
		return
	}
	log.Ctx(ctx).Info().Int64("games", n).Msg("Weekly reset complete")
}

func (j LeagueJobs) ledgerDigest() {
	ctx, cancel := j.jobContext(LedgerDigestJob)
	defer cancel()
	logger := log.Ctx(ctx)

	users, err := j.Store.ListUsers(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load users for ledger digest")
		return
	}
	games, err := j.Store.ListGames(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load games for ledger digest")
		return
	}

	digest := email.BuildLedgerDigest(j.LeagueName, users, games, j.Clock.Now())
	if digest.Empty {
		logger.Debug().Msg("Ledger digest skipped: nothing to report")
		return
	}
	if err := email.SendLedgerDigest(ctx, j.Email, j.DigestRecipient, digest); err != nil {
		logger.Error().Err(err).Msg("Failed to send ledger digest")
		return
	}
	logger.Info().Str("subject", digest.Subject).Msg("Ledger digest sent")
}

func (j LeagueJobs) sweepRateLimits() {
	removed := j.Limiter.Sweep()
	log.Debug().Int("removed", removed).Int("remaining", j.Limiter.Len()).Msg("Rate limit tables swept")
}
