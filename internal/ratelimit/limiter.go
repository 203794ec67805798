// Package ratelimit throttles SMS verification codes per phone number and per
// client IP.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/clock"
)

// ErrLimited is matched by every error returned from Decision.Err.
var ErrLimited = errors.New("too many attempts")

// Config holds the limits. Per-phone and per-IP counts are per hour.
type Config struct {
	// SendCooldown is the minimum gap between two codes to the same phone.
	SendCooldown   time.Duration
	SendPerPhone   int
	SendPerIP      int
	VerifyMaxTries int
	VerifyLockout  time.Duration
	VerifyPerIP    int

	Clock clock.Clock
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SendCooldown:   60 * time.Second,
		SendPerPhone:   5,
		SendPerIP:      20,
		VerifyMaxTries: 5,
		VerifyLockout:  5 * time.Minute,
		VerifyPerIP:    30,
	}
}

const (
	ReasonCooldown    = "cooldown"
	ReasonPhoneHourly = "phone_hourly_limit"
	ReasonIPHourly    = "ip_hourly_limit"
	ReasonLockout     = "lockout"
)

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string
}

// LimitError carries the retry hint of a denied Decision.
type LimitError struct {
	RetryAfter time.Duration
	Reason     string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrLimited, e.RetryAfter.Round(time.Second))
}

func (e *LimitError) Unwrap() error { return ErrLimited }

// Err returns nil for an allowed decision and a *LimitError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitError{RetryAfter: d.RetryAfter, Reason: d.Reason}
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string, retry time.Duration) Decision {
	return Decision{RetryAfter: retry, Reason: reason}
}

// window counts events inside a one hour window that starts with the first
// event.
type window struct {
	count  int
	start  time.Time
	last   time.Time
	locked time.Time
}

func (w *window) expired(now time.Time) bool {
	return now.Sub(w.start) >= time.Hour
}

type table map[string]*window

// hit records an event, starting a fresh window when the old one expired.
func (t table) hit(key string, now time.Time) *window {
	w := t[key]
	if w == nil || w.expired(now) {
		w = &window{start: now}
		t[key] = w
	}
	w.count++
	w.last = now
	return w
}

// over reports whether key already has limit events in its current window.
func (t table) over(key string, limit int, now time.Time) (time.Duration, bool) {
	w := t[key]
	if w == nil || w.expired(now) || w.count < limit {
		return 0, false
	}
	return time.Hour - now.Sub(w.start), true
}

// Limiter is safe for concurrent use.
type Limiter struct {
	cfg   Config
	clock clock.Clock

	mu        sync.Mutex
	sends     table
	sendIPs   table
	attempts  table
	verifyIPs table
}

func New(cfg Config) *Limiter {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	return &Limiter{
		cfg:       cfg,
		clock:     cfg.Clock,
		sends:     table{},
		sendIPs:   table{},
		attempts:  table{},
		verifyIPs: table{},
	}
}

// CheckSend decides whether a code may be sent to phone. It records nothing;
// call RecordSend once the code is on its way.
func (l *Limiter) CheckSend(phone, ip string) Decision {
	now := l.clock.Now()
	pk, ik := key("send", phone), key("send-ip", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	if w := l.sends[pk]; w != nil && !w.expired(now) {
		if since := now.Sub(w.last); since < l.cfg.SendCooldown {
			return deny(ReasonCooldown, l.cfg.SendCooldown-since)
		}
	}
	if retry, over := l.sends.over(pk, l.cfg.SendPerPhone, now); over {
		return deny(ReasonPhoneHourly, retry)
	}
	if retry, over := l.sendIPs.over(ik, l.cfg.SendPerIP, now); over {
		return deny(ReasonIPHourly, retry)
	}
	return allow()
}

func (l *Limiter) RecordSend(phone, ip string) {
	now := l.clock.Now()
	l.mu.Lock()
	l.sends.hit(key("send", phone), now)
	l.sendIPs.hit(key("send-ip", ip), now)
	l.mu.Unlock()
}

// CheckVerify decides whether a code may be checked for phone.
func (l *Limiter) CheckVerify(phone, ip string) Decision {
	now := l.clock.Now()
	pk, ik := key("verify", phone), key("verify-ip", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	if w := l.attempts[pk]; w != nil && !w.locked.IsZero() {
		if since := now.Sub(w.locked); since < l.cfg.VerifyLockout {
			return deny(ReasonLockout, l.cfg.VerifyLockout-since)
		}
	}
	if retry, over := l.verifyIPs.over(ik, l.cfg.VerifyPerIP, now); over {
		return deny(ReasonIPHourly, retry)
	}
	return allow()
}

// RecordFailedVerify counts a wrong code. It reports true when this attempt
// locked the phone out.
func (l *Limiter) RecordFailedVerify(phone, ip string) bool {
	now := l.clock.Now()
	pk := key("verify", phone)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.verifyIPs.hit(key("verify-ip", ip), now)

	if w := l.attempts[pk]; w != nil && !w.locked.IsZero() && now.Sub(w.locked) >= l.cfg.VerifyLockout {
		delete(l.attempts, pk)
	}
	w := l.attempts.hit(pk, now)
	if w.locked.IsZero() && w.count >= l.cfg.VerifyMaxTries {
		w.locked = now
		return true
	}
	return false
}

// RecordVerified counts a successful check against the IP budget and clears
// the phone's failed attempts.
func (l *Limiter) RecordVerified(phone, ip string) {
	now := l.clock.Now()
	l.mu.Lock()
	l.verifyIPs.hit(key("verify-ip", ip), now)
	delete(l.attempts, key("verify", phone))
	l.mu.Unlock()
}

// Sweep drops entries that can no longer affect a decision and returns how
// many were removed.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, t := range []table{l.sends, l.sendIPs, l.verifyIPs} {
		for k, w := range t {
			if w.expired(now) && now.Sub(w.last) >= l.cfg.SendCooldown {
				delete(t, k)
				removed++
			}
		}
	}
	for k, w := range l.attempts {
		stale := w.expired(now)
		if !w.locked.IsZero() {
			stale = now.Sub(w.locked) >= l.cfg.VerifyLockout
		}
		if stale {
			delete(l.attempts, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked entries.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sends) + len(l.sendIPs) + len(l.attempts) + len(l.verifyIPs)
}

// key hashes the identifier so raw phone numbers are not held in memory.
func key(kind, value string) string {
	sum := sha256.Sum256([]byte(value))
	return kind + ":" + hex.EncodeToString(sum[:8])
}

// SanitizeIdentifier masks a phone number for logging.
func SanitizeIdentifier(phone string) string {
	if len(phone) >= 4 {
		return "***" + phone[len(phone)-4:]
	}
	return "***"
}

// LogExceeded logs a denied decision with the phone masked.
func LogExceeded(kind, phone, ip string, d Decision) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", kind).
		Str("phone", SanitizeIdentifier(phone)).
		Str("ip", ip).
		Str("reason", d.Reason).
		Dur("retry_after", d.RetryAfter).
		Msg("SMS verification rate limit exceeded")
}
