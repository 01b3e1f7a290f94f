// Package engine runs one tee-time swap attempt to completion: poll the
// tee sheet for a better slot, cancel the held booking, rebook, verify.
// The destructive step is the cancel; every path after it either confirms
// the new booking or tries to win the original slot back before reporting.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/teeswap/internal/brs"
)

// Booking tokens can lag a schedule refresh; the wait is for propagation,
// not contention, so the backoff is fixed and short.
const (
	tokenRetries = 6
	tokenBackoff = 500 * time.Millisecond
)

const (
	defaultPoll   = 20 * time.Second
	defaultBudget = 120 * time.Minute
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// Config is the read-only job description a run executes against.
// Credentials arrive already decrypted.
type Config struct {
	CourseID    string
	Username    string
	Password    string
	TargetDate  string // YYYY/MM/DD
	Earliest    string // HH:MM inclusive
	Latest      string // HH:MM inclusive
	CurrentTime string // the held booking

	RequiredSeats int
	AcceptAtLeast bool
	PlayerIDs     []string

	PollInterval time.Duration
	MaxRuntime   time.Duration

	// AbortOnRecoverFail ends the run as failed the moment a compensating
	// rebook of the original slot fails. Off by default: the loop then
	// keeps polling so recovery gets another chance next iteration.
	AbortOnRecoverFail bool

	ScanCap int
}

type Result struct {
	Status  Status
	Reason  string
	Time    string
	Players []string
}

func (r Result) Summary() string {
	switch r.Status {
	case StatusSuccess:
		return fmt.Sprintf("success: booked %s players=%v", r.Time, r.Players)
	case StatusExpired:
		return "expired: window elapsed, original booking untouched"
	default:
		return "failed: " + r.Reason
	}
}

// Swapper drives one job run. It exclusively owns its Client; only the
// Cache is shared with concurrent runs.
type Swapper struct {
	Client *brs.Client
	Cache  *brs.SheetCache
	Log    *logrus.Entry

	// Sink receives progress lines destined for the job record. Optional.
	Sink func(string)

	// Sleep substitutes the inter-poll wait in tests. Returns false when
	// the context died during the wait.
	Sleep func(ctx context.Context, d time.Duration) bool

	log *logrus.Entry
}

func (s *Swapper) Run(ctx context.Context, cfg Config) Result {
	s.log = s.Log
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithField("run", uuid.NewString()[:8])

	if err := s.Client.Login(ctx, cfg.Username, cfg.Password); err != nil {
		s.note("login failed: %v", err)
		return Result{Status: StatusFailed, Reason: fmt.Sprintf("login: %v", err)}
	}
	s.note("logged in")

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPoll
	}
	budget := cfg.MaxRuntime
	if budget <= 0 {
		budget = defaultBudget
	}

	// The deadline is cooperative: checked here, once per iteration. A
	// swap already past its cancel completes even if the budget lapses
	// mid-sequence; aborting there could leave the member with nothing.
	deadline := time.Now().Add(budget)

	// Set once a cancel has gone through and the original was not won
	// back. While true the run no longer holds any booking, so later
	// iterations skip the cancel and keep retrying recovery.
	lost := false

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return Result{Status: StatusFailed, Reason: "cancelled"}
		}

		sheet, err := s.Cache.Fetch(ctx, s.Client, cfg.CourseID, cfg.TargetDate, poll)
		if err != nil {
			s.note("tee sheet fetch failed: %v", err)
			if !s.wait(ctx, poll) {
				return Result{Status: StatusFailed, Reason: "cancelled"}
			}
			continue
		}

		cand, found := brs.SelectCandidate(sheet, cfg.Earliest, cfg.Latest,
			cfg.RequiredSeats, cfg.AcceptAtLeast, s.scanLine, cfg.ScanCap)
		if !found {
			if lost && s.restoreOriginal(ctx, cfg) {
				lost = false
			}
			if !s.wait(ctx, poll) {
				return Result{Status: StatusFailed, Reason: "cancelled"}
			}
			continue
		}
		s.note("candidate by free seats: %s", cand)

		if !lost {
			okCancel, err := s.Client.Cancel(ctx, cfg.CourseID, cfg.TargetDate, cfg.CurrentTime)
			if err != nil || !okCancel {
				// Original booking still intact; safe to retry until deadline.
				s.note("cancel of %s refused; retrying after sleep", cfg.CurrentTime)
				if !s.wait(ctx, poll) {
					return Result{Status: StatusFailed, Reason: "cancelled"}
				}
				continue
			}
		}

		newURL := s.bookURLWithRetry(ctx, cfg, cand)
		if newURL == "" {
			s.note("no booking token for %s; attempting to re-book original", cand)
			s.restoreOriginal(ctx, cfg)
			return Result{Status: StatusFailed, Reason: "no_book_url"}
		}

		accepted, fatal := s.book(ctx, cfg, newURL)
		if fatal != "" {
			s.restoreOriginal(ctx, cfg)
			return Result{Status: StatusFailed, Reason: fatal}
		}
		if accepted {
			taken, players, verr := s.Client.Verify(ctx, cfg.CourseID, cfg.TargetDate, cand)
			if verr != nil {
				// The accepted submission may well have stuck; rebooking
				// the original here could leave the member holding two
				// slots. End the run and let the member check the portal.
				s.note("verify of %s failed: %v", cand, verr)
				return Result{Status: StatusFailed, Reason: fmt.Sprintf("verify: %v", verr)}
			}
			if taken {
				s.note("booked %s, players %v", cand, players)
				return Result{Status: StatusSuccess, Time: cand, Players: players}
			}
			s.note("submission accepted but %s still open; race lost, re-booking original", cand)
		} else {
			s.note("submission for %s refused; re-booking original", cand)
		}

		if s.restoreOriginal(ctx, cfg) {
			lost = false
		} else {
			if cfg.AbortOnRecoverFail {
				return Result{Status: StatusFailed, Reason: "recover_failed"}
			}
			lost = true
		}
		if !s.wait(ctx, poll) {
			return Result{Status: StatusFailed, Reason: "cancelled"}
		}
	}

	if lost {
		s.note("run budget elapsed with original booking not recovered")
		return Result{Status: StatusFailed, Reason: "recover_failed"}
	}
	s.note("run budget elapsed with no matching slot")
	return Result{Status: StatusExpired}
}

// restoreOriginal re-fetches a token for the original slot and rebooks it.
// The one compensating action shared by every post-cancel failure branch;
// idempotent, so a later iteration may simply call it again.
func (s *Swapper) restoreOriginal(ctx context.Context, cfg Config) bool {
	origURL := s.bookURLWithRetry(ctx, cfg, cfg.CurrentTime)
	if origURL == "" {
		s.note("re-book original %s failed: no booking token", cfg.CurrentTime)
		return false
	}
	accepted, fatal := s.book(ctx, cfg, origURL)
	ok := accepted && fatal == ""
	if ok {
		s.note("re-book original %s ok", cfg.CurrentTime)
	} else {
		s.note("re-book original %s failed", cfg.CurrentTime)
	}
	return ok
}

// book fetches the booking page, extracts and submits its form. The second
// return names a fatal condition (undetectable form); transient failures
// just report accepted=false.
func (s *Swapper) book(ctx context.Context, cfg Config, bookURL string) (accepted bool, fatal string) {
	page, err := s.Client.BookingPage(ctx, bookURL)
	if err != nil {
		s.note("booking page fetch failed: %v", err)
		return false, ""
	}
	form, err := brs.ExtractBookingForm(bytes.NewReader(page), brs.BookingFormMarker, cfg.PlayerIDs)
	if err != nil {
		s.note("booking form extraction failed: %v", err)
		return false, "booking_form_not_found"
	}
	action := bookURL
	if form.Action != "" {
		action = s.Client.Resolve(form.Action)
	}
	ok, err := s.Client.SubmitForm(ctx, action, form, bookURL)
	if err != nil {
		s.note("booking submit failed: %v", err)
		return false, ""
	}
	return ok, ""
}

func (s *Swapper) bookURLWithRetry(ctx context.Context, cfg Config, hhmm string) string {
	for i := 0; i < tokenRetries; i++ {
		u, err := s.Client.BookURL(ctx, cfg.CourseID, cfg.TargetDate, hhmm)
		if err == nil && u != "" {
			return u
		}
		if !s.wait(ctx, tokenBackoff) {
			return ""
		}
	}
	return ""
}

func (s *Swapper) scanLine(l brs.ScanLine) {
	verdict := "skip"
	if l.Match {
		verdict = "ok"
	}
	s.log.Debugf("scan %s | free %d/%d | bookable=%t | %s",
		l.Time, l.Free, l.Total, l.Bookable, verdict)
}

func (s *Swapper) note(format string, args ...any) {
	s.log.Infof(format, args...)
	if s.Sink != nil {
		s.Sink(fmt.Sprintf(format, args...))
	}
}

func (s *Swapper) wait(ctx context.Context, d time.Duration) bool {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
