// Package scheduler reconciles the job store against in-process swap runs:
// every active or running job gets exactly one in-flight execution. Jobs
// left "running" by a crashed process are simply started again: execution
// is at-least-once, and the swap engine re-derives its state from the job
// record, so a retry from scratch is safe.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/teeswap/internal/brs"
	"github.com/example/teeswap/internal/crypto"
	"github.com/example/teeswap/internal/engine"
	"github.com/example/teeswap/internal/jobs"
)

// JobStore is the slice of the job repository the scheduler consumes.
type JobStore interface {
	ListByStatus(ctx context.Context, statuses ...string) ([]jobs.Job, error)
	SetStatus(ctx context.Context, jobID int64, status string) error
	SetLastLog(ctx context.Context, jobID int64, text string) error
	SetFinishedAt(ctx context.Context, jobID int64, t time.Time) error
}

// handle marks a job as in flight. At most one exists per job ID; that is
// the invariant the registry provides.
type handle struct {
	runID     string
	startedAt time.Time
}

type Scheduler struct {
	Repo  JobStore
	Creds *crypto.AEAD
	Log   *logrus.Logger

	PortalBaseURL string
	Interval      time.Duration

	// AbortOnRecoverFail is passed through to every run. See engine.Config.
	AbortOnRecoverFail bool

	cache *brs.SheetCache

	mu      sync.Mutex
	running map[int64]handle
	wg      sync.WaitGroup
}

// Run ticks the reconciliation loop until ctx is done, then waits for
// in-flight runs to wind down.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.running == nil {
		s.running = make(map[int64]handle)
	}
	if s.cache == nil {
		s.cache = brs.NewSheetCache()
	}

	t := time.NewTicker(s.Interval)
	defer t.Stop()

	// kick immediately
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick is one reconciliation pass. Idempotent: ticking at any frequency
// never starts a second execution for a job that already has a handle.
func (s *Scheduler) Tick(ctx context.Context) {
	js, err := s.Repo.ListByStatus(ctx, jobs.StatusActive, jobs.StatusRunning)
	if err != nil {
		s.Log.Errorf("scheduler: job query failed: %v", err)
		return
	}
	for _, j := range js {
		s.adopt(ctx, j)
	}
}

// adopt starts an execution for j unless one is already in flight.
func (s *Scheduler) adopt(ctx context.Context, j jobs.Job) {
	s.mu.Lock()
	if _, inFlight := s.running[j.ID]; inFlight {
		s.mu.Unlock()
		return
	}
	h := handle{runID: uuid.NewString()[:8], startedAt: time.Now()}
	s.running[j.ID] = h
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(ctx, j, h)
}

// Running reports whether a handle exists for jobID.
func (s *Scheduler) Running(jobID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[jobID]
	return ok
}

func (s *Scheduler) execute(ctx context.Context, j jobs.Job, h handle) {
	defer s.wg.Done()
	// The handle must go away on every exit path, crash included.
	defer func() {
		s.mu.Lock()
		delete(s.running, j.ID)
		s.mu.Unlock()
	}()

	log := s.Log.WithFields(logrus.Fields{"job": j.ID, "run": h.runID})

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("crashed: %v", r)
			s.finish(j.ID, jobs.StatusFailed, fmt.Sprintf("crash: %v", r))
		}
	}()

	username, err := s.Creds.DecryptString(j.UsernameEnc)
	if err != nil {
		s.finish(j.ID, jobs.StatusFailed, "credentials: "+err.Error())
		return
	}
	password, err := s.Creds.DecryptString(j.PasswordEnc)
	if err != nil {
		s.finish(j.ID, jobs.StatusFailed, "credentials: "+err.Error())
		return
	}

	log.Info("starting")
	if err := s.Repo.SetStatus(ctx, j.ID, jobs.StatusRunning); err != nil {
		log.Errorf("mark running: %v", err)
	}

	jobID := j.ID
	sw := &engine.Swapper{
		Client: brs.NewClient(s.PortalBaseURL, j.ClubSlug),
		Cache:  s.cache,
		Log:    log,
		Sink: func(line string) {
			_ = s.Repo.SetLastLog(context.Background(), jobID, line)
		},
	}
	res := sw.Run(ctx, engine.Config{
		CourseID:           j.CourseID,
		Username:           username,
		Password:           password,
		TargetDate:         j.TargetDate,
		Earliest:           j.Earliest,
		Latest:             j.Latest,
		CurrentTime:        j.CurrentTime,
		RequiredSeats:      j.RequiredSeats,
		AcceptAtLeast:      j.AcceptAtLeast,
		PlayerIDs:          j.PlayerIDs,
		PollInterval:       time.Duration(j.PollSeconds) * time.Second,
		MaxRuntime:         time.Duration(j.MaxMinutes) * time.Minute,
		AbortOnRecoverFail: s.AbortOnRecoverFail,
	})

	if ctx.Err() != nil {
		// Shutdown mid-run. Leave the row "running" so the next process
		// re-adopts it instead of reporting a bogus failure.
		log.Info("interrupted; leaving job for re-adoption")
		return
	}

	log.Infof("finished: %s", res.Summary())
	s.finish(j.ID, string(res.Status), res.Summary())
}

// finish writes the terminal status, log line and timestamp. Uses a fresh
// context: terminal writes must land even when the run's context is gone.
func (s *Scheduler) finish(jobID int64, status, lastLog string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Repo.SetStatus(ctx, jobID, status); err != nil {
		s.Log.Errorf("job %d: set status: %v", jobID, err)
	}
	if err := s.Repo.SetLastLog(ctx, jobID, lastLog); err != nil {
		s.Log.Errorf("job %d: set last log: %v", jobID, err)
	}
	if err := s.Repo.SetFinishedAt(ctx, jobID, time.Now()); err != nil {
		s.Log.Errorf("job %d: set finished at: %v", jobID, err)
	}
}
