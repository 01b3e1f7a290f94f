package scheduler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/teeswap/internal/brs"
	"github.com/example/teeswap/internal/crypto"
	"github.com/example/teeswap/internal/jobs"
)

type fakeStore struct {
	mu       sync.Mutex
	rows     []jobs.Job
	statuses map[int64][]string
	logs     map[int64][]string
	finished map[int64]int
}

func newFakeStore(rows ...jobs.Job) *fakeStore {
	return &fakeStore{
		rows:     rows,
		statuses: map[int64][]string{},
		logs:     map[int64][]string{},
		finished: map[int64]int{},
	}
}

func (f *fakeStore) ListByStatus(_ context.Context, statuses ...string) ([]jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []jobs.Job
	for _, j := range f.rows {
		for _, st := range statuses {
			if j.Status == st {
				out = append(out, j)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SetStatus(_ context.Context, jobID int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = append(f.statuses[jobID], status)
	for i := range f.rows {
		if f.rows[i].ID == jobID {
			f.rows[i].Status = status
		}
	}
	return nil
}

func (f *fakeStore) SetLastLog(_ context.Context, jobID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[jobID] = append(f.logs[jobID], text)
	return nil
}

func (f *fakeStore) SetFinishedAt(_ context.Context, jobID int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[jobID]++
	return nil
}

func (f *fakeStore) statusHistory(jobID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statuses[jobID]...)
}

func (f *fakeStore) currentStatus(jobID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.rows {
		if j.ID == jobID {
			return j.Status
		}
	}
	return ""
}

func (f *fakeStore) finishedCount(jobID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished[jobID]
}

func testAEAD(t *testing.T) *crypto.AEAD {
	t.Helper()
	a, err := crypto.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return a
}

func testJob(t *testing.T, a *crypto.AEAD, id int64, status string) jobs.Job {
	t.Helper()
	u, err := a.EncryptToString("member1")
	require.NoError(t, err)
	p, err := a.EncryptToString("pin99")
	require.NoError(t, err)
	return jobs.Job{
		ID:            id,
		UserID:        1,
		ClubSlug:      "fairview",
		CourseID:      "1",
		UsernameEnc:   u,
		PasswordEnc:   p,
		TargetDate:    "2026/09/05",
		Earliest:      "08:00",
		Latest:        "09:00",
		CurrentTime:   "10:00",
		RequiredSeats: 4,
		AcceptAtLeast: true,
		PlayerIDs:     []string{"101"},
		PollSeconds:   1,
		MaxMinutes:    1,
		Status:        status,
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestScheduler(store *fakeStore, a *crypto.AEAD, portalURL string) *Scheduler {
	return &Scheduler{
		Repo:          store,
		Creds:         a,
		Log:           quietLogger(),
		PortalBaseURL: portalURL,
		Interval:      time.Hour,
		cache:         brs.NewSheetCache(),
		running:       make(map[int64]handle),
	}
}

// gatedPortal blocks login page requests until released, then serves 404
// everywhere so runs terminate promptly with a login failure.
func gatedPortal() (*httptest.Server, func()) {
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-gate
		w.WriteHeader(http.StatusNotFound)
	}))
	var once sync.Once
	return srv, func() { once.Do(func() { close(gate) }) }
}

func TestTickStartsActiveJobOnce(t *testing.T) {
	a := testAEAD(t)
	store := newFakeStore(testJob(t, a, 7, jobs.StatusActive))
	srv, release := gatedPortal()
	defer srv.Close()
	defer release()

	s := newTestScheduler(store, a, srv.URL)
	ctx := context.Background()

	s.Tick(ctx)
	require.Eventually(t, func() bool { return s.Running(7) }, time.Second, 5*time.Millisecond)

	// repeated ticks must not start a second execution
	s.Tick(ctx)
	s.Tick(ctx)

	release()
	require.Eventually(t, func() bool { return !s.Running(7) }, 5*time.Second, 10*time.Millisecond)
	s.wg.Wait()

	history := store.statusHistory(7)
	assert.Equal(t, []string{jobs.StatusRunning, jobs.StatusFailed}, history)
	assert.Equal(t, 1, store.finishedCount(7))
	assert.Contains(t, store.currentStatus(7), jobs.StatusFailed)
}

func TestTickReadoptsRunningJob(t *testing.T) {
	a := testAEAD(t)
	// a job a previous process left mid-flight
	store := newFakeStore(testJob(t, a, 3, jobs.StatusRunning))
	srv, release := gatedPortal()
	defer srv.Close()

	s := newTestScheduler(store, a, srv.URL)
	s.Tick(context.Background())

	require.Eventually(t, func() bool { return s.Running(3) }, time.Second, 5*time.Millisecond)
	release()
	require.Eventually(t, func() bool { return !s.Running(3) }, 5*time.Second, 10*time.Millisecond)
	s.wg.Wait()
}

func TestTickSkipsTerminalJobs(t *testing.T) {
	a := testAEAD(t)
	store := newFakeStore(
		testJob(t, a, 1, jobs.StatusSuccess),
		testJob(t, a, 2, jobs.StatusStopped),
		testJob(t, a, 3, jobs.StatusFailed),
	)
	s := newTestScheduler(store, a, "http://127.0.0.1:1")

	s.Tick(context.Background())
	s.wg.Wait()

	assert.False(t, s.Running(1))
	assert.False(t, s.Running(2))
	assert.False(t, s.Running(3))
	assert.Empty(t, store.statusHistory(1))
}

func TestExecutePanicMarksJobCrashed(t *testing.T) {
	a := testAEAD(t)
	store := newFakeStore(testJob(t, a, 9, jobs.StatusActive))

	// nil credentials make decryption panic inside the run goroutine
	s := newTestScheduler(store, nil, "http://127.0.0.1:1")
	s.Tick(context.Background())
	s.wg.Wait()

	require.Eventually(t, func() bool { return !s.Running(9) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, jobs.StatusFailed, store.currentStatus(9))

	store.mu.Lock()
	logs := append([]string(nil), store.logs[9]...)
	store.mu.Unlock()
	require.NotEmpty(t, logs)
	assert.True(t, strings.HasPrefix(logs[len(logs)-1], "crash: "), logs)
}

func TestShutdownLeavesJobForReadoption(t *testing.T) {
	a := testAEAD(t)
	store := newFakeStore(testJob(t, a, 5, jobs.StatusActive))
	srv, release := gatedPortal()
	defer srv.Close()
	defer release()

	s := newTestScheduler(store, a, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())

	s.Tick(ctx)
	require.Eventually(t, func() bool { return s.Running(5) }, time.Second, 5*time.Millisecond)

	// shutdown while the run is mid-flight
	cancel()
	require.Eventually(t, func() bool { return !s.Running(5) }, 5*time.Second, 10*time.Millisecond)
	s.wg.Wait()

	// no terminal write happened; the row stays running for the next process
	assert.Equal(t, jobs.StatusRunning, store.currentStatus(5))
	assert.Zero(t, store.finishedCount(5))
}

func TestCorruptCredentialsFailJob(t *testing.T) {
	a := testAEAD(t)
	j := testJob(t, a, 4, jobs.StatusActive)
	j.UsernameEnc = "not-a-ciphertext"
	store := newFakeStore(j)

	s := newTestScheduler(store, a, "http://127.0.0.1:1")
	s.Tick(context.Background())
	s.wg.Wait()

	assert.Equal(t, jobs.StatusFailed, store.currentStatus(4))
	store.mu.Lock()
	logs := append([]string(nil), store.logs[4]...)
	store.mu.Unlock()
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[len(logs)-1], "credentials")
}
