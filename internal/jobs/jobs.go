package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/example/teeswap/internal/db"
)

// Status vocabulary shared with the scheduler and the UI.
const (
	StatusActive  = "active"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusExpired = "expired"
	StatusStopped = "stopped"
)

// Job is one watch-cancel-rebook order: which club and course to watch,
// the held booking, the acceptable window, and who plays. Portal
// credentials are stored encrypted and only decrypted on the way into a
// run.
type Job struct {
	ID     int64
	UserID int64

	ClubSlug string
	CourseID string

	UsernameEnc string
	PasswordEnc string

	TargetDate  string // YYYY/MM/DD
	Earliest    string // HH:MM
	Latest      string // HH:MM
	CurrentTime string // HH:MM

	RequiredSeats int
	AcceptAtLeast bool
	PlayerIDs     []string

	PollSeconds int
	MaxMinutes  int

	Status     string
	LastLog    string
	StartedAt  time.Time
	FinishedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func splitIDs(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinIDs(ids []string) string {
	var cleaned []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	return strings.Join(cleaned, ",")
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

// held_time, not current_time: CURRENT_TIME is a reserved word in
// PostgreSQL and would resolve to the datetime function unquoted.
const jobColumns = `id,user_id,club_slug,course_id,username_enc,password_enc,
target_date,earliest,latest,held_time,required_seats,accept_at_least,player_ids,
poll_seconds,max_minutes,status,last_log,started_at,finished_at,created_at,updated_at`

func (r *Repo) Create(ctx context.Context, j Job) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO jobs(user_id,club_slug,course_id,username_enc,password_enc,
  target_date,earliest,latest,held_time,required_seats,accept_at_least,player_ids,
  poll_seconds,max_minutes,status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,'active')
RETURNING id`,
		j.UserID, j.ClubSlug, j.CourseID, j.UsernameEnc, j.PasswordEnc,
		j.TargetDate, j.Earliest, j.Latest, j.CurrentTime,
		j.RequiredSeats, j.AcceptAtLeast, joinIDs(j.PlayerIDs),
		j.PollSeconds, j.MaxMinutes,
	).Scan(&id)
	return id, db.WrapNotFound(err)
}

func scanJob(row db.Row) (Job, error) {
	var j Job
	var playerIDs string
	if err := row.Scan(
		&j.ID, &j.UserID, &j.ClubSlug, &j.CourseID, &j.UsernameEnc, &j.PasswordEnc,
		&j.TargetDate, &j.Earliest, &j.Latest, &j.CurrentTime,
		&j.RequiredSeats, &j.AcceptAtLeast, &playerIDs,
		&j.PollSeconds, &j.MaxMinutes, &j.Status, &j.LastLog,
		&j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return Job{}, err
	}
	j.PlayerIDs = splitIDs(playerIDs)
	return j, nil
}

func (r *Repo) collect(rows db.Rows) ([]Job, error) {
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *Repo) GetForUser(ctx context.Context, id, userID int64) (Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id=$1 AND user_id=$2`, id, userID))
	if err != nil {
		return Job{}, db.WrapNotFound(err)
	}
	return j, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID int64) ([]Job, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id=$1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// ListByStatus feeds the scheduler's reconciliation tick. Jobs left
// "running" by a crashed process come back here and are re-adopted.
func (r *Repo) ListByStatus(ctx context.Context, statuses ...string) ([]Job, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ANY($1) ORDER BY id ASC`, statuses)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *Repo) SetStatus(ctx context.Context, jobID int64, status string) error {
	return r.db.Exec(ctx, `UPDATE jobs SET status=$2, updated_at=now() WHERE id=$1`, jobID, status)
}

func (r *Repo) SetLastLog(ctx context.Context, jobID int64, text string) error {
	return r.db.Exec(ctx, `UPDATE jobs SET last_log=$2, updated_at=now() WHERE id=$1`, jobID, text)
}

func (r *Repo) SetFinishedAt(ctx context.Context, jobID int64, t time.Time) error {
	return r.db.Exec(ctx, `UPDATE jobs SET finished_at=$2, updated_at=now() WHERE id=$1`, jobID, t)
}

func (r *Repo) Delete(ctx context.Context, id, userID int64) error {
	return r.db.Exec(ctx, `DELETE FROM jobs WHERE id=$1 AND user_id=$2`, id, userID)
}
