package sim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yt-clip-studio/internal/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

const listLimit = 100

type Repository interface {
	CreateJob(ctx context.Context, job model.Job) error
	GetJob(ctx context.Context, id string) (model.Job, error)
	ListJobs(ctx context.Context, limit int) ([]model.Job, error)
	ListJobIDsByStatus(ctx context.Context, status string) ([]string, error)
	UpdateJob(ctx context.Context, job model.Job) error

	ReplaceClips(ctx context.Context, jobID string, clips []model.Clip) error
	ListClips(ctx context.Context, jobID string) ([]model.Clip, error)
	UpdateClip(ctx context.Context, jobID string, clip model.Clip) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, youtube_url, title, status, progress, clip_length, language, style,
	error_message, waveform_url, sprite_url, source_duration, created_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j model.Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, youtube_url, title, status, progress, clip_length, language, style,
			error_message, waveform_url, sprite_url, source_duration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.YouTubeURL, j.Title, j.Status, j.Progress, j.ClipLength, j.Language, j.Style,
		nullString(j.ErrorMessage), nullString(j.WaveformURL), nullString(j.SpriteURL), j.SourceDuration, j.CreatedAt, now)
	return err
}

// GetJob returns the job with its clips embedded.
func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (model.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		return model.Job{}, err
	}
	clips, err := r.ListClips(ctx, id)
	if err != nil {
		return model.Job{}, err
	}
	job.Clips = clips
	job.ClipCount = len(clips)
	return job, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 || limit > listLimit {
		limit = listLimit
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	clipsByJob, err := r.clipsByJob(ctx)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].Clips = clipsByJob[jobs[i].ID]
		jobs[i].ClipCount = len(jobs[i].Clips)
	}
	return jobs, nil
}

func (r *SQLiteRepository) ListJobIDsByStatus(ctx context.Context, status string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) UpdateJob(ctx context.Context, j model.Job) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET title = ?, status = ?, progress = ?, error_message = ?, waveform_url = ?,
			sprite_url = ?, source_duration = ?, updated_at = ?
		WHERE id = ?
	`, j.Title, j.Status, j.Progress, nullString(j.ErrorMessage), nullString(j.WaveformURL),
		nullString(j.SpriteURL), j.SourceDuration, time.Now().UTC().Format(time.RFC3339), j.ID)
	if err != nil {
		return err
	}
	return expectOneRow(res, "job "+j.ID)
}

func (r *SQLiteRepository) ReplaceClips(ctx context.Context, jobID string, clips []model.Clip) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clips WHERE job_id = ?`, jobID); err != nil {
		return err
	}
	for i, c := range clips {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO clips (id, job_id, position, title, caption, start_time, end_time, viral_score, thumbnail_url, video_url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, jobID, i, c.Title, c.Caption, c.StartTime, c.EndTime, c.ViralScore, nullString(c.ThumbnailURL), nullString(c.VideoURL))
		if err != nil {
			return fmt.Errorf("insert clip %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) ListClips(ctx context.Context, jobID string) ([]model.Clip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, title, caption, start_time, end_time, viral_score, thumbnail_url, video_url
		FROM clips WHERE job_id = ? ORDER BY position ASC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clips := []model.Clip{}
	for rows.Next() {
		_, c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func (r *SQLiteRepository) clipsByJob(ctx context.Context) (map[string][]model.Clip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, title, caption, start_time, end_time, viral_score, thumbnail_url, video_url
		FROM clips ORDER BY job_id, position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]model.Clip{}
	for rows.Next() {
		jobID, c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		out[jobID] = append(out[jobID], c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateClip(ctx context.Context, jobID string, c model.Clip) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE clips SET title = ?, caption = ?, start_time = ?, end_time = ?
		WHERE id = ? AND job_id = ?
	`, c.Title, c.Caption, c.StartTime, c.EndTime, c.ID, jobID)
	if err != nil {
		return err
	}
	return expectOneRow(res, "clip "+c.ID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (model.Job, error) {
	var j model.Job
	var errMsg, waveform, sprite sql.NullString
	err := row.Scan(&j.ID, &j.YouTubeURL, &j.Title, &j.Status, &j.Progress, &j.ClipLength, &j.Language, &j.Style,
		&errMsg, &waveform, &sprite, &j.SourceDuration, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrNotFound
	}
	if err != nil {
		return model.Job{}, err
	}
	j.ErrorMessage = errMsg.String
	j.WaveformURL = waveform.String
	j.SpriteURL = sprite.String
	j.Clips = []model.Clip{}
	return j, nil
}

func scanClip(row scanner) (string, model.Clip, error) {
	var c model.Clip
	var jobID string
	var thumb, video sql.NullString
	if err := row.Scan(&c.ID, &jobID, &c.Title, &c.Caption, &c.StartTime, &c.EndTime, &c.ViralScore, &thumb, &video); err != nil {
		return "", model.Clip{}, err
	}
	c.ThumbnailURL = thumb.String
	c.VideoURL = video.String
	c.Duration = c.EndTime - c.StartTime
	return jobID, c, nil
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
