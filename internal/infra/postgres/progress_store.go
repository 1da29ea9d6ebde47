package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"rvl-week-service/internal/domain"
	"rvl-week-service/internal/gate"
)

// ProgressStore keeps day progress in Postgres. One row per (user, day); the
// upsert is a single statement so concurrent unlocks cannot double-award.
type ProgressStore struct {
	pool *pgxpool.Pool
}

func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

// SeedDays writes the configured event calendar.
func (s *ProgressStore) SeedDays(ctx context.Context, days []domain.EventDay) error {
	batch := &pgx.Batch{}
	for _, d := range days {
		batch.Queue(`INSERT INTO event_days (number, scheduled_date, title, video_url) VALUES ($1, $2, $3, $4)
			ON CONFLICT (number) DO UPDATE SET scheduled_date = EXCLUDED.scheduled_date,
				title = EXCLUDED.title, video_url = EXCLUDED.video_url`,
			d.Number, d.ScheduledDate.Format("2006-01-02"), d.Title, d.VideoURL)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for _, d := range days {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("seed day %d: %w", d.Number, err)
		}
	}
	return nil
}

const listDaysSQL = `
SELECT e.number, e.scheduled_date::text, e.title, e.video_url,
	COALESCE(p.status, 'locked'),
	COALESCE(p.attendance_points + p.video_points + p.quiz_score, 0),
	COALESCE(p.qr_scanned, false),
	COALESCE(p.unlock_method, ''),
	COALESCE(p.video_watched, false),
	COALESCE(p.quiz_completed, false),
	COALESCE(p.quiz_score, 0),
	p.unlocked_at
FROM event_days e
LEFT JOIN day_progress p ON p.day = e.number AND p.user_id = $1
ORDER BY e.number`

func (s *ProgressStore) ListDays(ctx context.Context, userID string) ([]domain.Day, error) {
	rows, err := s.pool.Query(ctx, listDaysSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer rows.Close()

	var days []domain.Day
	for rows.Next() {
		var (
			d      domain.Day
			date   string
			status string
			method string
		)
		if err := rows.Scan(&d.Number, &date, &d.Title, &d.VideoURL, &status, &d.Points,
			&d.QRScanned, &method, &d.VideoWatched, &d.QuizCompleted, &d.QuizScore, &d.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		if d.ScheduledDate, err = time.ParseInLocation("2006-01-02", date, gate.EventZone); err != nil {
			return nil, fmt.Errorf("day %d date %q: %w", d.Number, date, err)
		}
		d.Status = domain.DayStatus(status)
		d.UnlockMethod = domain.UnlockMethod(method)
		days = append(days, d)
	}
	return days, rows.Err()
}

const upsertParticipantSQL = `
INSERT INTO participants (user_id, display_name) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET display_name =
	CASE WHEN EXCLUDED.display_name = '' THEN participants.display_name ELSE EXCLUDED.display_name END`

// status only moves forward; unlocked_at keeps the first unlock
const upsertProgressSQL = `
INSERT INTO day_progress AS p (user_id, day, status, qr_scanned, unlock_method, attendance_points,
	video_watched, video_points, quiz_completed, quiz_score, unlocked_at, updated_at)
VALUES ($1, $2, COALESCE($3, 'locked'), COALESCE($4, false), $5, COALESCE($6, 0),
	COALESCE($7, false), COALESCE($8, 0), COALESCE($9, false), COALESCE($10, 0), $11, now())
ON CONFLICT (user_id, day) DO UPDATE SET
	status = CASE
		WHEN $3::text IS NOT NULL
			AND array_position(ARRAY['locked','available','completed'], $3::text)
				> array_position(ARRAY['locked','available','completed'], p.status)
		THEN $3::text ELSE p.status END,
	qr_scanned        = COALESCE($4, p.qr_scanned),
	unlock_method     = COALESCE($5, p.unlock_method),
	attendance_points = COALESCE($6, p.attendance_points),
	video_watched     = COALESCE($7, p.video_watched),
	video_points      = COALESCE($8, p.video_points),
	quiz_completed    = COALESCE($9, p.quiz_completed),
	quiz_score        = COALESCE($10, p.quiz_score),
	unlocked_at       = COALESCE(p.unlocked_at, $11),
	updated_at        = now()`

func (s *ProgressStore) UpsertProgress(ctx context.Context, patch domain.ProgressPatch) error {
	if patch.Status != nil && !patch.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, *patch.Status)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var known bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM event_days WHERE number = $1)`, patch.Day).Scan(&known); err != nil {
		return fmt.Errorf("check day: %w", err)
	}
	if !known {
		return domain.ErrDayNotFound
	}
	if _, err := tx.Exec(ctx, upsertParticipantSQL, patch.UserID, patch.DisplayName); err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	_, err = tx.Exec(ctx, upsertProgressSQL,
		patch.UserID, patch.Day,
		stringPtr(patch.Status), patch.QRScanned, stringPtr(patch.UnlockMethod), patch.AttendancePoints,
		patch.VideoWatched, patch.VideoPoints, patch.QuizCompleted, patch.QuizScore, patch.UnlockedAt)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return tx.Commit(ctx)
}

const rankingSQL = `
SELECT u.user_id, u.display_name,
	COALESCE(SUM(p.attendance_points + p.video_points + p.quiz_score), 0)::int AS points,
	GREATEST(u.joined_at, COALESCE(MAX(p.updated_at), u.joined_at)) AS last_updated
FROM participants u
LEFT JOIN day_progress p ON p.user_id = u.user_id
GROUP BY u.user_id, u.display_name, u.joined_at
ORDER BY points DESC, last_updated ASC, u.display_name ASC
LIMIT $1`

func (s *ProgressStore) Ranking(ctx context.Context, limit int) ([]domain.RankingEntry, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, rankingSQL, lim)
	if err != nil {
		return nil, fmt.Errorf("query ranking: %w", err)
	}
	defer rows.Close()

	var entries []domain.RankingEntry
	for rows.Next() {
		var e domain.RankingEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.Points, &e.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// stringPtr turns a named string pointer into one pgx encodes as text or NULL.
func stringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
