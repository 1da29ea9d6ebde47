package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

var createProgressSQL = []string{
	`CREATE TABLE IF NOT EXISTS event_days (
		number         INTEGER PRIMARY KEY,
		scheduled_date DATE    NOT NULL,
		title          TEXT    NOT NULL DEFAULT '',
		video_url      TEXT    NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		user_id      TEXT        PRIMARY KEY,
		display_name TEXT        NOT NULL DEFAULT '',
		joined_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS day_progress (
		user_id           TEXT        NOT NULL REFERENCES participants (user_id),
		day               INTEGER     NOT NULL REFERENCES event_days (number),
		status            TEXT        NOT NULL DEFAULT 'locked',
		qr_scanned        BOOLEAN     NOT NULL DEFAULT false,
		unlock_method     TEXT,
		attendance_points INTEGER     NOT NULL DEFAULT 0,
		video_watched     BOOLEAN     NOT NULL DEFAULT false,
		video_points      INTEGER     NOT NULL DEFAULT 0,
		quiz_completed    BOOLEAN     NOT NULL DEFAULT false,
		quiz_score        INTEGER     NOT NULL DEFAULT 0,
		unlocked_at       TIMESTAMPTZ,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, day)
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_results (
		user_id      TEXT        NOT NULL,
		day          INTEGER     NOT NULL,
		answers      JSONB       NOT NULL,
		total_score  INTEGER     NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, day)
	)`,
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			for _, stmt := range createProgressSQL {
				if _, err := db.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS quiz_results, day_progress, participants, event_days`)
			return err
		},
	)
}
