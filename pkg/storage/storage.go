package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Upload statuses. A record marked done is never resubmitted.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

var ErrNoAuthSession = errors.New("no stored auth session")

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS scheduled_uploads (
  id           INTEGER PRIMARY KEY,
  path         TEXT NOT NULL,
  caption      TEXT NOT NULL DEFAULT '',
  target_time  DATETIME NOT NULL,
  status       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','done','failed')),
  created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  attempted_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_uploads_due ON scheduled_uploads(status, target_time);
CREATE TABLE IF NOT EXISTS auth_sessions (
  account    TEXT PRIMARY KEY,
  blob       BLOB NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS activity_log (
  id          INTEGER PRIMARY KEY,
  occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  phase       TEXT NOT NULL,
  kind        TEXT NOT NULL,
  detail      TEXT
);
CREATE INDEX IF NOT EXISTS idx_activity_time ON activity_log(occurred_at);
CREATE TABLE IF NOT EXISTS account_counters (
  account TEXT PRIMARY KEY,
  follows INTEGER NOT NULL DEFAULT 0,
  likes   INTEGER NOT NULL DEFAULT 0,
  videos  INTEGER NOT NULL DEFAULT 0
);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Upload is one scheduled upload record. Created by operator request,
// mutated to done/failed by the upload step, never deleted
// automatically.
type Upload struct {
	ID          int64
	Path        string
	Caption     string
	TargetTime  time.Time
	Status      string
	CreatedAt   time.Time
	AttemptedAt *time.Time
}

func (d *DB) AddUpload(ctx context.Context, path, caption string, target time.Time) (int64, error) {
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO scheduled_uploads(path, caption, target_time, status) VALUES(?,?,?,?)`,
		path, caption, target.UTC(), StatusPending)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListUploads returns every record in creation order. Rows that fail to
// scan are skipped; a malformed record must not hide the rest.
func (d *DB) ListUploads(ctx context.Context) ([]Upload, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, path, caption, target_time, status, created_at, attempted_at FROM scheduled_uploads ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUploads(rows)
}

// DueUploads returns pending records whose target time has passed.
// Records already marked done or failed are never returned, so a
// completed upload is never resubmitted on a later pass.
func (d *DB) DueUploads(ctx context.Context, now time.Time) ([]Upload, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, path, caption, target_time, status, created_at, attempted_at
		   FROM scheduled_uploads WHERE status = ? AND target_time <= ? ORDER BY target_time`,
		StatusPending, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUploads(rows)
}

func scanUploads(rows *sql.Rows) ([]Upload, error) {
	var out []Upload
	for rows.Next() {
		var (
			u         Upload
			attempted sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Path, &u.Caption, &u.TargetTime, &u.Status, &u.CreatedAt, &attempted); err != nil {
			continue
		}
		if attempted.Valid {
			t := attempted.Time
			u.AttemptedAt = &t
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (d *DB) MarkUpload(ctx context.Context, id int64, status string) error {
	_, err := d.sql.ExecContext(ctx,
		`UPDATE scheduled_uploads SET status = ?, attempted_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
	return err
}

// SaveAuth stores the opaque session blob for an account.
func (d *DB) SaveAuth(ctx context.Context, account string, blob []byte) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO auth_sessions(account, blob, updated_at) VALUES(?,?,CURRENT_TIMESTAMP)
		 ON CONFLICT(account) DO UPDATE SET blob = excluded.blob, updated_at = CURRENT_TIMESTAMP`,
		account, blob)
	return err
}

func (d *DB) LoadAuth(ctx context.Context, account string) ([]byte, error) {
	var blob []byte
	err := d.sql.QueryRowContext(ctx,
		`SELECT blob FROM auth_sessions WHERE account = ?`, account).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoAuthSession
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// AppendActivity writes one event to the append-only operator log.
func (d *DB) AppendActivity(ctx context.Context, phase, kind, detail string) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO activity_log(phase, kind, detail) VALUES(?,?,?)`,
		phase, kind, detail)
	return err
}

// Activity is one operator-facing log entry.
type Activity struct {
	OccurredAt time.Time
	Phase      string
	Kind       string
	Detail     string
}

func (d *DB) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT occurred_at, phase, kind, COALESCE(detail,'') FROM activity_log ORDER BY occurred_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.OccurredAt, &a.Phase, &a.Kind, &a.Detail); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Counters are the cumulative lifetime totals for one account.
type Counters struct {
	Follows int
	Likes   int
	Videos  int
}

// AddCounters folds one session's budget usage into the lifetime totals.
func (d *DB) AddCounters(ctx context.Context, account string, c Counters) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO account_counters(account, follows, likes, videos) VALUES(?,?,?,?)
		 ON CONFLICT(account) DO UPDATE SET
		   follows = follows + excluded.follows,
		   likes   = likes + excluded.likes,
		   videos  = videos + excluded.videos`,
		account, c.Follows, c.Likes, c.Videos)
	return err
}

func (d *DB) GetCounters(ctx context.Context, account string) (Counters, error) {
	var c Counters
	err := d.sql.QueryRowContext(ctx,
		`SELECT follows, likes, videos FROM account_counters WHERE account = ?`, account).
		Scan(&c.Follows, &c.Likes, &c.Videos)
	if errors.Is(err, sql.ErrNoRows) {
		return Counters{}, nil
	}
	return c, err
}
