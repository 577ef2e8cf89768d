package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB, tunes the pool and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:passcut.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/passcut?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	tunePool(driver, db)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return db, nil
}

func tunePool(driver Driver, db *sql.DB) {
	switch driver {
	case DriverSQLite:
		// single writer; one connection also keeps in-memory databases alive
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	default:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(45 * time.Minute)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS exams (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  year INTEGER NOT NULL,
  round INTEGER NOT NULL,
  name TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS regions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  recruit_public INTEGER NOT NULL DEFAULT 0 CHECK (recruit_public >= 0),
  recruit_career INTEGER NOT NULL DEFAULT 0 CHECK (recruit_career >= 0),
  applicant_public INTEGER,
  applicant_career INTEGER
);

CREATE TABLE IF NOT EXISTS subjects (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  track TEXT NOT NULL,
  name TEXT NOT NULL,
  question_count INTEGER NOT NULL,
  point_per_question REAL NOT NULL,
  max_score REAL NOT NULL,
  ordinal INTEGER NOT NULL DEFAULT 0,
  UNIQUE (track, name)
);

CREATE TABLE IF NOT EXISTS answer_keys (
  exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  subject_id INTEGER NOT NULL REFERENCES subjects(id),
  question_number INTEGER NOT NULL,
  answer INTEGER NOT NULL CHECK (answer BETWEEN 1 AND 4),
  is_confirmed INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (exam_id, subject_id, question_number)
);

CREATE TABLE IF NOT EXISTS submissions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  region_id INTEGER NOT NULL REFERENCES regions(id),
  track TEXT NOT NULL,
  gender TEXT NOT NULL DEFAULT '',
  total_score REAL NOT NULL DEFAULT 0,
  bonus_type TEXT NOT NULL DEFAULT 'NONE',
  bonus_rate REAL NOT NULL DEFAULT 0,
  final_score REAL NOT NULL DEFAULT 0,
  has_cutoff INTEGER NOT NULL DEFAULT 0,
  edit_count INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  UNIQUE (exam_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_submissions_population ON submissions(exam_id, region_id, track);

CREATE TABLE IF NOT EXISTS user_answers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  submission_id INTEGER NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  subject_id INTEGER NOT NULL REFERENCES subjects(id),
  question_number INTEGER NOT NULL,
  selected INTEGER NOT NULL DEFAULT 0,
  is_correct INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL,
  UNIQUE (submission_id, subject_id, question_number)
);
CREATE INDEX IF NOT EXISTS idx_user_answers_question ON user_answers(subject_id, question_number);

CREATE TABLE IF NOT EXISTS subject_scores (
  submission_id INTEGER NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  subject_id INTEGER NOT NULL REFERENCES subjects(id),
  raw_score REAL NOT NULL,
  is_cutoff INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (submission_id, subject_id)
);

CREATE TABLE IF NOT EXISTS rescore_events (
  id TEXT PRIMARY KEY,
  exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  track TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  summary_json TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rescore_details (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  event_id TEXT NOT NULL REFERENCES rescore_events(id) ON DELETE CASCADE,
  submission_id INTEGER NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  region_id INTEGER NOT NULL,
  track TEXT NOT NULL,
  old_total REAL NOT NULL,
  new_total REAL NOT NULL,
  old_final REAL NOT NULL,
  new_final REAL NOT NULL,
  old_cutoff INTEGER NOT NULL DEFAULT 0,
  new_cutoff INTEGER NOT NULL DEFAULT 0,
  old_rank INTEGER,
  new_rank INTEGER,
  is_read INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  UNIQUE (event_id, submission_id)
);

CREATE TABLE IF NOT EXISTS pass_cut_releases (
  id TEXT PRIMARY KEY,
  exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  release_number INTEGER NOT NULL CHECK (release_number BETWEEN 1 AND 4),
  trigger_kind TEXT NOT NULL,
  ready_ratio REAL NOT NULL,
  created_by TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE (exam_id, release_number)
);

CREATE TABLE IF NOT EXISTS pass_cut_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  release_id TEXT NOT NULL REFERENCES pass_cut_releases(id) ON DELETE CASCADE,
  region_id INTEGER NOT NULL REFERENCES regions(id),
  track TEXT NOT NULL,
  participant_count INTEGER NOT NULL,
  recruit_count INTEGER NOT NULL,
  average_score REAL NOT NULL,
  sure_cut REAL,
  likely_cut REAL,
  possible_cut REAL,
  status TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS final_predictions (
  submission_id INTEGER PRIMARY KEY REFERENCES submissions(id) ON DELETE CASCADE,
  fitness_passed INTEGER,
  bonus_points REAL NOT NULL DEFAULT 0,
  known_final_score REAL,
  known_final_rank INTEGER
);

CREATE TABLE IF NOT EXISTS notices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  body TEXT NOT NULL,
  author_id TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS site_settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS exams (
  id BIGSERIAL PRIMARY KEY,
  year INTEGER NOT NULL,
  round INTEGER NOT NULL,
  name TEXT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS regions (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  recruit_public INTEGER NOT NULL DEFAULT 0 CHECK (recruit_public >= 0),
  recruit_career INTEGER NOT NULL DEFAULT 0 CHECK (recruit_career >= 0),
  applicant_public INTEGER,
  applicant_career INTEGER
);

CREATE TABLE IF NOT EXISTS subjects (
  id BIGSERIAL PRIMARY KEY,
  track TEXT NOT NULL,
  name TEXT NOT NULL,
  question_count INTEGER NOT NULL,
  point_per_question DOUBLE PRECISION NOT NULL,
  max_score DOUBLE PRECISION NOT NULL,
  ordinal INTEGER NOT NULL DEFAULT 0,
  UNIQUE (track, name)
);

CREATE TABLE IF NOT EXISTS answer_keys (
  exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  subject_id BIGINT NOT NULL REFERENCES subjects(id),
  question_number INTEGER NOT NULL,
  answer INTEGER NOT NULL CHECK (answer BETWEEN 1 AND 4),
  is_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
  updated_at BIGINT NOT NULL,
  PRIMARY KEY (exam_id, subject_id, question_number)
);

CREATE TABLE IF NOT EXISTS submissions (
  id BIGSERIAL PRIMARY KEY,
  exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  region_id BIGINT NOT NULL REFERENCES regions(id),
  track TEXT NOT NULL,
  gender TEXT NOT NULL DEFAULT '',
  total_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  bonus_type TEXT NOT NULL DEFAULT 'NONE',
  bonus_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
  final_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  has_cutoff BOOLEAN NOT NULL DEFAULT FALSE,
  edit_count INTEGER NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  UNIQUE (exam_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_submissions_population ON submissions(exam_id, region_id, track);

CREATE TABLE IF NOT EXISTS user_answers (
  id BIGSERIAL PRIMARY KEY,
  submission_id BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  subject_id BIGINT NOT NULL REFERENCES subjects(id),
  question_number INTEGER NOT NULL,
  selected INTEGER NOT NULL DEFAULT 0,
  is_correct BOOLEAN NOT NULL DEFAULT FALSE,
  updated_at BIGINT NOT NULL,
  UNIQUE (submission_id, subject_id, question_number)
);
CREATE INDEX IF NOT EXISTS idx_user_answers_question ON user_answers(subject_id, question_number);

CREATE TABLE IF NOT EXISTS subject_scores (
  submission_id BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  subject_id BIGINT NOT NULL REFERENCES subjects(id),
  raw_score DOUBLE PRECISION NOT NULL,
  is_cutoff BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL,
  PRIMARY KEY (submission_id, subject_id)
);

CREATE TABLE IF NOT EXISTS rescore_events (
  id TEXT PRIMARY KEY,
  exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  track TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  summary_json TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS rescore_details (
  id BIGSERIAL PRIMARY KEY,
  event_id TEXT NOT NULL REFERENCES rescore_events(id) ON DELETE CASCADE,
  submission_id BIGINT NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  region_id BIGINT NOT NULL,
  track TEXT NOT NULL,
  old_total DOUBLE PRECISION NOT NULL,
  new_total DOUBLE PRECISION NOT NULL,
  old_final DOUBLE PRECISION NOT NULL,
  new_final DOUBLE PRECISION NOT NULL,
  old_cutoff BOOLEAN NOT NULL DEFAULT FALSE,
  new_cutoff BOOLEAN NOT NULL DEFAULT FALSE,
  old_rank INTEGER,
  new_rank INTEGER,
  is_read BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL,
  UNIQUE (event_id, submission_id)
);

CREATE TABLE IF NOT EXISTS pass_cut_releases (
  id TEXT PRIMARY KEY,
  exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
  release_number INTEGER NOT NULL CHECK (release_number BETWEEN 1 AND 4),
  trigger_kind TEXT NOT NULL,
  ready_ratio DOUBLE PRECISION NOT NULL,
  created_by TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  UNIQUE (exam_id, release_number)
);

CREATE TABLE IF NOT EXISTS pass_cut_snapshots (
  id BIGSERIAL PRIMARY KEY,
  release_id TEXT NOT NULL REFERENCES pass_cut_releases(id) ON DELETE CASCADE,
  region_id BIGINT NOT NULL REFERENCES regions(id),
  track TEXT NOT NULL,
  participant_count INTEGER NOT NULL,
  recruit_count INTEGER NOT NULL,
  average_score DOUBLE PRECISION NOT NULL,
  sure_cut DOUBLE PRECISION,
  likely_cut DOUBLE PRECISION,
  possible_cut DOUBLE PRECISION,
  status TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS final_predictions (
  submission_id BIGINT PRIMARY KEY REFERENCES submissions(id) ON DELETE CASCADE,
  fitness_passed BOOLEAN,
  bonus_points DOUBLE PRECISION NOT NULL DEFAULT 0,
  known_final_score DOUBLE PRECISION,
  known_final_rank INTEGER
);

CREATE TABLE IF NOT EXISTS notices (
  id BIGSERIAL PRIMARY KEY,
  title TEXT NOT NULL,
  body TEXT NOT NULL,
  author_id TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS site_settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
