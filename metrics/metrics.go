// Package metrics keeps a SQLite record of every checkpoint and dev set
// evaluation so that runs can be compared after training stops.
package metrics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultFile is the database name inside the working directory.
const DefaultFile = "metrics.sqlite3"

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run TEXT NOT NULL,
	step INTEGER NOT NULL,
	learning_rate REAL NOT NULL,
	loss REAL NOT NULL,
	step_time_ms REAL NOT NULL,
	ts INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS evals(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run TEXT NOT NULL,
	step INTEGER NOT NULL,
	bucket INTEGER NOT NULL,
	loss REAL NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS checkpoints_run ON checkpoints(run, step);
CREATE INDEX IF NOT EXISTS evals_run ON evals(run, step);
`

type Store struct {
	db *sql.DB
}

// Path is the metrics database of a working directory.
func Path(dir string) string {
	return filepath.Join(dir, DefaultFile)
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Join(fmt.Errorf("create metrics schema: %w", err), db.Close())
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type Checkpoint struct {
	Run          string
	Step         int
	LearningRate float64
	Loss         float64
	StepTime     time.Duration
	Time         time.Time
}

type Eval struct {
	Run    string
	Step   int
	Bucket int
	Loss   float64
	Time   time.Time
}

// Run summarizes the checkpoints recorded for one training run.
type Run struct {
	ID          string
	FirstStep   int
	LastStep    int
	Checkpoints int
	BestLoss    float64
	LastLoss    float64
	Updated     time.Time
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

func (s *Store) RecordCheckpoint(ctx context.Context, c Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO checkpoints(run, step, learning_rate, loss, step_time_ms, ts) VALUES(?,?,?,?,?,?)",
		c.Run, c.Step, c.LearningRate, c.Loss, float64(c.StepTime)/float64(time.Millisecond), millis(c.Time))
	return err
}

func (s *Store) RecordEval(ctx context.Context, e Eval) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO evals(run, step, bucket, loss, ts) VALUES(?,?,?,?,?)",
		e.Run, e.Step, e.Bucket, e.Loss, millis(e.Time))
	return err
}

// Runs lists every recorded run, most recently updated first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.run, MIN(c.step), MAX(c.step), COUNT(*), MIN(c.loss), MAX(c.ts),
			(SELECT l.loss FROM checkpoints l WHERE l.run = c.run ORDER BY l.step DESC, l.id DESC LIMIT 1)
		FROM checkpoints c
		GROUP BY c.run
		ORDER BY MAX(c.ts) DESC, c.run`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ts int64
		if err := rows.Scan(&r.ID, &r.FirstStep, &r.LastStep, &r.Checkpoints, &r.BestLoss, &ts, &r.LastLoss); err != nil {
			return nil, err
		}
		r.Updated = time.UnixMilli(ts)
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Checkpoints returns the checkpoints of run in step order.
func (s *Store) Checkpoints(ctx context.Context, run string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT run, step, learning_rate, loss, step_time_ms, ts FROM checkpoints WHERE run = ? ORDER BY step, id", run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkpoints []Checkpoint
	for rows.Next() {
		var c Checkpoint
		var stepTime float64
		var ts int64
		if err := rows.Scan(&c.Run, &c.Step, &c.LearningRate, &c.Loss, &stepTime, &ts); err != nil {
			return nil, err
		}
		c.StepTime = time.Duration(stepTime * float64(time.Millisecond))
		c.Time = time.UnixMilli(ts)
		checkpoints = append(checkpoints, c)
	}

	return checkpoints, rows.Err()
}

// Evals returns the dev set losses of run at step, by bucket.
func (s *Store) Evals(ctx context.Context, run string, step int) ([]Eval, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT run, step, bucket, loss, ts FROM evals WHERE run = ? AND step = ? ORDER BY bucket, id", run, step)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evals []Eval
	for rows.Next() {
		var e Eval
		var ts int64
		if err := rows.Scan(&e.Run, &e.Step, &e.Bucket, &e.Loss, &ts); err != nil {
			return nil, err
		}
		e.Time = time.UnixMilli(ts)
		evals = append(evals, e)
	}

	return evals, rows.Err()
}
