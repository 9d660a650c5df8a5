// Package persistence provides SQLite-based storage of experiment results.
// Only aggregate metrics are stored, for reporting and plotting; simulation
// state itself is never persisted.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/segregation/internal/experiment"
)

// timeLayout is fixed-width so that created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when an experiment ID is unknown.
var ErrNotFound = errors.New("persistence: experiment not found")

// DB wraps a SQLite connection holding experiment results.
type DB struct {
	conn *sqlx.DB
}

// ExperimentRecord is one stored experiment.
type ExperimentRecord struct {
	ID            string  `db:"id" json:"id"`
	CreatedAt     string  `db:"created_at" json:"created_at"`
	Threshold     float64 `db:"threshold" json:"threshold"`
	MaxIterations int     `db:"max_iterations" json:"max_iterations"`
	SampleSize    int     `db:"sample_size" json:"sample_size"`
	InitialKind   string  `db:"initial_kind" json:"initial_kind"`
	LineSize      int     `db:"line_size" json:"line_size"`
	BaseSeed      int64   `db:"base_seed" json:"base_seed"`
	PlanJSON      string  `db:"plan_json" json:"-"`
}

// Plan decodes the full plan stored with the record.
func (r ExperimentRecord) Plan() (experiment.Plan, error) {
	var pl experiment.Plan
	if err := json.Unmarshal([]byte(r.PlanJSON), &pl); err != nil {
		return pl, fmt.Errorf("decode plan of %s: %w", r.ID, err)
	}
	return pl, nil
}

type pointRow struct {
	Neighborhood      int     `db:"neighborhood"`
	Samples           int     `db:"samples"`
	Converged         int     `db:"converged"`
	MeanSweeps        float64 `db:"mean_sweeps"`
	MeanMoves         float64 `db:"mean_moves"`
	BeforeUnhappy     float64 `db:"before_unhappy"`
	BeforeHomogeneity float64 `db:"before_homogeneity"`
	BeforeClusterSize float64 `db:"before_cluster_size"`
	AfterUnhappy      float64 `db:"after_unhappy"`
	AfterHomogeneity  float64 `db:"after_homogeneity"`
	AfterClusterSize  float64 `db:"after_cluster_size"`
}

func (r pointRow) point() experiment.Point {
	return experiment.Point{
		Neighborhood: r.Neighborhood,
		Samples:      r.Samples,
		Converged:    r.Converged,
		MeanSweeps:   r.MeanSweeps,
		MeanMoves:    r.MeanMoves,
		Before: experiment.Summary{
			Unhappy:            r.BeforeUnhappy,
			AverageHomogeneity: r.BeforeHomogeneity,
			AverageClusterSize: r.BeforeClusterSize,
		},
		After: experiment.Summary{
			Unhappy:            r.AfterUnhappy,
			AverageHomogeneity: r.AfterHomogeneity,
			AverageClusterSize: r.AfterClusterSize,
		},
	}
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS experiments (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		threshold REAL NOT NULL,
		max_iterations INTEGER NOT NULL,
		sample_size INTEGER NOT NULL,
		initial_kind TEXT NOT NULL,
		line_size INTEGER NOT NULL,
		base_seed INTEGER NOT NULL,
		plan_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		experiment_id TEXT NOT NULL REFERENCES experiments(id),
		neighborhood INTEGER NOT NULL,
		samples INTEGER NOT NULL,
		converged INTEGER NOT NULL,
		mean_sweeps REAL NOT NULL,
		mean_moves REAL NOT NULL,
		before_unhappy REAL NOT NULL,
		before_homogeneity REAL NOT NULL,
		before_cluster_size REAL NOT NULL,
		after_unhappy REAL NOT NULL,
		after_homogeneity REAL NOT NULL,
		after_cluster_size REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_points_experiment ON points(experiment_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveExperiment stores a plan and its points under a new ID, which it
// returns. The plan should be resolved so that its base seed is recorded.
func (db *DB) SaveExperiment(pl experiment.Plan, points []experiment.Point) (string, error) {
	planJSON, err := json.Marshal(pl)
	if err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}
	id := uuid.NewString()

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO experiments
		(id, created_at, threshold, max_iterations, sample_size, initial_kind, line_size, base_seed, plan_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(timeLayout), pl.Threshold, pl.MaxIterations, pl.SampleSize,
		string(pl.Initial.Kind), pl.Initial.Size, pl.Initial.Seed, string(planJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert experiment: %w", err)
	}

	stmt, err := tx.Preparex(`INSERT INTO points
		(experiment_id, neighborhood, samples, converged, mean_sweeps, mean_moves,
		 before_unhappy, before_homogeneity, before_cluster_size,
		 after_unhappy, after_homogeneity, after_cluster_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.Exec(
			id, p.Neighborhood, p.Samples, p.Converged, p.MeanSweeps, p.MeanMoves,
			p.Before.Unhappy, p.Before.AverageHomogeneity, p.Before.AverageClusterSize,
			p.After.Unhappy, p.After.AverageHomogeneity, p.After.AverageClusterSize,
		)
		if err != nil {
			return "", fmt.Errorf("insert point %d: %w", p.Neighborhood, err)
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", "last_experiment", id); err != nil {
		return "", fmt.Errorf("save meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	slog.Info("experiment saved", "id", id, "points", len(points))
	return id, nil
}

// Experiment returns the stored record for id.
func (db *DB) Experiment(id string) (ExperimentRecord, error) {
	var rec ExperimentRecord
	err := db.conn.Get(&rec, "SELECT * FROM experiments WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Experiments returns the most recent experiments, newest first.
func (db *DB) Experiments(limit int) ([]ExperimentRecord, error) {
	var recs []ExperimentRecord
	err := db.conn.Select(&recs,
		"SELECT * FROM experiments ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	return recs, err
}

// Points returns the points of an experiment ordered as they were saved.
func (db *DB) Points(id string) ([]experiment.Point, error) {
	if _, err := db.Experiment(id); err != nil {
		return nil, err
	}

	var rows []pointRow
	err := db.conn.Select(&rows, `SELECT neighborhood, samples, converged, mean_sweeps, mean_moves,
		before_unhappy, before_homogeneity, before_cluster_size,
		after_unhappy, after_homogeneity, after_cluster_size
		FROM points WHERE experiment_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}

	points := make([]experiment.Point, len(rows))
	for i, r := range rows {
		points[i] = r.point()
	}
	return points, nil
}

// LastExperimentID returns the ID of the most recently saved experiment.
func (db *DB) LastExperimentID() (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", "last_experiment")
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}
