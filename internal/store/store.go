// Package store persists estimation runs in SQLite: the fitted
// parameters, the input series and the smoothed regime probabilities,
// keyed by run ID so reports can be rebuilt later.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound reports a lookup for a run that is not in the store.
var ErrNotFound = errors.New("store: run not found")

// Run is one persisted estimation run.
type Run struct {
	RunID             string          `json:"run_id"`
	CreatedAt         int64           `json:"created_at"` // unix nanoseconds
	Source            string          `json:"source"`
	Regimes           int             `json:"regimes"`
	Order             int             `json:"order"`
	Trend             string          `json:"trend"`
	SwitchingVariance bool            `json:"switching_variance"`
	EMIterations      int             `json:"em_iterations"`
	Converged         bool            `json:"converged"`
	Refined           bool            `json:"refined"`
	LogLikelihood     float64         `json:"log_likelihood"`
	ConfigJSON        json.RawMessage `json:"config_json,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	Params            []Param         `json:"params,omitempty"`
}

// Param is one named entry of a run's parameter vector.
type Param struct {
	Position int     `json:"position"`
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
}

// Store provides persistence for estimation runs.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the run store at path and applies any
// pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db}, nil
}

// SaveRun persists a run and its parameter vector in one transaction.
// If RunID is empty, a UUID is generated; if CreatedAt is zero, the
// current time is used. Both are written back to run.
func (s *Store) SaveRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var configStr interface{}
	if len(run.ConfigJSON) > 0 {
		configStr = string(run.ConfigJSON)
	}

	return retryOnBusy(func() error {
		tx, err := s.Begin()
		if err != nil {
			return fmt.Errorf("begin save run: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO msar_runs (
				run_id, created_at, source, regimes, ar_order, trend,
				switching_variance, em_iterations, converged, refined,
				log_likelihood, config_json, notes
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.CreatedAt, run.Source, run.Regimes, run.Order, run.Trend,
			run.SwitchingVariance, run.EMIterations, run.Converged, run.Refined,
			run.LogLikelihood, configStr, run.Notes,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO msar_run_params (run_id, position, name, value)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare param insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range run.Params {
			if _, err := stmt.Exec(run.RunID, p.Position, p.Name, p.Value); err != nil {
				return fmt.Errorf("insert param %d: %w", p.Position, err)
			}
		}

		return tx.Commit()
	})
}

// GetRun returns a run with its parameter vector.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.QueryRow(`
		SELECT run_id, created_at, source, regimes, ar_order, trend,
		       switching_variance, em_iterations, converged, refined,
		       log_likelihood, config_json, notes
		FROM msar_runs
		WHERE run_id = ?`, runID)

	var r Run
	var configStr sql.NullString
	err := row.Scan(
		&r.RunID, &r.CreatedAt, &r.Source, &r.Regimes, &r.Order, &r.Trend,
		&r.SwitchingVariance, &r.EMIterations, &r.Converged, &r.Refined,
		&r.LogLikelihood, &configStr, &r.Notes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if configStr.Valid {
		r.ConfigJSON = json.RawMessage(configStr.String)
	}

	rows, err := s.Query(`
		SELECT position, name, value
		FROM msar_run_params
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query params: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Param
		if err := rows.Scan(&p.Position, &p.Name, &p.Value); err != nil {
			return nil, fmt.Errorf("scan param row: %w", err)
		}
		r.Params = append(r.Params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns run summaries (without parameter vectors) ordered by
// creation time descending. A non-positive limit selects a default of
// 50.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Query(`
		SELECT run_id, created_at, source, regimes, ar_order, trend,
		       switching_variance, em_iterations, converged, refined,
		       log_likelihood, notes
		FROM msar_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		err := rows.Scan(
			&r.RunID, &r.CreatedAt, &r.Source, &r.Regimes, &r.Order, &r.Trend,
			&r.SwitchingVariance, &r.EMIterations, &r.Converged, &r.Refined,
			&r.LogLikelihood, &r.Notes,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// LatestRunID returns the ID of the most recently created run.
func (s *Store) LatestRunID() (string, error) {
	var id string
	err := s.QueryRow(`
		SELECT run_id FROM msar_runs
		ORDER BY created_at DESC
		LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return id, nil
}

// SaveSeries persists the scored observations of a run.
func (s *Store) SaveSeries(runID string, series []float64) error {
	return retryOnBusy(func() error {
		tx, err := s.Begin()
		if err != nil {
			return fmt.Errorf("begin save series: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO msar_run_observations (run_id, t, value)
			VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare observation insert: %w", err)
		}
		defer stmt.Close()
		for t, v := range series {
			if _, err := stmt.Exec(runID, t, v); err != nil {
				return fmt.Errorf("insert observation %d: %w", t, err)
			}
		}

		return tx.Commit()
	})
}

// Series returns a run's observations in time order.
func (s *Store) Series(runID string) ([]float64, error) {
	rows, err := s.Query(`
		SELECT value FROM msar_run_observations
		WHERE run_id = ?
		ORDER BY t`, runID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var series []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		series = append(series, v)
	}
	return series, rows.Err()
}

// SaveProbabilities persists smoothed regime probabilities, one row per
// observation with one entry per regime.
func (s *Store) SaveProbabilities(runID string, probs [][]float64) error {
	return retryOnBusy(func() error {
		tx, err := s.Begin()
		if err != nil {
			return fmt.Errorf("begin save probabilities: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO msar_run_probabilities (run_id, t, regime, probability)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare probability insert: %w", err)
		}
		defer stmt.Close()
		for t, row := range probs {
			for i, p := range row {
				if _, err := stmt.Exec(runID, t, i, p); err != nil {
					return fmt.Errorf("insert probability (%d, %d): %w", t, i, err)
				}
			}
		}

		return tx.Commit()
	})
}

// Probabilities returns a run's smoothed regime probabilities, one row
// per observation in time order.
func (s *Store) Probabilities(runID string) ([][]float64, error) {
	rows, err := s.Query(`
		SELECT t, probability FROM msar_run_probabilities
		WHERE run_id = ?
		ORDER BY t, regime`, runID)
	if err != nil {
		return nil, fmt.Errorf("query probabilities: %w", err)
	}
	defer rows.Close()

	var probs [][]float64
	last := -1
	for rows.Next() {
		var t int
		var p float64
		if err := rows.Scan(&t, &p); err != nil {
			return nil, fmt.Errorf("scan probability row: %w", err)
		}
		if t != last {
			probs = append(probs, nil)
			last = t
		}
		probs[len(probs)-1] = append(probs[len(probs)-1], p)
	}
	return probs, rows.Err()
}

// DeleteRun removes a run and everything stored under it.
func (s *Store) DeleteRun(runID string) error {
	return retryOnBusy(func() error {
		tx, err := s.Begin()
		if err != nil {
			return fmt.Errorf("begin delete run: %w", err)
		}
		defer tx.Rollback()

		for _, table := range []string{"msar_run_probabilities", "msar_run_observations", "msar_run_params"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}
		result, err := tx.Exec(`DELETE FROM msar_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}

		return tx.Commit()
	})
}

// retryOnBusy retries fn while SQLite reports a locked database, with a
// short backoff between attempts.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 10 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
