// Package store keeps bulk fit results in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"drop-analyzer/internal/drop"
	"drop-analyzer/internal/params"
	"drop-analyzer/internal/quantity"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Memory opens a private in-memory database.
const Memory = ":memory:"

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		created TIMESTAMP NOT NULL,
		input TEXT,
		edge_method TEXT,
		fit_method TEXT,
		first_frame INTEGER,
		last_frame INTEGER,
		stride INTEGER,
		samples INTEGER,
		stopped BOOLEAN,
		params TEXT
	);
	CREATE TABLE IF NOT EXISTS samples (
		run_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT,
		idx INTEGER NOT NULL,
		value DOUBLE,
		PRIMARY KEY (run_id, quantity, idx),
		FOREIGN KEY(run_id) REFERENCES runs(run_id)
	);
`

type DB struct {
	*sql.DB
}

// NewDB opens (and creates when needed) the database at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == Memory {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &DB{db}, nil
}

// Run describes a stored bulk run.
type Run struct {
	ID      uuid.UUID
	Created time.Time
	Input   string

	EdgeMethod params.EdgeMethod
	FitMethod  params.FitMethod
	Range      params.Run
	Samples    int
	Stopped    bool
}

type runParams struct {
	Edge params.Edge `json:"edge"`
	Fit  params.Fit  `json:"fit"`
	Run  params.Run  `json:"run"`
	Dt   float64     `json:"dt"`
}

// SaveRun stores the metadata of r and the given series in a single
// transaction. Missing values are stored as NULL.
func (db *DB) SaveRun(ctx context.Context, input string, r *drop.BulkFitResult, series []quantity.Series) error {
	if r == nil {
		return errors.New("no result to save")
	}
	blob, err := json.Marshal(runParams{Edge: r.Edge, Fit: r.Fit, Run: r.Run, Dt: r.Dt})
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(run_id, created, input, edge_method, fit_method, first_frame, last_frame, stride, samples, stopped, params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID.String(), r.Created.UTC(), input, r.Edge.Method.String(), r.Fit.Method.String(),
		r.Run.First, r.Run.Last, r.Run.Normalized().Stride, r.Len(), r.Stopped, string(blob))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO samples (run_id, quantity, unit, idx, value) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range series {
		for i, v := range s.Values {
			var value sql.NullFloat64
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				value = sql.NullFloat64{Float64: v, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, r.RunID.String(), s.Name, s.Unit, i, value); err != nil {
				return fmt.Errorf("failed to insert %s[%d]: %w", s.Name, i, err)
			}
		}
	}
	return tx.Commit()
}

// Runs lists stored runs, newest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `SELECT run_id, created, input, edge_method, fit_method,
		first_frame, last_frame, stride, samples, stopped FROM runs ORDER BY created DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run          Run
			id, edge, ft string
		)
		if err := rows.Scan(&id, &run.Created, &run.Input, &edge, &ft,
			&run.Range.First, &run.Range.Last, &run.Range.Stride, &run.Samples, &run.Stopped); err != nil {
			return nil, err
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run %q: %w", id, err)
		}
		if run.EdgeMethod, err = params.ParseEdgeMethod(edge); err != nil {
			return nil, err
		}
		if run.FitMethod, err = params.ParseFitMethod(ft); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Samples returns a stored series of a run. NULL values come back as NaN.
func (db *DB) Samples(ctx context.Context, id uuid.UUID, name string) (quantity.Series, error) {
	var exists int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE run_id = ?", id.String()).Scan(&exists)
	if err != nil {
		return quantity.Series{}, err
	}
	if exists == 0 {
		return quantity.Series{}, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}

	rows, err := db.QueryContext(ctx,
		"SELECT unit, idx, value FROM samples WHERE run_id = ? AND quantity = ? ORDER BY idx",
		id.String(), name)
	if err != nil {
		return quantity.Series{}, err
	}
	defer rows.Close()

	series := quantity.Series{Name: name}
	for rows.Next() {
		var (
			unit  sql.NullString
			idx   int
			value sql.NullFloat64
		)
		if err := rows.Scan(&unit, &idx, &value); err != nil {
			return quantity.Series{}, err
		}
		series.Unit = unit.String
		for len(series.Values) < idx {
			series.Values = append(series.Values, math.NaN())
		}
		if value.Valid {
			series.Values = append(series.Values, value.Float64)
		} else {
			series.Values = append(series.Values, math.NaN())
		}
	}
	if err := rows.Err(); err != nil {
		return quantity.Series{}, err
	}
	return series, nil
}

// Params returns the parameters a run was computed with.
func (db *DB) Params(ctx context.Context, id uuid.UUID) (params.Edge, params.Fit, error) {
	var blob string
	err := db.QueryRowContext(ctx, "SELECT params FROM runs WHERE run_id = ?", id.String()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return params.Edge{}, params.Fit{}, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return params.Edge{}, params.Fit{}, err
	}
	var p runParams
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return params.Edge{}, params.Fit{}, fmt.Errorf("run %s: corrupted parameters: %w", id, err)
	}
	return p.Edge, p.Fit, nil
}
