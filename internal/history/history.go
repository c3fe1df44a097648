// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package history keeps an optional journal of deployments in a SQL
// database. SQLite, PostgreSQL and MySQL are supported through bun.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"invent.kde.org/websites/apideploy/internal/logging"
	"invent.kde.org/websites/apideploy/internal/model"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

type runModel struct {
	bun.BaseModel `bun:"table:deploy_runs"`
	ID            string    `bun:"id,pk"`
	Target        string    `bun:"target,notnull"`
	Binary        string    `bun:"binary_name,notnull"`
	StartedAt     time.Time `bun:"started_at,notnull"`
	FinishedAt    time.Time `bun:"finished_at,nullzero"`
	Status        string    `bun:"status,notnull"`
	Docs          string    `bun:"docs"`
	Error         string    `bun:"error_text"`
}

type stepModel struct {
	bun.BaseModel `bun:"table:deploy_steps"`
	ID            int64     `bun:"id,pk,autoincrement"`
	RunID         string    `bun:"run_id,notnull"`
	Seq           int       `bun:"seq,notnull"`
	Name          string    `bun:"name,notnull"`
	Kind          string    `bun:"kind"`
	Status        string    `bun:"status,notnull"`
	StartedAt     time.Time `bun:"started_at,notnull"`
	FinishedAt    time.Time `bun:"finished_at,notnull"`
	Error         string    `bun:"error_text"`
}

// Store is a deployment journal. It satisfies pipeline.Recorder.
type Store struct {
	db *bun.DB
}

// Open connects to the journal database and creates its tables if needed.
// dbType is one of sqlite, postgres or mysql.
func Open(ctx context.Context, dbType, dsn string) (*Store, error) {
	driverName := dbType
	// The pgx stdlib registers driver name "pgx"; map "postgres" to that driver.
	if dbType == "postgres" {
		driverName = "pgx"
	}
	start := time.Now()
	sqlDB, err := sqlOpenFunc(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to an in-memory SQLite database sees its own empty database.
	if dbType == "sqlite" && strings.Contains(dsn, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
	}

	bunDB, err := createBunDB(sqlDB, dbType)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s := &Store{db: bunDB}
	if err := s.migrate(ctx); err != nil {
		_ = bunDB.Close()
		return nil, fmt.Errorf("failed to prepare journal tables: %w", err)
	}
	logging.Debugf("history: opened %s journal in %s", dbType, time.Since(start))
	return s, nil
}

func createBunDB(sqlDB *sql.DB, dbType string) (*bun.DB, error) {
	switch dbType {
	case "sqlite":
		return bun.NewDB(sqlDB, sqlitedialect.New()), nil
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New()), nil
	case "mysql":
		return bun.NewDB(sqlDB, mysqldialect.New()), nil
	default:
		return nil, fmt.Errorf("unsupported database type: '%s'", dbType)
	}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, m := range []any{(*runModel)(nil), (*stepModel)(nil)} {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun inserts a run in the running state.
func (s *Store) BeginRun(ctx context.Context, run *model.RunRecord) error {
	m := &runModel{
		ID:        run.ID,
		Target:    run.Target,
		Binary:    run.Binary,
		StartedAt: run.Started.UTC(),
		Status:    string(run.Status),
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// RecordStep appends a step to a run.
func (s *Store) RecordStep(ctx context.Context, runID string, result model.StepResult) error {
	seq, err := s.db.NewSelect().Model((*stepModel)(nil)).Where("run_id = ?", runID).Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count steps of run %s: %w", runID, err)
	}
	rec := model.RecordOf(result)
	m := &stepModel{
		RunID:      runID,
		Seq:        seq,
		Name:       rec.Name,
		Kind:       string(rec.Kind),
		Status:     string(rec.Status),
		StartedAt:  rec.Started.UTC(),
		FinishedAt: rec.Finished.UTC(),
		Error:      rec.Error,
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert step %s: %w", rec.Name, err)
	}
	return nil
}

// FinishRun stores the final state of a run.
func (s *Store) FinishRun(ctx context.Context, run *model.RunRecord) error {
	m := &runModel{
		ID:         run.ID,
		FinishedAt: run.Finished.UTC(),
		Status:     string(run.Status),
		Docs:       string(run.Docs),
		Error:      run.Error,
	}
	res, err := s.db.NewUpdate().Model(m).
		Column("finished_at", "status", "docs", "error_text").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// ListRuns returns the most recent runs first, with their steps. A limit
// of zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	var runs []runModel
	q := s.db.NewSelect().Model(&runs).Order("started_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	var steps []stepModel
	if err := s.db.NewSelect().Model(&steps).
		Where("run_id IN (?)", bun.In(ids)).
		Order("run_id", "seq").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	byRun := make(map[string][]model.StepRecord, len(runs))
	for _, st := range steps {
		byRun[st.RunID] = append(byRun[st.RunID], model.StepRecord{
			Name:     st.Name,
			Kind:     model.StepKind(st.Kind),
			Status:   model.StepStatus(st.Status),
			Started:  st.StartedAt,
			Finished: st.FinishedAt,
			Error:    st.Error,
		})
	}

	out := make([]model.RunRecord, 0, len(runs))
	for _, r := range runs {
		out = append(out, model.RunRecord{
			ID:       r.ID,
			Target:   r.Target,
			Binary:   r.Binary,
			Started:  r.StartedAt,
			Finished: r.FinishedAt,
			Status:   model.RunStatus(r.Status),
			Docs:     model.DocsStatus(r.Docs),
			Error:    r.Error,
			Steps:    byRun[r.ID],
		})
	}
	return out, nil
}

// Export is the document written by Store.Export.
type Export struct {
	ExportedAt time.Time         `json:"exported_at"`
	Runs       []model.RunRecord `json:"runs"`
}

// Export writes every run as zstd-compressed JSON and returns the number
// of runs written.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return 0, err
	}
	if err := WriteExport(&Export{ExportedAt: time.Now().UTC(), Runs: runs}, w); err != nil {
		return 0, err
	}
	return len(runs), nil
}

// WriteExport encodes data as zstd-compressed JSON.
func WriteExport(data *Export, w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode export: %w", err)
	}
	return zw.Close()
}

// ReadExport decodes a document written by WriteExport.
func ReadExport(r io.Reader) (*Export, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	var data Export
	if err := json.NewDecoder(zr).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return &data, nil
}
