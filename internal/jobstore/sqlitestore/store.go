// Package sqlitestore persists job records in SQLite for local operation.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"medley/internal/jobs"
	"medley/internal/jobstore"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) Create(ctx context.Context, record *jobs.Record) error {
	if record == nil || strings.TrimSpace(record.JobID) == "" {
		return jobs.Wrap(jobs.ErrValidation, "", "create job", "missing job id", nil)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = jobs.StatusInitializing
	}

	errorJSON, err := marshalErrorInfo(record.ErrorInfo)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            job_id, owner_id, status, filename, raw_location, working_location,
            external_operation_id, continuation_token, content_location,
            analysis_output_location, error_info_json, created_at, updated_at,
            completed_at, failed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.JobID,
		nullableString(record.OwnerID),
		string(record.Status),
		nullableString(record.Filename),
		nullableString(record.RawLocation),
		nullableString(record.WorkingLocation),
		nullableString(record.ExternalOperationID),
		nullableString(record.ContinuationToken),
		nullableString(record.ContentLocation),
		nullableString(record.AnalysisOutputLocation),
		errorJSON,
		record.CreatedAt.Format(time.RFC3339Nano),
		record.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(record.CompletedAt),
		nullableTime(record.FailedAt),
	)
	if err != nil {
		return jobs.Wrap(jobs.ErrStore, "", "create job", record.JobID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*jobs.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	record, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.Wrap(jobs.ErrNotFound, "", "get job", jobID, nil)
	}
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "get job", jobID, err)
	}
	return record, nil
}

func (s *Store) FindByOperationID(ctx context.Context, operationID string) (*jobs.Record, error) {
	if strings.TrimSpace(operationID) == "" {
		return nil, jobs.Wrap(jobs.ErrValidation, "", "find by operation", "empty operation id", nil)
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE external_operation_id = ? ORDER BY created_at LIMIT 1`,
		operationID,
	)
	record, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.Wrap(jobs.ErrNotFound, "", "find by operation", operationID, nil)
	}
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "find by operation", operationID, err)
	}
	return record, nil
}

// Apply patches a record inside a transaction so the transition check and the
// write observe the same current state.
func (s *Store) Apply(ctx context.Context, jobID string, patch jobs.Update) (*jobs.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "apply update", jobID, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	current, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.Wrap(jobs.ErrNotFound, "", "apply update", jobID, nil)
	}
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "apply update", jobID, err)
	}

	if err := jobstore.CheckTransition(current.Status, patch); err != nil {
		return nil, err
	}

	setClauses := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339Nano)}
	appendSet := func(column string, value any) {
		setClauses = append(setClauses, column+" = ?")
		args = append(args, value)
	}

	if patch.Status != nil {
		appendSet("status", string(*patch.Status))
	}
	if patch.Filename != nil {
		appendSet("filename", nullableString(*patch.Filename))
	}
	if patch.RawLocation != nil {
		appendSet("raw_location", nullableString(*patch.RawLocation))
	}
	if patch.WorkingLocation != nil {
		appendSet("working_location", nullableString(*patch.WorkingLocation))
	}
	if patch.ExternalOperationID != nil {
		appendSet("external_operation_id", nullableString(*patch.ExternalOperationID))
	}
	if patch.ContinuationToken != nil {
		appendSet("continuation_token", nullableString(*patch.ContinuationToken))
	}
	if patch.ContentLocation != nil {
		appendSet("content_location", nullableString(*patch.ContentLocation))
	}
	if patch.AnalysisOutputLocation != nil {
		appendSet("analysis_output_location", nullableString(*patch.AnalysisOutputLocation))
	}
	if patch.ErrorInfo != nil {
		errorJSON, marshalErr := marshalErrorInfo(patch.ErrorInfo)
		if marshalErr != nil {
			return nil, marshalErr
		}
		appendSet("error_info_json", errorJSON)
	}
	if patch.CompletedAt != nil {
		appendSet("completed_at", nullableTime(patch.CompletedAt))
	}
	if patch.FailedAt != nil {
		appendSet("failed_at", nullableTime(patch.FailedAt))
	}

	query := `UPDATE jobs SET ` + strings.Join(setClauses, ", ") + ` WHERE job_id = ?`
	args = append(args, jobID)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "apply update", jobID, err)
	}

	row = tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	updated, err := scanJob(row)
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "apply update", jobID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "apply update", jobID, err)
	}
	return updated, nil
}

func (s *Store) List(ctx context.Context, ownerID string) ([]*jobs.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if ownerID == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	}
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "list jobs", ownerID, err)
	}
	defer rows.Close()

	var records []*jobs.Record
	for rows.Next() {
		record, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, jobs.Wrap(jobs.ErrStore, "", "list jobs", ownerID, scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "list jobs", ownerID, err)
	}
	return records, nil
}

// ListByStatus returns jobs in any of the given statuses, oldest first, so
// the workflow driver can pick up pending work in arrival order.
func (s *Store) ListByStatus(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Record, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (`+placeholders+`) ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "list by status", "", err)
	}
	defer rows.Close()

	var records []*jobs.Record
	for rows.Next() {
		record, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, jobs.Wrap(jobs.ErrStore, "", "list by status", "", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "list by status", "", err)
	}
	return records, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[jobs.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "job stats", "", err)
	}
	defer rows.Close()

	stats := make(map[jobs.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, jobs.Wrap(jobs.ErrStore, "", "job stats", "", err)
		}
		stats[jobs.Status(status)] = count
	}
	return stats, rows.Err()
}

// Ping verifies the database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return jobs.Wrap(jobs.ErrStore, "", "ping", "database connection unavailable", nil)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return jobs.Wrap(jobs.ErrStore, "", "ping", s.path, err)
	}
	return nil
}

const jobColumns = "job_id, owner_id, status, filename, raw_location, working_location, external_operation_id, continuation_token, content_location, analysis_output_location, error_info_json, created_at, updated_at, completed_at, failed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*jobs.Record, error) {
	var (
		jobID        string
		ownerID      sql.NullString
		statusStr    string
		filename     sql.NullString
		rawLoc       sql.NullString
		workingLoc   sql.NullString
		operationID  sql.NullString
		token        sql.NullString
		contentLoc   sql.NullString
		analysisLoc  sql.NullString
		errorJSON    sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
		failedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&jobID,
		&ownerID,
		&statusStr,
		&filename,
		&rawLoc,
		&workingLoc,
		&operationID,
		&token,
		&contentLoc,
		&analysisLoc,
		&errorJSON,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
		&failedRaw,
	); err != nil {
		return nil, err
	}

	record := &jobs.Record{
		JobID:                  jobID,
		OwnerID:                ownerID.String,
		Status:                 jobs.Status(statusStr),
		Filename:               filename.String,
		RawLocation:            rawLoc.String,
		WorkingLocation:        workingLoc.String,
		ExternalOperationID:    operationID.String,
		ContinuationToken:      token.String,
		ContentLocation:        contentLoc.String,
		AnalysisOutputLocation: analysisLoc.String,
	}

	if errorJSON.Valid && errorJSON.String != "" {
		var info jobs.ErrorInfo
		if err := json.Unmarshal([]byte(errorJSON.String), &info); err == nil {
			record.ErrorInfo = &info
		}
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			record.CompletedAt = &completed
		}
	}
	if failedRaw.Valid {
		if failed, err := parseTimeString(failedRaw.String); err == nil {
			record.FailedAt = &failed
		}
	}
	return record, nil
}

func marshalErrorInfo(info *jobs.ErrorInfo) (any, error) {
	if info == nil {
		return nil, nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, jobs.Wrap(jobs.ErrStore, "", "marshal error info", "", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
