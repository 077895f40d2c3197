package jobdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

const (
	outboxPending    = "pending"
	outboxPublishing = "publishing"
	outboxPublished  = "published"
)

var ErrIdempotencyKeyConflict = errors.New("idempotency key reused with different payload")

type Job struct {
	ID        string
	Status    string
	Payload   json.RawMessage
	Result    json.RawMessage
	Error     sql.NullString
	CreatedAt string
	UpdatedAt string
}

// OutboxMessage is a pending notification that a job was created. The
// payload is what gets published to the queue.
type OutboxMessage struct {
	ID        string
	JobID     string
	Payload   json.RawMessage
	Attempts  int
	CreatedAt string
}

// Notification is the queue message body for a job.
type Notification struct {
	JobID string `json:"jobId"`
}

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id CHAR(36) PRIMARY KEY,
		status VARCHAR(32) NOT NULL,
		payload JSON NOT NULL,
		result JSON,
		error TEXT,
		created_at VARCHAR(32) NOT NULL,
		updated_at VARCHAR(32) NOT NULL,
		INDEX idx_jobs_status_created (status, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id CHAR(36) PRIMARY KEY,
		job_id CHAR(36) NOT NULL,
		payload JSON NOT NULL,
		status VARCHAR(32) NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at VARCHAR(32) NOT NULL,
		updated_at VARCHAR(32) NOT NULL,
		published_at VARCHAR(32),
		INDEX idx_outbox_status_created (status, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		idem_key VARCHAR(255) PRIMARY KEY,
		request_hash CHAR(64) NOT NULL,
		job_id CHAR(36) NOT NULL,
		created_at VARCHAR(32) NOT NULL
	)`,
}

// Init creates the tables when migrations have not been run, and checks that
// jobs.id can hold a UUID.
func Init(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	var columnType string
	if err := db.QueryRow(`
		SELECT COLUMN_TYPE
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = 'jobs' AND column_name = 'id'`,
	).Scan(&columnType); err != nil {
		return err
	}
	columnType = strings.ToLower(columnType)
	if !strings.HasPrefix(columnType, "char(36)") && !strings.HasPrefix(columnType, "varchar(36)") {
		return fmt.Errorf("jobs.id must be CHAR(36) or VARCHAR(36) for UUIDs; migrate existing table")
	}
	return nil
}

func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertJob(ex execer, payload json.RawMessage, now string) (Job, OutboxMessage, error) {
	job := Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := ex.Exec(
		`INSERT INTO jobs (id, status, payload, result, error, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, NULL, ?, ?)`,
		job.ID, job.Status, string(payload), now, now,
	); err != nil {
		return Job{}, OutboxMessage{}, err
	}

	note, err := json.Marshal(Notification{JobID: job.ID})
	if err != nil {
		return Job{}, OutboxMessage{}, err
	}
	msg := OutboxMessage{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Payload:   note,
		CreatedAt: now,
	}
	if _, err := ex.Exec(
		`INSERT INTO outbox (id, job_id, payload, status, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		msg.ID, msg.JobID, string(note), outboxPending, now, now,
	); err != nil {
		return Job{}, OutboxMessage{}, err
	}
	return job, msg, nil
}

// InsertJobWithOutbox stores a pending job and its outbox message in one
// transaction.
func InsertJobWithOutbox(db *sql.DB, payload json.RawMessage) (Job, OutboxMessage, error) {
	tx, err := db.Begin()
	if err != nil {
		return Job{}, OutboxMessage{}, err
	}
	job, msg, err := insertJob(tx, payload, NowISO())
	if err != nil {
		_ = tx.Rollback()
		return Job{}, OutboxMessage{}, err
	}
	if err := tx.Commit(); err != nil {
		return Job{}, OutboxMessage{}, err
	}
	return job, msg, nil
}

// InsertJobWithOutboxAndIdempotency behaves like InsertJobWithOutbox but
// returns the existing job (reused=true) when key was already used with the
// same request hash. A different hash yields ErrIdempotencyKeyConflict.
func InsertJobWithOutboxAndIdempotency(db *sql.DB, payload json.RawMessage, key, hash string) (Job, OutboxMessage, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		job, msg, reused, err := insertIdempotent(db, payload, key, hash)
		if isDuplicateKeyError(err) {
			// A concurrent request claimed the key first; look it up again.
			continue
		}
		return job, msg, reused, err
	}
	return Job{}, OutboxMessage{}, false, fmt.Errorf("idempotency key %q: concurrent insert", key)
}

func insertIdempotent(db *sql.DB, payload json.RawMessage, key, hash string) (Job, OutboxMessage, bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return Job{}, OutboxMessage{}, false, err
	}

	var storedHash, jobID string
	err = tx.QueryRow(
		`SELECT request_hash, job_id FROM idempotency_keys WHERE idem_key = ? FOR UPDATE`, key,
	).Scan(&storedHash, &jobID)
	switch {
	case err == nil:
		_ = tx.Rollback()
		if storedHash != hash {
			return Job{}, OutboxMessage{}, false, ErrIdempotencyKeyConflict
		}
		job, ok, err := GetJob(db, jobID)
		if err != nil {
			return Job{}, OutboxMessage{}, false, err
		}
		if !ok {
			return Job{}, OutboxMessage{}, false, fmt.Errorf("idempotency key %q points at missing job %s", key, jobID)
		}
		return job, OutboxMessage{}, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		_ = tx.Rollback()
		return Job{}, OutboxMessage{}, false, err
	}

	now := NowISO()
	job, msg, err := insertJob(tx, payload, now)
	if err != nil {
		_ = tx.Rollback()
		return Job{}, OutboxMessage{}, false, err
	}
	if _, err := tx.Exec(
		`INSERT INTO idempotency_keys (idem_key, request_hash, job_id, created_at) VALUES (?, ?, ?, ?)`,
		key, hash, job.ID, now,
	); err != nil {
		_ = tx.Rollback()
		return Job{}, OutboxMessage{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Job{}, OutboxMessage{}, false, err
	}
	return job, msg, false, nil
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func GetJob(db *sql.DB, jobID string) (Job, bool, error) {
	var payload string
	var result sql.NullString
	var errText sql.NullString
	var job Job

	row := db.QueryRow(
		`SELECT id, status, payload, result, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, jobID,
	)
	if err := row.Scan(&job.ID, &job.Status, &payload, &result, &errText, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, false, nil
		}
		return Job{}, false, err
	}

	job.Payload = json.RawMessage(payload)
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	job.Error = errText

	return job, true, nil
}

// ClaimJob atomically moves the oldest pending job to in_progress.
func ClaimJob(ctx context.Context, db *sql.DB) (Job, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, false, err
	}

	var job Job
	var payload string
	row := tx.QueryRowContext(
		ctx,
		`SELECT id, payload, created_at FROM jobs
		 WHERE status = ?
		 ORDER BY created_at
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		StatusPending,
	)
	if err := row.Scan(&job.ID, &payload, &job.CreatedAt); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, false, nil
		}
		return Job{}, false, err
	}

	job.Payload = json.RawMessage(payload)
	job.Status = StatusInProgress
	job.UpdatedAt = NowISO()
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		job.Status, job.UpdatedAt, job.ID,
	); err != nil {
		_ = tx.Rollback()
		return Job{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return Job{}, false, err
	}

	return job, true, nil
}

func CompleteJob(db *sql.DB, jobID string, result json.RawMessage) error {
	_, err := db.Exec(
		`UPDATE jobs SET status = ?, result = ?, error = NULL, updated_at = ? WHERE id = ?`,
		StatusDone, string(result), NowISO(), jobID,
	)
	return err
}

func FailJob(db *sql.DB, jobID string, errMsg string) error {
	_, err := db.Exec(
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, errMsg, NowISO(), jobID,
	)
	return err
}

// ClaimOutboxBatch marks up to limit pending messages as publishing and
// returns them. Messages stuck in publishing for longer than a minute are
// claimed again.
func ClaimOutboxBatch(ctx context.Context, db *sql.DB, limit int) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	stale := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	rows, err := tx.QueryContext(
		ctx,
		`SELECT id, job_id, payload, attempts, created_at FROM outbox
		 WHERE status = ? OR (status = ? AND updated_at < ?)
		 ORDER BY created_at
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		outboxPending, outboxPublishing, stale, limit,
	)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	var messages []OutboxMessage
	for rows.Next() {
		var msg OutboxMessage
		var payload string
		if err := rows.Scan(&msg.ID, &msg.JobID, &payload, &msg.Attempts, &msg.CreatedAt); err != nil {
			_ = rows.Close()
			_ = tx.Rollback()
			return nil, err
		}
		msg.Payload = json.RawMessage(payload)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	_ = rows.Close()

	now := NowISO()
	for i := range messages {
		messages[i].Attempts++
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE outbox SET status = ?, attempts = ?, updated_at = ? WHERE id = ?`,
			outboxPublishing, messages[i].Attempts, now, messages[i].ID,
		); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return messages, nil
}

func MarkOutboxPublished(db *sql.DB, outboxID string) error {
	now := NowISO()
	_, err := db.Exec(
		`UPDATE outbox SET status = ?, last_error = NULL, updated_at = ?, published_at = ? WHERE id = ?`,
		outboxPublished, now, now, outboxID,
	)
	return err
}

// RecordOutboxError stores the failure and returns the message to pending so
// the publisher retries it.
func RecordOutboxError(db *sql.DB, outboxID string, errMsg string) error {
	_, err := db.Exec(
		`UPDATE outbox SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		outboxPending, errMsg, NowISO(), outboxID,
	)
	return err
}

// Outbox adapts the package functions to the queue publisher.
type Outbox struct {
	DB *sql.DB
}

func (o Outbox) Claim(ctx context.Context, limit int) ([]OutboxMessage, error) {
	return ClaimOutboxBatch(ctx, o.DB, limit)
}

func (o Outbox) MarkPublished(id string) error {
	return MarkOutboxPublished(o.DB, id)
}

func (o Outbox) RecordError(id string, errMsg string) error {
	return RecordOutboxError(o.DB, id, errMsg)
}
