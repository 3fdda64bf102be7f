package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"invoicesync/internal/models"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNoTask is returned when no task matches a queue lookup.
	ErrNoTask = errors.New("no sync task available")

	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("sync task not found")

	// ErrDuplicateTask means a pending task for the same order and action already exists.
	ErrDuplicateTask = errors.New("pending sync task already exists")
)

const taskColumns = `id, order_id, action, status, attempts, error_message, external_invoice_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.SyncTask, error) {
	var (
		task       models.SyncTask
		action     string
		status     string
		errMessage sql.NullString
		externalID sql.NullString
	)
	if err := row.Scan(
		&task.ID, &task.OrderID, &action, &status, &task.Attempts,
		&errMessage, &externalID, &task.CreatedAt, &task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.Action = models.SyncAction(action)
	task.Status = models.TaskStatus(status)
	if errMessage.Valid {
		task.ErrorMessage = &errMessage.String
	}
	if externalID.Valid {
		task.ExternalInvoiceID = &externalID.String
	}
	return &task, nil
}

// Enqueue inserts a pending task. It returns false when a pending task for the
// same order and action already exists.
func (db *DB) Enqueue(ctx context.Context, orderID int64, action models.SyncAction) (bool, error) {
	if orderID <= 0 {
		return false, fmt.Errorf("invalid order id %d", orderID)
	}
	if !action.Valid() {
		return false, fmt.Errorf("unknown sync action %q", action)
	}

	now := db.now()
	res, err := db.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO sync_tasks (order_id, action, status, attempts, created_at, updated_at)
        VALUES (?, ?, ?, 0, ?, ?)`,
		orderID, string(action), string(models.TaskPending), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue sync task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue sync task: %w", err)
	}
	return affected == 1, nil
}

// NextPending returns the oldest task that may still be attempted.
// Failed tasks stay eligible until their attempts reach maxAttempts.
func (db *DB) NextPending(ctx context.Context, maxAttempts int) (*models.SyncTask, error) {
	row := db.db.QueryRowContext(ctx, `
        SELECT `+taskColumns+`
        FROM sync_tasks
        WHERE status IN (?, ?) AND attempts < ?
        ORDER BY created_at ASC, id ASC
        LIMIT 1`,
		string(models.TaskPending), string(models.TaskFailed), maxAttempts,
	)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next pending task: %w", err)
	}
	return task, nil
}

// FindPending returns the pending task for an order and action.
func (db *DB) FindPending(ctx context.Context, orderID int64, action models.SyncAction) (*models.SyncTask, error) {
	row := db.db.QueryRowContext(ctx, `
        SELECT `+taskColumns+`
        FROM sync_tasks
        WHERE order_id = ? AND action = ? AND status = ?
        LIMIT 1`,
		orderID, string(action), string(models.TaskPending),
	)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending task: %w", err)
	}
	return task, nil
}

func (db *DB) GetTask(ctx context.Context, id int64) (*models.SyncTask, error) {
	row := db.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM sync_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync task: %w", err)
	}
	return task, nil
}

// ClaimAttempt counts one attempt for the task, but only if nobody else has
// since the caller read it. It reports whether the claim won.
func (db *DB) ClaimAttempt(ctx context.Context, id int64, seenAttempts int) (bool, error) {
	res, err := db.db.ExecContext(ctx, `
        UPDATE sync_tasks
        SET attempts = attempts + 1, updated_at = ?
        WHERE id = ? AND attempts = ? AND status IN (?, ?)`,
		db.now(), id, seenAttempts, string(models.TaskPending), string(models.TaskFailed),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim sync task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim sync task: %w", err)
	}
	return affected == 1, nil
}

func (db *DB) MarkCompleted(ctx context.Context, id int64, externalID string) error {
	return db.finishTask(ctx, id, `
        UPDATE sync_tasks
        SET status = ?, external_invoice_id = ?, error_message = NULL, updated_at = ?
        WHERE id = ?`,
		string(models.TaskCompleted), nullString(externalID), db.now(), id,
	)
}

func (db *DB) MarkFailed(ctx context.Context, id int64, message string) error {
	return db.finishTask(ctx, id, `
        UPDATE sync_tasks
        SET status = ?, error_message = ?, updated_at = ?
        WHERE id = ?`,
		string(models.TaskFailed), message, db.now(), id,
	)
}

func (db *DB) finishTask(ctx context.Context, id int64, query string, args ...any) error {
	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sync task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update sync task %d: %w", id, err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Requeue resets a failed task so it gets a fresh retry budget.
func (db *DB) Requeue(ctx context.Context, id int64) error {
	res, err := db.db.ExecContext(ctx, `
        UPDATE sync_tasks
        SET status = ?, attempts = 0, error_message = NULL, updated_at = ?
        WHERE id = ? AND status = ?`,
		string(models.TaskPending), db.now(), id, string(models.TaskFailed),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateTask
	}
	if err != nil {
		return fmt.Errorf("failed to requeue sync task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to requeue sync task: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ListActive returns pending and failed tasks, newest first.
func (db *DB) ListActive(ctx context.Context, limit, offset int) ([]models.SyncTask, error) {
	return db.ListTasks(ctx, []models.TaskStatus{models.TaskPending, models.TaskFailed}, limit, offset)
}

// ListTasks returns tasks with the given statuses, newest first. No statuses means all.
func (db *DB) ListTasks(ctx context.Context, statuses []models.TaskStatus, limit, offset int) ([]models.SyncTask, error) {
	if limit <= 0 {
		limit = models.DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + taskColumns + ` FROM sync_tasks`
	args := make([]any, 0, len(statuses)+2)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// Purge deletes tasks with the given statuses. Pending tasks cannot be purged.
func (db *DB) Purge(ctx context.Context, statuses ...models.TaskStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, errors.New("at least one status is required")
	}
	args := make([]any, 0, len(statuses))
	for _, st := range statuses {
		if st == models.TaskPending {
			return 0, errors.New("pending tasks cannot be purged")
		}
		if st != models.TaskCompleted && st != models.TaskFailed {
			return 0, fmt.Errorf("unknown task status %q", st)
		}
		args = append(args, string(st))
	}

	res, err := db.db.ExecContext(ctx,
		`DELETE FROM sync_tasks WHERE status IN (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sync tasks: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns the number of tasks per status.
func (db *DB) CountByStatus(ctx context.Context) (map[models.TaskStatus]int, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sync tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.TaskStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
