package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"invoicesync/internal/models"
)

// APILogEntry is one traced call against the accounting API.
type APILogEntry struct {
	ID           int64     `json:"id"`
	Method       string    `json:"method"`
	Endpoint     string    `json:"endpoint"`
	StatusCode   int       `json:"status_code"`
	RequestBody  string    `json:"request_body,omitempty"`
	ResponseBody string    `json:"response_body,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrorLogEntry is one recorded failure.
type ErrorLogEntry struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AddAPILog stores a call trace and trims the log to the newest entries.
func (db *DB) AddAPILog(ctx context.Context, entry APILogEntry) error {
	if len(entry.ResponseBody) > models.APILogResponseLimit {
		entry.ResponseBody = entry.ResponseBody[:models.APILogResponseLimit]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = db.now()
	}

	_, err := db.db.ExecContext(ctx, `
        INSERT INTO api_logs (method, endpoint, status_code, request_body, response_body, duration_ms, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Method, entry.Endpoint, entry.StatusCode, entry.RequestBody, entry.ResponseBody,
		entry.DurationMS, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert api log: %w", err)
	}
	return db.trim(ctx, "api_logs", models.APILogLimit)
}

// AddErrorLog stores a failure and trims the log to the newest entries.
func (db *DB) AddErrorLog(ctx context.Context, entry ErrorLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = db.now()
	}
	_, err := db.db.ExecContext(ctx, `
        INSERT INTO error_logs (title, message, context, created_at) VALUES (?, ?, ?, ?)`,
		entry.Title, entry.Message, entry.Context, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert error log: %w", err)
	}
	return db.trim(ctx, "error_logs", models.ErrorLogLimit)
}

func (db *DB) trim(ctx context.Context, table string, keep int) error {
	_, err := db.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id NOT IN (SELECT id FROM %s ORDER BY id DESC LIMIT ?)`, table, table), keep)
	if err != nil {
		return fmt.Errorf("failed to trim %s: %w", table, err)
	}
	return nil
}

// RecentAPILogs returns the newest call traces first.
func (db *DB) RecentAPILogs(ctx context.Context, limit int) ([]APILogEntry, error) {
	if limit <= 0 || limit > models.APILogLimit {
		limit = models.APILogLimit
	}
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, method, endpoint, status_code, request_body, response_body, duration_ms, created_at
        FROM api_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query api logs: %w", err)
	}
	defer rows.Close()

	var entries []APILogEntry
	for rows.Next() {
		var (
			e        APILogEntry
			req, res sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Method, &e.Endpoint, &e.StatusCode, &req, &res, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api log: %w", err)
		}
		e.RequestBody, e.ResponseBody = req.String, res.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentErrors returns the newest error entries first.
func (db *DB) RecentErrors(ctx context.Context, limit int) ([]ErrorLogEntry, error) {
	if limit <= 0 || limit > models.ErrorLogLimit {
		limit = models.ErrorLogLimit
	}
	rows, err := db.db.QueryContext(ctx, `
        SELECT id, title, message, context, created_at
        FROM error_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query error logs: %w", err)
	}
	defer rows.Close()

	var entries []ErrorLogEntry
	for rows.Next() {
		var (
			e    ErrorLogEntry
			note sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Message, &note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan error log: %w", err)
		}
		e.Context = note.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearLogs empties both operator logs.
func (db *DB) ClearLogs(ctx context.Context) error {
	for _, table := range []string{"api_logs", "error_logs"} {
		if _, err := db.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
