package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"invoicesync/internal/database"
	"invoicesync/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Sync Queue"

type taskPage struct {
	Tasks []models.SyncTask `json:"tasks"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

func parseStatuses(raw string) ([]models.TaskStatus, error) {
	parts := splitCSV(raw)
	out := make([]models.TaskStatus, 0, len(parts))
	for _, p := range parts {
		status := models.TaskStatus(p)
		switch status {
		case models.TaskPending, models.TaskCompleted, models.TaskFailed:
			out = append(out, status)
		default:
			return nil, fmt.Errorf("unknown status %q", p)
		}
	}
	return out, nil
}

// handleListTasks lists pending and failed tasks, or the statuses given in ?status=.
func (s *HTTPServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(statuses) == 0 {
		statuses = []models.TaskStatus{models.TaskPending, models.TaskFailed}
	}

	limit, page := pagination(r)
	tasks, err := s.deps.DB.ListTasks(r.Context(), statuses, limit, (page-1)*limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list tasks")
		writeFailure(w, err, nil)
		return
	}
	counts, err := s.deps.DB.CountByStatus(r.Context())
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	total := 0
	for _, st := range statuses {
		total += counts[st]
	}
	if tasks == nil {
		tasks = []models.SyncTask{}
	}
	writeJSON(w, http.StatusOK, taskPage{Tasks: tasks, Total: total, Page: page, Limit: limit})
}

// handlePurgeTasks deletes finished tasks. Pending tasks are never purged.
func (s *HTTPServer) handlePurgeTasks(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(statuses) == 0 {
		statuses = []models.TaskStatus{models.TaskCompleted, models.TaskFailed}
	}
	for _, st := range statuses {
		if st == models.TaskPending {
			writeError(w, http.StatusBadRequest, "pending tasks cannot be purged")
			return
		}
	}
	deleted, err := s.deps.DB.Purge(r.Context(), statuses...)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	s.logger.Info().Int64("deleted", deleted).Msg("sync tasks purged")
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// handleProcessNext runs one queue cycle synchronously. An empty queue answers 204.
func (s *HTTPServer) handleProcessNext(w http.ResponseWriter, r *http.Request) {
	task, err := s.deps.Processor.ProcessNext(r.Context())
	if errors.Is(err, database.ErrNoTask) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeFailure(w, err, task)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleRetryTask moves a failed task back to pending and wakes the worker.
func (s *HTTPServer) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.DB.Requeue(r.Context(), id); err != nil {
		writeFailure(w, err, nil)
		return
	}
	task, err := s.deps.DB.GetTask(r.Context(), id)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	s.deps.Processor.Wake()
	writeJSON(w, http.StatusOK, task)
}

// handleDeadLetters lists tasks that used up their retry budget, newest first.
func (s *HTTPServer) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.deps.DeadLetters == nil {
		writeError(w, http.StatusServiceUnavailable, "dead letter queue requires redis")
		return
	}
	limit, _ := pagination(r)
	tasks, err := s.deps.DeadLetters.List(r.Context(), limit)
	if err != nil {
		writeFailure(w, err, nil)
		return
	}
	if tasks == nil {
		tasks = []models.SyncTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// handleExportTasks streams the queue as an xlsx workbook.
func (s *HTTPServer) handleExportTasks(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := s.buildExport(r.Context(), statuses)
	if err != nil {
		s.logger.Error().Err(err).Msg("export tasks")
		writeFailure(w, err, nil)
		return
	}
	defer f.Close()

	name := fmt.Sprintf("sync_tasks_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := f.WriteTo(w); err != nil {
		s.logger.Warn().Err(err).Msg("write export")
	}
}

func (s *HTTPServer) buildExport(ctx context.Context, statuses []models.TaskStatus) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"ID", "Bestellung", "Aktion", "Status", "Versuche", "Rechnung", "Fehler", "Erstellt", "Aktualisiert"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, h)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(exportSheet, "A1", lastHeader, headerStyle)

	failedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})

	row := 2
	const batch = 200
	for offset := 0; ; offset += batch {
		tasks, err := s.deps.DB.ListTasks(ctx, statuses, batch, offset)
		if err != nil {
			f.Close()
			return nil, err
		}
		for i := range tasks {
			writeTaskRow(f, row, &tasks[i])
			if tasks[i].Status == models.TaskFailed {
				first, _ := excelize.CoordinatesToCellName(1, row)
				last, _ := excelize.CoordinatesToCellName(len(headers), row)
				_ = f.SetCellStyle(exportSheet, first, last, failedStyle)
			}
			row++
		}
		if len(tasks) < batch {
			break
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "E", 12)
	_ = f.SetColWidth(exportSheet, "F", "F", 40)
	_ = f.SetColWidth(exportSheet, "G", "G", 60)
	_ = f.SetColWidth(exportSheet, "H", "I", 20)
	return f, nil
}

func writeTaskRow(f *excelize.File, row int, t *models.SyncTask) {
	values := []any{
		t.ID,
		t.OrderID,
		string(t.Action),
		string(t.Status),
		t.Attempts,
		deref(t.ExternalInvoiceID),
		deref(t.ErrorMessage),
		t.CreatedAt.Format("02.01.2006 15:04"),
		t.UpdatedAt.Format("02.01.2006 15:04"),
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(exportSheet, cell, v)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
