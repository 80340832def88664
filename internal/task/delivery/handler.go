package delivery

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"taskpilot-backend/internal/task/domain"
	"taskpilot-backend/internal/task/repository"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	taskRepo repository.TaskRepository
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskRepo repository.TaskRepository) *TaskHandler {
	return &TaskHandler{taskRepo: taskRepo}
}

// UpdateTaskRequest represents the request body for updating a task
type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"due_date"`   // RFC 3339 or YYYY-MM-DD, empty string clears
	ReminderAt  *string `json:"reminder_at"` // same formats
}

// GetTasks returns tasks for an organization
// GET /api/organizations/:orgId/tasks?status=pending&limit=50&offset=0
func (h *TaskHandler) GetTasks(c *gin.Context) {
	orgID := c.Param("orgId")

	status := c.Query("status")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	var statusPtr *domain.TaskStatus
	if status != "" {
		s := domain.TaskStatus(status)
		switch s {
		case domain.TaskStatusPending, domain.TaskStatusInProgress, domain.TaskStatusDone:
			statusPtr = &s
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
	}

	tasks, total, err := h.taskRepo.FindByOrganization(orgID, statusPtr, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"total": total,
	})
}

// GetTaskByID returns a specific task
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	task, err := h.taskRepo.FindByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// GetTaskActivity returns the activity history of a task
// GET /api/tasks/:id/activity
func (h *TaskHandler) GetTaskActivity(c *gin.Context) {
	task, err := h.taskRepo.FindByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	activity, err := h.taskRepo.ListActivity(task.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"activity": activity})
}

// UpdateTask applies a partial update to a task
// PATCH /api/tasks/:id
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	task, err := h.taskRepo.FindByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Title != nil && *req.Title != "" {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		s := domain.TaskStatus(*req.Status)
		switch s {
		case domain.TaskStatusPending, domain.TaskStatusInProgress, domain.TaskStatusDone:
			task.Status = s
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
	}
	if req.Priority != nil {
		p := domain.Priority(*req.Priority)
		switch p {
		case domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
			task.Priority = p
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
			return
		}
	}
	if req.DueDate != nil {
		due, ok := parseDateField(*req.DueDate)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_date"})
			return
		}
		task.DueDate = due
	}
	if req.ReminderAt != nil {
		at, ok := parseDateField(*req.ReminderAt)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reminder_at"})
			return
		}
		task.ReminderAt = at
		task.ReminderSent = false
	}

	if err := h.taskRepo.Update(task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, task)
}

// parseDateField accepts RFC 3339 or date-only values; empty clears the
// field.
func parseDateField(raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	return nil, false
}
