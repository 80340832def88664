package repository

import (
	"time"

	orgdomain "taskpilot-backend/internal/org/domain"
	"taskpilot-backend/internal/task/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormTaskRepository implements TaskRepository using GORM
type gormTaskRepository struct {
	db *gorm.DB
}

// NewGormTaskRepository creates a new GORM-based TaskRepository
func NewGormTaskRepository(db *gorm.DB) TaskRepository {
	return &gormTaskRepository{db: db}
}

func (r *gormTaskRepository) CreateAllWithQuota(tasks []*domain.Task, organizationID string) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		var org orgdomain.Organization
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", organizationID).First(&org).Error; err != nil {
			return err
		}

		// Monthly counter rolls over lazily on first write of a new month.
		now := time.Now()
		if now.After(org.QuotaResetAt) {
			org.TasksCreated = 0
			org.QuotaResetAt = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
		}

		if org.QuotaExhausted(len(tasks)) {
			return ErrQuotaExceeded
		}

		for _, task := range tasks {
			if task.ID == "" {
				task.ID = uuid.New().String()
			}
			task.OrganizationID = organizationID
			task.CreatedAt = now
			task.UpdatedAt = now
			if err := tx.Create(task).Error; err != nil {
				return err
			}
		}

		org.TasksCreated += len(tasks)
		org.UpdatedAt = now
		return tx.Model(&orgdomain.Organization{}).Where("id = ?", org.ID).
			Updates(map[string]interface{}{
				"tasks_created":  org.TasksCreated,
				"quota_reset_at": org.QuotaResetAt,
				"updated_at":     org.UpdatedAt,
			}).Error
	})
}

func (r *gormTaskRepository) FindByID(id string) (*domain.Task, error) {
	var task domain.Task
	err := r.db.Where("id = ?", id).First(&task).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) FindBySourceMessageID(messageID string) (*domain.Task, error) {
	if messageID == "" {
		return nil, nil
	}
	var task domain.Task
	err := r.db.Where("source_message_id = ?", messageID).
		Order("created_at ASC").First(&task).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) FindByThreadRefs(refs []string) (*domain.Task, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	var task domain.Task
	err := r.db.Where("source_message_id IN ?", refs).
		Order("created_at ASC").First(&task).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) FindRecentDuplicate(organizationID, title, senderEmail string, since time.Time) (*domain.Task, error) {
	var task domain.Task
	err := r.db.Where("organization_id = ? AND title = ? AND sender_email = ? AND created_at >= ?",
		organizationID, title, senderEmail, since).
		Order("created_at DESC").First(&task).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *gormTaskRepository) FindByOrganization(organizationID string, status *domain.TaskStatus, limit, offset int) ([]*domain.Task, int64, error) {
	var tasks []*domain.Task
	var total int64

	query := r.db.Model(&domain.Task{}).Where("organization_id = ?", organizationID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Due-date ordering, nulls last, then newest first.
	err := query.Order("CASE WHEN due_date IS NULL THEN 1 ELSE 0 END, due_date ASC, created_at DESC").
		Limit(limit).Offset(offset).Find(&tasks).Error

	return tasks, total, err
}

func (r *gormTaskRepository) Update(task *domain.Task) error {
	task.UpdatedAt = time.Now()
	return r.db.Save(task).Error
}

func (r *gormTaskRepository) AppendActivity(activity *domain.TaskActivity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	activity.CreatedAt = time.Now()
	return r.db.Create(activity).Error
}

func (r *gormTaskRepository) ListActivity(taskID string) ([]*domain.TaskActivity, error) {
	var activities []*domain.TaskActivity
	err := r.db.Where("task_id = ?", taskID).
		Order("created_at ASC").Find(&activities).Error
	return activities, err
}

func (r *gormTaskRepository) FindPendingReminders(now time.Time) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.db.Where("reminder_at <= ? AND reminder_sent = ? AND status != ?",
		now, false, domain.TaskStatusDone).Find(&tasks).Error
	return tasks, err
}

func (r *gormTaskRepository) MarkReminderSent(id string) error {
	return r.db.Model(&domain.Task{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"reminder_sent": true,
			"updated_at":    time.Now(),
		}).Error
}
