package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"taskpilot-backend/internal/task/domain"
	"taskpilot-backend/internal/task/repository"
)

// Notifier delivers a single reminder. Satisfied by any mailer-shaped
// sender; delivery transport is not the scheduler's business.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ReminderScheduler sweeps for tasks whose next reminder is due and
// dispatches them through the notifier.
type ReminderScheduler struct {
	taskRepo repository.TaskRepository
	notifier Notifier
	interval time.Duration
	stopChan chan struct{}
}

// NewReminderScheduler creates a new scheduler
func NewReminderScheduler(taskRepo repository.TaskRepository, notifier Notifier) *ReminderScheduler {
	return &ReminderScheduler{
		taskRepo: taskRepo,
		notifier: notifier,
		interval: 1 * time.Minute,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *ReminderScheduler) Start() {
	if s.notifier == nil {
		log.Println("[Scheduler] Notifier not available, reminder scheduler disabled")
		return
	}

	log.Println("[Scheduler] Starting reminder scheduler (interval: 1 minute)")

	go func() {
		// Run immediately on start
		s.sweep()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				log.Println("[Scheduler] Reminder scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *ReminderScheduler) Stop() {
	close(s.stopChan)
}

// sweep finds due reminders, dispatches them and advances each task to
// its next reminder tier.
func (s *ReminderScheduler) sweep() {
	now := time.Now()

	tasks, err := s.taskRepo.FindPendingReminders(now)
	if err != nil {
		log.Printf("[Scheduler] Error finding pending reminders: %v", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	log.Printf("[Scheduler] Found %d tasks with due reminders", len(tasks))

	for _, task := range tasks {
		s.dispatch(task, now)
	}
}

func (s *ReminderScheduler) dispatch(task *domain.Task, now time.Time) {
	to := task.AssignedToEmail
	if to == "" {
		to = task.SenderEmail
	}
	if to == "" {
		log.Printf("[Scheduler] Task %s has no reminder recipient, marking sent", task.ID)
		s.taskRepo.MarkReminderSent(task.ID)
		return
	}

	subject := "Reminder: " + task.Title
	body := task.Description
	if body == "" {
		body = "You have a task waiting."
	}
	if task.DueDate != nil {
		body = fmt.Sprintf("%s\n\nDue: %s", body, task.DueDate.Format("Mon, 02 Jan 2006 15:04"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.notifier.Send(ctx, to, subject, body); err != nil {
		log.Printf("[Scheduler] Error sending reminder for task %s: %v", task.ID, err)
	} else {
		log.Printf("[Scheduler] Sent reminder for task '%s' to %s", task.Title, to)
		s.taskRepo.AppendActivity(&domain.TaskActivity{
			TaskID:     task.ID,
			Kind:       "reminder",
			Detail:     "reminder sent to " + to,
			ActorEmail: "scheduler",
		})
	}

	// Advance to the next tier. Marking sent even after a delivery error
	// avoids re-sending the same reminder every sweep.
	if next := NextReminder(task, now); next != nil {
		task.ReminderAt = &next.At
		task.ReminderSent = false
		if err := s.taskRepo.Update(task); err != nil {
			log.Printf("[Scheduler] Error advancing reminder for task %s: %v", task.ID, err)
		}
		return
	}
	if err := s.taskRepo.MarkReminderSent(task.ID); err != nil {
		log.Printf("[Scheduler] Error marking reminder sent for task %s: %v", task.ID, err)
	}
}

// NextReminder returns the earliest scheduled reminder still in the
// future, or nil when the escalation schedule is exhausted.
func NextReminder(task *domain.Task, now time.Time) *domain.Reminder {
	var next *domain.Reminder
	for i := range task.Analysis.Reminders {
		r := &task.Analysis.Reminders[i]
		if !r.At.After(now) {
			continue
		}
		if next == nil || r.At.Before(next.At) {
			next = r
		}
	}
	return next
}
