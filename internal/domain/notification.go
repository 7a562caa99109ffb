package domain

import (
	"fmt"
	"strings"
)

// NotificationKind names a domain event that can notify task participants.
type NotificationKind string

const (
	KindTaskAssigned     NotificationKind = "task_assigned"
	KindTaskReassigned   NotificationKind = "task_reassigned"
	KindStatusChanged    NotificationKind = "status_changed"
	KindSubtaskCompleted NotificationKind = "subtask_completed"
	KindComment          NotificationKind = "comment"
)

// Valid reports whether k is a known kind.
func (k NotificationKind) Valid() bool {
	switch k {
	case KindTaskAssigned, KindTaskReassigned, KindStatusChanged, KindSubtaskCompleted, KindComment:
		return true
	}
	return false
}

// TaskPayload carries the task fields notifications are rendered from.
type TaskPayload struct {
	TaskID             int64  `json:"task_id"`
	TaskTitle          string `json:"task_title" binding:"required"`
	CustomerID         int64  `json:"customer_id"`
	ExecutorID         int64  `json:"executor_id"`
	PreviousExecutorID int64  `json:"previous_executor_id"`
	ParentTaskTitle    string `json:"parent_task_title"`
	Status             string `json:"status"`
	Comment            string `json:"comment"`
}

// NotificationEvent is raised by the task layer and routed synchronously; it is never stored.
type NotificationEvent struct {
	Kind        NotificationKind `json:"kind" binding:"required"`
	RecipientID int64            `json:"recipient_id"`
	ActorID     int64            `json:"actor_id"`
	ActorName   string           `json:"actor_name"`
	Payload     TaskPayload      `json:"payload"`
}

// Validate checks the fields every kind depends on.
func (e NotificationEvent) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown notification kind %q", e.Kind)
	}
	if strings.TrimSpace(e.Payload.TaskTitle) == "" {
		return fmt.Errorf("payload.task_title is required")
	}
	switch e.Kind {
	case KindTaskAssigned, KindTaskReassigned, KindSubtaskCompleted:
		if e.RecipientID == 0 {
			return fmt.Errorf("recipient_id is required for %s", e.Kind)
		}
	}
	return nil
}
