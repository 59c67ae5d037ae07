package api

import "taskboard-api/domain"

const requestBodyLimit = "64K"

// POST /api/taskboard/ request body
type boardRequest struct {
	Name        *string `json:"name" validate:"required"`
	InitiatorID *string `json:"initiatorId" validate:"required"`
}

func (r boardRequest) board() domain.TaskBoard {
	return domain.TaskBoard{Name: *r.Name, InitiatorID: *r.InitiatorID}
}

// POST and PUT task request body. Every field except specialStatus must be
// present; updates replace the whole record.
type taskRequest struct {
	Title         *string      `json:"title" validate:"required"`
	DueDate       *domain.Date `json:"dueDate" validate:"required"`
	Status        *string      `json:"status" validate:"required"`
	Priority      *string      `json:"priority" validate:"required"`
	SpecialStatus *string      `json:"specialStatus"`
	AssigneeID    *string      `json:"assigneeId" validate:"required"`
	RecipientID   *string      `json:"recipientId" validate:"required"`
	Description   *string      `json:"description" validate:"required"`
}

func (r taskRequest) task() domain.Task {
	return domain.Task{
		Title:         *r.Title,
		DueDate:       *r.DueDate,
		Status:        *r.Status,
		Priority:      *r.Priority,
		SpecialStatus: r.SpecialStatus,
		AssigneeID:    *r.AssigneeID,
		RecipientID:   *r.RecipientID,
		Description:   *r.Description,
	}
}

// PATCH .../move request body
type moveRequest struct {
	NewStatus *string `json:"newStatus" validate:"required"`
}

// PATCH .../move response body
type moveResponse struct {
	TaskID    int64  `json:"taskId"`
	NewStatus string `json:"newStatus"`
}

// POST .../members/ request body
type memberRequest struct {
	UserID     *string `json:"userId" validate:"required"`
	Permission *string `json:"permission" validate:"required"`
}

func (r memberRequest) member() domain.Member {
	return domain.Member{UserID: *r.UserID, Permission: *r.Permission}
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

// detailResponse carries confirmations and every error message.
type detailResponse struct {
	Detail string `json:"detail"`
}

const taskDeletedDetail = "Task deleted"
