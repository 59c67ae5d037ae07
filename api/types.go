package api

import (
	"context"

	"taskboard-api/domain"
)

// Storage abstracts the board and task stores for handlers.
type Storage interface {
	CreateBoard(ctx context.Context, board domain.TaskBoard) (domain.TaskBoard, error)
	GetBoard(ctx context.Context, boardID int64) (domain.TaskBoard, error)
	BoardExists(ctx context.Context, boardID int64) (bool, error)
	CreateTask(ctx context.Context, boardID int64, task domain.Task) (domain.Task, error)
	GetTask(ctx context.Context, boardID, taskID int64) (domain.Task, error)
	ListTasks(ctx context.Context, boardID int64) ([]domain.Task, error)
	UpdateTask(ctx context.Context, boardID, taskID int64, task domain.Task) (domain.Task, error)
	DeleteTask(ctx context.Context, boardID, taskID int64) error
	MoveTask(ctx context.Context, boardID, taskID int64, status string) (domain.Task, error)
}

// Pinger is implemented by stores able to report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventPublisher delivers board events to a downstream consumer.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}
