package domain

import "github.com/bytedance/sonic"

// Event types emitted after successful mutations.
const (
	EventBoardCreated = "board-created"
	EventTaskCreated  = "task-created"
	EventTaskUpdated  = "task-updated"
	EventTaskDeleted  = "task-deleted"
	EventTaskMoved    = "task-moved"
)

// Event describes a change that happened on a board.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	BoardID   int64                  `json:"boardId"`
	TaskID    int64                  `json:"taskId,omitempty"`
	Data      sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
