package domain

// TaskBoard is a named container for tasks and members.
type TaskBoard struct {
	ID          int64  `json:"taskboardId"`
	Name        string `json:"name"`
	InitiatorID string `json:"initiatorId"`
}
