package domain

// Task represents a single unit of work on a board.
type Task struct {
	ID            int64   `json:"taskId"`
	BoardID       int64   `json:"-"`
	Title         string  `json:"title"`
	DueDate       Date    `json:"dueDate"`
	Status        string  `json:"status"`
	Priority      string  `json:"priority"`
	SpecialStatus *string `json:"specialStatus"`
	AssigneeID    string  `json:"assigneeId"`
	RecipientID   string  `json:"recipientId"`
	Description   string  `json:"description"`
}

// Clone returns a copy of t that shares no pointers with it.
func (t Task) Clone() Task {
	if t.SpecialStatus != nil {
		s := *t.SpecialStatus
		t.SpecialStatus = &s
	}
	return t
}

// Replace overwrites every client-supplied field of t with the fields of next.
// Identity and board ownership are kept.
func (t Task) Replace(next Task) Task {
	next.ID = t.ID
	next.BoardID = t.BoardID
	return next.Clone()
}
