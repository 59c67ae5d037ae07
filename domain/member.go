package domain

// Member pairs a user with a permission on a board.
type Member struct {
	UserID     string `json:"userId"`
	Permission string `json:"permission"`
}

// Membership is the acknowledgement returned when a member is admitted.
type Membership struct {
	BoardID int64 `json:"boardId"`
	Member
}

// Admit acknowledges m for the given board. Nothing is recorded and the
// board is not checked.
func (m Member) Admit(boardID int64) Membership {
	return Membership{BoardID: boardID, Member: m}
}
