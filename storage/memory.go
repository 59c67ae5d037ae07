package storage

import (
	"context"
	"sort"
	"sync"

	"taskboard-api/domain"
)

// Memory keeps boards and tasks in process memory. A single lock guards both
// collections so id assignment and the board/task existence checks are
// atomic with the mutation that follows them.
type Memory struct {
	mu          sync.RWMutex
	boards      map[int64]domain.TaskBoard
	tasks       map[int64]domain.Task
	lastBoardID int64
	lastTaskID  int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		boards: make(map[int64]domain.TaskBoard),
		tasks:  make(map[int64]domain.Task),
	}
}

func (m *Memory) CreateBoard(_ context.Context, board domain.TaskBoard) (domain.TaskBoard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastBoardID++
	board.ID = m.lastBoardID
	m.boards[board.ID] = board
	return board, nil
}

func (m *Memory) GetBoard(_ context.Context, boardID int64) (domain.TaskBoard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	board, ok := m.boards[boardID]
	if !ok {
		return domain.TaskBoard{}, domain.ErrBoardNotFound
	}
	return board, nil
}

func (m *Memory) BoardExists(_ context.Context, boardID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.boards[boardID]
	return ok, nil
}

func (m *Memory) CreateTask(_ context.Context, boardID int64, task domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.boards[boardID]; !ok {
		return domain.Task{}, domain.ErrBoardNotFound
	}
	m.lastTaskID++
	task = task.Clone()
	task.ID = m.lastTaskID
	task.BoardID = boardID
	m.tasks[task.ID] = task
	return task.Clone(), nil
}

func (m *Memory) GetTask(_ context.Context, boardID, taskID int64) (domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, err := m.lookupTask(boardID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	return task.Clone(), nil
}

func (m *Memory) ListTasks(_ context.Context, boardID int64) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.boards[boardID]; !ok {
		return nil, domain.ErrBoardNotFound
	}
	tasks := []domain.Task{}
	for _, t := range m.tasks {
		if t.BoardID == boardID {
			tasks = append(tasks, t.Clone())
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (m *Memory) UpdateTask(_ context.Context, boardID, taskID int64, task domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.lookupTask(boardID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	updated := stored.Replace(task)
	m.tasks[taskID] = updated
	return updated.Clone(), nil
}

func (m *Memory) DeleteTask(_ context.Context, boardID, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookupTask(boardID, taskID); err != nil {
		return err
	}
	delete(m.tasks, taskID)
	return nil
}

func (m *Memory) MoveTask(_ context.Context, boardID, taskID int64, status string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.lookupTask(boardID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	task.Status = status
	m.tasks[taskID] = task
	return task.Clone(), nil
}

// Ping always succeeds; it lets Memory stand in wherever a health check is expected.
func (m *Memory) Ping(context.Context) error { return nil }

// lookupTask applies the shared precondition of every task operation that
// addresses an existing task. The caller must hold the lock.
func (m *Memory) lookupTask(boardID, taskID int64) (domain.Task, error) {
	if _, ok := m.boards[boardID]; !ok {
		return domain.Task{}, domain.ErrBoardOrTaskNotFound
	}
	task, ok := m.tasks[taskID]
	if !ok {
		return domain.Task{}, domain.ErrBoardOrTaskNotFound
	}
	return task, nil
}
