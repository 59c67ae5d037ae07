package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

const maxTxRetries = 8

var errTxRetriesExhausted = errors.New("redis transaction retries exhausted")

// Redis stores boards and tasks in two Redis hashes so that several API
// instances can share them. Ids come from INCR counters and are never reused.
type Redis struct {
	client *redis.Client
	prefix string
}

// taskRecord is the stored form of a task; unlike the API shape it keeps the
// owning board.
type taskRecord struct {
	BoardID int64 `json:"boardId"`
	domain.Task
}

// NewRedis creates a store using the given client. All keys are namespaced
// with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if client == nil {
		panic("storage.NewRedis: client is nil")
	}
	if prefix == "" {
		prefix = "taskboard"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) boardsKey() string   { return r.prefix + ":boards" }
func (r *Redis) boardSeqKey() string { return r.prefix + ":boards:seq" }
func (r *Redis) tasksKey() string    { return r.prefix + ":tasks" }
func (r *Redis) taskSeqKey() string  { return r.prefix + ":tasks:seq" }

func (r *Redis) CreateBoard(ctx context.Context, board domain.TaskBoard) (domain.TaskBoard, error) {
	id, err := r.client.Incr(ctx, r.boardSeqKey()).Result()
	if err != nil {
		return domain.TaskBoard{}, fmt.Errorf("allocate board id: %w", err)
	}
	board.ID = id
	data, err := sonic.Marshal(board)
	if err != nil {
		return domain.TaskBoard{}, err
	}
	if err := r.client.HSet(ctx, r.boardsKey(), idField(id), data).Err(); err != nil {
		return domain.TaskBoard{}, fmt.Errorf("store board %d: %w", id, err)
	}
	return board, nil
}

func (r *Redis) GetBoard(ctx context.Context, boardID int64) (domain.TaskBoard, error) {
	data, err := r.client.HGet(ctx, r.boardsKey(), idField(boardID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.TaskBoard{}, domain.ErrBoardNotFound
	}
	if err != nil {
		return domain.TaskBoard{}, fmt.Errorf("load board %d: %w", boardID, err)
	}
	var board domain.TaskBoard
	if err := sonic.Unmarshal(data, &board); err != nil {
		return domain.TaskBoard{}, fmt.Errorf("decode board %d: %w", boardID, err)
	}
	return board, nil
}

func (r *Redis) BoardExists(ctx context.Context, boardID int64) (bool, error) {
	ok, err := r.client.HExists(ctx, r.boardsKey(), idField(boardID)).Result()
	if err != nil {
		return false, fmt.Errorf("check board %d: %w", boardID, err)
	}
	return ok, nil
}

func (r *Redis) CreateTask(ctx context.Context, boardID int64, task domain.Task) (domain.Task, error) {
	if err := r.requireBoard(ctx, boardID, domain.ErrBoardNotFound); err != nil {
		return domain.Task{}, err
	}
	id, err := r.client.Incr(ctx, r.taskSeqKey()).Result()
	if err != nil {
		return domain.Task{}, fmt.Errorf("allocate task id: %w", err)
	}
	task = task.Clone()
	task.ID = id
	task.BoardID = boardID
	data, err := encodeTask(task)
	if err != nil {
		return domain.Task{}, err
	}
	if err := r.client.HSet(ctx, r.tasksKey(), idField(id), data).Err(); err != nil {
		return domain.Task{}, fmt.Errorf("store task %d: %w", id, err)
	}
	return task, nil
}

func (r *Redis) GetTask(ctx context.Context, boardID, taskID int64) (domain.Task, error) {
	if err := r.requireBoard(ctx, boardID, domain.ErrBoardOrTaskNotFound); err != nil {
		return domain.Task{}, err
	}
	data, err := r.client.HGet(ctx, r.tasksKey(), idField(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Task{}, domain.ErrBoardOrTaskNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("load task %d: %w", taskID, err)
	}
	return decodeTask(data)
}

func (r *Redis) ListTasks(ctx context.Context, boardID int64) ([]domain.Task, error) {
	if err := r.requireBoard(ctx, boardID, domain.ErrBoardNotFound); err != nil {
		return nil, err
	}
	raw, err := r.client.HGetAll(ctx, r.tasksKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks := []domain.Task{}
	for _, v := range raw {
		task, err := decodeTask([]byte(v))
		if err != nil {
			return nil, err
		}
		if task.BoardID == boardID {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (r *Redis) UpdateTask(ctx context.Context, boardID, taskID int64, task domain.Task) (domain.Task, error) {
	return r.mutateTask(ctx, boardID, taskID, func(stored domain.Task) domain.Task {
		return stored.Replace(task)
	})
}

func (r *Redis) MoveTask(ctx context.Context, boardID, taskID int64, status string) (domain.Task, error) {
	return r.mutateTask(ctx, boardID, taskID, func(stored domain.Task) domain.Task {
		stored.Status = status
		return stored
	})
}

func (r *Redis) DeleteTask(ctx context.Context, boardID, taskID int64) error {
	if err := r.requireBoard(ctx, boardID, domain.ErrBoardOrTaskNotFound); err != nil {
		return err
	}
	n, err := r.client.HDel(ctx, r.tasksKey(), idField(taskID)).Result()
	if err != nil {
		return fmt.Errorf("delete task %d: %w", taskID, err)
	}
	if n == 0 {
		return domain.ErrBoardOrTaskNotFound
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// mutateTask reads, transforms and writes a task inside an optimistic
// WATCH/MULTI transaction on the task hash.
func (r *Redis) mutateTask(ctx context.Context, boardID, taskID int64, apply func(domain.Task) domain.Task) (domain.Task, error) {
	if err := r.requireBoard(ctx, boardID, domain.ErrBoardOrTaskNotFound); err != nil {
		return domain.Task{}, err
	}
	field := idField(taskID)
	var result domain.Task
	txf := func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, r.tasksKey(), field).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrBoardOrTaskNotFound
		}
		if err != nil {
			return err
		}
		stored, err := decodeTask(data)
		if err != nil {
			return err
		}
		result = apply(stored)
		payload, err := encodeTask(result)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.tasksKey(), field, payload)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, r.tasksKey())
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, domain.ErrNotFound):
			return domain.Task{}, err
		default:
			return domain.Task{}, fmt.Errorf("update task %d: %w", taskID, err)
		}
	}
	return domain.Task{}, fmt.Errorf("update task %d: %w", taskID, errTxRetriesExhausted)
}

func (r *Redis) requireBoard(ctx context.Context, boardID int64, notFound error) error {
	ok, err := r.BoardExists(ctx, boardID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound
	}
	return nil
}

func encodeTask(task domain.Task) ([]byte, error) {
	data, err := sonic.Marshal(taskRecord{BoardID: task.BoardID, Task: task})
	if err != nil {
		return nil, fmt.Errorf("encode task %d: %w", task.ID, err)
	}
	return data, nil
}

func decodeTask(data []byte) (domain.Task, error) {
	var rec taskRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return domain.Task{}, fmt.Errorf("decode task: %w", err)
	}
	task := rec.Task
	task.BoardID = rec.BoardID
	return task, nil
}

func idField(id int64) string {
	return strconv.FormatInt(id, 10)
}
