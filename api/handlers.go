package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

const healthzTimeout = 2 * time.Second

// Register wires up all API routes on the provided Echo instance, together
// with the JSON codec, request validation and error rendering they rely on.
func Register(e *echo.Echo, store Storage, events EventPublisher, broker *Broker, logger *log.Logger) {
	e.JSONSerializer = sonicSerializer{}
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = errorHandler(logger)

	g := e.Group("/api/taskboard", middleware.Decompress(), middleware.BodyLimit(requestBodyLimit))
	g.POST("/", createBoard(store, events))
	g.GET("/:boardId", getBoard(store))
	g.GET("/:boardId/stream", streamBoard(store, broker))
	g.POST("/:boardId/members/", addMember())

	g.POST("/:boardId/tasks/", createTask(store, events))
	g.GET("/:boardId/tasks/", listTasks(store))
	g.GET("/:boardId/tasks/:taskId/", getTask(store))
	g.PUT("/:boardId/tasks/:taskId/", updateTask(store, events))
	g.DELETE("/:boardId/tasks/:taskId/", deleteTask(store, events))
	g.PATCH("/:boardId/tasks/:taskId/move", moveTask(store, events))

	e.GET("/healthz", healthz(store))
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := store.(Pinger)
		if !ok {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthzTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			c.Logger().Errorf("healthz: %v", err)
			return c.JSON(http.StatusServiceUnavailable, detailResponse{Detail: "storage unavailable"})
		}
		return c.NoContent(http.StatusOK)
	}
}

func createBoard(store Storage, events EventPublisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req boardRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		board, err := store.CreateBoard(c.Request().Context(), req.board())
		if err != nil {
			return err
		}
		publish(c, events, newEvent(domain.EventBoardCreated, board.ID, 0, board))
		return c.JSON(http.StatusOK, board)
	}
}

func getBoard(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID, err := pathID(c, "boardId")
		if err != nil {
			return err
		}
		board, err := store.GetBoard(c.Request().Context(), boardID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, board)
	}
}

func addMember() echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID, err := pathID(c, "boardId")
		if err != nil {
			return err
		}
		var req memberRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, req.member().Admit(boardID))
	}
}

func createTask(store Storage, events EventPublisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID, err := pathID(c, "boardId")
		if err != nil {
			return err
		}
		if err := requireBoard(c, store, boardID); err != nil {
			return err
		}
		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		task, err := store.CreateTask(c.Request().Context(), boardID, req.task())
		if err != nil {
			return err
		}
		publish(c, events, newEvent(domain.EventTaskCreated, boardID, task.ID, task))
		return c.JSON(http.StatusOK, task)
	}
}

func listTasks(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID, err := pathID(c, "boardId")
		if err != nil {
			return err
		}
		tasks, err := store.ListTasks(c.Request().Context(), boardID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

func getTask(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID, taskID, err := taskPath(c)
		if err != nil {
			return err
		}
		task, err := store.GetTask(c.Request().Context(), boardID, taskID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, task)
	}
}

func updateTask(store Storage, events EventPublisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID, taskID, err := taskPath(c)
		if err != nil {
			return err
		}
		if _, err := store.GetTask(c.Request().Context(), boardID, taskID); err != nil {
			return err
		}
		var req taskRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		task, err := store.UpdateTask(c.Request().Context(), boardID, taskID, req.task())
		if err != nil {
			return err
		}
		publish(c, events, newEvent(domain.EventTaskUpdated, boardID, task.ID, task))
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(store Storage, events EventPublisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID, taskID, err := taskPath(c)
		if err != nil {
			return err
		}
		if err := store.DeleteTask(c.Request().Context(), boardID, taskID); err != nil {
			return err
		}
		publish(c, events, newEvent(domain.EventTaskDeleted, boardID, taskID, nil))
		return c.JSON(http.StatusOK, detailResponse{Detail: taskDeletedDetail})
	}
}

func moveTask(store Storage, events EventPublisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID, taskID, err := taskPath(c)
		if err != nil {
			return err
		}
		if _, err := store.GetTask(c.Request().Context(), boardID, taskID); err != nil {
			return err
		}
		var req moveRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		task, err := store.MoveTask(c.Request().Context(), boardID, taskID, *req.NewStatus)
		if err != nil {
			return err
		}
		resp := moveResponse{TaskID: task.ID, NewStatus: task.Status}
		publish(c, events, newEvent(domain.EventTaskMoved, boardID, task.ID, resp))
		return c.JSON(http.StatusOK, resp)
	}
}

// requireBoard reports a missing board before the request body is looked at,
// so an unknown board is a 404 whatever the payload.
func requireBoard(c echo.Context, store Storage, boardID int64) error {
	ok, err := store.BoardExists(c.Request().Context(), boardID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrBoardNotFound
	}
	return nil
}

func taskPath(c echo.Context) (boardID, taskID int64, err error) {
	if boardID, err = pathID(c, "boardId"); err != nil {
		return 0, 0, err
	}
	if taskID, err = pathID(c, "taskId"); err != nil {
		return 0, 0, err
	}
	return boardID, taskID, nil
}
