package api

import (
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"taskboard-api/domain"
)

func newEvent(eventType string, boardID, taskID int64, payload any) domain.Event {
	ev := domain.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		BoardID:   boardID,
		TaskID:    taskID,
		Timestamp: nextTimestamp(),
	}
	if payload != nil {
		if data, err := sonic.Marshal(payload); err == nil {
			ev.Data = data
		}
	}
	return ev
}

// publish hands ev to the event pipeline. Failures never affect the response.
func publish(c echo.Context, events EventPublisher, ev domain.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(c.Request().Context(), ev); err != nil {
		c.Logger().Errorf("publish %s event for board %d: %v", ev.Type, ev.BoardID, err)
	}
}
