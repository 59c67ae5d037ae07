package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"taskboard-api/domain"
)

// Broker wakes up board stream subscribers whenever an event for their board
// is published.
type Broker struct {
	mu   sync.Mutex
	subs map[int64]map[chan struct{}]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[int64]map[chan struct{}]struct{}),
		done: make(chan struct{}),
	}
}

// Close ends every open board stream. http.Server.Shutdown waits for active
// requests without cancelling them, so call Close before shutting down.
func (b *Broker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *Broker) subscribe(boardID int64) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[boardID] == nil {
		b.subs[boardID] = make(map[chan struct{}]struct{})
	}
	b.subs[boardID][ch] = struct{}{}
	return ch
}

func (b *Broker) unsubscribe(boardID int64, ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[boardID], ch)
	if len(b.subs[boardID]) == 0 {
		delete(b.subs, boardID)
	}
}

// Publish notifies the subscribers of ev's board. Pending notifications are
// coalesced, so a slow subscriber never blocks the publisher.
func (b *Broker) Publish(_ context.Context, ev domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.BoardID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// streamBoard sends the board's task list as a server-sent event on connect
// and again after every change to the board.
func streamBoard(store Storage, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID, err := pathID(c, "boardId")
		if err != nil {
			return err
		}
		ctx := c.Request().Context()
		if _, err := store.GetBoard(ctx, boardID); err != nil {
			return err
		}
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return echo.NewHTTPError(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)

		ch := broker.subscribe(boardID)
		defer broker.unsubscribe(boardID, ch)
		for {
			tasks, err := store.ListTasks(ctx, boardID)
			if err != nil {
				c.Logger().Error(err)
				return nil
			}
			data, err := sonic.Marshal(tasks)
			if err != nil {
				c.Logger().Error(err)
				return nil
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case <-broker.done:
				return nil
			case <-ch:
				continue
			}
		}
	}
}
