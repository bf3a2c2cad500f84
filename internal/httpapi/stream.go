package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/psepar/demandboard/internal/model"
	"github.com/psepar/demandboard/internal/store"
)

// streamEvent is the wire form of a change-feed entry: task and comment
// events go to every client, notification INSERTs only to their
// recipient.
type streamEvent struct {
	Table        string              `json:"table"`
	Op           store.EventOp       `json:"op"`
	Task         *model.Task         `json:"task,omitempty"`
	TaskID       string              `json:"task_id,omitempty"`
	Comment      *model.Comment      `json:"comment,omitempty"`
	Notification *model.Notification `json:"notification,omitempty"`
}

// handleStream serves the change feed as server-sent events.
func (s *Server) handleStream(c echo.Context) error {
	session := s.session(c)

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}

	events, cancel := s.store.Subscribe(64)
	defer cancel()

	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, open := <-events:
			if !open {
				return nil
			}

			// Notifications are owned by their recipient.
			if ev.Table == store.TableNotifications {
				if ev.Notification == nil || ev.Notification.UserEmail != session.Email {
					continue
				}
			}

			data, err := json.Marshal(streamEvent{
				Table:        ev.Table,
				Op:           ev.Op,
				Task:         ev.Task,
				TaskID:       ev.TaskID,
				Comment:      ev.Comment,
				Notification: ev.Notification,
			})
			if err != nil {
				s.log.Warnf("encoding stream event: %v", err)
				continue
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
		}
	}
}
