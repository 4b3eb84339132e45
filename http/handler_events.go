package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"

	"attendance/entity"
)

func (s Server) GetAvailability(c echo.Context) error {
	snapshot := s.availability.Snapshot(c.Request().Context(), c.Param("event_id"))

	return c.JSON(http.StatusOK, snapshot)
}

// GetView returns the view kept by a running listener, or loads one when
// nobody watches the event.
func (s Server) GetView(c echo.Context) error {
	eventID := c.Param("event_id")

	if view, ok := s.hub.Current(eventID); ok {
		return c.JSON(http.StatusOK, view)
	}

	view, err := s.loader.Load(c.Request().Context(), eventID)
	if err != nil {
		return httpError(fmt.Errorf("failed to load view of event %s: %w", eventID, err))
	}

	return c.JSON(http.StatusOK, view)
}

// StreamView sends every new version of the view as a server-sent event
// until the client goes away.
func (s Server) StreamView(c echo.Context) error {
	ctx := c.Request().Context()
	eventID := c.Param("event_id")

	// only the latest view matters, older ones are dropped
	updates := make(chan entity.EventView, 1)
	onChange := func(view entity.EventView) {
		select {
		case <-updates:
		default:
		}
		updates <- view
	}

	sub, err := s.hub.Subscribe(eventID, onChange)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	defer sub.Unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	logger := log.FromContext(ctx).WithField("event_id", eventID)
	logger.Debug("View stream opened")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("View stream closed")
			return nil
		case view := <-updates:
			payload, err := json.Marshal(view)
			if err != nil {
				return fmt.Errorf("failed to marshal view: %w", err)
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: view\ndata: %s\n\n", view.Version, payload); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func (s Server) DeleteScanMemory(c echo.Context) error {
	if err := s.scanMemory.Invalidate(c.Request().Context()); err != nil {
		return fmt.Errorf("failed to invalidate scan memory: %w", err)
	}

	return c.NoContent(http.StatusNoContent)
}
