package httpgin

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tixledger/internal/lib/logger/sl"
	redisx "github.com/kirinyoku/tixledger/internal/redis"
)

// @Summary  List events
// @Param    limit  query  int  false  "page size"
// @Param    offset query  int  false  "offset"
// @Success  200  {array}  EventResponse
// @Router   /events [get]
func (h *handler) listEvents(c *gin.Context) {
	limit, offset := page(c)

	events, err := h.svcs.Registry.ListEvents(c.Request.Context(), limit, offset)
	if err != nil {
		respondErr(c, err)
		return
	}

	writeJSONWithCache(c, http.StatusOK, newEventResponses(events), "public, max-age=15")
}

// @Summary  Get event
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  EventResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func (h *handler) getEvent(c *gin.Context) {
	eventID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	e, err := h.svcs.Registry.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		respondErr(c, err)
		return
	}

	writeJSONWithCache(c, http.StatusOK, newEventResponse(e), "public, max-age=15")
}

// @Summary  Create event
// @Security BearerAuth
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} CreateEventResponse
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse "caller is not an organizer"
// @Router   /events [post]
func (h *handler) createEvent(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	e, err := req.toDomain()
	if err != nil {
		respondErr(c, err)
		return
	}

	id, err := h.svcs.Registry.CreateEvent(c.Request.Context(), account(c), e)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateEventResponse{EventID: id})
}

// @Summary  Close event
// @Security BearerAuth
// @Param    id  path  int  true  "Event ID"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/close [post]
func (h *handler) closeEvent(c *gin.Context) {
	eventID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	if err := h.svcs.Registry.CloseEvent(c.Request.Context(), account(c), eventID); err != nil {
		respondErr(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary  Live ticket changes of an event (server-sent events)
// @Param    id  path  int  true  "Event ID"
// @Produce  text/event-stream
// @Success  200
// @Failure  404 {object} ErrorResponse
// @Failure  503 {object} ErrorResponse "feed disabled"
// @Router   /events/{id}/feed [get]
func (h *handler) feed(c *gin.Context) {
	eventID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	if h.opts.Feed == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "live feed is disabled", Kind: "unavailable"})
		return
	}

	if _, err := h.svcs.Registry.GetEvent(c.Request.Context(), eventID); err != nil {
		respondErr(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("ready", gin.H{"event_id": eventID})
	c.Writer.Flush()

	err := h.opts.Feed.Subscribe(c.Request.Context(), func(_ context.Context, ch redisx.TicketChange) {
		if ch.EventID != eventID {
			return
		}
		c.SSEvent("ticket", ch)
		c.Writer.Flush()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.Warn("ticket feed closed", sl.Err(err))
	}
}
