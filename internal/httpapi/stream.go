package httpapi

import (
	"net/http"

	"softphone/internal/bridge"
	"softphone/internal/notify"
	"softphone/internal/session"

	"github.com/gin-gonic/gin"
)

// PublishSession returns a controller observer that forwards updates to hub.
func PublishSession(hub *notify.Hub) session.Observer {
	return func(u session.Update) {
		switch u.Kind {
		case session.UpdateNotice:
			hub.Publish(notify.KindNotice, u.Notice)
		case session.UpdateTick:
			hub.Publish(notify.KindTick, u.Snapshot)
		default:
			hub.Publish(notify.KindSession, u.Snapshot)
		}
	}
}

func startSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()
}

// Events streams hub events to the page until it goes away.
func (h Handlers) Events(c *gin.Context) {
	events, cancel := h.Hub.Subscribe()
	defer cancel()
	startSSE(c)

	// current state first so a fresh page does not wait for the next transition
	c.SSEvent(string(notify.KindSession), h.Session.Snapshot())
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Kind), ev)
			c.Writer.Flush()
		}
	}
}

// BridgeCommands is the page's command feed for the SDK it hosts.
func (h Handlers) BridgeCommands(c *gin.Context) {
	detach := h.Bridge.Attach()
	defer detach()
	startSSE(c)

	ctx := c.Request.Context()
	cmds := h.Bridge.Commands()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-cmds:
			c.SSEvent("command", cmd)
			c.Writer.Flush()
		}
	}
}

// BridgeEvent accepts one SDK event posted by the page.
func (h Handlers) BridgeEvent(c *gin.Context) {
	var in bridge.InboundEvent
	if !bindJSON(c, &in) {
		return
	}
	if err := h.Bridge.Deliver(in); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
