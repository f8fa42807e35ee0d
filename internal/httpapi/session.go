package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// --- Session ---

func (h Handlers) SessionState(c *gin.Context) {
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

// Connect blocks until the page's device reports registered or the attempt fails.
func (h Handlers) Connect(c *gin.Context) {
	if err := h.Session.Connect(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

func (h Handlers) Disconnect(c *gin.Context) {
	h.Session.Disconnect()
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

type callRequest struct {
	Number string `json:"number"`
}

func (h Handlers) MakeCall(c *gin.Context) {
	var req callRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Session.MakeCall(c.Request.Context(), req.Number); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.Session.Snapshot())
}

func (h Handlers) AcceptCall(c *gin.Context) {
	if err := h.Session.AcceptCall(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

func (h Handlers) RejectCall(c *gin.Context) {
	if err := h.Session.RejectCall(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

func (h Handlers) Hangup(c *gin.Context) {
	if err := h.Session.Hangup(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Session.Snapshot())
}

func (h Handlers) ToggleMute(c *gin.Context) {
	muted, err := h.Session.ToggleMute()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (h Handlers) ToggleHold(c *gin.Context) {
	held, err := h.Session.ToggleHold()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"held": held})
}

type toneRequest struct {
	Digit string `json:"digit"`
}

func (h Handlers) SendTone(c *gin.Context) {
	var req toneRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Session.SendTone(req.Digit); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- SMS ---

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (h Handlers) SendSMS(c *gin.Context) {
	var req smsRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.Messaging.Send(c.Request.Context(), req.To, req.Body)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Conversations(c *gin.Context) {
	out, err := h.Messaging.Conversations(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Messages(c *gin.Context) {
	out, err := h.Messaging.Messages(c.Request.Context(), c.Query("contact"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) PhoneNumbers(c *gin.Context) {
	out, err := h.Messaging.PhoneNumbers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
