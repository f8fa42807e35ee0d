package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"softphone/internal/apperr"
	"softphone/internal/bridge"
	"softphone/internal/contacts"
	"softphone/internal/credentials"
	"softphone/internal/history"
	"softphone/internal/messaging"
	"softphone/internal/notify"
	"softphone/internal/session"
	"softphone/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, call the stores or the controller, return JSON.
type Handlers struct {
	Credentials *credentials.Store
	Contacts    *contacts.Store
	History     *history.Store
	Session     *session.Controller
	Messaging   *messaging.Service
	Hub         *notify.Hub
	Bridge      *bridge.Bridge
}

// fail turns err into the notification payload the page displays.
func fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := gin.H{"error": err.Error(), "kind": apperr.Kind(err)}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body["violations"] = ve.Violations
	}
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		body["error"] = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json", "kind": "validation"})
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		fail(c, apperr.NewValidation(key+" must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

// --- Credentials ---

func (h Handlers) GetCredentials(c *gin.Context) {
	rec, err := h.Credentials.Masked(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) SaveCredentials(c *gin.Context) {
	var rec credentials.Record
	if !bindJSON(c, &rec) {
		return
	}
	if err := h.Credentials.Save(c.Request.Context(), rec); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

func (h Handlers) UpdateCredentials(c *gin.Context) {
	var patch credentials.Record
	if !bindJSON(c, &patch) {
		return
	}
	if _, err := h.Credentials.Update(c.Request.Context(), patch); err != nil {
		fail(c, err)
		return
	}
	rec, err := h.Credentials.Masked(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) ClearCredentials(c *gin.Context) {
	if err := h.Credentials.Clear(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ValidateCredentials(c *gin.Context) {
	var rec credentials.Record
	if !bindJSON(c, &rec) {
		return
	}
	c.JSON(http.StatusOK, credentials.Validate(rec))
}

func (h Handlers) CredentialsStatus(c *gin.Context) {
	ctx := c.Request.Context()
	ok, err := h.Credentials.Exists(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	usage, err := h.Credentials.Usage(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": ok, "usage": usage})
}

func (h Handlers) ExportCredentials(c *gin.Context) {
	b, err := h.Credentials.Export(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h Handlers) ImportCredentials(c *gin.Context) {
	var b credentials.Backup
	if !bindJSON(c, &b) {
		return
	}
	if err := h.Credentials.Import(c.Request.Context(), b); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": true})
}

// --- Contacts ---

func (h Handlers) ListContacts(c *gin.Context) {
	list, err := h.Contacts.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h Handlers) AddContact(c *gin.Context) {
	var in contacts.Input
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Contacts.Add(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) GetContact(c *gin.Context) {
	out, err := h.Contacts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) UpdateContact(c *gin.Context) {
	var in contacts.Input
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.Contacts.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) DeleteContact(c *gin.Context) {
	if err := h.Contacts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ToggleFavorite(c *gin.Context) {
	out, err := h.Contacts.ToggleFavorite(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) FavoriteContacts(c *gin.Context) {
	list, err := h.Contacts.Favorites(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h Handlers) FrequentContacts(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	list, err := h.Contacts.Frequent(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// LookupContact resolves a phone number to its contact, or 404.
func (h Handlers) LookupContact(c *gin.Context) {
	found, err := h.Contacts.FindByPhone(c.Request.Context(), c.Query("phone"))
	if err != nil {
		fail(c, err)
		return
	}
	if found == nil {
		fail(c, apperr.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (h Handlers) ExportContacts(c *gin.Context) {
	data, err := h.Contacts.Export(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="contacts.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

func (h Handlers) ImportContacts(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		fail(c, apperr.NewValidation("body is required"))
		return
	}
	n, err := h.Contacts.Import(c.Request.Context(), data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

// --- History ---

// ListHistory applies ?filter= then ?q=, newest first, truncated to ?limit= when given.
func (h Handlers) ListHistory(c *gin.Context) {
	ctx := c.Request.Context()
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	criterion := history.Criterion(c.DefaultQuery("filter", string(history.FilterAll)))
	list, err := h.History.Filter(ctx, criterion)
	if err != nil {
		fail(c, err)
		return
	}
	if q := c.Query("q"); q != "" {
		matched, err := h.History.Search(ctx, q)
		if err != nil {
			fail(c, err)
			return
		}
		list = intersect(list, matched)
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	c.JSON(http.StatusOK, list)
}

func intersect(a, b []history.Entry) []history.Entry {
	keep := make(map[string]bool, len(b))
	for _, e := range b {
		keep[e.ID] = true
	}
	out := make([]history.Entry, 0, len(a))
	for _, e := range a {
		if keep[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

func (h Handlers) AddHistory(c *gin.Context) {
	var in history.NewEntry
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.History.Add(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) UpdateHistory(c *gin.Context) {
	var p history.Patch
	if !bindJSON(c, &p) {
		return
	}
	out, err := h.History.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) DeleteHistory(c *gin.Context) {
	if err := h.History.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ClearHistory(c *gin.Context) {
	if err := h.History.Clear(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) HistoryStats(c *gin.Context) {
	st, err := h.History.Statistics(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) HistoryDaily(c *gin.Context) {
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	out, err := h.History.DailySummary(c.Request.Context(), days)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) RecentHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	out, err := h.History.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) MissedHistory(c *gin.Context) {
	out, err := h.History.Missed(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) ExportHistory(c *gin.Context) {
	data, err := h.History.Export(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="call-history.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

func (h Handlers) ImportHistory(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		fail(c, apperr.NewValidation("body is required"))
		return
	}
	n, err := h.History.Import(c.Request.Context(), data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}
