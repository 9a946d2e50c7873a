package handlers

import (
	"strconv"
	"time"

	"RiderGuard/internal/alerting"
	"RiderGuard/internal/auth"
	errs "RiderGuard/pkg/errors"
	"RiderGuard/pkg/response"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 50

func (h *Handlers) handleCreateAlert(c *gin.Context) {
	var in alerting.CreateInput
	if err := bind(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.Alerts.Create(c.Request.Context(), auth.Current(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.result(c, res, true)
}

func (h *Handlers) handleActiveAlerts(c *gin.Context) {
	alerts, err := h.Alerts.ActiveAlerts(c.Request.Context(), auth.Current(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", alerts)
}

func (h *Handlers) handleAlertHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(c, errs.Validation("invalid limit %q", raw))
			return
		}
		limit = n
	}
	alerts, err := h.Alerts.History(c.Request.Context(), auth.Current(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", alerts)
}

func (h *Handlers) handleAlertDetail(c *gin.Context) {
	id, err := pathUUID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	detail, err := h.Alerts.Detail(c.Request.Context(), auth.Current(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", detail)
}

func (h *Handlers) handleAlertTrajectory(c *gin.Context) {
	id, err := pathUUID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	from, err := queryTime(c, "from")
	if err != nil {
		h.fail(c, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		h.fail(c, err)
		return
	}
	samples, err := h.Alerts.Trajectory(c.Request.Context(), auth.Current(c), id, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "ok", samples)
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errs.Validation("invalid %s %q", key, raw)
	}
	return t, nil
}

func (h *Handlers) handleCancelAlert(c *gin.Context) {
	id, err := pathUUID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.Alerts.Cancel(c.Request.Context(), auth.Current(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.result(c, res, false)
}

func (h *Handlers) handleAttendAlert(c *gin.Context) {
	id, err := pathUUID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.Alerts.Attend(c.Request.Context(), auth.Current(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.result(c, res, false)
}

type closeRequest struct {
	Notes string `json:"notes"`
}

func (h *Handlers) handleCloseAlert(c *gin.Context) {
	id, err := pathUUID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req closeRequest
	// notes are optional, so is the body
	if c.Request.ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			h.fail(c, err)
			return
		}
	}
	res, err := h.Alerts.Close(c.Request.Context(), auth.Current(c), id, req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.result(c, res, false)
}

func (h *Handlers) handleNotifyContacts(c *gin.Context) {
	id, err := pathUUID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.Alerts.NotifyContacts(c.Request.Context(), auth.Current(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.result(c, res, false)
}
